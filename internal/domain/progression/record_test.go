package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
)

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, rec.Status)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, 0, rec.XPEarned)
	assert.Nil(t, rec.CompletedAt)
	assert.False(t, rec.IsCompleted())
}

func TestNewRecord_Validation(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		learner catalog.LearnerID
		chapter catalog.ChapterID
		kind    catalog.Kind
		wantErr error
	}{
		{"empty record id", "", "learner1", "ch1", catalog.KindDefault, ErrInvalidRecordID},
		{"empty learner", "rec-1", "", "ch1", catalog.KindDefault, ErrInvalidLearnerID},
		{"empty chapter", "rec-1", "learner1", "", catalog.KindDefault, ErrInvalidChapterID},
		{"unknown catalog", "rec-1", "learner1", "ch1", catalog.Kind("weekly"), ErrInvalidCatalog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord(tt.id, tt.learner, tt.chapter, tt.kind)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecord_AddActivity(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)

	require.NoError(t, rec.AddActivity(30, 10))
	require.NoError(t, rec.AddActivity(20, 5))

	assert.Equal(t, 50, rec.XPEarned)
	assert.Equal(t, 15, rec.TimeSpentMinutes)
}

func TestRecord_AddActivity_RejectsNegativeDeltas(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)

	assert.ErrorIs(t, rec.AddActivity(-1, 0), ErrNegativeDelta)
	assert.ErrorIs(t, rec.AddActivity(0, -1), ErrNegativeDelta)
	assert.Equal(t, 0, rec.XPEarned)
}

func TestRecord_Complete(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)
	require.NoError(t, rec.AddActivity(50, 20))

	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rec.Complete(90, 45, completedAt))

	assert.True(t, rec.IsCompleted())
	assert.Equal(t, 90, rec.XPEarned)
	assert.Equal(t, 45, rec.TimeSpentMinutes)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, completedAt, *rec.CompletedAt)
}

func TestRecord_Complete_RejectsLowerFinals(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)
	require.NoError(t, rec.AddActivity(50, 20))

	assert.ErrorIs(t, rec.Complete(40, 20, time.Now()), ErrNegativeDelta)
	assert.ErrorIs(t, rec.Complete(50, 10, time.Now()), ErrNegativeDelta)
	assert.False(t, rec.IsCompleted())
}

func TestRecord_Complete_OnlyOnce(t *testing.T) {
	rec, err := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	require.NoError(t, err)

	require.NoError(t, rec.Complete(100, 60, time.Now()))
	first := *rec.CompletedAt

	assert.ErrorIs(t, rec.Complete(200, 120, time.Now()), ErrAlreadyCompleted)
	assert.ErrorIs(t, rec.AddActivity(10, 5), ErrAlreadyCompleted)
	assert.Equal(t, first, *rec.CompletedAt)
	assert.Equal(t, 100, rec.XPEarned)
}

func TestValidateCatalogExclusivity(t *testing.T) {
	def1, _ := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	def2, _ := NewRecord("rec-2", "learner1", "ch2", catalog.KindDefault)
	pers, _ := NewRecord("rec-3", "learner1", "p-ch1", catalog.KindPersonalized)

	assert.NoError(t, ValidateCatalogExclusivity(nil))
	assert.NoError(t, ValidateCatalogExclusivity([]*Record{def1, def2}))
	assert.ErrorIs(t, ValidateCatalogExclusivity([]*Record{def1, pers}), ErrMixedCatalogKinds)
}

func TestIndexByChapter(t *testing.T) {
	rec1, _ := NewRecord("rec-1", "learner1", "ch1", catalog.KindDefault)
	rec2, _ := NewRecord("rec-2", "learner1", "ch2", catalog.KindDefault)

	index := IndexByChapter([]*Record{rec1, rec2})

	require.Len(t, index, 2)
	assert.Same(t, rec1, index["ch1"])
	assert.Same(t, rec2, index["ch2"])
}
