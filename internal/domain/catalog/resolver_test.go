package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

type stubCatalogRepo struct {
	personalized    []*Chapter
	personalizedErr error
	defaults        []*Chapter
	defaultsErr     error
}

func (s *stubCatalogRepo) ListPersonalized(ctx context.Context, learnerID LearnerID) ([]*Chapter, error) {
	return s.personalized, s.personalizedErr
}

func (s *stubCatalogRepo) ListDefault(ctx context.Context) ([]*Chapter, error) {
	return s.defaults, s.defaultsErr
}

func chapter(t *testing.T, id string, number int) *Chapter {
	t.Helper()
	ch, err := NewChapter(ChapterID(id), number, "Chapter "+id, 100, 60, ChapterTypeVideo)
	require.NoError(t, err)
	return ch
}

func TestResolver_PrefersPersonalized(t *testing.T) {
	repo := &stubCatalogRepo{
		personalized: []*Chapter{
			chapter(t, "p2", 2),
			chapter(t, "p1", 1),
		},
		defaults: []*Chapter{chapter(t, "d1", 1)},
	}

	resolved, err := NewResolver(repo).Resolve(context.Background(), "learner1")
	require.NoError(t, err)

	assert.Equal(t, KindPersonalized, resolved.Kind)
	require.Len(t, resolved.Chapters, 2)
	assert.Equal(t, ChapterID("p1"), resolved.Chapters[0].ID)
	assert.Equal(t, ChapterID("p2"), resolved.Chapters[1].ID)

	// The repo's slice order is left alone, only the returned copy is sorted
	assert.Equal(t, ChapterID("p2"), repo.personalized[0].ID)
}

func TestResolver_EmptyPersonalizedFallsBackToDefault(t *testing.T) {
	repo := &stubCatalogRepo{
		defaults: []*Chapter{
			chapter(t, "d2", 2),
			chapter(t, "d1", 1),
		},
	}

	resolved, err := NewResolver(repo).Resolve(context.Background(), "learner1")
	require.NoError(t, err)

	assert.Equal(t, KindDefault, resolved.Kind)
	require.Len(t, resolved.Chapters, 2)
	assert.Equal(t, ChapterID("d1"), resolved.Chapters[0].ID)
}

func TestResolver_PersonalizedErrorFallsBackToDefault(t *testing.T) {
	repo := &stubCatalogRepo{
		personalizedErr: errors.New("timeout"),
		defaults:        []*Chapter{chapter(t, "d1", 1)},
	}

	resolved, err := NewResolver(repo).Resolve(context.Background(), "learner1")
	require.NoError(t, err)
	assert.Equal(t, KindDefault, resolved.Kind)
}

func TestResolver_BothListsFail(t *testing.T) {
	repo := &stubCatalogRepo{
		personalizedErr: errors.New("timeout"),
		defaultsErr:     errors.New("connection refused"),
	}

	_, err := NewResolver(repo).Resolve(context.Background(), "learner1")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
}

func TestResolver_DefaultOnlyFailure(t *testing.T) {
	repo := &stubCatalogRepo{
		defaultsErr: errors.New("connection refused"),
	}

	_, err := NewResolver(repo).Resolve(context.Background(), "learner1")
	assert.ErrorIs(t, err, shared.ErrCatalogUnavailable)
}

func TestResolver_InvalidLearner(t *testing.T) {
	_, err := NewResolver(&stubCatalogRepo{}).Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidLearnerID)
}

func TestResolved_Lookups(t *testing.T) {
	resolved := Resolved{
		Kind:     KindDefault,
		Chapters: []*Chapter{chapter(t, "d1", 1)},
	}

	assert.False(t, resolved.IsEmpty())
	assert.NotNil(t, resolved.ChapterByID("d1"))
	assert.Nil(t, resolved.ChapterByID("missing"))
	assert.True(t, Resolved{}.IsEmpty())
}
