package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
)

// fakeSweepRepo covers the two repository methods the sweep uses; the write
// methods are never called by the job.
type fakeSweepRepo struct {
	learners []catalog.LearnerID
	floors   map[catalog.LearnerID]int

	listErr  error
	sumErrs  map[catalog.LearnerID]error
	sumCalls map[catalog.LearnerID]int
}

func newFakeSweepRepo() *fakeSweepRepo {
	return &fakeSweepRepo{
		floors:   make(map[catalog.LearnerID]int),
		sumErrs:  make(map[catalog.LearnerID]error),
		sumCalls: make(map[catalog.LearnerID]int),
	}
}

func (f *fakeSweepRepo) LearnersWithCompletions(ctx context.Context) ([]catalog.LearnerID, error) {
	return f.learners, f.listErr
}

func (f *fakeSweepRepo) SumCompletedXP(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	f.sumCalls[learnerID]++
	if err := f.sumErrs[learnerID]; err != nil {
		return 0, err
	}
	return f.floors[learnerID], nil
}

func (f *fakeSweepRepo) GetRecords(ctx context.Context, learnerID catalog.LearnerID, kind catalog.Kind) ([]*progression.Record, error) {
	return nil, nil
}

func (f *fakeSweepRepo) GetRecord(ctx context.Context, learnerID catalog.LearnerID, chapterID catalog.ChapterID, kind catalog.Kind) (*progression.Record, error) {
	return nil, shared.ErrRecordNotFound
}

func (f *fakeSweepRepo) Create(ctx context.Context, rec *progression.Record) error {
	return errors.New("not used by sweep")
}

func (f *fakeSweepRepo) UpdateCAS(ctx context.Context, rec *progression.Record) error {
	return errors.New("not used by sweep")
}

func (f *fakeSweepRepo) CompleteTransactional(ctx context.Context, rec *progression.Record, ledgerDelta int) error {
	return errors.New("not used by sweep")
}

type fakeSweepLedger struct {
	totals   map[catalog.LearnerID]int
	setErr   error
	setCalls int
}

func newFakeSweepLedger() *fakeSweepLedger {
	return &fakeSweepLedger{totals: make(map[catalog.LearnerID]int)}
}

func (f *fakeSweepLedger) Increment(ctx context.Context, learnerID catalog.LearnerID, amount int) error {
	f.totals[learnerID] += amount
	return nil
}

func (f *fakeSweepLedger) Total(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	return f.totals[learnerID], nil
}

func (f *fakeSweepLedger) SetIfGreater(ctx context.Context, learnerID catalog.LearnerID, value int) (bool, error) {
	f.setCalls++
	if f.setErr != nil {
		return false, f.setErr
	}
	if value > f.totals[learnerID] {
		f.totals[learnerID] = value
		return true, nil
	}
	return false, nil
}

type sweepPublisher struct {
	events []shared.Event
}

func (p *sweepPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func fastSweepConfig() SweepConfig {
	return SweepConfig{
		Timeout:           time.Second,
		PerLearnerRetries: 2,
		RetryDelay:        time.Millisecond,
	}
}

func TestSweep_RaisesDriftedTotals(t *testing.T) {
	repo := newFakeSweepRepo()
	repo.learners = []catalog.LearnerID{"learner1", "learner2"}
	repo.floors["learner1"] = 300
	repo.floors["learner2"] = 150

	ledger := newFakeSweepLedger()
	ledger.totals["learner1"] = 100 // fell behind after a failed lump sum
	ledger.totals["learner2"] = 150 // already correct

	pub := &sweepPublisher{}
	job := NewReconcileXPTotalsJob(repo, ledger, pub, nil, fastSweepConfig())

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 300, ledger.totals["learner1"])
	assert.Equal(t, 150, ledger.totals["learner2"])

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.LearnersChecked)
	assert.Equal(t, 1, stats.TotalsRaised)
	assert.Equal(t, 0, stats.Failures)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventXPTotalsRecomputed, pub.events[0].EventType())
}

func TestSweep_NeverLowersTotals(t *testing.T) {
	repo := newFakeSweepRepo()
	repo.learners = []catalog.LearnerID{"learner1"}
	repo.floors["learner1"] = 300

	ledger := newFakeSweepLedger()
	ledger.totals["learner1"] = 500 // incremental credits above the floor

	job := NewReconcileXPTotalsJob(repo, ledger, nil, nil, fastSweepConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 500, ledger.totals["learner1"])
	assert.Equal(t, 0, job.LastStats().TotalsRaised)
}

func TestSweep_FailedLearnerDoesNotStopTheSweep(t *testing.T) {
	repo := newFakeSweepRepo()
	repo.learners = []catalog.LearnerID{"learner1", "learner2"}
	repo.floors["learner2"] = 200
	repo.sumErrs["learner1"] = errors.New("query timeout")

	ledger := newFakeSweepLedger()
	job := NewReconcileXPTotalsJob(repo, ledger, nil, nil, fastSweepConfig())

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 200, ledger.totals["learner2"])

	stats := job.LastStats()
	assert.Equal(t, 2, stats.LearnersChecked)
	assert.Equal(t, 1, stats.TotalsRaised)
	assert.Equal(t, 1, stats.Failures)

	// The failing learner was retried per config before being skipped
	assert.Equal(t, 2, repo.sumCalls["learner1"])
}

func TestSweep_ZeroFloorSkipsWrite(t *testing.T) {
	repo := newFakeSweepRepo()
	repo.learners = []catalog.LearnerID{"learner1"}

	ledger := newFakeSweepLedger()
	job := NewReconcileXPTotalsJob(repo, ledger, nil, nil, fastSweepConfig())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 0, ledger.setCalls)
}

func TestSweep_ListFailure(t *testing.T) {
	repo := newFakeSweepRepo()
	repo.listErr = errors.New("connection refused")

	job := NewReconcileXPTotalsJob(repo, newFakeSweepLedger(), nil, nil, fastSweepConfig())
	assert.Error(t, job.Run(context.Background()))
}

func TestSweep_JobMetadata(t *testing.T) {
	job := NewReconcileXPTotalsJob(newFakeSweepRepo(), newFakeSweepLedger(), nil, nil, DefaultSweepConfig())
	assert.Equal(t, "reconcile_xp_totals", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Nil(t, job.LastStats())
}
