package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saga-hub/saga-progress-hub/internal/application/command"
	"github.com/saga-hub/saga-progress-hub/internal/application/query"
	"github.com/saga-hub/saga-progress-hub/internal/domain/catalog"
	"github.com/saga-hub/saga-progress-hub/internal/domain/progression"
	"github.com/saga-hub/saga-progress-hub/internal/domain/shared"
	"github.com/saga-hub/saga-progress-hub/internal/domain/xp"
)

// ───────────────────────────────────────────────────────────────────────────────
// In-memory backends for end-to-end handler tests
// ───────────────────────────────────────────────────────────────────────────────

type memCatalogSource struct {
	defaults    []*catalog.Chapter
	defaultsErr error
}

func (m *memCatalogSource) ListPersonalized(ctx context.Context, learnerID catalog.LearnerID) ([]*catalog.Chapter, error) {
	return nil, nil
}

func (m *memCatalogSource) ListDefault(ctx context.Context) ([]*catalog.Chapter, error) {
	return m.defaults, m.defaultsErr
}

type memProgressRepo struct {
	records map[catalog.ChapterID]*progression.Record
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{records: make(map[catalog.ChapterID]*progression.Record)}
}

func (m *memProgressRepo) GetRecords(ctx context.Context, learnerID catalog.LearnerID, kind catalog.Kind) ([]*progression.Record, error) {
	var out []*progression.Record
	for _, rec := range m.records {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memProgressRepo) GetRecord(ctx context.Context, learnerID catalog.LearnerID, chapterID catalog.ChapterID, kind catalog.Kind) (*progression.Record, error) {
	rec, ok := m.records[chapterID]
	if !ok {
		return nil, shared.ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

func (m *memProgressRepo) Create(ctx context.Context, rec *progression.Record) error {
	if _, ok := m.records[rec.ChapterID]; ok {
		return shared.ErrRecordAlreadyExists
	}
	clone := *rec
	m.records[rec.ChapterID] = &clone
	return nil
}

func (m *memProgressRepo) UpdateCAS(ctx context.Context, rec *progression.Record) error {
	rec.Version++
	clone := *rec
	m.records[rec.ChapterID] = &clone
	return nil
}

func (m *memProgressRepo) CompleteTransactional(ctx context.Context, rec *progression.Record, ledgerDelta int) error {
	rec.Version++
	clone := *rec
	m.records[rec.ChapterID] = &clone
	return nil
}

func (m *memProgressRepo) LearnersWithCompletions(ctx context.Context) ([]catalog.LearnerID, error) {
	return nil, nil
}

func (m *memProgressRepo) SumCompletedXP(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	return 0, nil
}

type memLedger struct {
	totals map[catalog.LearnerID]int
}

func (m *memLedger) Increment(ctx context.Context, learnerID catalog.LearnerID, amount int) error {
	m.totals[learnerID] += amount
	return nil
}

func (m *memLedger) Total(ctx context.Context, learnerID catalog.LearnerID) (int, error) {
	return m.totals[learnerID], nil
}

func (m *memLedger) SetIfGreater(ctx context.Context, learnerID catalog.LearnerID, value int) (bool, error) {
	if value > m.totals[learnerID] {
		m.totals[learnerID] = value
		return true, nil
	}
	return false, nil
}

func testServer(t *testing.T, source *memCatalogSource) *Server {
	t.Helper()

	resolver := catalog.NewResolver(source)
	repo := newMemProgressRepo()
	ledger := &memLedger{totals: make(map[catalog.LearnerID]int)}
	reconciler := command.NewXPReconciler(ledger, nil, nil, nil)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0

	return NewServer(cfg, Dependencies{
		GetSagaViewHandler:        query.NewGetSagaViewHandler(resolver, repo, nil, nil, nil),
		GetActiveChapterHandler:   query.NewGetActiveChapterHandler(resolver, repo),
		GetXPTotalHandler:         query.NewGetXPTotalHandler(ledger),
		ApplyActivityHandler:      command.NewApplyActivityHandler(resolver, repo, reconciler, nil, nil),
		InitializeProgressHandler: command.NewInitializeProgressHandler(resolver, repo, nil, nil),
	})
}

func serverChapters(t *testing.T) *memCatalogSource {
	t.Helper()
	ch1, err := catalog.NewChapter("ch1", 1, "Intro", 100, 60, catalog.ChapterTypeVideo)
	require.NoError(t, err)
	ch2, err := catalog.NewChapter("ch2", 2, "Basics", 200, 90, catalog.ChapterTypeQuiz)
	require.NoError(t, err)
	return &memCatalogSource{defaults: []*catalog.Chapter{ch1, ch2}}
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var envelope JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

// ───────────────────────────────────────────────────────────────────────────────
// Tests
// ───────────────────────────────────────────────────────────────────────────────

func TestServer_Health(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_GetSagaView(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/learner1/saga", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.True(t, envelope.Success)
	require.NotNil(t, envelope.Meta)
	assert.Equal(t, 2, envelope.Meta.TotalCount)

	var view query.GetSagaViewResult
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &view))

	require.Len(t, view.Nodes, 2)
	assert.Equal(t, "active", view.Nodes[0].Status)
	assert.Equal(t, "locked", view.Nodes[1].Status)
	assert.Equal(t, "ch1", view.ActiveChapterID)
}

func TestServer_ApplyActivityFlow(t *testing.T) {
	s := testServer(t, serverChapters(t))

	body := []byte(`{"kind":"lesson","xp":30,"time_minutes":10}`)
	rec := doRequest(s, http.MethodPost, "/api/v1/learners/learner1/activities", body)
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.True(t, envelope.Success)

	var result command.ApplyActivityResult
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, command.OutcomeProgressed, result.Outcome)
	assert.Equal(t, 30, result.XPEarned)

	// XP endpoint reflects the incremental credit
	rec = doRequest(s, http.MethodGet, "/api/v1/learners/learner1/xp", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var total query.GetXPTotalResult
	raw, err = json.Marshal(decodeEnvelope(t, rec).Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &total))
	assert.Equal(t, 30, total.Total)
}

func TestServer_ApplyActivityValidation(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodPost, "/api/v1/learners/learner1/activities",
		[]byte(`{"kind":"exam","xp":10}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "invalid_request", envelope.Error.Code)
}

func TestServer_ApplyActivityMalformedJSON(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodPost, "/api/v1/learners/learner1/activities",
		[]byte(`{"kind":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InitProgress(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodPost, "/api/v1/learners/learner1/saga/init", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Repeat is idempotent and reports 200
	rec = doRequest(s, http.MethodPost, "/api/v1/learners/learner1/saga/init", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_CatalogOutageMapsTo503(t *testing.T) {
	source := serverChapters(t)
	source.defaults = nil
	source.defaultsErr = errors.New("connection refused")
	s := testServer(t, source)

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/learner1/saga", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	assert.Equal(t, "catalog_unavailable", decodeEnvelope(t, rec).Error.Code)
}

func TestServer_UnconfiguredHandlerReturns501(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	s := NewServer(cfg, Dependencies{})

	rec := doRequest(s, http.MethodPost, "/api/v1/learners/learner1/saga/init", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_RateLimiting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	s := NewServer(cfg, Dependencies{})

	doRequest(s, http.MethodGet, "/live", nil)
	doRequest(s, http.MethodGet, "/live", nil)
	rec := doRequest(s, http.MethodGet, "/live", nil)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestServer_GetActiveChapter(t *testing.T) {
	s := testServer(t, serverChapters(t))

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/learner1/saga/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.GetActiveChapterResult
	raw, err := json.Marshal(decodeEnvelope(t, rec).Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &result))

	require.NotNil(t, result.Chapter)
	assert.Equal(t, "ch1", result.Chapter.ChapterID)
}

func TestServer_GetActiveChapterNoContentWhenNone(t *testing.T) {
	s := testServer(t, &memCatalogSource{})

	rec := doRequest(s, http.MethodGet, "/api/v1/learners/learner1/saga/active", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

var _ xp.Ledger = (*memLedger)(nil)
var _ progression.Repository = (*memProgressRepo)(nil)
