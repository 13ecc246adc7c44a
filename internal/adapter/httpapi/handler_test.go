package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/jobs"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/pricing"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/snapshot"
)

// memJobRunRepo is an in-memory domain.JobRunRepository for handler tests
type memJobRunRepo struct {
	runs []*domain.JobRun
}

func (f *memJobRunRepo) Create(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	for _, r := range f.runs {
		if r.JobName == name && r.Status == domain.JobStatusRunning {
			return nil, domain.ErrJobAlreadyRunning
		}
	}
	run := &domain.JobRun{ID: uuid.New(), JobName: name, Status: domain.JobStatusRunning, StartedAt: time.Now()}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *memJobRunRepo) Complete(ctx context.Context, id uuid.UUID, processed, succeeded, failed int, details map[string]any) (*domain.JobRun, error) {
	run := f.find(id)
	now := time.Now()
	run.Status = domain.JobStatusCompleted
	run.CompletedAt = &now
	run.Processed = processed
	run.Succeeded = succeeded
	run.Failed = failed
	run.Details = details
	return run, nil
}

func (f *memJobRunRepo) Fail(ctx context.Context, id uuid.UUID, errorMessage string, details map[string]any) (*domain.JobRun, error) {
	run := f.find(id)
	now := time.Now()
	run.Status = domain.JobStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = &errorMessage
	run.Details = details
	return run, nil
}

func (f *memJobRunRepo) IsRunning(ctx context.Context, name domain.JobName) (bool, error) {
	for _, r := range f.runs {
		if r.JobName == name && r.Status == domain.JobStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (f *memJobRunRepo) GetLatest(ctx context.Context, name domain.JobName) (*domain.JobRun, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].JobName == name {
			return f.runs[i], nil
		}
	}
	return nil, nil
}

func (f *memJobRunRepo) GetHistory(ctx context.Context, name domain.JobName, limit int) ([]*domain.JobRun, error) {
	var history []*domain.JobRun
	for i := len(f.runs) - 1; i >= 0 && len(history) < limit; i-- {
		if f.runs[i].JobName == name {
			history = append(history, f.runs[i])
		}
	}
	return history, nil
}

func (f *memJobRunRepo) find(id uuid.UUID) *domain.JobRun {
	for _, r := range f.runs {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// emptyHoldingRepo reports no holdings, so a triggered price update completes
// immediately without touching providers or the cache
type emptyHoldingRepo struct{}

func (emptyHoldingRepo) FindAll(ctx context.Context) ([]*domain.Holding, error) {
	return nil, nil
}

func newTestServer(repo *memJobRunRepo) *Server {
	log := observability.NewLogger("test")
	tracker := jobs.NewTracker(repo, log)
	pricingService := pricing.NewService(nil, nil, nil, log)
	snapshotService := snapshot.NewService(emptyHoldingRepo{}, nil, nil, nil, nil, log)
	runner := jobs.NewRunner(tracker, pricingService, snapshotService, emptyHoldingRepo{}, time.UTC, nil, log)
	schedule := []jobs.Entry{
		{Job: domain.JobPriceUpdate, At: "23:00"},
		{Job: domain.JobSnapshotCreation, At: "23:55"},
	}
	return NewServer(tracker, runner, schedule, "UTC", log)
}

func completedRun(name domain.JobName, startedAt time.Time) *domain.JobRun {
	completed := startedAt.Add(time.Minute)
	return &domain.JobRun{
		ID:          uuid.New(),
		JobName:     name,
		Status:      domain.JobStatusCompleted,
		StartedAt:   startedAt,
		CompletedAt: &completed,
		Processed:   3,
		Succeeded:   3,
	}
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleStatus(t *testing.T) {
	repo := &memJobRunRepo{}
	repo.runs = append(repo.runs, completedRun(domain.JobPriceUpdate, time.Now().Add(-time.Hour)))
	_, err := repo.Create(context.Background(), domain.JobSnapshotCreation)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(repo), http.MethodGet, "/api/jobs/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Timezone string `json:"timezone"`
		Jobs     map[string]struct {
			ScheduledAt string `json:"scheduledAt"`
			Running     bool   `json:"running"`
			LatestRun   *struct {
				Status string `json:"status"`
			} `json:"latestRun"`
		} `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UTC", body.Timezone)

	priceUpdate := body.Jobs["price-update"]
	assert.Equal(t, "23:00", priceUpdate.ScheduledAt)
	assert.False(t, priceUpdate.Running)
	require.NotNil(t, priceUpdate.LatestRun)
	assert.Equal(t, "completed", priceUpdate.LatestRun.Status)

	snapshotCreation := body.Jobs["snapshot-creation"]
	assert.Equal(t, "23:55", snapshotCreation.ScheduledAt)
	assert.True(t, snapshotCreation.Running)
}

func TestHandleHealth_Healthy(t *testing.T) {
	repo := &memJobRunRepo{}
	repo.runs = append(repo.runs, completedRun(domain.JobPriceUpdate, time.Now().Add(-time.Hour)))

	rec := doRequest(t, newTestServer(repo), http.MethodGet, "/api/jobs/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestHandleHealth_NeverRan(t *testing.T) {
	rec := doRequest(t, newTestServer(&memJobRunRepo{}), http.MethodGet, "/api/jobs/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "never run")
}

func TestHandleHealth_LatestRunFailed(t *testing.T) {
	repo := &memJobRunRepo{}
	msg := "all providers down"
	run := completedRun(domain.JobPriceUpdate, time.Now().Add(-time.Hour))
	run.Status = domain.JobStatusFailed
	run.ErrorMessage = &msg
	repo.runs = append(repo.runs, run)

	rec := doRequest(t, newTestServer(repo), http.MethodGet, "/api/jobs/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed")
}

func TestHandleHealth_StaleRun(t *testing.T) {
	repo := &memJobRunRepo{}
	repo.runs = append(repo.runs, completedRun(domain.JobPriceUpdate, time.Now().Add(-26*time.Hour)))

	rec := doRequest(t, newTestServer(repo), http.MethodGet, "/api/jobs/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "stale")
}

func TestHandleHistory(t *testing.T) {
	repo := &memJobRunRepo{}
	for i := 0; i < 3; i++ {
		repo.runs = append(repo.runs, completedRun(domain.JobPriceUpdate, time.Now().Add(-time.Duration(i)*time.Hour)))
	}
	srv := newTestServer(repo)

	rec := doRequest(t, srv, http.MethodGet, "/api/jobs/history?job=price-update&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []json.RawMessage `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 2)

	// job defaults to price-update
	rec = doRequest(t, srv, http.MethodGet, "/api/jobs/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Runs, 3)

	rec = doRequest(t, srv, http.MethodGet, "/api/jobs/history?job=vacuum")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/jobs/history?job=price-update&limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrigger_RunsJob(t *testing.T) {
	repo := &memJobRunRepo{}

	rec := doRequest(t, newTestServer(repo), http.MethodPost, "/api/jobs/trigger/price-update")
	require.Equal(t, http.StatusOK, rec.Code)

	latest, err := repo.GetLatest(context.Background(), domain.JobPriceUpdate)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.JobStatusCompleted, latest.Status)
}

func TestHandleTrigger_ConflictWhileRunning(t *testing.T) {
	repo := &memJobRunRepo{}
	_, err := repo.Create(context.Background(), domain.JobPriceUpdate)
	require.NoError(t, err)

	rec := doRequest(t, newTestServer(repo), http.MethodPost, "/api/jobs/trigger/price-update")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), jobs.SkipReasonConcurrent)
}

func TestHandleTrigger_UnknownJob(t *testing.T) {
	rec := doRequest(t, newTestServer(&memJobRunRepo{}), http.MethodPost, "/api/jobs/trigger/backup")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrigger_MethodNotAllowed(t *testing.T) {
	rec := doRequest(t, newTestServer(&memJobRunRepo{}), http.MethodGet, "/api/jobs/trigger/price-update")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
