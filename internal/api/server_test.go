package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikokikok/fps-genie/internal/models"
	"github.com/kikokikok/fps-genie/internal/types"
)

type fakeStats struct {
	stats *models.IngestStats
	err   error
}

func (f *fakeStats) Stats(context.Context) (*models.IngestStats, error) {
	return f.stats, f.err
}

type fakeLister struct {
	matches   []*models.MatchMetadata
	gotStatus types.ProcessingStatus
	gotLimit  int
	gotOffset int
	err       error
}

func (f *fakeLister) SelectByStatus(_ context.Context, status types.ProcessingStatus, limit, offset int) ([]*models.MatchMetadata, error) {
	f.gotStatus = status
	f.gotLimit = limit
	f.gotOffset = offset
	return f.matches, f.err
}

type fakeCheck struct{ err error }

func (f *fakeCheck) HealthCheck(context.Context) error { return f.err }

func newTestServer(stats StatsProvider, matches MatchLister, checks map[string]HealthChecker) *Server {
	return NewServer(&ServerConfig{
		Addr:    "127.0.0.1:0",
		Stats:   stats,
		Matches: matches,
		Checks:  checks,
	})
}

func doRequest(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHandleHealth(t *testing.T) {
	t.Run("all stores healthy", func(t *testing.T) {
		srv := newTestServer(&fakeStats{}, &fakeLister{}, map[string]HealthChecker{
			"postgres":  &fakeCheck{},
			"timescale": &fakeCheck{},
		})

		rec, body := doRequest(t, srv, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("one store down", func(t *testing.T) {
		srv := newTestServer(&fakeStats{}, &fakeLister{}, map[string]HealthChecker{
			"postgres":  &fakeCheck{},
			"timescale": &fakeCheck{err: errors.New("connection refused")},
		})

		rec, body := doRequest(t, srv, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", body["status"])

		stores := body["stores"].(map[string]interface{})
		assert.Equal(t, "ok", stores["postgres"])
		assert.Contains(t, stores["timescale"], "connection refused")
	})
}

func TestHandleStats(t *testing.T) {
	srv := newTestServer(&fakeStats{stats: &models.IngestStats{Completed: 7, Pending: 2}}, &fakeLister{}, nil)

	rec, body := doRequest(t, srv, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, body["completed"])
	assert.EqualValues(t, 2, body["pending"])
}

func TestHandleStats_Error(t *testing.T) {
	srv := newTestServer(&fakeStats{err: errors.New("db down")}, &fakeLister{}, nil)

	rec, _ := doRequest(t, srv, "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleMatches(t *testing.T) {
	lister := &fakeLister{matches: []*models.MatchMetadata{
		{ID: uuid.New(), MatchID: "nuke-finals", Status: types.StatusFailed},
	}}
	srv := newTestServer(&fakeStats{}, lister, nil)

	rec, body := doRequest(t, srv, "/matches?status=failed&page=3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 3, body["page"])

	assert.Equal(t, types.StatusFailed, lister.gotStatus)
	assert.Equal(t, matchesPageSize, lister.gotLimit)
	assert.Equal(t, 2*matchesPageSize, lister.gotOffset)
}

func TestHandleMatches_Defaults(t *testing.T) {
	lister := &fakeLister{}
	srv := newTestServer(&fakeStats{}, lister, nil)

	rec, _ := doRequest(t, srv, "/matches")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.StatusCompleted, lister.gotStatus)
	assert.Zero(t, lister.gotOffset)
}

func TestHandleMatches_BadInput(t *testing.T) {
	srv := newTestServer(&fakeStats{}, &fakeLister{}, nil)

	rec, _ := doRequest(t, srv, "/matches?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, srv, "/matches?page=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
