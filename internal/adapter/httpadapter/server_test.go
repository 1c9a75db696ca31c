package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/coastal-risk-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/coastal-risk-service/internal/alert"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakePipeline struct {
	result   pipeline.Result
	quick    pipeline.QuickResult
	status   pipeline.Status
	err      error
	gotID    string
	gotOpts  pipeline.Options
	runCalls int
}

func (f *fakePipeline) Run(_ context.Context, id string, opts pipeline.Options) (pipeline.Result, error) {
	f.runCalls++
	f.gotID, f.gotOpts = id, opts
	return f.result, f.err
}

func (f *fakePipeline) RunQuick(_ context.Context, id string, opts pipeline.Options) (pipeline.QuickResult, error) {
	f.gotID, f.gotOpts = id, opts
	return f.quick, f.err
}

func (f *fakePipeline) Status(_ context.Context, id string) (pipeline.Status, error) {
	f.gotID = id
	return f.status, f.err
}

type fakeDispatcher struct {
	summary alert.Summary
	err     error
}

func (f *fakeDispatcher) ProcessRecent(context.Context) (alert.Summary, error) {
	return f.summary, f.err
}

type fakeInbox struct {
	items    []alert.InboxItem
	stats    alert.Stats
	gotLimit int
}

func (f *fakeInbox) List(_ context.Context, userID string, limit int) ([]alert.InboxItem, error) {
	f.gotLimit = limit
	if strings.TrimSpace(userID) == "ghost" {
		return nil, fmt.Errorf("user %q: %w", userID, domain.ErrNotFound)
	}
	return f.items, nil
}

func (f *fakeInbox) Stats(_ context.Context, _ string) (alert.Stats, error) {
	return f.stats, nil
}

type harness struct {
	srv        *httpadapter.Server
	pipeline   *fakePipeline
	dispatcher *fakeDispatcher
	inbox      *fakeInbox
}

func newHarness(readyErr error) *harness {
	h := &harness{pipeline: &fakePipeline{}, dispatcher: &fakeDispatcher{}, inbox: &fakeInbox{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := httpadapter.NewAPI(h.pipeline, h.dispatcher, h.inbox, logger)
	h.srv = httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, api, logger)
	return h
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	h.srv.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newHarness(errors.New("mongo not ready")).do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newHarness(nil).do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRun_PassesOptions(t *testing.T) {
	h := newHarness(nil)
	h.pipeline.result = pipeline.Result{Identifier: "Kandla-1", Success: true}

	rec := h.do(http.MethodPost, "/api/pipeline/run/Kandla-1", `{"timeWindowHrs":6,"audience":["officials"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kandla-1", h.pipeline.gotID)
	assert.Equal(t, pipeline.Options{TimeWindowHrs: 6, Audience: []domain.Audience{domain.AudienceOfficials}}, h.pipeline.gotOpts)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestRun_EmptyBodyUsesDefaults(t *testing.T) {
	h := newHarness(nil)
	h.pipeline.result = pipeline.Result{Success: true}

	rec := h.do(http.MethodPost, "/api/pipeline/run/p1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.Options{}, h.pipeline.gotOpts)
}

func TestRun_PartialResultIs422(t *testing.T) {
	h := newHarness(nil)
	h.pipeline.result = pipeline.Result{Success: false, Errors: []string{"risk stage failed"}}

	rec := h.do(http.MethodPost, "/api/pipeline/run/p1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRun_BadOptions(t *testing.T) {
	h := newHarness(nil)
	for _, body := range []string{`{"timeWindowHrs":-1}`, `{"audience":["aliens"]}`, `not json`} {
		rec := h.do(http.MethodPost, "/api/pipeline/run/p1", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, h.pipeline.runCalls)
}

func TestErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
		kind string
	}{
		{fmt.Errorf("parcel %q: %w", "x", domain.ErrNotFound), http.StatusNotFound, "NotFound"},
		{fmt.Errorf("ambiguous: %w", domain.ErrPreconditionFailed), http.StatusConflict, "PreconditionFailed"},
		{fmt.Errorf("bad: %w", domain.ErrValidation), http.StatusBadRequest, "ValidationFailure"},
		{errors.New("connection reset"), http.StatusInternalServerError, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			h := newHarness(nil)
			h.pipeline.err = tt.err

			rec := h.do(http.MethodGet, "/api/pipeline/status/x", "")

			assert.Equal(t, tt.want, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.kind, body["kind"])
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}

func TestQuick(t *testing.T) {
	h := newHarness(nil)
	h.pipeline.quick = pipeline.QuickResult{Success: true, ModulesCompleted: 4, RiskEvent: &domain.RiskEvent{ID: "e1"}}

	rec := h.do(http.MethodPost, "/api/pipeline/quick/p1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 4, body["modulesCompleted"], 0)
	assert.NotContains(t, body, "stages")
}

func TestStatus(t *testing.T) {
	h := newHarness(nil)
	h.pipeline.status = pipeline.Status{ParcelID: "p1", OverallComplete: true}

	rec := h.do(http.MethodGet, "/api/pipeline/status/p1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["overallComplete"])
}

func TestProcessAlerts(t *testing.T) {
	h := newHarness(nil)
	h.dispatcher.summary = alert.Summary{Processed: 3, Generated: 5}

	rec := h.do(http.MethodPost, "/api/alerts/process", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 3, body["processed"], 0)
	assert.InDelta(t, 5, body["generated"], 0)
}

func TestInbox(t *testing.T) {
	h := newHarness(nil)
	h.inbox.items = []alert.InboxItem{{ID: "a1", Band: domain.BandRed, GeneratedAt: time.Date(2025, 7, 14, 6, 0, 0, 0, time.UTC), IsUserAlert: true}}

	rec := h.do(http.MethodGet, "/api/alerts/inbox/u1?limit=10", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, h.inbox.gotLimit)
	body := decode(t, rec)
	assert.InDelta(t, 1, body["count"], 0)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/alerts/inbox/u1?limit=ten", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/alerts/inbox/ghost", "").Code)
}

func TestStats(t *testing.T) {
	h := newHarness(nil)
	h.inbox.stats = alert.Stats{Total: 3, Today: 2, ByBand: alert.BandCounts{Red: 2, Yellow: 1}}

	rec := h.do(http.MethodGet, "/api/alerts/stats/u1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.InDelta(t, 3, body["total"], 0)
	assert.Equal(t, map[string]any{"red": 2.0, "yellow": 1.0, "green": 0.0}, body["byBand"])
}

func TestAPIRoutesAbsentWithoutAPI(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts/stats/u1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
