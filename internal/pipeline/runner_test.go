package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/couchcryptid/coastal-risk-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type mockExecutor struct{}

func (mockExecutor) Run(_ context.Context, identifier string, opts pipeline.Options) (pipeline.Result, error) {
	switch identifier {
	case "unknown":
		return pipeline.Result{}, fmt.Errorf("parcel %q: %w", identifier, domain.ErrNotFound)
	case "no-risk":
		return pipeline.Result{Identifier: identifier, Success: false}, nil
	}
	ev := domain.NewSourceEvent("out-"+identifier, domain.RiskAssessment{
		ParcelID:      identifier,
		Location:      identifier,
		RiskScore:     55,
		Band:          domain.BandYellow,
		TimeWindowHrs: opts.TimeWindowHrs,
		Audience:      opts.Audience,
	}, testNow)
	return pipeline.Result{Identifier: identifier, Event: &ev, Success: true}, nil
}

type mockLoader struct {
	mu     sync.Mutex
	err    error
	loaded []domain.RiskEvent
	calls  int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

type commitLog struct {
	mu      sync.Mutex
	offsets []int64
}

func (c *commitLog) message(offset int64, payload string) domain.RawMessage {
	return domain.RawMessage{
		Value:  []byte(payload),
		Topic:  "parcel-run-requests",
		Offset: offset,
		Commit: func(context.Context) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.offsets = append(c.offsets, offset)
			return nil
		},
	}
}

func (c *commitLog) committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func runFor(t *testing.T, r *pipeline.Runner, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	require.NoError(t, r.Run(ctx))
}

// --- tests ---

func TestRunner_Run_HappyPath(t *testing.T) {
	var log commitLog
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		log.message(1, `{"identifier":"parcel-a"}`),
		log.message(2, `{"identifier":"parcel-b","timeWindowHrs":6,"audience":["officials"]}`),
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	runFor(t, pipeline.NewRunner(ext, mockExecutor{}, ldr, discardLogger(), metrics, 10), 300*time.Millisecond)

	require.Len(t, ldr.loaded, 2)
	assert.Equal(t, "parcel-a", ldr.loaded[0].ParcelID)
	assert.Equal(t, 6, ldr.loaded[1].TimeWindowHrs)
	assert.Equal(t, []domain.Audience{domain.AudienceOfficials}, ldr.loaded[1].Audience)
	assert.Equal(t, []int64{1, 2}, log.committed())

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RunRequestsConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.EventsPublished), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.RunnerRunning), 0)
}

func TestRunner_Run_InvalidAndFailedRequestsAreCommitted(t *testing.T) {
	var log commitLog
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		log.message(1, `not json`),
		log.message(2, `{"identifier":"  "}`),
		log.message(3, `{"identifier":"unknown"}`),
		log.message(4, `{"identifier":"no-risk"}`),
		log.message(5, `{"identifier":"parcel-a","audience":["tourists"]}`),
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	runFor(t, pipeline.NewRunner(ext, mockExecutor{}, ldr, discardLogger(), metrics, 10), 300*time.Millisecond)

	assert.Empty(t, ldr.loaded)
	assert.Zero(t, ldr.calls, "nothing to publish")
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, log.committed())
	assert.InDelta(t, 4, testutil.ToFloat64(metrics.RunRequestErrors), 0)
}

func TestRunner_Run_PublishFailureSkipsCommit(t *testing.T) {
	var log commitLog
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		log.message(7, `{"identifier":"parcel-a"}`),
	}}}
	ldr := &mockLoader{err: errors.New("broker unavailable")}

	runFor(t, pipeline.NewRunner(ext, mockExecutor{}, ldr, discardLogger(), newTestMetrics(), 10), 300*time.Millisecond)

	assert.Equal(t, 1, ldr.calls)
	assert.Empty(t, log.committed())
}

func TestRunner_Run_StopsOnCancel(t *testing.T) {
	ext := &mockExtractor{}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r := pipeline.NewRunner(ext, mockExecutor{}, &mockLoader{}, discardLogger(), newTestMetrics(), 10)
	require.NoError(t, r.Run(ctx))
}

func TestDecodeRunRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    pipeline.RunRequest
		wantErr bool
	}{
		{name: "minimal", payload: `{"identifier":"kandla-creek-04"}`, want: pipeline.RunRequest{Identifier: "kandla-creek-04"}},
		{name: "trimmed", payload: `{"identifier":" p1 ","timeWindowHrs":24}`, want: pipeline.RunRequest{Identifier: "p1", TimeWindowHrs: 24}},
		{name: "missing identifier", payload: `{}`, wantErr: true},
		{name: "negative window", payload: `{"identifier":"p1","timeWindowHrs":-1}`, wantErr: true},
		{name: "bad audience", payload: `{"identifier":"p1","audience":["press"]}`, wantErr: true},
		{name: "malformed", payload: `{"identifier":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pipeline.DecodeRunRequest([]byte(tt.payload))
			if tt.wantErr {
				require.ErrorIs(t, err, domain.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
