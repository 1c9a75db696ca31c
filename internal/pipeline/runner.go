package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
)

// BatchExtractor reads up to batchSize run requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawMessage, error)
}

// BatchLoader publishes source risk events produced by runs.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.RiskEvent) error
}

// Executor runs the pipeline for one parcel.
type Executor interface {
	Run(ctx context.Context, identifier string, opts Options) (Result, error)
}

// Runner consumes run requests, executes them, and publishes the resulting
// risk events.
type Runner struct {
	extractor BatchExtractor
	executor  Executor
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int
}

// NewRunner creates a Runner.
func NewRunner(e BatchExtractor, x Executor, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Runner {
	return &Runner{
		extractor: e,
		executor:  x,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Run executes the consume loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("run request consumer started", "batch_size", r.batchSize)
	r.metrics.RunnerRunning.Set(1)
	defer r.metrics.RunnerRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("run request consumer stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !r.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-execute-publish cycle. Returns false if the
// runner should stop.
func (r *Runner) processBatch(ctx context.Context, backoff *time.Duration) bool {
	rawBatch, err := r.extractor.ExtractBatch(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		r.logger.Error("extract batch failed", "error", err)
		return r.backoffOrStop(ctx, backoff)
	}
	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	r.metrics.RunRequestsConsumed.Add(float64(len(rawBatch)))
	*backoff = initialBackoff

	events := make([]domain.RiskEvent, 0, len(rawBatch))
	for _, raw := range rawBatch {
		if ev, ok := r.execute(ctx, raw); ok {
			events = append(events, ev)
		}
	}

	if len(events) > 0 {
		if err := r.loader.LoadBatch(ctx, events); err != nil {
			r.logger.Error("publish risk events failed", "error", err, "batch_size", len(events))
			return r.backoffOrStop(ctx, backoff)
		}
		r.metrics.EventsPublished.Add(float64(len(events)))
	}

	for _, raw := range rawBatch {
		r.commitOffset(ctx, raw)
	}
	return true
}

// execute runs one request. It returns the source event when stage 4
// produced one.
func (r *Runner) execute(ctx context.Context, raw domain.RawMessage) (domain.RiskEvent, bool) {
	req, err := DecodeRunRequest(raw.Value)
	if err != nil {
		r.logger.Warn("invalid run request, skipping message",
			"error", err,
			"topic", raw.Topic,
			"partition", raw.Partition,
			"offset", raw.Offset,
		)
		r.metrics.RunRequestErrors.Inc()
		return domain.RiskEvent{}, false
	}

	res, err := r.executor.Run(ctx, req.Identifier, req.Options())
	if err != nil {
		r.logger.Warn("pipeline run failed",
			"error", err,
			"identifier", req.Identifier,
			"kind", domain.Kind(err),
			"offset", raw.Offset,
		)
		r.metrics.RunRequestErrors.Inc()
		return domain.RiskEvent{}, false
	}
	if res.Event == nil {
		return domain.RiskEvent{}, false
	}
	return *res.Event, true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances it. Returns false if the runner should stop.
func (r *Runner) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func (r *Runner) commitOffset(ctx context.Context, raw domain.RawMessage) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		r.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
