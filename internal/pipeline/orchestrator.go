package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
	"github.com/jonboulle/clockwork"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	FindParcelByID(ctx context.Context, id string) (domain.ParcelRecord, error)
	FindParcelsByName(ctx context.Context, name string) ([]domain.ParcelRecord, error)
	FindOutput(ctx context.Context, parcelID string) (domain.ComputedOutput, error)
	ApplyOutputPatch(ctx context.Context, parcelID string, patch domain.OutputPatch) (domain.ComputedOutput, error)
	InsertRiskEvent(ctx context.Context, e domain.RiskEvent) (domain.RiskEvent, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.RiskEvent, error)
}

// Deps are the orchestrator's collaborators. Vision and Greenness are
// optional; without them stage 1 runs on its fallbacks.
type Deps struct {
	Store     Store
	Engine    *risk.Engine
	Images    domain.ImageLoader
	Vision    domain.VisionAnalyzer
	Greenness domain.GreennessEstimator
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Settings are the orchestrator's tunables.
type Settings struct {
	Vegetation           domain.VegetationModel
	Vulnerability        domain.VulnerabilityWeights
	DefaultTimeWindowHrs int
	VisionTimeout        time.Duration
}

// Options parameterize one run.
type Options struct {
	TimeWindowHrs int               `json:"timeWindowHrs,omitempty"`
	Audience      []domain.Audience `json:"audience,omitempty"`
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusSucceeded StageStatus = "succeeded"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageReport describes one stage of a run.
type StageReport struct {
	Stage     domain.Stage `json:"stage"`
	Status    StageStatus  `json:"status"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
}

// CarbonSummary is the stage 3 pass-through of stage 1's carbon figure.
type CarbonSummary struct {
	ExtraCarbon float64 `json:"extraCarbon"`
	Note        string  `json:"note"`
}

// Result is the structured outcome of a run. Stage data is set only for
// stages that succeeded.
type Result struct {
	Identifier    string                 `json:"identifier"`
	ParcelID      string                 `json:"parcelId,omitempty"`
	Stages        []StageReport          `json:"stages"`
	Output        *domain.ComputedOutput `json:"output,omitempty"`
	VulnScore     *int                   `json:"vulnScore,omitempty"`
	Carbon        *CarbonSummary         `json:"carbon,omitempty"`
	Event         *domain.RiskEvent      `json:"riskEvent,omitempty"`
	Errors        []string               `json:"errors,omitempty"`
	Success       bool                   `json:"success"`
	StartedAt     time.Time              `json:"startedAt"`
	FinishedAt    time.Time              `json:"finishedAt"`
}

// Completed returns the number of stages that succeeded.
func (r Result) Completed() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == StatusSucceeded {
			n++
		}
	}
	return n
}

// minSuccessfulStages is how many stages must succeed for a run to count as
// a success.
const minSuccessfulStages = 2

const carbonNote = "Carbon accounting is folded into vegetation analysis"

// Orchestrator runs the four pipeline stages for one parcel at a time.
// Concurrent runs for different parcels are independent.
type Orchestrator struct {
	deps     Deps
	settings Settings
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(d Deps, s Settings) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if s.DefaultTimeWindowHrs <= 0 {
		s.DefaultTimeWindowHrs = 12
	}
	if s.VisionTimeout <= 0 {
		s.VisionTimeout = 60 * time.Second
	}
	return &Orchestrator{deps: d, settings: s}
}

// Run resolves identifier to a parcel and runs the stages in order. A
// failure to resolve or in stage 1 is returned as the error; later stage
// failures are only reported in the result.
func (o *Orchestrator) Run(ctx context.Context, identifier string, opts Options) (Result, error) {
	start := o.deps.Clock.Now()
	res := Result{Identifier: identifier, StartedAt: start}
	defer func() {
		o.deps.Metrics.PipelineDuration.Observe(o.deps.Clock.Since(start).Seconds())
	}()

	parcel, err := o.resolve(ctx, identifier)
	if err != nil {
		o.skipRemaining(&res, 0)
		res.Errors = append(res.Errors, err.Error())
		res.FinishedAt = o.deps.Clock.Now()
		o.deps.Metrics.PipelineRuns.WithLabelValues(outcomeFor(err)).Inc()
		return res, err
	}
	res.ParcelID = parcel.ID
	opts = o.withDefaults(opts)
	logger := o.deps.Logger.With("parcel_id", parcel.ID, "parcel_name", parcel.ParcelName)

	out, err := o.runVegetation(ctx, parcel, logger)
	o.record(&res, domain.StageVegetation, err, logger)
	if err != nil {
		o.skipRemaining(&res, 1)
		res.FinishedAt = o.deps.Clock.Now()
		o.deps.Metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("vegetation stage: %w", err)
	}
	res.Output = &out

	vuln, err := o.runVulnerability(ctx, parcel, out)
	o.record(&res, domain.StageVulnerability, err, logger)
	if err == nil {
		res.VulnScore = &vuln
	}

	carbon, err := runCarbon(out)
	o.record(&res, domain.StageCarbon, err, logger)
	if err == nil {
		res.Carbon = &carbon
	}

	event, err := o.runRisk(ctx, parcel, opts, logger)
	o.record(&res, domain.StageRisk, err, logger)
	if err == nil {
		res.Event = &event
	}

	res.Success = res.Completed() >= minSuccessfulStages
	res.FinishedAt = o.deps.Clock.Now()
	outcome := "success"
	if !res.Success {
		outcome = "partial"
	}
	o.deps.Metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	logger.Info("pipeline finished",
		"success", res.Success,
		"stages_completed", res.Completed(),
		"duration", res.FinishedAt.Sub(start),
	)
	return res, nil
}

func (o *Orchestrator) withDefaults(opts Options) Options {
	if opts.TimeWindowHrs <= 0 {
		opts.TimeWindowHrs = o.settings.DefaultTimeWindowHrs
	}
	if len(opts.Audience) == 0 {
		opts.Audience = domain.DefaultAudience()
	}
	return opts
}

// resolve finds exactly one parcel by id, then by name.
func (o *Orchestrator) resolve(ctx context.Context, identifier string) (domain.ParcelRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return domain.ParcelRecord{}, fmt.Errorf("%w: identifier is required", domain.ErrValidation)
	}

	p, err := o.deps.Store.FindParcelByID(ctx, identifier)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ParcelRecord{}, err
	}

	matches, err := o.deps.Store.FindParcelsByName(ctx, identifier)
	if err != nil {
		return domain.ParcelRecord{}, err
	}
	switch len(matches) {
	case 0:
		return domain.ParcelRecord{}, fmt.Errorf("parcel %q: %w", identifier, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return domain.ParcelRecord{}, fmt.Errorf("%w: identifier %q matches %d parcels", domain.ErrValidation, identifier, len(matches))
	}
}

func (o *Orchestrator) record(res *Result, stage domain.Stage, err error, logger *slog.Logger) {
	report := StageReport{Stage: stage, Status: StatusSucceeded}
	if err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()
		report.ErrorKind = domain.Kind(err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", stage, err))
		logger.Warn("pipeline stage failed", "stage", stage, "error", err)
	}
	res.Stages = append(res.Stages, report)
	o.deps.Metrics.StageResults.WithLabelValues(string(stage), string(report.Status)).Inc()
}

func (o *Orchestrator) skipRemaining(res *Result, from int) {
	for _, stage := range domain.Stages[from:] {
		res.Stages = append(res.Stages, StageReport{Stage: stage, Status: StatusSkipped})
		o.deps.Metrics.StageResults.WithLabelValues(string(stage), string(StatusSkipped)).Inc()
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "not_found"
	}
	return "failed"
}
