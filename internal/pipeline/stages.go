package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
)

// runVegetation is stage 1. Collaborator problems degrade to fallbacks;
// only persistence failures fail the stage.
func (o *Orchestrator) runVegetation(ctx context.Context, parcel domain.ParcelRecord, logger *slog.Logger) (domain.ComputedOutput, error) {
	sig := o.vegetationSignal(ctx, parcel, logger)
	assessment := o.settings.Vegetation.Assess(sig, parcel.AreaTotal)

	out, err := o.deps.Store.ApplyOutputPatch(ctx, parcel.ID, domain.VegetationPatch(assessment))
	if err != nil {
		return domain.ComputedOutput{}, fmt.Errorf("save vegetation assessment: %w", err)
	}
	logger.Info("vegetation assessed",
		"state", assessment.State,
		"drop_pct", assessment.DropPct,
		"mang_score", assessment.MangScore,
		"needs_review", assessment.NeedsReview,
	)
	return out, nil
}

func (o *Orchestrator) vegetationSignal(ctx context.Context, parcel domain.ParcelRecord, logger *slog.Logger) domain.VegetationSignal {
	before, after, err := o.loadImages(ctx, parcel)
	if err != nil {
		logger.Warn("imagery unavailable, using neutral vegetation signal", "error", err)
		o.deps.Metrics.VisionRequests.WithLabelValues("fallback").Inc()
		return domain.VegetationSignal{VisionErr: err}
	}

	sig := domain.VegetationSignal{DropPct: o.estimateDrop(ctx, before, after, logger)}

	if o.deps.Vision == nil {
		sig.VisionErr = fmt.Errorf("%w: vision analyzer not configured", domain.ErrCollaborator)
		o.deps.Metrics.VisionRequests.WithLabelValues("fallback").Inc()
		return sig
	}

	visionCtx, cancel := context.WithTimeout(ctx, o.settings.VisionTimeout)
	defer cancel()
	start := o.deps.Clock.Now()
	report, err := o.deps.Vision.AnalyzeVegetation(visionCtx, before, after)
	o.deps.Metrics.VisionDuration.Observe(o.deps.Clock.Since(start).Seconds())
	if err != nil {
		logger.Warn("vision analysis failed, treating as no loss", "error", err)
		o.deps.Metrics.VisionRequests.WithLabelValues("error").Inc()
		sig.VisionErr = err
		return sig
	}
	o.deps.Metrics.VisionRequests.WithLabelValues("success").Inc()
	report.AIScore = domain.Clamp01(report.AIScore)
	sig.Vision = &report
	return sig
}

func (o *Orchestrator) loadImages(ctx context.Context, parcel domain.ParcelRecord) (domain.Image, domain.Image, error) {
	if parcel.BeforeImageRef == "" || parcel.AfterImageRef == "" {
		return domain.Image{}, domain.Image{}, fmt.Errorf("%w: parcel has no before/after imagery", domain.ErrPreconditionFailed)
	}
	if o.deps.Images == nil {
		return domain.Image{}, domain.Image{}, fmt.Errorf("%w: image loader not configured", domain.ErrCollaborator)
	}
	before, err := o.deps.Images.Load(ctx, parcel.BeforeImageRef)
	if err != nil {
		return domain.Image{}, domain.Image{}, fmt.Errorf("load before image: %w", err)
	}
	after, err := o.deps.Images.Load(ctx, parcel.AfterImageRef)
	if err != nil {
		return domain.Image{}, domain.Image{}, fmt.Errorf("load after image: %w", err)
	}
	return before, after, nil
}

// estimateDrop returns the greenness drop, or 0 when it cannot be measured.
func (o *Orchestrator) estimateDrop(ctx context.Context, before, after domain.Image, logger *slog.Logger) float64 {
	if o.deps.Greenness == nil {
		o.deps.Metrics.GreennessRequests.WithLabelValues("disabled").Inc()
		return 0
	}
	callCtx, cancel := context.WithTimeout(ctx, o.settings.VisionTimeout)
	defer cancel()
	drop, err := o.deps.Greenness.EstimateDropPct(callCtx, before, after)
	if err != nil {
		logger.Warn("greenness estimation failed, assuming no drop", "error", err)
		o.deps.Metrics.GreennessRequests.WithLabelValues("error").Inc()
		return 0
	}
	o.deps.Metrics.GreennessRequests.WithLabelValues("success").Inc()
	return domain.Clamp(drop)
}

// runVulnerability is stage 2. It writes vulnScore only.
func (o *Orchestrator) runVulnerability(ctx context.Context, parcel domain.ParcelRecord, out domain.ComputedOutput) (int, error) {
	site, ok := parcel.SiteFactors()
	if !ok {
		return 0, fmt.Errorf("%w: parcel is missing elevScore, distScore, or landCoverScore", domain.ErrPreconditionFailed)
	}
	if out.MangScore == nil {
		return 0, fmt.Errorf("%w: mangScore has not been computed", domain.ErrPreconditionFailed)
	}

	score := o.settings.Vulnerability.Compose(site, *out.MangScore)
	if _, err := o.deps.Store.ApplyOutputPatch(ctx, parcel.ID, domain.VulnerabilityPatch(score)); err != nil {
		return 0, fmt.Errorf("save vulnerability: %w", err)
	}
	return score, nil
}

// runCarbon is stage 3: a summary of the carbon figure from stage 1.
func runCarbon(out domain.ComputedOutput) (CarbonSummary, error) {
	if out.ExtraCarbon == nil {
		return CarbonSummary{}, fmt.Errorf("%w: extraCarbon has not been computed", domain.ErrPreconditionFailed)
	}
	return CarbonSummary{ExtraCarbon: *out.ExtraCarbon, Note: carbonNote}, nil
}

// runRisk is stage 4. It scores the parcel from its stored output and
// creates a source risk event.
func (o *Orchestrator) runRisk(ctx context.Context, parcel domain.ParcelRecord, opts Options, logger *slog.Logger) (domain.RiskEvent, error) {
	out, err := o.deps.Store.FindOutput(ctx, parcel.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.RiskEvent{}, fmt.Errorf("%w: no computed output for parcel", domain.ErrPreconditionFailed)
	}
	if err != nil {
		return domain.RiskEvent{}, fmt.Errorf("load computed output: %w", err)
	}

	assessment := o.deps.Engine.Assess(ctx, risk.AssessInput{
		ParcelID:      parcel.ID,
		Location:      parcel.Location(),
		TimeWindowHrs: opts.TimeWindowHrs,
		Audience:      opts.Audience,
		Factors:       domain.RiskFactorsFor(parcel, out),
	})

	event, err := o.deps.Store.InsertRiskEvent(ctx, domain.NewSourceEvent(out.ID, assessment, o.deps.Clock.Now()))
	if err != nil {
		return domain.RiskEvent{}, fmt.Errorf("save risk event: %w", err)
	}
	o.deps.Metrics.RiskEvents.WithLabelValues(string(event.Band)).Inc()
	o.deps.Metrics.RiskScore.Observe(float64(event.RiskScore))

	if _, err := o.deps.Store.ApplyOutputPatch(ctx, parcel.ID, domain.RiskPatch(event.RiskScore, event.Band)); err != nil {
		logger.Warn("could not record latest risk on output", "error", err, "event_id", event.ID)
	}
	return event, nil
}
