// Package risk turns risk factors into a scored, banded assessment with
// human-readable texts. Texts come from an optional LLM enhancer and fall
// back to the deterministic templates whenever the enhancer is missing,
// slow, failing, or returns an incomplete reply.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
)

// Context is everything an enhancer may use to phrase a risk assessment.
type Context struct {
	Location string
	Hours    int
	Factors  domain.RiskFactors
	Result   domain.RiskResult
}

// Enhancer rewrites the texts of a risk assessment.
type Enhancer interface {
	EnhanceMessages(ctx context.Context, in Context) (domain.Messages, error)
}

// Engine scores risk and renders its texts.
type Engine struct {
	model    domain.RiskModel
	catalog  *i18n.Catalog
	enhancer Enhancer
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewEngine creates an Engine. A nil enhancer always yields template texts.
func NewEngine(model domain.RiskModel, catalog *i18n.Catalog, enhancer Enhancer, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		model:    model,
		catalog:  catalog,
		enhancer: enhancer,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// ComputeRisk applies the risk formula to clamped inputs.
func (e *Engine) ComputeRisk(f domain.RiskFactors) domain.RiskResult {
	return e.model.Compute(f)
}

// TemplateMessages renders the deterministic English texts for c.
func (e *Engine) TemplateMessages(c Context) domain.Messages {
	return domain.Messages{
		Why:       c.Result.Why,
		SMSShort:  e.catalog.SMS(domain.LangEnglish, c.Result.Band, c.Location, c.Hours, c.Result.Why, false),
		Dashboard: e.catalog.Dashboard(c.Result.Band, c.Result.Score, c.Location, c.Hours, c.Result.Why),
	}
}

var errIncompleteReply = errors.New("enhancer reply is missing why, smsShort, or dashboard")

// MaybeEnhanceMessages asks the enhancer for texts and returns the template
// texts if it cannot deliver a complete set in time.
func (e *Engine) MaybeEnhanceMessages(ctx context.Context, c Context) domain.Messages {
	fallback := e.TemplateMessages(c)
	if e.enhancer == nil {
		e.metrics.MessageEnhancements.WithLabelValues("template").Inc()
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	msgs, err := e.enhancer.EnhanceMessages(callCtx, c)
	if err == nil {
		msgs = domain.Messages{
			Why:       strings.TrimSpace(msgs.Why),
			SMSShort:  strings.TrimSpace(msgs.SMSShort),
			Dashboard: strings.TrimSpace(msgs.Dashboard),
		}
		if !msgs.Complete() {
			err = fmt.Errorf("%w: %w", domain.ErrValidation, errIncompleteReply)
		}
	}
	if err != nil {
		e.logger.Warn("message enhancement failed, using templates",
			"error", err,
			"location", c.Location,
			"kind", domain.Kind(err),
		)
		e.metrics.MessageEnhancements.WithLabelValues("template").Inc()
		return fallback
	}

	e.metrics.MessageEnhancements.WithLabelValues("llm").Inc()
	return msgs
}

// AssessInput describes one stage 4 computation.
type AssessInput struct {
	ParcelID      string
	Location      string
	TimeWindowHrs int
	Audience      []domain.Audience
	Factors       domain.RiskFactors
}

// Assess scores the factors and renders texts into a RiskAssessment.
func (e *Engine) Assess(ctx context.Context, in AssessInput) domain.RiskAssessment {
	result := e.ComputeRisk(in.Factors)
	msgs := e.MaybeEnhanceMessages(ctx, Context{
		Location: in.Location,
		Hours:    in.TimeWindowHrs,
		Factors:  in.Factors,
		Result:   result,
	})
	return domain.RiskAssessment{
		ParcelID:      in.ParcelID,
		Location:      in.Location,
		RiskScore:     result.Score,
		Band:          result.Band,
		Why:           msgs.Why,
		TimeWindowHrs: in.TimeWindowHrs,
		Audience:      in.Audience,
		SMSShort:      msgs.SMSShort,
		Dashboard:     msgs.Dashboard,
	}
}
