// Package alert turns source risk events into localized, rate-limited user
// alerts and serves the user's alert inbox.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.RiskEvent, error)
	CountEvents(ctx context.Context, f domain.EventFilter) (int, error)
	InsertRiskEvent(ctx context.Context, e domain.RiskEvent) (domain.RiskEvent, error)
	ActiveSubscriptionsForParcel(ctx context.Context, parcelID string) ([]domain.Subscription, error)
	ActiveSubscriptionsForUser(ctx context.Context, userID string) ([]domain.Subscription, error)
	FindUser(ctx context.Context, userID string) (domain.User, error)
}

// Publisher forwards persisted user alerts to channel transports.
type Publisher interface {
	PublishUserAlert(ctx context.Context, alert domain.RiskEvent, channels []domain.Channel) error
}

// Deps are the dispatcher's collaborators. Mailer and Publisher are
// optional.
type Deps struct {
	Store     Store
	Catalog   *i18n.Catalog
	Mailer    domain.AlertMailer
	Publisher Publisher
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Outcome is the result of dispatching one source event.
type Outcome struct {
	EventID   string             `json:"eventId"`
	ParcelID  string             `json:"parcelId"`
	Band      domain.Band        `json:"band"`
	Skipped   SkipReason         `json:"skipped,omitempty"`
	Generated []domain.RiskEvent `json:"generated"`
}

// Summary aggregates a sweep over recent source events.
type Summary struct {
	Processed int `json:"processed"`
	Generated int `json:"generated"`
	Failed    int `json:"failed,omitempty"`
}

// Dispatcher fans source events out to subscribers.
type Dispatcher struct {
	deps   Deps
	policy Policy
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(d Deps, p Policy) *Dispatcher {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Location == nil {
		p.Location = DefaultPolicy().Location
	}
	return &Dispatcher{deps: d, policy: p}
}

// DispatchEvent generates user alerts for one source event. Per
// subscription problems are logged and skipped; only failures to load the
// event's context are returned.
func (d *Dispatcher) DispatchEvent(ctx context.Context, src domain.RiskEvent) (Outcome, error) {
	return d.dispatch(ctx, src, d.policy.Cooldown)
}

// sweepCooldown is the throttle used by ProcessRecent. It never drops below
// the recent window, so a source event revisited by later sweeps finds its
// own user alerts and is throttled.
func (d *Dispatcher) sweepCooldown() time.Duration {
	return max(d.policy.Cooldown, d.policy.RecentWindow)
}

func (d *Dispatcher) dispatch(ctx context.Context, src domain.RiskEvent, cooldown time.Duration) (Outcome, error) {
	out := Outcome{EventID: src.ID, ParcelID: src.ParcelID, Band: src.Band, Generated: []domain.RiskEvent{}}
	if src.IsUserAlert() {
		return out, fmt.Errorf("%w: event %s is a user alert", domain.ErrValidation, src.ID)
	}
	logger := d.deps.Logger.With("event_id", src.ID, "parcel_id", src.ParcelID, "band", src.Band)

	if reason, ok := Eligible(src); !ok {
		return d.skip(out, reason), nil
	}

	now := d.deps.Clock.Now()
	if f, ok := ThrottleFilter(src, cooldown, now); ok {
		n, err := d.deps.Store.CountEvents(ctx, f)
		if err != nil {
			return out, fmt.Errorf("throttle check: %w", err)
		}
		if n > 0 {
			logger.Warn("alert throttled", "cooldown", cooldown)
			return d.skip(out, SkipThrottled), nil
		}
	}

	subs, err := d.deps.Store.ActiveSubscriptionsForParcel(ctx, src.ParcelID)
	if err != nil {
		return out, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		logger.Info("no active subscriptions for parcel")
		return d.skip(out, SkipNoSubscribers), nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.policy.Workers)
	for _, sub := range subs {
		g.Go(func() error {
			alert, reason, err := d.dispatchSubscription(gctx, src, sub, now, logger)
			switch {
			case err != nil:
				logger.Error("alert generation failed", "user_id", sub.UserID, "error", err)
				d.deps.Metrics.AlertsSkipped.WithLabelValues(string(SkipError)).Inc()
			case reason != "":
				d.deps.Metrics.AlertsSkipped.WithLabelValues(string(reason)).Inc()
			default:
				mu.Lock()
				out.Generated = append(out.Generated, alert)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := len(out.Generated); n > 0 {
		d.deps.Metrics.AlertsGenerated.WithLabelValues(string(src.Band)).Add(float64(n))
	}
	logger.Info("risk event dispatched", "subscriptions", len(subs), "generated", len(out.Generated))
	return out, nil
}

// dispatchSubscription applies the cap and user checks for one subscriber
// and persists, publishes, and escalates the alert.
func (d *Dispatcher) dispatchSubscription(ctx context.Context, src domain.RiskEvent, sub domain.Subscription, now time.Time, logger *slog.Logger) (domain.RiskEvent, SkipReason, error) {
	logger = logger.With("user_id", sub.UserID)

	reached, err := d.capReached(ctx, sub.UserID, now)
	if err != nil {
		return domain.RiskEvent{}, "", fmt.Errorf("daily cap check: %w", err)
	}
	if reached {
		logger.Info("daily alert cap reached", "cap", d.policy.DailyCap)
		return domain.RiskEvent{}, SkipDailyCap, nil
	}

	user, err := d.deps.Store.FindUser(ctx, sub.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("subscription references unknown user", "subscription_id", sub.ID)
		return domain.RiskEvent{}, SkipMissingUser, nil
	}
	if err != nil {
		return domain.RiskEvent{}, "", fmt.Errorf("load user: %w", err)
	}

	alert, err := d.deps.Store.InsertRiskEvent(ctx, BuildUserAlert(d.deps.Catalog, user, src, d.policy.Simulation, now))
	if err != nil {
		return domain.RiskEvent{}, "", fmt.Errorf("save user alert: %w", err)
	}

	if d.deps.Publisher != nil {
		if err := d.deps.Publisher.PublishUserAlert(ctx, alert, sub.Channels); err != nil {
			logger.Warn("user alert publish failed", "alert_id", alert.ID, "error", err)
		}
	}

	if ShouldEscalate(alert, user) {
		d.escalate(ctx, user, alert, logger)
	}
	return alert, "", nil
}

func (d *Dispatcher) capReached(ctx context.Context, userID string, now time.Time) (bool, error) {
	if d.policy.DailyCap <= 0 {
		return false, nil
	}
	subs, err := d.deps.Store.ActiveSubscriptionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	parcelIDs := make([]string, 0, len(subs))
	for _, s := range subs {
		parcelIDs = append(parcelIDs, s.ParcelID)
	}
	n, err := d.deps.Store.CountEvents(ctx, DailyCapFilter(userID, parcelIDs, now, d.policy.Location))
	if err != nil {
		return false, err
	}
	return CapReached(n, d.policy.DailyCap), nil
}

func (d *Dispatcher) escalate(ctx context.Context, user domain.User, alert domain.RiskEvent, logger *slog.Logger) {
	if d.deps.Mailer == nil {
		return
	}
	res := d.deps.Mailer.SendHighRiskAlert(ctx, user, alert)
	if !res.Success {
		logger.Warn("high risk email failed", "alert_id", alert.ID, "error", res.Error)
		d.deps.Metrics.Emails.WithLabelValues("failed").Inc()
		return
	}
	logger.Info("high risk email sent", "alert_id", alert.ID, "message_id", res.MessageID)
	d.deps.Metrics.Emails.WithLabelValues("sent").Inc()
}

func (d *Dispatcher) skip(out Outcome, reason SkipReason) Outcome {
	out.Skipped = reason
	d.deps.Metrics.AlertsSkipped.WithLabelValues(string(reason)).Inc()
	return out
}

// ProcessRecent dispatches every source event generated within the recent
// window, newest first. Events that fail are counted and skipped. Repeated
// calls do not alert again for events already dispatched.
func (d *Dispatcher) ProcessRecent(ctx context.Context) (Summary, error) {
	start := d.deps.Clock.Now()
	defer func() {
		d.deps.Metrics.DispatchDuration.Observe(d.deps.Clock.Since(start).Seconds())
	}()

	events, err := d.deps.Store.ListEvents(ctx, domain.EventFilter{
		Kind:  domain.KindSource,
		Since: start.Add(-d.policy.RecentWindow),
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list recent risk events: %w", err)
	}

	var sum Summary
	for _, ev := range events {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Processed++
		out, err := d.dispatch(ctx, ev, d.sweepCooldown())
		if err != nil {
			sum.Failed++
			d.deps.Logger.Error("dispatch risk event failed", "event_id", ev.ID, "error", err)
			continue
		}
		sum.Generated += len(out.Generated)
	}
	d.deps.Logger.Info("recent risk events processed",
		"processed", sum.Processed,
		"generated", sum.Generated,
		"failed", sum.Failed,
	)
	return sum, nil
}
