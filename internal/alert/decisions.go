package alert

import (
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
)

// SkipReason says why an event or subscription produced no alert. The
// values double as metric labels.
type SkipReason string

const (
	SkipGreen         SkipReason = "green"
	SkipThrottled     SkipReason = "throttled"
	SkipNoSubscribers SkipReason = "no_subscribers"
	SkipDailyCap      SkipReason = "daily_cap"
	SkipMissingUser   SkipReason = "missing_user"
	SkipError         SkipReason = "error"
)

// Policy holds the dispatch tunables.
type Policy struct {
	// Cooldown is the minimum time between alert sets for the same parcel
	// and band. Zero disables throttling.
	Cooldown time.Duration
	// DailyCap is the maximum people-audience alerts per user per local
	// day. Zero or less disables the cap.
	DailyCap int
	// Workers bounds the per-event subscription fan-out.
	Workers int
	// RecentWindow is how far back ProcessRecent looks for source events.
	RecentWindow time.Duration
	// Simulation appends the simulation marker to SMS texts.
	Simulation bool
	// Location defines the day boundary for the daily cap.
	Location *time.Location
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		DailyCap:     10,
		Workers:      4,
		RecentWindow: time.Hour,
		Location:     time.UTC,
	}
}

// Eligible reports whether a source event's band warrants alerts.
func Eligible(src domain.RiskEvent) (SkipReason, bool) {
	if src.Band == domain.BandGreen {
		return SkipGreen, false
	}
	return "", true
}

// ThrottleFilter selects the user alerts that would throttle src at now.
// It returns false when throttling is disabled.
func ThrottleFilter(src domain.RiskEvent, cooldown time.Duration, now time.Time) (domain.EventFilter, bool) {
	if cooldown <= 0 {
		return domain.EventFilter{}, false
	}
	return domain.EventFilter{
		Kind:     domain.KindUserAlert,
		ParcelID: src.ParcelID,
		Band:     src.Band,
		Since:    now.Add(-cooldown),
		Limit:    1,
	}, true
}

// StartOfDay returns local midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DailyCapFilter selects the people-audience alerts a user received today
// for the given parcels. A user with no parcels matches nothing.
func DailyCapFilter(userID string, parcelIDs []string, now time.Time, loc *time.Location) domain.EventFilter {
	if parcelIDs == nil {
		parcelIDs = []string{}
	}
	return domain.EventFilter{
		Kind:      domain.KindUserAlert,
		UserID:    userID,
		ParcelIDs: parcelIDs,
		Audience:  domain.AudiencePeople,
		Since:     StartOfDay(now, loc),
	}
}

// CapReached reports whether count alerts exhaust the daily cap.
func CapReached(count, dailyCap int) bool {
	return dailyCap > 0 && count >= dailyCap
}

// Localize renders the user's SMS in their language and the English
// dashboard line.
func Localize(catalog *i18n.Catalog, user domain.User, src domain.RiskEvent, simulation bool) (smsShort, dashboard string) {
	lang := catalog.Resolve(string(user.Language))
	smsShort = catalog.SMS(lang, src.Band, src.Location, src.TimeWindowHrs, src.Why, simulation)
	dashboard = catalog.Dashboard(src.Band, src.RiskScore, src.Location, src.TimeWindowHrs, src.Why)
	return smsShort, dashboard
}

// BuildUserAlert personalizes src for user.
func BuildUserAlert(catalog *i18n.Catalog, user domain.User, src domain.RiskEvent, simulation bool, at time.Time) domain.RiskEvent {
	sms, dashboard := Localize(catalog, user, src, simulation)
	p := domain.Personalization{UserID: user.UserID, Language: catalog.Resolve(string(user.Language))}
	return domain.NewUserAlert(src, p, sms, dashboard, at)
}

// ShouldEscalate reports whether a user alert is also sent by email.
func ShouldEscalate(alert domain.RiskEvent, user domain.User) bool {
	return alert.Band == domain.BandRed && user.Email != ""
}
