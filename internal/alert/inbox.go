package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultInboxLimit = 50
	MaxInboxLimit     = 200
)

// InboxStore is the read side the inbox needs.
type InboxStore interface {
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.RiskEvent, error)
	CountEvents(ctx context.Context, f domain.EventFilter) (int, error)
}

// InboxItem is one alert as shown to its user.
type InboxItem struct {
	ID            string      `json:"id"`
	ParcelID      string      `json:"parcelId"`
	Location      string      `json:"location"`
	RiskScore     int         `json:"riskScore"`
	Band          domain.Band `json:"band"`
	Why           string      `json:"why"`
	TimeWindowHrs int         `json:"timeWindowHrs"`
	SMSShort      string      `json:"smsShort"`
	Dashboard     string      `json:"dashboard"`
	GeneratedAt   time.Time   `json:"generatedAt"`
	IsUserAlert   bool        `json:"isUserAlert"`
}

func newInboxItem(e domain.RiskEvent) InboxItem {
	return InboxItem{
		ID:            e.ID,
		ParcelID:      e.ParcelID,
		Location:      e.Location,
		RiskScore:     e.RiskScore,
		Band:          e.Band,
		Why:           e.Why,
		TimeWindowHrs: e.TimeWindowHrs,
		SMSShort:      e.SMSShort,
		Dashboard:     e.Dashboard,
		GeneratedAt:   e.GeneratedAt,
		IsUserAlert:   e.IsUserAlert(),
	}
}

// BandCounts counts alerts per band.
type BandCounts struct {
	Red    int `json:"red"`
	Yellow int `json:"yellow"`
	Green  int `json:"green"`
}

// Stats summarizes a user's alerts.
type Stats struct {
	Total  int        `json:"total"`
	Today  int        `json:"today"`
	ByBand BandCounts `json:"byBand"`
	Latest *InboxItem `json:"latest"`
}

// Inbox serves a user's alert history.
type Inbox struct {
	store    InboxStore
	clock    clockwork.Clock
	location *time.Location
}

// NewInbox creates an Inbox. Days are counted in loc.
func NewInbox(store InboxStore, clock clockwork.Clock, loc *time.Location) *Inbox {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Inbox{store: store, clock: clock, location: loc}
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultInboxLimit
	case limit > MaxInboxLimit:
		return MaxInboxLimit
	default:
		return limit
	}
}

// List returns the user's alerts newest first.
func (i *Inbox) List(ctx context.Context, userID string, limit int) ([]InboxItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	events, err := i.store.ListEvents(ctx, userFilter(userID, ClampLimit(limit)))
	if err != nil {
		return nil, fmt.Errorf("list alerts for %s: %w", userID, err)
	}
	items := make([]InboxItem, 0, len(events))
	for _, e := range events {
		items = append(items, newInboxItem(e))
	}
	return items, nil
}

// Stats counts the user's alerts overall, today, and per band.
func (i *Inbox) Stats(ctx context.Context, userID string) (Stats, error) {
	if strings.TrimSpace(userID) == "" {
		return Stats{}, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	var (
		st  Stats
		err error
	)
	count := func(f domain.EventFilter) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = i.store.CountEvents(ctx, f)
		return n
	}

	base := userFilter(userID, 0)
	st.Total = count(base)

	today := base
	today.Since = StartOfDay(i.clock.Now(), i.location)
	st.Today = count(today)

	for band, dst := range map[domain.Band]*int{
		domain.BandRed:    &st.ByBand.Red,
		domain.BandYellow: &st.ByBand.Yellow,
		domain.BandGreen:  &st.ByBand.Green,
	} {
		f := base
		f.Band = band
		*dst = count(f)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("count alerts for %s: %w", userID, err)
	}

	latest, err := i.store.ListEvents(ctx, userFilter(userID, 1))
	if err != nil {
		return Stats{}, fmt.Errorf("latest alert for %s: %w", userID, err)
	}
	if len(latest) > 0 {
		item := newInboxItem(latest[0])
		st.Latest = &item
	}
	return st, nil
}

func userFilter(userID string, limit int) domain.EventFilter {
	return domain.EventFilter{Kind: domain.KindUserAlert, UserID: userID, Limit: limit}
}
