package domain

import (
	"fmt"
	"slices"
	"time"
)

// Band is a discrete risk severity level.
type Band string

const (
	BandGreen  Band = "Green"
	BandYellow Band = "Yellow"
	BandRed    Band = "Red"
)

// Audience is who a risk event is addressed to.
type Audience string

const (
	AudiencePeople    Audience = "people"
	AudienceOfficials Audience = "officials"
)

// DefaultAudience is used when a run does not name one.
func DefaultAudience() []Audience {
	return []Audience{AudiencePeople, AudienceOfficials}
}

// Messages is the text rendered for a risk assessment.
type Messages struct {
	Why       string `json:"why"`
	SMSShort  string `json:"smsShort"`
	Dashboard string `json:"dashboard"`
}

// Complete reports whether all three texts are non-empty.
func (m Messages) Complete() bool {
	return m.Why != "" && m.SMSShort != "" && m.Dashboard != ""
}

// RiskAssessment is the business payload shared by both event kinds.
type RiskAssessment struct {
	ParcelID      string     `json:"parcelId"`
	Location      string     `json:"location"`
	RiskScore     int        `json:"riskScore"`
	Band          Band       `json:"band"`
	Why           string     `json:"why"`
	TimeWindowHrs int        `json:"timeWindowHrs"`
	Audience      []Audience `json:"audience"`
	SMSShort      string     `json:"smsShort"`
	Dashboard     string     `json:"dashboard"`
}

// HasAudience reports whether the assessment is addressed to a.
func (a RiskAssessment) HasAudience(aud Audience) bool {
	return slices.Contains(a.Audience, aud)
}

// EventKind tags the two RiskEvent variants.
type EventKind string

const (
	// KindSource is the canonical assessment produced by the pipeline.
	KindSource EventKind = "source"
	// KindUserAlert is a localized copy generated for one subscriber.
	KindUserAlert EventKind = "user_alert"
)

// Personalization is present only on user alerts.
type Personalization struct {
	UserID   string   `json:"userId"`
	Language Language `json:"userLanguage"`
}

// RiskEvent is a write-once risk record.
type RiskEvent struct {
	ID                  string    `json:"id"`
	Kind                EventKind `json:"kind"`
	SourceComputationID string    `json:"sourceComputationId,omitempty"`
	RiskAssessment
	Personalization *Personalization `json:"personalization,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// NewSourceEvent builds the canonical event for a computed output.
func NewSourceEvent(outputID string, a RiskAssessment, at time.Time) RiskEvent {
	return RiskEvent{
		Kind:                KindSource,
		SourceComputationID: outputID,
		RiskAssessment:      a,
		GeneratedAt:         at,
	}
}

// NewUserAlert copies the business fields of src for one subscriber,
// replacing the texts with the localized ones. The source id is not kept.
func NewUserAlert(src RiskEvent, p Personalization, smsShort, dashboard string, at time.Time) RiskEvent {
	a := src.RiskAssessment
	a.Audience = []Audience{AudiencePeople}
	a.SMSShort = smsShort
	a.Dashboard = dashboard
	return RiskEvent{
		Kind:            KindUserAlert,
		RiskAssessment:  a,
		Personalization: &p,
		GeneratedAt:     at,
	}
}

// IsUserAlert reports whether the event is the personalized variant.
func (e RiskEvent) IsUserAlert() bool { return e.Kind == KindUserAlert }

// UserID returns the subscriber id of a user alert, or "".
func (e RiskEvent) UserID() string {
	if e.Personalization == nil {
		return ""
	}
	return e.Personalization.UserID
}

// Validate checks that the tag and the personalization agree.
func (e RiskEvent) Validate() error {
	switch e.Kind {
	case KindSource:
		if e.Personalization != nil {
			return fmt.Errorf("%w: source event carries personalization", ErrValidation)
		}
	case KindUserAlert:
		if e.Personalization == nil || e.Personalization.UserID == "" {
			return fmt.Errorf("%w: user alert without user id", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrValidation, e.Kind)
	}
	if e.ParcelID == "" {
		return fmt.Errorf("%w: risk event without parcel id", ErrValidation)
	}
	if e.TimeWindowHrs <= 0 {
		return fmt.Errorf("%w: time window must be positive, got %d", ErrValidation, e.TimeWindowHrs)
	}
	return nil
}
