package domain

import (
	"slices"
	"time"
)

// ParcelRecord is a monitored coastal land unit with imagery references and
// environmental measurements.
type ParcelRecord struct {
	ID             string    `json:"id"`
	ParcelName     string    `json:"parcelName"`
	VillageName    string    `json:"villageName,omitempty"`
	AreaTotal      float64   `json:"areaTotal"`                // hectares
	BeforeImageRef string    `json:"beforeImageRef,omitempty"` // local path or gs:// URL
	AfterImageRef  string    `json:"afterImageRef,omitempty"`
	Rain           float64   `json:"rain"`     // 0–1
	Tide           float64   `json:"tide"`     // 0–1
	Exposure       float64   `json:"exposure"` // 0–100
	ElevScore      *float64  `json:"elevScore,omitempty"`
	DistScore      *float64  `json:"distScore,omitempty"`
	LandCoverScore *float64  `json:"landCoverScore,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// Location is the display name used in messages: the village when known,
// otherwise the parcel name.
func (p ParcelRecord) Location() string {
	if p.VillageName != "" {
		return p.VillageName
	}
	return p.ParcelName
}

// SiteFactors returns the static site scores, or false if any is missing.
func (p ParcelRecord) SiteFactors() (SiteFactors, bool) {
	if p.ElevScore == nil || p.DistScore == nil || p.LandCoverScore == nil {
		return SiteFactors{}, false
	}
	return SiteFactors{
		Elevation: *p.ElevScore,
		Distance:  *p.DistScore,
		LandCover: *p.LandCoverScore,
	}, true
}

// SiteFactors are the static 0–100 susceptibility scores of a parcel.
type SiteFactors struct {
	Elevation float64
	Distance  float64
	LandCover float64
}

// VegetationState is the stage 1 classification.
type VegetationState string

const (
	StateLoss   VegetationState = "Loss"
	StateNoLoss VegetationState = "NoLoss"
)

// DefaultVulnScore is assumed until the vulnerability stage has run.
const DefaultVulnScore = 50

// ComputedOutput holds the indicators derived for one parcel.
type ComputedOutput struct {
	ID          string          `json:"id"`
	ParcelID    string          `json:"parcelId"`
	MangScore   *int            `json:"mangScore,omitempty"`
	LostArea    *float64        `json:"lostArea,omitempty"`
	State       VegetationState `json:"state,omitempty"`
	DropPct     *int            `json:"dropPct,omitempty"`
	ExtraCarbon *float64        `json:"extraCarbon,omitempty"`
	NeedsReview bool            `json:"needsReview"`
	Analysis    string          `json:"llmAnalysis,omitempty"`
	VulnScore   *int            `json:"vulnScore,omitempty"`
	RiskScore   *int            `json:"riskScore,omitempty"`
	RiskBand    Band            `json:"riskBand,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitzero"`
	UpdatedAt   time.Time       `json:"updatedAt,omitzero"`
}

// Vulnerability returns the stored vulnScore or DefaultVulnScore.
func (o ComputedOutput) Vulnerability() int {
	if o.VulnScore == nil {
		return DefaultVulnScore
	}
	return *o.VulnScore
}

// Channel is a notification channel a subscriber opted into.
type Channel string

const (
	ChannelInApp Channel = "inapp"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Subscription links a user to a parcel. (UserID, ParcelID) is unique.
type Subscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ParcelID  string    `json:"parcelId"`
	Location  string    `json:"location"`
	Channels  []Channel `json:"channels"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// HasChannel reports whether the subscriber opted into c.
func (s Subscription) HasChannel(c Channel) bool {
	return slices.Contains(s.Channels, c)
}

// Language is a supported message language.
type Language string

const (
	LangEnglish  Language = "en"
	LangHindi    Language = "hi"
	LangGujarati Language = "gu"
)

// Role is the kind of user receiving alerts.
type Role string

const (
	RoleFisher   Role = "fisher"
	RoleNGO      Role = "ngo"
	RoleOfficial Role = "official"
)

// User is a subscriber. Read-only to this service.
type User struct {
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Language Language `json:"language"`
	Phone    string   `json:"phone,omitempty"`
	Role     Role     `json:"role,omitempty"`
}
