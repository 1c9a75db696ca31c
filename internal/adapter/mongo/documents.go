package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// Collection names.
const (
	collParcels       = "inputs"
	collOutputs       = "outputs"
	collEvents        = "riskevents"
	collSubscriptions = "subscriptions"
	collUsers         = "users"
)

type parcelDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ParcelName     string             `bson:"parcelName"`
	VillageName    string             `bson:"villageName,omitempty"`
	AreaTotal      float64            `bson:"areaTotal"`
	BeforeImgURL   string             `bson:"beforeImgUrl,omitempty"`
	AfterImgURL    string             `bson:"afterImgUrl,omitempty"`
	Rain           float64            `bson:"rain"`
	Tide           float64            `bson:"tide"`
	Exposure       float64            `bson:"exposure"`
	ElevScore      *float64           `bson:"elevScore,omitempty"`
	DistScore      *float64           `bson:"distScore,omitempty"`
	LandCoverScore *float64           `bson:"landCoverScore,omitempty"`
	UpdatedAt      time.Time          `bson:"updatedAt,omitempty"`
}

func (d parcelDoc) toDomain() domain.ParcelRecord {
	return domain.ParcelRecord{
		ID:             d.ID.Hex(),
		ParcelName:     d.ParcelName,
		VillageName:    d.VillageName,
		AreaTotal:      d.AreaTotal,
		BeforeImageRef: d.BeforeImgURL,
		AfterImageRef:  d.AfterImgURL,
		Rain:           d.Rain,
		Tide:           d.Tide,
		Exposure:       d.Exposure,
		ElevScore:      d.ElevScore,
		DistScore:      d.DistScore,
		LandCoverScore: d.LandCoverScore,
		UpdatedAt:      d.UpdatedAt,
	}
}

type outputDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ParcelID    string             `bson:"parcelId"`
	MangScore   *int               `bson:"mangScore,omitempty"`
	LostArea    *float64           `bson:"lostArea,omitempty"`
	State       string             `bson:"state,omitempty"`
	DropPct     *int               `bson:"dropPct,omitempty"`
	ExtraCarbon *float64           `bson:"extraCarbon,omitempty"`
	NeedsReview bool               `bson:"needsReview"`
	Analysis    string             `bson:"llmAnalysis,omitempty"`
	VulnScore   *int               `bson:"vulnScore,omitempty"`
	RiskScore   *int               `bson:"riskScore,omitempty"`
	RiskBand    string             `bson:"riskBand,omitempty"`
	CreatedAt   time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt   time.Time          `bson:"updatedAt,omitempty"`
}

func (d outputDoc) toDomain() domain.ComputedOutput {
	return domain.ComputedOutput{
		ID:          d.ID.Hex(),
		ParcelID:    d.ParcelID,
		MangScore:   d.MangScore,
		LostArea:    d.LostArea,
		State:       domain.VegetationState(d.State),
		DropPct:     d.DropPct,
		ExtraCarbon: d.ExtraCarbon,
		NeedsReview: d.NeedsReview,
		Analysis:    d.Analysis,
		VulnScore:   d.VulnScore,
		RiskScore:   d.RiskScore,
		RiskBand:    domain.Band(d.RiskBand),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type messagesDoc struct {
	SMSShort  string `bson:"smsShort"`
	Dashboard string `bson:"dashboard"`
}

type eventDoc struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty"`
	Kind                string             `bson:"kind"`
	SourceComputationID string             `bson:"sourceComputationId,omitempty"`
	ParcelID            string             `bson:"parcelId"`
	Location            string             `bson:"location"`
	RiskScore           int                `bson:"riskScore"`
	Band                string             `bson:"band"`
	Why                 string             `bson:"why"`
	TimeWindowHrs       int                `bson:"timeWindowHrs"`
	Audience            []string           `bson:"audience"`
	Messages            messagesDoc        `bson:"messages"`
	GeneratedAt         time.Time          `bson:"generatedAt"`
	UserID              string             `bson:"userId,omitempty"`
	UserLanguage        string             `bson:"userLanguage,omitempty"`
}

func newEventDoc(e domain.RiskEvent) eventDoc {
	d := eventDoc{
		Kind:                string(e.Kind),
		SourceComputationID: e.SourceComputationID,
		ParcelID:            e.ParcelID,
		Location:            e.Location,
		RiskScore:           e.RiskScore,
		Band:                string(e.Band),
		Why:                 e.Why,
		TimeWindowHrs:       e.TimeWindowHrs,
		Audience:            make([]string, 0, len(e.Audience)),
		Messages:            messagesDoc{SMSShort: e.SMSShort, Dashboard: e.Dashboard},
		GeneratedAt:         e.GeneratedAt.UTC(),
	}
	for _, a := range e.Audience {
		d.Audience = append(d.Audience, string(a))
	}
	if p := e.Personalization; p != nil {
		d.UserID = p.UserID
		d.UserLanguage = string(p.Language)
	}
	return d
}

func (d eventDoc) toDomain() domain.RiskEvent {
	e := domain.RiskEvent{
		ID:                  d.ID.Hex(),
		Kind:                domain.EventKind(d.Kind),
		SourceComputationID: d.SourceComputationID,
		RiskAssessment: domain.RiskAssessment{
			ParcelID:      d.ParcelID,
			Location:      d.Location,
			RiskScore:     d.RiskScore,
			Band:          domain.Band(d.Band),
			Why:           d.Why,
			TimeWindowHrs: d.TimeWindowHrs,
			Audience:      make([]domain.Audience, 0, len(d.Audience)),
			SMSShort:      d.Messages.SMSShort,
			Dashboard:     d.Messages.Dashboard,
		},
		GeneratedAt: d.GeneratedAt,
	}
	for _, a := range d.Audience {
		e.Audience = append(e.Audience, domain.Audience(a))
	}
	if d.UserID != "" {
		e.Personalization = &domain.Personalization{UserID: d.UserID, Language: domain.Language(d.UserLanguage)}
	}
	return e
}

type subscriptionDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	ParcelID  string             `bson:"parcelId"`
	Location  string             `bson:"location"`
	Channels  []string           `bson:"channels"`
	IsActive  bool               `bson:"isActive"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d subscriptionDoc) toDomain() domain.Subscription {
	s := domain.Subscription{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		ParcelID:  d.ParcelID,
		Location:  d.Location,
		Channels:  make([]domain.Channel, 0, len(d.Channels)),
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
	}
	for _, c := range d.Channels {
		s.Channels = append(s.Channels, domain.Channel(c))
	}
	return s
}

type userDoc struct {
	UserID   string `bson:"userId"`
	Name     string `bson:"name"`
	Email    string `bson:"email,omitempty"`
	Language string `bson:"language,omitempty"`
	Phone    string `bson:"phone,omitempty"`
	Role     string `bson:"role,omitempty"`
}

func (d userDoc) toDomain() domain.User {
	lang := domain.Language(d.Language)
	if lang == "" {
		lang = domain.LangEnglish
	}
	return domain.User{
		UserID:   d.UserID,
		Name:     d.Name,
		Email:    d.Email,
		Language: lang,
		Phone:    d.Phone,
		Role:     domain.Role(d.Role),
	}
}
