package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/adapter/memstore"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// fixture is the JSON scenario replayed by the simulation.
type fixture struct {
	Now           time.Time             `json:"now"`
	TimeWindowHrs int                   `json:"timeWindowHrs"`
	Parcels       []fixtureParcel       `json:"parcels"`
	Users         []domain.User         `json:"users"`
	Subscriptions []domain.Subscription `json:"subscriptions"`
}

// fixtureParcel is a parcel plus the scripted collaborator replies for its
// image pair.
type fixtureParcel struct {
	domain.ParcelRecord
	Output      *domain.ComputedOutput `json:"output,omitempty"`
	Vision      *domain.VisionReport   `json:"vision,omitempty"`
	VisionError string                 `json:"visionError,omitempty"`
	DropPct     *float64               `json:"dropPct,omitempty"`
}

func loadFixture(path string) (fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return fixture{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	if len(f.Parcels) == 0 {
		return fixture{}, fmt.Errorf("fixture %s has no parcels", path)
	}
	if f.Now.IsZero() {
		f.Now = time.Date(2025, time.June, 1, 6, 0, 0, 0, time.UTC)
	}
	for i, p := range f.Parcels {
		if p.ID == "" {
			return fixture{}, fmt.Errorf("fixture parcel %d has no id", i)
		}
		if p.BeforeImageRef == "" {
			f.Parcels[i].BeforeImageRef = p.ID + "/before.jpg"
		}
		if p.AfterImageRef == "" {
			f.Parcels[i].AfterImageRef = p.ID + "/after.jpg"
		}
	}
	return f, nil
}

// seed writes the fixture records into the store.
func (f fixture) seed(store *memstore.Store) {
	for _, p := range f.Parcels {
		store.PutParcel(p.ParcelRecord)
		if p.Output != nil {
			out := *p.Output
			out.ParcelID = p.ID
			store.PutOutput(out)
		}
	}
	for _, u := range f.Users {
		store.PutUser(u)
	}
	for _, s := range f.Subscriptions {
		store.PutSubscription(s)
	}
}

// scriptedImages hands back the reference itself as image bytes, so the
// scripted collaborators can tell parcels apart.
type scriptedImages struct{}

func (scriptedImages) Load(_ context.Context, ref string) (domain.Image, error) {
	return domain.Image{Data: []byte(ref), MIMEType: "image/jpeg"}, nil
}

// scriptedVision replies per before-image reference.
type scriptedVision struct {
	replies map[string]fixtureParcel
}

func newScriptedVision(parcels []fixtureParcel) scriptedVision {
	replies := make(map[string]fixtureParcel, len(parcels))
	for _, p := range parcels {
		replies[p.BeforeImageRef] = p
	}
	return scriptedVision{replies: replies}
}

func (s scriptedVision) AnalyzeVegetation(_ context.Context, before, _ domain.Image) (domain.VisionReport, error) {
	p, ok := s.replies[string(before.Data)]
	switch {
	case !ok:
		return domain.VisionReport{}, fmt.Errorf("%w: no scripted reply for %s", domain.ErrCollaborator, before.Data)
	case p.VisionError != "":
		return domain.VisionReport{}, fmt.Errorf("%w: %s", domain.ErrCollaborator, p.VisionError)
	case p.Vision == nil:
		return domain.VisionReport{}, fmt.Errorf("%w: vision not scripted for %s", domain.ErrCollaborator, p.ID)
	}
	return *p.Vision, nil
}

func (s scriptedVision) EstimateDropPct(_ context.Context, before, _ domain.Image) (float64, error) {
	p, ok := s.replies[string(before.Data)]
	if !ok || p.DropPct == nil {
		return 0, fmt.Errorf("%w: greenness not scripted for %s", domain.ErrCollaborator, before.Data)
	}
	return *p.DropPct, nil
}

// recordingMailer stands in for the email collaborator.
type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.RiskEvent
}

func (m *recordingMailer) SendHighRiskAlert(_ context.Context, user domain.User, alert domain.RiskEvent) domain.EmailResult {
	if user.Email == "" {
		return domain.EmailResult{Error: "user has no email address"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, alert)
	return domain.EmailResult{Success: true, MessageID: fmt.Sprintf("sim-%d", len(m.sent))}
}
