package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// Status reports which stages have persisted results for a parcel.
type Status struct {
	ParcelID        string                `json:"parcelId"`
	ParcelName      string                `json:"parcelName"`
	Stages          map[domain.Stage]bool `json:"stages"`
	OverallComplete bool                  `json:"overallComplete"`
	LastUpdated     time.Time             `json:"lastUpdated,omitzero"`
}

// Status inspects the stored output and events for identifier.
func (o *Orchestrator) Status(ctx context.Context, identifier string) (Status, error) {
	parcel, err := o.resolve(ctx, identifier)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		ParcelID:    parcel.ID,
		ParcelName:  parcel.ParcelName,
		Stages:      make(map[domain.Stage]bool, len(domain.Stages)),
		LastUpdated: parcel.UpdatedAt,
	}

	out, err := o.deps.Store.FindOutput(ctx, parcel.ID)
	switch {
	case err == nil:
		st.Stages[domain.StageVegetation] = out.MangScore != nil && out.LostArea != nil
		st.Stages[domain.StageVulnerability] = out.VulnScore != nil
		st.Stages[domain.StageCarbon] = out.ExtraCarbon != nil
		st.LastUpdated = out.UpdatedAt
	case errors.Is(err, domain.ErrNotFound):
	default:
		return Status{}, fmt.Errorf("load computed output: %w", err)
	}

	events, err := o.deps.Store.ListEvents(ctx, domain.EventFilter{Kind: domain.KindSource, ParcelID: parcel.ID, Limit: 1})
	if err != nil {
		return Status{}, fmt.Errorf("load risk events: %w", err)
	}
	st.Stages[domain.StageRisk] = len(events) > 0

	st.OverallComplete = true
	for _, stage := range domain.Stages {
		if !st.Stages[stage] {
			st.OverallComplete = false
		}
	}
	return st, nil
}

// QuickResult is the condensed outcome of RunQuick.
type QuickResult struct {
	Success          bool              `json:"success"`
	RiskEvent        *domain.RiskEvent `json:"riskEvent,omitempty"`
	ModulesCompleted int               `json:"modulesCompleted"`
	Errors           []string          `json:"errors,omitempty"`
	Stages           []StageReport     `json:"stages,omitempty"`
}

// RunQuick runs the full pipeline and keeps only the risk event when stage 4
// succeeded, or the stage reports otherwise.
func (o *Orchestrator) RunQuick(ctx context.Context, identifier string, opts Options) (QuickResult, error) {
	res, err := o.Run(ctx, identifier, opts)
	q := QuickResult{ModulesCompleted: res.Completed(), Errors: res.Errors}
	if err == nil && res.Success && res.Event != nil {
		q.Success = true
		q.RiskEvent = res.Event
		return q, nil
	}
	q.Stages = res.Stages
	return q, err
}
