package domain

import (
	"fmt"
	"strings"
)

// Verdict is the vision collaborator's answer to "is there vegetation loss".
type Verdict string

const (
	VerdictYes Verdict = "yes"
	VerdictNo  Verdict = "no"
)

// Confidence is the vision collaborator's self-reported confidence.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// ParseConfidence normalizes a free-form confidence label. Unknown labels
// map to Medium.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ConfidenceLow
	case "high":
		return ConfidenceHigh
	default:
		return ConfidenceMedium
	}
}

// VisionReport is the vision collaborator's reading of a before/after pair.
type VisionReport struct {
	Verdict    Verdict    `json:"verdict"`
	Confidence Confidence `json:"confidence"`
	Summary    string     `json:"summary"`
	AIScore    float64    `json:"aiScore"` // 0 = complete loss, 1 = no loss
}

// VegetationSignal gathers the stage 1 inputs. Vision is nil when the vision
// collaborator was unavailable; VisionErr then says why.
type VegetationSignal struct {
	Vision    *VisionReport
	VisionErr error
	DropPct   float64
}

// VegetationModel holds the stage 1 constants.
type VegetationModel struct {
	LossThresholdPct float64
	CarbonPerHectare float64 // CO2e tons per lost hectare
}

// DefaultVegetationModel returns the production constants.
func DefaultVegetationModel() VegetationModel {
	return VegetationModel{LossThresholdPct: 25, CarbonPerHectare: 10}
}

// VegetationAssessment is the stage 1 result written to ComputedOutput.
type VegetationAssessment struct {
	MangScore   int             `json:"mangScore"`
	LostArea    float64         `json:"lostArea"`
	State       VegetationState `json:"state"`
	DropPct     int             `json:"dropPct"`
	ExtraCarbon float64         `json:"extraCarbon"`
	NeedsReview bool            `json:"needsReview"`
	Analysis    string          `json:"llmAnalysis"`
}

// Assess combines the vision verdict with the drop signal for a parcel of
// areaTotal hectares.
func (m VegetationModel) Assess(sig VegetationSignal, areaTotal float64) VegetationAssessment {
	drop := Clamp(sig.DropPct)

	state := StateNoLoss
	if (sig.Vision != nil && sig.Vision.Verdict == VerdictYes) || drop >= m.LossThresholdPct {
		state = StateLoss
	}

	lossPct := 0.0
	if state == StateLoss {
		lossPct = drop
	}
	lostArea := lossPct / 100 * max(areaTotal, 0)

	mang := 100 - drop
	if sig.Vision != nil {
		mang = Clamp01(sig.Vision.AIScore) * 100
	}

	a := VegetationAssessment{
		MangScore:   Round(Clamp(mang)),
		LostArea:    Round2(lostArea),
		State:       state,
		DropPct:     Round(drop),
		ExtraCarbon: Round2(lostArea * m.CarbonPerHectare),
	}
	switch {
	case sig.Vision != nil:
		a.NeedsReview = sig.Vision.Confidence == ConfidenceLow
		a.Analysis = fmt.Sprintf("Confidence: %s. %s", sig.Vision.Confidence, sig.Vision.Summary)
	case sig.VisionErr != nil:
		a.Analysis = fmt.Sprintf("Error in LLM analysis: %v", sig.VisionErr)
	default:
		a.Analysis = "Vision analysis unavailable"
	}
	return a
}
