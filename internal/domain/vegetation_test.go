package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVegetationAssess_State(t *testing.T) {
	m := DefaultVegetationModel()
	noLoss := &VisionReport{Verdict: VerdictNo, Confidence: ConfidenceHigh, Summary: "stable canopy", AIScore: 0.9}

	tests := []struct {
		name    string
		sig     VegetationSignal
		want    VegetationState
		wantPct int
	}{
		{"drop over threshold dominates verdict", VegetationSignal{Vision: noLoss, DropPct: 30}, StateLoss, 30},
		{"drop under threshold keeps verdict", VegetationSignal{Vision: noLoss, DropPct: 10}, StateNoLoss, 10},
		{"threshold is inclusive", VegetationSignal{Vision: noLoss, DropPct: 25}, StateLoss, 25},
		{"verdict yes wins with small drop", VegetationSignal{Vision: &VisionReport{Verdict: VerdictYes, AIScore: 0.4}, DropPct: 5}, StateLoss, 5},
		{"vision unavailable is neutral", VegetationSignal{VisionErr: errors.New("timeout"), DropPct: 12}, StateNoLoss, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Assess(tt.sig, 100)
			assert.Equal(t, tt.want, got.State)
			assert.Equal(t, tt.wantPct, got.DropPct)
		})
	}
}

func TestVegetationAssess_Carbon(t *testing.T) {
	m := DefaultVegetationModel()

	got := m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictYes, AIScore: 0.7}, DropPct: 20}, 100)
	assert.Equal(t, StateLoss, got.State)
	assert.Equal(t, 20.0, got.LostArea)
	assert.Equal(t, 200.0, got.ExtraCarbon)

	t.Run("no loss means no lost area", func(t *testing.T) {
		got := m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictNo, AIScore: 0.7}, DropPct: 20}, 100)
		assert.Zero(t, got.LostArea)
		assert.Zero(t, got.ExtraCarbon)
	})

	t.Run("carbon per hectare is configurable", func(t *testing.T) {
		m := VegetationModel{LossThresholdPct: 25, CarbonPerHectare: 3.5}
		got := m.Assess(VegetationSignal{DropPct: 33.333}, 12.5)
		assert.Equal(t, 4.17, got.LostArea)
		assert.Equal(t, 14.58, got.ExtraCarbon)
		assert.Equal(t, 33, got.DropPct)
	})
}

func TestVegetationAssess_MangScore(t *testing.T) {
	m := DefaultVegetationModel()

	t.Run("vision score scaled to 100", func(t *testing.T) {
		got := m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictNo, AIScore: 0.826}, DropPct: 40}, 10)
		assert.Equal(t, 83, got.MangScore)
	})

	t.Run("vision score clamped into unit range", func(t *testing.T) {
		got := m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictNo, AIScore: 1.7}}, 10)
		assert.Equal(t, 100, got.MangScore)
	})

	t.Run("falls back to inverse drop", func(t *testing.T) {
		got := m.Assess(VegetationSignal{VisionErr: errors.New("boom"), DropPct: 18}, 10)
		assert.Equal(t, 82, got.MangScore)
		assert.Equal(t, "Error in LLM analysis: boom", got.Analysis)
		assert.False(t, got.NeedsReview)
	})
}

func TestVegetationAssess_Review(t *testing.T) {
	m := DefaultVegetationModel()

	got := m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictNo, Confidence: ConfidenceLow, Summary: "hazy", AIScore: 0.6}}, 1)
	assert.True(t, got.NeedsReview)
	assert.Equal(t, "Confidence: Low. hazy", got.Analysis)

	got = m.Assess(VegetationSignal{Vision: &VisionReport{Verdict: VerdictNo, Confidence: ConfidenceMedium, AIScore: 0.6}}, 1)
	assert.False(t, got.NeedsReview)
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceLow, ParseConfidence(" low "))
	assert.Equal(t, ConfidenceHigh, ParseConfidence("HIGH"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("medium"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("certain"))
}
