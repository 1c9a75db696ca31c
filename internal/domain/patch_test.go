package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestOutputPatch_Validate(t *testing.T) {
	t.Run("stage constructors are valid", func(t *testing.T) {
		require.NoError(t, VegetationPatch(VegetationAssessment{State: StateNoLoss}).Validate())
		require.NoError(t, VulnerabilityPatch(60).Validate())
		require.NoError(t, RiskPatch(65, BandYellow).Validate())
	})

	t.Run("rejects a field owned by another stage", func(t *testing.T) {
		p := OutputPatch{Stage: StageVulnerability, Set: map[OutputField]any{FieldVulnScore: 60, FieldMangScore: 10}}
		err := p.Validate()
		require.ErrorIs(t, err, ErrValidation)
		assert.Contains(t, err.Error(), "mangScore")
	})

	t.Run("rejects defaults outside the declared set", func(t *testing.T) {
		p := RiskPatch(10, BandGreen)
		p.Defaults = map[OutputField]any{FieldVulnScore: 50}
		require.ErrorIs(t, p.Validate(), ErrValidation)
	})

	t.Run("rejects wrong value types", func(t *testing.T) {
		p := OutputPatch{Stage: StageVulnerability, Set: map[OutputField]any{FieldVulnScore: 60.0}}
		require.ErrorIs(t, p.Validate(), ErrValidation)
	})

	t.Run("carbon stage owns nothing", func(t *testing.T) {
		p := OutputPatch{Stage: StageCarbon, Set: map[OutputField]any{FieldExtraCarbon: 1.0}}
		require.ErrorIs(t, p.Validate(), ErrValidation)
	})
}

func TestOutputPatch_Apply(t *testing.T) {
	veg := VegetationAssessment{MangScore: 70, LostArea: 2.5, State: StateLoss, DropPct: 30, ExtraCarbon: 25, Analysis: "Confidence: High. thinning"}

	t.Run("vegetation seeds vulnScore on a new output", func(t *testing.T) {
		got := VegetationPatch(veg).Apply(ComputedOutput{ParcelID: "p1"})
		assert.Equal(t, 70, *got.MangScore)
		assert.Equal(t, DefaultVulnScore, *got.VulnScore)
		assert.Equal(t, StateLoss, got.State)
	})

	t.Run("vegetation preserves an existing vulnScore", func(t *testing.T) {
		got := VegetationPatch(veg).Apply(ComputedOutput{ParcelID: "p1", VulnScore: intPtr(81)})
		assert.Equal(t, 81, *got.VulnScore)
	})

	t.Run("vulnerability touches only vulnScore", func(t *testing.T) {
		before := VegetationPatch(veg).Apply(ComputedOutput{ParcelID: "p1", RiskScore: intPtr(44), RiskBand: BandYellow})
		got := VulnerabilityPatch(12).Apply(before)

		assert.Equal(t, 12, *got.VulnScore)
		before.VulnScore = got.VulnScore
		assert.Equal(t, before, got)
	})

	t.Run("risk leaves vegetation fields alone", func(t *testing.T) {
		before := VegetationPatch(veg).Apply(ComputedOutput{ParcelID: "p1"})
		got := RiskPatch(72, BandRed).Apply(before)
		assert.Equal(t, 72, *got.RiskScore)
		assert.Equal(t, BandRed, got.RiskBand)
		assert.Equal(t, before.MangScore, got.MangScore)
		assert.Equal(t, before.Analysis, got.Analysis)
	})
}

func TestOwnedFields_Disjoint(t *testing.T) {
	seen := map[OutputField]Stage{}
	for _, s := range Stages {
		for _, f := range OwnedFields(s) {
			prev, dup := seen[f]
			assert.False(t, dup, "field %s owned by %s and %s", f, prev, s)
			seen[f] = s
		}
	}
}
