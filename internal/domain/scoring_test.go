package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{180, 100},
		{math.NaN(), 0},
		{math.Inf(1), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in), "Clamp(%v)", tt.in)
	}
}

func TestBandFor_Boundaries(t *testing.T) {
	m := DefaultRiskModel()
	tests := []struct {
		score int
		want  Band
	}{
		{0, BandGreen},
		{39, BandGreen},
		{40, BandYellow},
		{69, BandYellow},
		{70, BandRed},
		{100, BandRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.BandFor(tt.score), "score %d", tt.score)
	}
}

func TestWhy(t *testing.T) {
	m := DefaultRiskModel()

	t.Run("order follows rain tide vuln exposure", func(t *testing.T) {
		got := m.Why(RiskFactors{Rain: 70, Tide: 10, Vulnerability: 80, Exposure: 10})
		assert.Equal(t, "heavy rain + high vulnerability", got)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		got := m.Why(RiskFactors{Rain: 60, Tide: 60, Vulnerability: 60, Exposure: 60})
		assert.Equal(t, "heavy rain + high tide + high vulnerability + dense population", got)
	})

	t.Run("no driver", func(t *testing.T) {
		got := m.Why(RiskFactors{Rain: 59, Tide: 20, Vulnerability: 50, Exposure: 0})
		assert.Equal(t, NoDominantDriver, got)
	})

	t.Run("inputs are clamped before comparison", func(t *testing.T) {
		got := m.Why(RiskFactors{Exposure: 250})
		assert.Equal(t, DriverExposure, got)
	})
}

func TestCompute(t *testing.T) {
	m := DefaultRiskModel()

	t.Run("worked example", func(t *testing.T) {
		got := m.Compute(RiskFactors{Rain: 80, Tide: 50, Vulnerability: 60, Exposure: 70})
		assert.Equal(t, RiskResult{Score: 65, Band: BandYellow, Why: "heavy rain + high vulnerability + dense population"}, got)
	})

	t.Run("score stays in range for out of range inputs", func(t *testing.T) {
		for _, f := range []RiskFactors{
			{Rain: -100, Tide: -1, Vulnerability: -50, Exposure: -3},
			{Rain: 500, Tide: 200, Vulnerability: 101, Exposure: 1e9},
			{Rain: math.NaN(), Tide: 50, Vulnerability: 50, Exposure: 50},
		} {
			got := m.Compute(f)
			assert.GreaterOrEqual(t, got.Score, 0)
			assert.LessOrEqual(t, got.Score, 100)
			assert.Equal(t, m.BandFor(got.Score), got.Band)
		}
	})

	t.Run("all maxed is red", func(t *testing.T) {
		got := m.Compute(RiskFactors{Rain: 100, Tide: 100, Vulnerability: 100, Exposure: 100})
		assert.Equal(t, 100, got.Score)
		assert.Equal(t, BandRed, got.Band)
	})

	t.Run("custom thresholds", func(t *testing.T) {
		strict := DefaultRiskModel()
		strict.RedFrom = 50
		got := strict.Compute(RiskFactors{Rain: 80, Tide: 50, Vulnerability: 60, Exposure: 70})
		assert.Equal(t, BandRed, got.Band)
		assert.Equal(t, BandYellow, m.Compute(RiskFactors{Rain: 80, Tide: 50, Vulnerability: 60, Exposure: 70}).Band)
	})
}

func TestRiskFactorsFor(t *testing.T) {
	vuln := 60
	p := ParcelRecord{Rain: 0.8, Tide: 0.5, Exposure: 70}
	o := ComputedOutput{VulnScore: &vuln}

	got := RiskFactorsFor(p, o)
	assert.InDelta(t, 80, got.Rain, 1e-9)
	assert.InDelta(t, 50, got.Tide, 1e-9)
	assert.Equal(t, 60.0, got.Vulnerability)
	assert.Equal(t, 70.0, got.Exposure)

	t.Run("missing vulnerability defaults to 50", func(t *testing.T) {
		got := RiskFactorsFor(ParcelRecord{Rain: 1.4, Exposure: -2}, ComputedOutput{})
		assert.Equal(t, 100.0, got.Rain)
		assert.Equal(t, 0.0, got.Exposure)
		assert.Equal(t, float64(DefaultVulnScore), got.Vulnerability)
	})
}

func TestRound(t *testing.T) {
	assert.Equal(t, 3, Round(2.5))
	assert.Equal(t, 2, Round(2.49))
	assert.Equal(t, 12.35, Round2(12.346))
	assert.Equal(t, 0.1, Round2(0.1))
}

func TestComposeVulnerability(t *testing.T) {
	w := DefaultVulnerabilityWeights()

	got := w.Compose(SiteFactors{Elevation: 80, Distance: 60, LandCover: 40}, 50)
	assert.Equal(t, 60, got)

	assert.Equal(t, 100, w.Compose(SiteFactors{Elevation: 150, Distance: 100, LandCover: 100}, 100))
	assert.Equal(t, 0, w.Compose(SiteFactors{}, 0))
}
