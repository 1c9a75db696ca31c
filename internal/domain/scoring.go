package domain

import (
	"math"
	"strings"
)

// RiskWeights are the coefficients of the risk formula. They sum to 1.
type RiskWeights struct {
	Rain          float64
	Tide          float64
	Vulnerability float64
	Exposure      float64
}

// RiskModel holds the risk formula's weights and thresholds.
type RiskModel struct {
	Weights RiskWeights
	// YellowFrom and RedFrom are the lowest scores of their bands.
	YellowFrom      int
	RedFrom         int
	DriverThreshold float64
}

// DefaultRiskModel returns the production weights and thresholds.
func DefaultRiskModel() RiskModel {
	return RiskModel{
		Weights:         RiskWeights{Rain: 0.35, Tide: 0.30, Vulnerability: 0.25, Exposure: 0.10},
		YellowFrom:      40,
		RedFrom:         70,
		DriverThreshold: 60,
	}
}

// RiskFactors are the four risk inputs on the 0–100 scale.
type RiskFactors struct {
	Rain          float64
	Tide          float64
	Vulnerability float64
	Exposure      float64
}

// RiskFactorsFor converts parcel measurements and the stored vulnerability
// into clamped risk inputs. Rain and tide arrive on the 0–1 scale.
func RiskFactorsFor(p ParcelRecord, o ComputedOutput) RiskFactors {
	return RiskFactors{
		Rain:          Clamp(p.Rain * 100),
		Tide:          Clamp(p.Tide * 100),
		Vulnerability: Clamp(float64(o.Vulnerability())),
		Exposure:      Clamp(p.Exposure),
	}
}

func (f RiskFactors) clamped() RiskFactors {
	return RiskFactors{
		Rain:          Clamp(f.Rain),
		Tide:          Clamp(f.Tide),
		Vulnerability: Clamp(f.Vulnerability),
		Exposure:      Clamp(f.Exposure),
	}
}

// RiskResult is the deterministic outcome of the risk formula.
type RiskResult struct {
	Score int    `json:"riskScore"`
	Band  Band   `json:"band"`
	Why   string `json:"why"`
}

// Compute clamps f and applies the weighted formula, band thresholds, and
// driver rule.
func (m RiskModel) Compute(f RiskFactors) RiskResult {
	c := f.clamped()
	w := m.Weights
	raw := w.Rain*c.Rain + w.Tide*c.Tide + w.Vulnerability*c.Vulnerability + w.Exposure*c.Exposure
	score := Round(Clamp(raw))
	return RiskResult{
		Score: score,
		Band:  m.BandFor(score),
		Why:   m.Why(c),
	}
}

// BandFor classifies a score. Boundary values belong to the higher band.
func (m RiskModel) BandFor(score int) Band {
	switch {
	case score < m.YellowFrom:
		return BandGreen
	case score < m.RedFrom:
		return BandYellow
	default:
		return BandRed
	}
}

// Driver labels, in reporting order.
const (
	DriverRain          = "heavy rain"
	DriverTide          = "high tide"
	DriverVulnerability = "high vulnerability"
	DriverExposure      = "dense population"
	// NoDominantDriver is the reason when no input reaches the threshold.
	NoDominantDriver = "moderate combined factors"
)

// Why names the inputs at or above the driver threshold.
func (m RiskModel) Why(f RiskFactors) string {
	c := f.clamped()
	var drivers []string
	for _, d := range []struct {
		value float64
		label string
	}{
		{c.Rain, DriverRain},
		{c.Tide, DriverTide},
		{c.Vulnerability, DriverVulnerability},
		{c.Exposure, DriverExposure},
	} {
		if d.value >= m.DriverThreshold {
			drivers = append(drivers, d.label)
		}
	}
	if len(drivers) == 0 {
		return NoDominantDriver
	}
	return strings.Join(drivers, " + ")
}

// Clamp bounds v to [0, 100]. NaN becomes 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

// Clamp01 bounds v to [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Round rounds half away from zero to a whole number.
func Round(v float64) int {
	return int(math.Round(v))
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
