package domain

// VulnerabilityWeights combine site factors with vegetation health.
type VulnerabilityWeights struct {
	Elevation  float64
	Distance   float64
	LandCover  float64
	Vegetation float64
}

// DefaultVulnerabilityWeights returns the production weights.
func DefaultVulnerabilityWeights() VulnerabilityWeights {
	return VulnerabilityWeights{Elevation: 0.3, Distance: 0.3, LandCover: 0.2, Vegetation: 0.2}
}

// Compose returns the 0–100 vulnerability index for a parcel.
func (w VulnerabilityWeights) Compose(s SiteFactors, mangScore int) int {
	v := w.Elevation*Clamp(s.Elevation) +
		w.Distance*Clamp(s.Distance) +
		w.LandCover*Clamp(s.LandCover) +
		w.Vegetation*Clamp(float64(mangScore))
	return Round(Clamp(v))
}
