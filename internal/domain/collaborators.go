package domain

import "context"

// Image is a loaded image payload.
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageLoader resolves an image reference to its bytes.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (Image, error)
}

// VisionAnalyzer compares a before/after image pair for vegetation loss.
type VisionAnalyzer interface {
	AnalyzeVegetation(ctx context.Context, before, after Image) (VisionReport, error)
}

// GreennessEstimator measures the drop in green cover between two images,
// as a percentage of the before image's green cover.
type GreennessEstimator interface {
	EstimateDropPct(ctx context.Context, before, after Image) (float64, error)
}

// EmailResult is the outcome reported by the email collaborator.
type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// AlertMailer escalates a user alert by email. Implementations report
// failures in the result instead of returning errors.
type AlertMailer interface {
	SendHighRiskAlert(ctx context.Context, user User, alert RiskEvent) EmailResult
}
