package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// RunRequest is the payload of a run request message.
type RunRequest struct {
	Identifier    string            `json:"identifier"`
	TimeWindowHrs int               `json:"timeWindowHrs,omitempty"`
	Audience      []domain.Audience `json:"audience,omitempty"`
}

// Options converts the request into run options.
func (r RunRequest) Options() Options {
	return Options{TimeWindowHrs: r.TimeWindowHrs, Audience: r.Audience}
}

// DecodeRunRequest parses and validates a run request payload.
func DecodeRunRequest(data []byte) (RunRequest, error) {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return RunRequest{}, fmt.Errorf("%w: decode run request: %w", domain.ErrValidation, err)
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if err := req.Validate(); err != nil {
		return RunRequest{}, err
	}
	return req, nil
}

// Validate checks the identifier, time window, and audience values.
func (r RunRequest) Validate() error {
	if r.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", domain.ErrValidation)
	}
	if r.TimeWindowHrs < 0 {
		return fmt.Errorf("%w: timeWindowHrs must be positive", domain.ErrValidation)
	}
	for _, a := range r.Audience {
		if a != domain.AudiencePeople && a != domain.AudienceOfficials {
			return fmt.Errorf("%w: unknown audience %q", domain.ErrValidation, a)
		}
	}
	return nil
}
