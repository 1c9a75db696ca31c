package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
)

// Enhancer implements risk.Enhancer with a text model.
type Enhancer struct {
	client *Client
	model  string
}

// NewEnhancer creates an enhancer using model, e.g. gpt-4o-mini.
func NewEnhancer(client *Client, model string) *Enhancer {
	return &Enhancer{client: client, model: model}
}

// EnhanceMessages asks the model for a reason phrase and two messages. A
// reply missing any of the three is an error.
func (e *Enhancer) EnhanceMessages(ctx context.Context, in risk.Context) (domain.Messages, error) {
	reply, err := e.client.complete(ctx, chatRequest{
		Model:       e.model,
		Messages:    []chatMessage{{Role: "user", Content: enhancementPrompt(in)}},
		MaxTokens:   300,
		Temperature: 0.1,
	})
	if err != nil {
		return domain.Messages{}, err
	}

	var msgs domain.Messages
	if err := extractJSON(reply, &msgs); err != nil {
		return domain.Messages{}, fmt.Errorf("%w: parse enhancement reply: %w", domain.ErrCollaborator, err)
	}
	if !msgs.Complete() {
		return domain.Messages{}, fmt.Errorf("%w: enhancement reply is missing fields", domain.ErrCollaborator)
	}
	return msgs, nil
}

func enhancementPrompt(in risk.Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given these coastal risk factors for %s:\n", in.Location)
	fmt.Fprintf(&b, "- Rain: %.0f/100\n", in.Factors.Rain)
	fmt.Fprintf(&b, "- Tide: %.0f/100\n", in.Factors.Tide)
	fmt.Fprintf(&b, "- Vulnerability: %.0f/100\n", in.Factors.Vulnerability)
	fmt.Fprintf(&b, "- Exposure: %.0f/100\n", in.Factors.Exposure)
	fmt.Fprintf(&b, "- Risk Score: %d/100 (%s)\n", in.Result.Score, in.Result.Band)
	fmt.Fprintf(&b, "- Time Window: %d hours\n\n", in.Hours)
	b.WriteString(`Generate a crisp one-line reason and two messages. Keep factual, non-alarmist, SMS max 160 chars.

Respond in this exact JSON format:
{
  "why": "brief reason phrase",
  "smsShort": "SMS message under 160 chars",
  "dashboard": "dashboard message"
}`)
	return b.String()
}
