package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendProvider sends mail through the Resend API.
type ResendProvider struct {
	client *resend.Client
}

// NewResendProvider creates a provider. An empty apiKey leaves it
// unconfigured.
func NewResendProvider(apiKey string) *ResendProvider {
	if apiKey == "" {
		return &ResendProvider{}
	}
	return &ResendProvider{client: resend.NewClient(apiKey)}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) IsConfigured() bool { return p.client != nil }

// Send delivers req with both bodies.
func (p *ResendProvider) Send(ctx context.Context, req Request) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("resend client not initialized")
	}
	if len(req.To) == 0 {
		return "", fmt.Errorf("recipient is required")
	}
	res, err := p.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Text,
		Html:    req.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("resend send: %w", err)
	}
	return res.Id, nil
}
