package openai

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

const visionPrompt = `You are analyzing satellite images for mangrove loss detection.

Compare the BEFORE image (first) with the AFTER image (second) and report:
1. Whether you see mangrove or seagrass loss between them (yes/no)
2. Your confidence: Low, Medium or High
3. A one line description of the change
4. A MangScore between 0 and 1, where 0 is complete loss and 1 is no loss

Respond in this exact JSON format:
{
  "loss": "yes" or "no",
  "confidence": "Low", "Medium", or "High",
  "summary": "your one-line description",
  "aiMangScore": your_score_as_number
}`

// neutralAIScore is used when the reply carries no usable score.
const neutralAIScore = 0.5

// VisionAnalyzer implements domain.VisionAnalyzer with a multimodal model.
type VisionAnalyzer struct {
	client *Client
	model  string
}

// NewVisionAnalyzer creates an analyzer using model, e.g. gpt-4o.
func NewVisionAnalyzer(client *Client, model string) *VisionAnalyzer {
	return &VisionAnalyzer{client: client, model: model}
}

// AnalyzeVegetation sends both images in one message and parses the verdict.
func (v *VisionAnalyzer) AnalyzeVegetation(ctx context.Context, before, after domain.Image) (domain.VisionReport, error) {
	reply, err := v.client.complete(ctx, chatRequest{
		Model: v.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL(before), Detail: "high"}},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL(after), Detail: "high"}},
			},
		}},
		MaxTokens:   500,
		Temperature: 0.1,
	})
	if err != nil {
		return domain.VisionReport{}, err
	}
	return parseVisionReply(reply), nil
}

type visionReply struct {
	Loss        string   `json:"loss"`
	Confidence  string   `json:"confidence"`
	Summary     string   `json:"summary"`
	AIMangScore *float64 `json:"aiMangScore"`
}

// parseVisionReply never fails: unstructured replies are read leniently.
func parseVisionReply(reply string) domain.VisionReport {
	var r visionReply
	if err := extractJSON(reply, &r); err != nil {
		verdict := domain.VerdictNo
		if strings.Contains(strings.ToLower(reply), "yes") {
			verdict = domain.VerdictYes
		}
		return domain.VisionReport{
			Verdict:    verdict,
			Confidence: domain.ConfidenceMedium,
			Summary:    truncateRunes(reply, 100),
			AIScore:    neutralAIScore,
		}
	}

	report := domain.VisionReport{
		Verdict:    domain.VerdictNo,
		Confidence: domain.ParseConfidence(r.Confidence),
		Summary:    strings.TrimSpace(r.Summary),
		AIScore:    neutralAIScore,
	}
	if strings.EqualFold(strings.TrimSpace(r.Loss), "yes") {
		report.Verdict = domain.VerdictYes
	}
	if r.AIMangScore != nil {
		report.AIScore = domain.Clamp01(*r.AIMangScore)
	}
	return report
}

func dataURL(img domain.Image) string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
