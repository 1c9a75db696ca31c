package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEnhancer struct {
	msgs  domain.Messages
	err   error
	block bool
	calls int
}

func (s *stubEnhancer) EnhanceMessages(ctx context.Context, _ Context) (domain.Messages, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return domain.Messages{}, ctx.Err()
	}
	return s.msgs, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, enh Enhancer) (*Engine, *observability.Metrics) {
	t.Helper()
	catalog, err := i18n.NewCatalog()
	require.NoError(t, err)
	m := observability.NewMetricsForTesting()
	return NewEngine(domain.DefaultRiskModel(), catalog, enh, 20*time.Millisecond, discardLogger(), m), m
}

func exampleContext() Context {
	return Context{
		Location: "Kandla",
		Hours:    12,
		Factors:  domain.RiskFactors{Rain: 80, Tide: 50, Vulnerability: 60, Exposure: 70},
		Result:   domain.RiskResult{Score: 65, Band: domain.BandYellow, Why: "heavy rain + high vulnerability + dense population"},
	}
}

var wantTemplate = domain.Messages{
	Why:       "heavy rain + high vulnerability + dense population",
	SMSShort:  "Medium risk at Kandla next 12h: heavy rain + high vulnerability + dense population. Stay safe. Avoid shore.",
	Dashboard: "YELLOW: Risk 65/100 for Kandla (12h). Reason: heavy rain + high vulnerability + dense population.",
}

func TestTemplateMessages(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	assert.Equal(t, wantTemplate, e.TemplateMessages(exampleContext()))
}

func TestMaybeEnhanceMessages_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		enh  *stubEnhancer
	}{
		{"enhancer error", &stubEnhancer{err: errors.New("503 from upstream")}},
		{"missing dashboard", &stubEnhancer{msgs: domain.Messages{Why: "w", SMSShort: "s"}}},
		{"whitespace only field", &stubEnhancer{msgs: domain.Messages{Why: "w", SMSShort: "  ", Dashboard: "d"}}},
		{"timeout", &stubEnhancer{block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, m := newTestEngine(t, tt.enh)
			got := e.MaybeEnhanceMessages(context.Background(), exampleContext())
			assert.Equal(t, wantTemplate, got)
			assert.Equal(t, 1, tt.enh.calls)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageEnhancements.WithLabelValues("template")))
		})
	}

	t.Run("no enhancer configured", func(t *testing.T) {
		e, m := newTestEngine(t, nil)
		assert.Equal(t, wantTemplate, e.MaybeEnhanceMessages(context.Background(), exampleContext()))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageEnhancements.WithLabelValues("template")))
	})
}

func TestMaybeEnhanceMessages_AcceptsCompleteReply(t *testing.T) {
	enh := &stubEnhancer{msgs: domain.Messages{
		Why:       " Heavy rain on saturated ground ",
		SMSShort:  "Kandla: heavy rain next 12h. Move boats inland.",
		Dashboard: "YELLOW 65/100 Kandla, rain-driven",
	}}
	e, m := newTestEngine(t, enh)

	got := e.MaybeEnhanceMessages(context.Background(), exampleContext())
	assert.Equal(t, "Heavy rain on saturated ground", got.Why)
	assert.Equal(t, enh.msgs.SMSShort, got.SMSShort)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageEnhancements.WithLabelValues("llm")))
}

func TestAssess_EndToEndExample(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	got := e.Assess(context.Background(), AssessInput{
		ParcelID:      "p1",
		Location:      "Kandla",
		TimeWindowHrs: 12,
		Audience:      domain.DefaultAudience(),
		Factors:       domain.RiskFactors{Rain: 80, Tide: 50, Vulnerability: 60, Exposure: 70},
	})

	assert.Equal(t, 65, got.RiskScore)
	assert.Equal(t, domain.BandYellow, got.Band)
	assert.Equal(t, wantTemplate.Why, got.Why)
	assert.Equal(t, wantTemplate.SMSShort, got.SMSShort)
	assert.Equal(t, wantTemplate.Dashboard, got.Dashboard)
	assert.Equal(t, "p1", got.ParcelID)
}
