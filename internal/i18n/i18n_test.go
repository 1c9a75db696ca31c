package i18n

import (
	"testing"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog()
	require.NoError(t, err)
	return c
}

func TestFormat(t *testing.T) {
	got := Format("{a} and {b} but not {c}", map[string]string{"a": "x", "b": "y"})
	assert.Equal(t, "x and y but not {c}", got)

	assert.Equal(t, "{ spaced }", Format("{ spaced }", map[string]string{"spaced": "no"}))
	assert.Equal(t, "plain", Format("plain", nil))
}

func TestResolve(t *testing.T) {
	c := newCatalog(t)
	tests := map[string]domain.Language{
		"en":    domain.LangEnglish,
		"hi":    domain.LangHindi,
		"gu":    domain.LangGujarati,
		"gu-IN": domain.LangGujarati,
		"fr":    domain.LangEnglish,
		"mr":    domain.LangEnglish,
		"sa":    domain.LangEnglish,
		"ur":    domain.LangEnglish,
		"bn":    domain.LangEnglish,
		"hi-IN": domain.LangHindi,
		"EN-gb": domain.LangEnglish,
		"":      domain.LangEnglish,
		"@@":    domain.LangEnglish,
	}
	for code, want := range tests {
		assert.Equal(t, want, c.Resolve(code), "code %q", code)
	}
}

func TestSMS(t *testing.T) {
	c := newCatalog(t)

	t.Run("english red", func(t *testing.T) {
		got := c.SMS(domain.LangEnglish, domain.BandRed, "Kandla", 12, "heavy rain", false)
		assert.Equal(t, "High risk at Kandla next 12h: heavy rain. Stay safe. Avoid shore.", got)
	})

	t.Run("english yellow uses medium phrase", func(t *testing.T) {
		got := c.SMS(domain.LangEnglish, domain.BandYellow, "Kandla", 6, "high tide", false)
		assert.Equal(t, "Medium risk at Kandla next 6h: high tide. Stay safe. Avoid shore.", got)
	})

	t.Run("hindi", func(t *testing.T) {
		got := c.SMS(domain.LangHindi, domain.BandRed, "Kandla", 12, "heavy rain", false)
		assert.Equal(t, "Kandla में अगले 12 घंटे में उच्च जोखिम: heavy rain. सुरक्षित रहें। तट से दूर रहें।", got)
	})

	t.Run("gujarati simulation", func(t *testing.T) {
		got := c.SMS(domain.LangGujarati, domain.BandYellow, "Mundra", 24, "high tide", true)
		assert.Equal(t, "Mundra માં આગામી 24 કલાકમાં મધ્યમ જોખમ: high tide. સાવચેત રહો. કિનારા થી દૂર રહો. (SIM)", got)
	})

	t.Run("unknown language falls back to english", func(t *testing.T) {
		got := c.SMS(domain.Language("fr"), domain.BandRed, "Kandla", 12, "heavy rain", false)
		assert.Equal(t, "High risk at Kandla next 12h: heavy rain. Stay safe. Avoid shore.", got)
	})
}

func TestDashboard(t *testing.T) {
	c := newCatalog(t)
	got := c.Dashboard(domain.BandYellow, 65, "Kandla", 12, "heavy rain + high vulnerability")
	assert.Equal(t, "YELLOW: Risk 65/100 for Kandla (12h). Reason: heavy rain + high vulnerability.", got)
}

func TestParseCatalog_Errors(t *testing.T) {
	_, err := parseCatalog([]byte("hi:\n  riskHigh: x\n"))
	require.Error(t, err)

	_, err = parseCatalog([]byte("en:\n  riskHigh: x\n"))
	require.Error(t, err)

	_, err = parseCatalog([]byte(":::"))
	require.Error(t, err)
}

func TestTemplate_MissingKeyFallsBack(t *testing.T) {
	c, err := parseCatalog([]byte(`
en:
  riskHigh: "H {village}"
  riskMedium: "M {village}"
  staySafe: "S"
  dashboard: "D"
hi:
  riskHigh: "HI {village}"
`))
	require.NoError(t, err)
	assert.Equal(t, "HI {village}", c.Template(domain.LangHindi, KeyRiskHigh))
	assert.Equal(t, "S", c.Template(domain.LangHindi, KeyStaySafe))
}
