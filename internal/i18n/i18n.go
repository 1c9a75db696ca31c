// Package i18n renders alert texts from an embedded, per-language template
// table. SMS texts are localized; dashboard texts are always English.
package i18n

import (
	_ "embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Template keys.
const (
	KeyRiskHigh   = "riskHigh"
	KeyRiskMedium = "riskMedium"
	KeyStaySafe   = "staySafe"
	KeyDashboard  = "dashboard"
)

// SimulationSuffix marks texts produced in simulation mode.
const SimulationSuffix = " (SIM)"

//go:embed locales.yaml
var localesYAML []byte

var supported = []struct {
	lang domain.Language
	tag  language.Tag
}{
	{domain.LangEnglish, language.English},
	{domain.LangHindi, language.Hindi},
	{domain.LangGujarati, language.Gujarati},
}

// Catalog holds the template table. It is safe for concurrent use.
type Catalog struct {
	templates map[domain.Language]map[string]string
	matcher   language.Matcher
}

// NewCatalog parses the embedded template table.
func NewCatalog() (*Catalog, error) {
	return parseCatalog(localesYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	raw := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse locales: %w", err)
	}

	templates := make(map[domain.Language]map[string]string, len(raw))
	for code, msgs := range raw {
		templates[domain.Language(code)] = msgs
	}
	en, ok := templates[domain.LangEnglish]
	if !ok {
		return nil, fmt.Errorf("locales: missing %q table", domain.LangEnglish)
	}
	for _, key := range []string{KeyRiskHigh, KeyRiskMedium, KeyStaySafe, KeyDashboard} {
		if en[key] == "" {
			return nil, fmt.Errorf("locales: english table missing %q", key)
		}
	}

	tags := make([]language.Tag, len(supported))
	for i, s := range supported {
		tags[i] = s.tag
	}
	return &Catalog{templates: templates, matcher: language.NewMatcher(tags)}, nil
}

// Resolve maps a language code such as "hi" or "gu-IN" to a supported
// language. Unknown, related or malformed codes resolve to English.
func (c *Catalog) Resolve(code string) domain.Language {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.LangEnglish
	}
	tag, err := language.Parse(code)
	if err != nil {
		return domain.LangEnglish
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf < language.High {
		return domain.LangEnglish
	}
	// The matcher pairs related languages (mr, sa to hi); only the same
	// base language counts.
	want, _ := tag.Base()
	got, _ := supported[idx].tag.Base()
	if want != got {
		return domain.LangEnglish
	}
	return supported[idx].lang
}

// Template returns the template for key in lang, falling back to English.
func (c *Catalog) Template(lang domain.Language, key string) string {
	if t, ok := c.templates[lang][key]; ok && t != "" {
		return t
	}
	return c.templates[domain.LangEnglish][key]
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Format substitutes {name} placeholders from vars. Placeholders without a
// value are left as they are.
func Format(template string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// SMS renders the short alert text. Red uses the high risk phrase, every
// other band the medium one.
func (c *Catalog) SMS(lang domain.Language, band domain.Band, location string, hours int, why string, simulation bool) string {
	key := KeyRiskMedium
	if band == domain.BandRed {
		key = KeyRiskHigh
	}
	msg := Format(c.Template(lang, key), map[string]string{
		"village": location,
		"hours":   strconv.Itoa(hours),
		"why":     why,
	})
	msg += " " + c.Template(lang, KeyStaySafe)
	if simulation {
		msg += SimulationSuffix
	}
	return msg
}

// Dashboard renders the English dashboard line.
func (c *Catalog) Dashboard(band domain.Band, score int, location string, hours int, why string) string {
	return Format(c.Template(domain.LangEnglish, KeyDashboard), map[string]string{
		"band":    strings.ToUpper(string(band)),
		"score":   strconv.Itoa(score),
		"village": location,
		"hours":   strconv.Itoa(hours),
		"why":     why,
	})
}
