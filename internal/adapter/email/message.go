package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
)

// SenderName is the display name on outgoing alerts.
const SenderName = "Coastal Guard AI"

// alertContent is what both bodies render.
type alertContent struct {
	Name          string
	Location      string
	RiskScore     int
	Band          string
	TimeWindowHrs int
	Why           string
	AlertMessage  string
}

func newAlertContent(user domain.User, alert domain.RiskEvent, sms string) alertContent {
	name := user.Name
	if name == "" {
		name = "there"
	}
	return alertContent{
		Name:          name,
		Location:      alert.Location,
		RiskScore:     alert.RiskScore,
		Band:          string(alert.Band),
		TimeWindowHrs: alert.TimeWindowHrs,
		Why:           alert.Why,
		AlertMessage:  sms,
	}
}

// Subject returns the alert email subject.
func Subject(location string) string {
	return fmt.Sprintf("🚨 HIGH RISK ALERT for %s - Coastal Guard AI", location)
}

func renderText(c alertContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nURGENT: HIGH COASTAL RISK DETECTED\n\n", c.Name)
	fmt.Fprintf(&b, "Location: %s\nRisk Score: %d/100\nRisk Level: %s\nTime Window: %dh\n",
		c.Location, c.RiskScore, c.Band, c.TimeWindowHrs)
	fmt.Fprintf(&b, "\nReason: %s\n\nAlert Message: %s\n\n", c.Why, c.AlertMessage)
	b.WriteString("Please take necessary precautions and stay safe.\n\nThanks,\nCoastal Guard AI Team\n")
	return b.String()
}

var htmlBody = template.Must(template.New("alert").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: #1e3a8a; color: white; padding: 20px; border-radius: 10px 10px 0 0;">
    <h1 style="margin: 0; font-size: 24px;">🚨 HIGH RISK ALERT</h1>
    <p style="margin: 5px 0 0 0;">Coastal Guard AI Early Warning System</p>
  </div>
  <div style="background: #f8fafc; padding: 20px; border: 1px solid #e2e8f0;">
    <h2 style="color: #1e293b; margin-top: 0;">Hello {{.Name}},</h2>
    <p style="color: #dc2626;"><strong>URGENT: High coastal risk detected.</strong></p>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td><strong>Location:</strong></td><td>{{.Location}}</td></tr>
      <tr><td><strong>Risk Score:</strong></td><td style="color: #dc2626;">{{.RiskScore}}/100</td></tr>
      <tr><td><strong>Risk Level:</strong></td><td>{{upper .Band}}</td></tr>
      <tr><td><strong>Time Window:</strong></td><td>{{.TimeWindowHrs}} hours</td></tr>
      <tr><td style="vertical-align: top;"><strong>Reason:</strong></td><td>{{.Why}}</td></tr>
    </table>
    <h4 style="color: #1e40af;">📱 Share this alert:</h4>
    <p style="background: white; padding: 10px; border: 1px solid #d1d5db; font-family: monospace;">{{.AlertMessage}}</p>
    <ul>
      <li>Avoid coastal areas and beaches</li>
      <li>Stay informed about weather conditions</li>
      <li>Follow local authority instructions</li>
      <li>Keep emergency contacts ready</li>
    </ul>
  </div>
  <div style="background: #1e293b; color: white; padding: 15px; border-radius: 0 0 10px 10px; text-align: center;">
    Stay safe,<br><strong>Coastal Guard AI Team</strong>
  </div>
</div>
`))

func renderHTML(c alertContent) (string, error) {
	var b bytes.Buffer
	if err := htmlBody.Execute(&b, c); err != nil {
		return "", fmt.Errorf("render alert html: %w", err)
	}
	return b.String(), nil
}
