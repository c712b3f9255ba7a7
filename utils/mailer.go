package utils

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"time"

	"gopkg.in/gomail.v2"
)

type EmailData struct {
	Subject   string
	To        []string
	Template  string
	Data      interface{}
	Year      int
	FromName  string
	FromEmail string
}

// Embedded email templates
var emailTemplates = map[string]string{
	"needs_attention": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; }
        .reason { font-size: 15px; font-weight: bold; color: #e74c3c; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Sequence Needs Attention</h2>
    </div>

    <div class="content">
        <p>Hello,</p>
        <p>Delivery for <strong>{{.LeadEmail}}</strong> (sequence #{{.SequenceID}}) hit a permanent provider error and will not retry on its own:</p>

        <div class="reason">{{.Reason}}</div>

        <p>The sequence keeps its current status; fix the underlying issue and resume delivery from the dashboard.</p>
    </div>

    <div class="footer">
        <p>© {{.Year}} Reachly. All rights reserved.</p>
    </div>
</body>
</html>`,
}

// AlertMailer sends operator notifications when a sequence is flagged
// needs_attention. Implements the orchestrator's Alerter surface. Sends are
// fire-and-forget: an unreachable SMTP server must never affect delivery
// state.
type AlertMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	AlertTo   string
	Logger    *log.Logger
}

func (a *AlertMailer) SequenceNeedsAttention(tenantID uint, leadEmail string, sequenceID uint, reason string) {
	if a.AlertTo == "" || a.Host == "" {
		return
	}
	go func() {
		err := a.send(EmailData{
			Subject:  fmt.Sprintf("Sequence #%d needs attention", sequenceID),
			To:       []string{a.AlertTo},
			Template: "needs_attention",
			Year:     time.Now().Year(),
			Data: struct {
				Subject    string
				LeadEmail  string
				SequenceID uint
				Reason     string
				Year       int
			}{
				Subject:    fmt.Sprintf("Sequence #%d needs attention", sequenceID),
				LeadEmail:  leadEmail,
				SequenceID: sequenceID,
				Reason:     reason,
				Year:       time.Now().Year(),
			},
		})
		if err != nil && a.Logger != nil {
			a.Logger.Printf("ALERT: failed to send needs-attention mail for sequence %d: %v", sequenceID, err)
		}
	}()
}

func (a *AlertMailer) send(data EmailData) error {
	tmplContent, ok := emailTemplates[data.Template]
	if !ok {
		return fmt.Errorf("template '%s' not found", data.Template)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("error parsing template: %v", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("error executing template: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("Reachly Alerts <%s>", a.FromEmail))
	m.SetHeader("To", data.To...)
	m.SetHeader("Subject", data.Subject)
	m.SetBody("text/html", body.String())

	d := gomail.NewDialer(a.Host, a.Port, a.Username, a.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	return nil
}
