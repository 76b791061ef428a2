// Package mailer sends notification emails over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"gopkg.in/gomail.v2"
)

var bodyTmpl = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>{{.Title}}</h2>
  <p>{{.Message}}</p>
  {{- if .URL}}
  <p><a href="{{.URL}}">Open in Farm Market</a></p>
  {{- end}}
  <hr>
  <p style="font-size: 12px; color: #777;">You can change which emails you receive in your notification settings.</p>
</body>
</html>
`))

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// sender is the subset of *gomail.Dialer used here.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPMailer struct {
	from   string
	dialer sender
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (m *SMTPMailer) SendNotification(ctx context.Context, to string, n *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := m.build(to, n)
	if err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (m *SMTPMailer) build(to string, n *model.Notification) (*gomail.Message, error) {
	body, err := RenderBody(n)
	if err != nil {
		return nil, err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/plain", n.Message)
	msg.AddAlternative("text/html", body)
	return msg, nil
}

func RenderBody(n *model.Notification) (string, error) {
	var url string
	if n.Data != nil {
		url, _ = n.Data["url"].(string)
	}
	var buf bytes.Buffer
	err := bodyTmpl.Execute(&buf, struct {
		Title   string
		Message string
		URL     string
	}{n.Title, n.Message, url})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
