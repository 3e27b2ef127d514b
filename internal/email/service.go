// Package email sends account mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/smtp"
	"strings"
	texttemplate "text/template"

	"github.com/google/uuid"
)

const appName = "MAD CRM"

// ErrNotConfigured is returned when SMTP settings are missing.
var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Message is one mail with an HTML body and a plain text alternative.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type Service struct {
	config   Config
	server   string
	auth     smtp.Auth
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	boundary func() string
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config:   config,
		server:   config.Host + ":" + config.Port,
		auth:     auth,
		send:     smtp.SendMail,
		boundary: func() string { return "madcrm-" + uuid.NewString() },
	}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) Send(m Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(m.To) == 0 {
		return errors.New("email has no recipients")
	}
	if err := s.send(s.server, s.auth, s.config.From, m.To, s.encode(m)); err != nil {
		return fmt.Errorf("send mail to %s: %w", strings.Join(m.To, ", "), err)
	}
	return nil
}

func (s *Service) encode(m Message) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	boundary := s.boundary()

	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("To", strings.Join(m.To, ", "))
	header("From", from)
	header("Subject", m.Subject)
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	part := func(contentType, body string) {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		header("Content-Type", contentType+"; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
		b.WriteString("\r\n")
	}
	part("text/plain", m.Text)
	part("text/html", m.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

type passwordResetData struct {
	AppName  string
	UserName string
	ResetURL string
	Minutes  int
}

// SendPasswordResetEmail mails the reset link produced by forget password.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string, validMinutes int) error {
	if strings.TrimSpace(userName) == "" {
		userName = "User"
	}
	data := passwordResetData{AppName: appName, UserName: userName, ResetURL: resetURL, Minutes: validMinutes}

	var html, text bytes.Buffer
	if err := passwordResetHTML.Execute(&html, data); err != nil {
		return fmt.Errorf("render password reset html: %w", err)
	}
	if err := passwordResetText.Execute(&text, data); err != nil {
		return fmt.Errorf("render password reset text: %w", err)
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: "Reset your password | " + appName,
		HTML:    html.String(),
		Text:    text.String(),
	})
}

var passwordResetText = texttemplate.Must(texttemplate.New("password-reset.txt").Parse(`Hi {{.UserName}},

We received a request to reset your {{.AppName}} password.
Open this link to choose a new one:

{{.ResetURL}}

The link expires in {{.Minutes}} minutes and works once.
If you did not ask for a reset, ignore this mail; your password stays unchanged.
`))

var passwordResetHTML = htmltemplate.Must(htmltemplate.New("password-reset.html").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>Reset your {{.AppName}} password</title>
</head>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 560px; margin: 0 auto; padding: 16px;">
  <h2 style="border-bottom: 2px solid #e63946; padding-bottom: 8px;">{{.AppName}}</h2>
  <p>Hi {{.UserName}},</p>
  <p>We received a request to reset your password. Use the button below to choose a new one.</p>
  <p><a href="{{.ResetURL}}" style="display: inline-block; padding: 10px 20px; background: #e63946; color: #fff; text-decoration: none; border-radius: 4px;">Reset password</a></p>
  <p>Or paste this link into your browser:<br><span style="word-break: break-all;">{{.ResetURL}}</span></p>
  <p style="background: #fff3cd; padding: 10px; border-radius: 4px;">The link expires in {{.Minutes}} minutes and works once.</p>
  <p style="font-size: 12px; color: #666;">If you did not ask for a reset, ignore this mail; your password stays unchanged.</p>
</body>
</html>`))
