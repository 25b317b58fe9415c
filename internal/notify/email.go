package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
)

// SMTPConfig describes the mail relay. Email is sent only when Host, To,
// Username and Password are all set.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
	AppName  string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.To != "" && c.Username != "" && c.Password != ""
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSink sends alerts through an SMTP relay with STARTTLS and PLAIN auth.
type EmailSink struct {
	cfg      SMTPConfig
	sendMail SendMailFunc
}

// NewEmailSink returns nil when cfg is not fully configured, so the result
// can be passed straight to Config.Email.
func NewEmailSink(cfg SMTPConfig, send SendMailFunc) Sink {
	if !cfg.Configured() {
		return nil
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if send == nil {
		send = smtp.SendMail
	}
	return &EmailSink{cfg: cfg, sendMail: send}
}

func (e *EmailSink) Name() string { return "email" }

func (e *EmailSink) Subject(reportID string) string {
	return fmt.Sprintf("[%s] Critical Incident %s", e.cfg.AppName, reportID)
}

func (e *EmailSink) Send(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := e.message(p)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := e.sendMail(addr, auth, e.cfg.From, []string{e.cfg.To}, msg); err != nil {
		return fmt.Errorf("smtp %s: %w", addr, err)
	}
	return nil
}

func (e *EmailSink) message(p Payload) ([]byte, error) {
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, err
	}
	if bytes.ContainsAny([]byte(e.cfg.From+e.cfg.To), "\r\n") {
		return nil, errors.New("email addresses must not contain line breaks")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", e.cfg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", e.Subject(p.ReportID))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.Write(body)
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}
