package email

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Sender sends plain text email over SMTP.
type Sender struct {
	host     string
	port     int
	from     string
	password string
}

// NewSender creates an SMTP email sender.
func NewSender(host string, port int, from, password string) *Sender {
	return &Sender{
		host:     host,
		port:     port,
		from:     from,
		password: password,
	}
}

// Send delivers a plain text email to a single recipient.
func (s *Sender) Send(to, subject, body string) error {
	if s.host == "" {
		return fmt.Errorf("email sender is not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.host, s.port, s.from, s.password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %v", err)
	}
	return nil
}
