package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
)

var _ Mailer = (*SMTPMailer)(nil)

// SMTPMailer sends mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	account  string
	password string
	from     string
}

// NewSMTPMailer creates a Mailer for the given relay. Account and password
// may be empty for relays that accept unauthenticated submission.
func NewSMTPMailer(host, port, account, password, from string) (*SMTPMailer, error) {
	if host == "" || port == "" {
		return nil, errors.New("[NewSMTPMailer] host and port are required")
	}
	if from == "" {
		return nil, errors.New("[NewSMTPMailer] from address is required")
	}
	return &SMTPMailer{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		from:     from,
	}, nil
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.account != "" {
		auth = smtp.PlainAuth("", m.account, m.password, m.host)
	}

	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg.String())); err != nil {
		return errors.Wrapf(err, "[SMTPMailer.Send] sending to %s", to)
	}
	return nil
}
