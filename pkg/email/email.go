// Package email is the SMTP email transport spec.md §1 treats as an opaque
// non-goal beyond a Sender port. Grounded on
// original_source/server/src/common/email.hpp, which wraps a single
// send-verification-code operation over SMTP.
package email

import (
	"fmt"
	"net/smtp"
)

// Sender sends a verification code to an address.
type Sender interface {
	SendVerificationCode(to, code string) error
}

// SMTPSender sends mail via net/smtp using plain auth.
type SMTPSender struct {
	Host, Port string
	From       string
	Auth       smtp.Auth
}

// NewSMTPSender builds a sender authenticating with username/password
// against host:port.
func NewSMTPSender(host, port, from, username, password string) *SMTPSender {
	return &SMTPSender{
		Host: host, Port: port, From: from,
		Auth: smtp.PlainAuth("", username, password, host),
	}
}

// SendVerificationCode emails code to to.
func (s *SMTPSender) SendVerificationCode(to, code string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: BreezeChat verification code\r\n\r\nYour verification code is %s. It expires in 10 minutes.\r\n",
		s.From, to, code,
	))
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, s.Auth, s.From, []string{to}, msg)
}
