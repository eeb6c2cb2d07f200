package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"

	"github.com/domodwyer/mailyak/v3"
)

// ErrNotConfigured is returned by Send when no SMTP host is configured.
var ErrNotConfigured = errors.New("email: smtp is not configured")

// Config holds SMTP configuration for sending email.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	// EnvelopeFrom is the mailbox the relay accepts mail from. When set, the
	// message From address moves to Reply-To.
	EnvelopeFrom string
}

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a plain-text email with optional attachments.
type Message struct {
	From        mail.Address
	To          []mail.Address
	Cc          []mail.Address
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Sender sends email via SMTP.
type Sender struct {
	cfg Config
}

var _ Mailer = (*Sender)(nil)

// NewSender creates a new email Sender.
func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg}
}

// Enabled returns true if SMTP is configured.
func (s *Sender) Enabled() bool {
	return s.cfg.Host != ""
}

// Send delivers msg to every To and Cc recipient.
func (s *Sender) Send(ctx context.Context, msg *Message) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return errors.New("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := s.client()
	if err != nil {
		return err
	}
	s.compose(m, msg)
	if err := m.Send(); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

// client picks implicit TLS for port 465. Everything else connects in
// plaintext and upgrades with STARTTLS when the server offers it.
func (s *Sender) client() (*mailyak.MailYak, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	if s.cfg.Port == 465 {
		m, err := mailyak.NewWithTLS(addr, auth, &tls.Config{ServerName: s.cfg.Host})
		if err != nil {
			return nil, fmt.Errorf("email: tls client: %w", err)
		}
		return m, nil
	}
	return mailyak.New(addr, auth), nil
}

func (s *Sender) compose(m *mailyak.MailYak, msg *Message) {
	if s.cfg.EnvelopeFrom != "" && s.cfg.EnvelopeFrom != msg.From.Address {
		m.From(s.cfg.EnvelopeFrom)
		m.ReplyTo(msg.From.Address)
	} else {
		m.From(msg.From.Address)
	}
	m.FromName(msg.From.Name)
	m.To(addresses(msg.To)...)
	if len(msg.Cc) > 0 {
		m.Cc(addresses(msg.Cc)...)
	}
	m.Subject(msg.Subject)
	m.Plain().Set(msg.Body)

	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		m.AttachWithMimeType(a.Name, bytes.NewReader(a.Data), ct)
	}
}

// Build renders msg as the MIME message Send would deliver.
func Build(cfg Config, msg *Message) ([]byte, error) {
	m := mailyak.New(net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), nil)
	(&Sender{cfg: cfg}).compose(m, msg)
	buf, err := m.MimeBuf()
	if err != nil {
		return nil, fmt.Errorf("email: build: %w", err)
	}
	return buf.Bytes(), nil
}

func addresses(list []mail.Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}
