package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPTransport delivers messages via SMTP using the go-mail library.
type SMTPTransport struct {
	config SMTPConfig
}

// NewSMTPTransport creates a new SMTPTransport with the given configuration.
func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	return &SMTPTransport{config: config}
}

// Name returns the transport identifier.
func (t *SMTPTransport) Name() string { return "smtp" }

// Open dials the SMTP server and returns a session bound to that connection.
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	if t.config.Host == "" {
		return nil, errors.New("smtp host is not configured")
	}

	opts := []mail.Option{
		mail.WithPort(t.config.Port),
		mail.WithTLSPolicy(tlsPolicyFromEncryption(t.config.Encryption)),
	}
	if t.config.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(t.config.Timeout))
	}
	if t.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.config.Username),
			mail.WithPassword(t.config.Password),
		)
	}

	c, err := mail.NewClient(t.config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	if err := c.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", t.config.Host, t.config.Port, err)
	}
	return &smtpSession{client: c, from: t.config.FromAddr}, nil
}

type smtpSession struct {
	client *mail.Client
	from   string
}

// Send delivers msg over the open connection.
func (s *smtpSession) Send(_ context.Context, msg Message) error {
	m, err := buildMessage(s.from, msg)
	if err != nil {
		return err
	}
	return s.client.Send(m)
}

// Close ends the SMTP session.
func (s *smtpSession) Close() error {
	return s.client.Close()
}

// buildMessage renders msg into a go-mail message with a plain-text body and
// an HTML alternative.
func buildMessage(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	var err error
	if msg.To.Name != "" {
		err = m.AddToFormat(msg.To.Name, msg.To.Address)
	} else {
		err = m.AddTo(msg.To.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To.Address, err)
	}

	subject := buildSubject(msg.Subject)
	m.Subject(subject)

	// Plain-text fallback for clients that don't render HTML.
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if html, err := buildEmailHTML(subject, msg.To.Name, msg.Body); err == nil {
		m.AddAlternativeString(mail.TypeTextHTML, html)
	}
	return m, nil
}

// tlsPolicyFromEncryption converts the encryption string to a go-mail TLSPolicy.
func tlsPolicyFromEncryption(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}
