// Package dispatch composes the outbound notification and hands it to the
// SMTP relay.
//
// The pipeline depends only on the Dispatcher interface; the SMTP
// implementation is the one external collaborator with network access.
// Transport details (TLS handshake, SMTP framing, timeouts) belong to the
// mail library, not to this package.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/quartzclinique/formgate/config"
)

// Message is one composed submission, ready for dispatch. All field values
// are already sanitized; composition does no further cleaning.
type Message struct {
	Name     string
	Phone    string
	Email    string
	Service  string
	Location string
	Body     string

	// ClientIP is the submitter's network address. It is embedded in the
	// outbound message on purpose: the recipient investigates abuse.
	ClientIP string

	// Received is when the submission arrived.
	Received time.Time
}

// Compose renders the fixed plain-text body the recipient expects.
func (m *Message) Compose() string {
	var b strings.Builder
	b.WriteString("Quartz Clinique Partnership Application\n\n")
	fmt.Fprintf(&b, "Name     : %s\n", m.Name)
	fmt.Fprintf(&b, "Phone    : %s\n", m.Phone)
	fmt.Fprintf(&b, "Email    : %s\n", m.Email)
	fmt.Fprintf(&b, "Service  : %s\n", m.Service)
	fmt.Fprintf(&b, "Location : %s\n", m.Location)
	if m.Body != "" {
		fmt.Fprintf(&b, "Message  : %s\n", m.Body)
	}
	fmt.Fprintf(&b, "IP       : %s\n", m.ClientIP)
	fmt.Fprintf(&b, "Date     : %s\n", m.Received.Format("02.01.2006 15:04:05"))
	return b.String()
}

// ReplyName is the Reply-To display name, falling back when the submitter
// left no usable name.
func (m *Message) ReplyName() string {
	if m.Name != "" {
		return m.Name
	}
	return "Form User"
}

// Dispatcher transmits a composed message. Implementations report failure
// through the returned error only; the pipeline never retries.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTP dispatches through the configured mail relay over implicit TLS.
type SMTP struct {
	relay config.Relay
}

// NewSMTP creates a dispatcher for the given relay. The relay must have
// been checked for completeness first; Send assumes credentials exist.
func NewSMTP(relay config.Relay) *SMTP {
	return &SMTP{relay: relay}
}

func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	m := gomail.NewMsg(gomail.WithCharset(gomail.CharsetUTF8))

	if err := m.FromFormat(s.relay.FromName, s.relay.FromEmail); err != nil {
		return fmt.Errorf("setting from address: %w", err)
	}
	if err := m.To(s.relay.ToEmail); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}
	if s.relay.BCC != "" {
		if err := m.Bcc(s.relay.BCC); err != nil {
			return fmt.Errorf("setting bcc address: %w", err)
		}
	}
	if err := m.ReplyToFormat(msg.ReplyName(), msg.Email); err != nil {
		return fmt.Errorf("setting reply-to address: %w", err)
	}

	m.Subject(s.relay.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Compose())

	client, err := gomail.NewClient(s.relay.Host,
		gomail.WithPort(s.relay.Port),
		gomail.WithSSL(),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.relay.Username),
		gomail.WithPassword(s.relay.Password),
	)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}
