// Package mailer provides goIAM.Mailer implementations: SMTP delivery
// through github.com/wneessen/go-mail and a writer mailer for local runs.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/internal/logging"
	"github.com/wneessen/go-mail"
)

// TLS policies accepted by SMTPConfig.TLS.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

// SMTPConfig describes the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of TLSMandatory (default), TLSOpportunistic or TLSNone.
	TLS     string
	Timeout time.Duration
}

// SMTP delivers mail through one relay. Safe for concurrent use.
type SMTP struct {
	client *mail.Client
	logger *slog.Logger
}

var _ goIAM.Mailer = (*SMTP)(nil)

// NewSMTP validates cfg and prepares a client. No connection is made until
// the first Send.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) (*SMTP, error) {
	const op = "mailer.NewSMTP"

	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("%s: host is required", op)
	}

	opts := []mail.Option{}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	switch strings.ToLower(cfg.TLS) {
	case "", TLSMandatory:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case TLSOpportunistic:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case TLSNone:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("%s: unknown TLS policy %q", op, cfg.TLS)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &SMTP{client: client, logger: logger}, nil
}

// Send dials the relay and delivers msg.
func (s *SMTP) Send(ctx context.Context, msg goIAM.MailMessage) error {
	const op = "mailer.SMTP.Send"

	m, err := buildMessage(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "smtp delivery failed", slog.String("subject", msg.Subject), logging.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.DebugContext(ctx, "mail sent", slog.String("subject", msg.Subject))
	return nil
}

func buildMessage(msg goIAM.MailMessage) (*mail.Msg, error) {
	if msg.To == "" {
		return nil, errors.New("recipient is required")
	}

	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

// Writer prints every message to w. It is meant for local runs where the
// links need to be visible; it writes tokens in clear text.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ goIAM.Mailer = (*Writer)(nil)

// NewWriter returns a Writer mailer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Send(ctx context.Context, msg goIAM.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintf(w.w, "From: %s\nTo: %s\nSubject: %s\n\n%s\n\n", msg.From, msg.To, msg.Subject, msg.Text)
	return err
}
