package goIAM

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goIAM/internal/audit"
)

// ActiveUser is the identity carried by a verified access token. Transports
// attach it to the request after [Engine.VerifyAccess].
type ActiveUser struct {
	Subject string
	Email   string
	Role    string
}

// TokenPair is an issued access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Profile is the account view returned by [Engine.GetMe].
type Profile struct {
	ID               string
	Username         string
	Email            string
	Role             string
	IsEmailConfirmed bool
	IsTfaEnabled     bool
	CreatedAt        time.Time
}

// RegisterInput is the sign-up payload. An empty Role defaults to USER; ADMIN
// cannot be self-assigned.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// LoginInput is the sign-in payload. TfaCode is only read for accounts with
// TOTP enabled.
type LoginInput struct {
	Email    string
	Password string
	TfaCode  string
}

// UpdateDetailsInput holds the editable profile fields.
type UpdateDetailsInput struct {
	Username string
}

// TOTPProvision is a freshly enabled TOTP secret and its otpauth URI. Render
// the URI as a QR code for authenticator apps.
type TOTPProvision struct {
	Secret string
	URI    string
}

// MailMessage is one outbound mail.
type MailMessage struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers outbound mail. Send is called with a context bounded by
// Config.Mail.SendTimeout.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailerFunc adapts a function to [Mailer].
type MailerFunc func(ctx context.Context, msg MailMessage) error

// Send calls f.
func (f MailerFunc) Send(ctx context.Context, msg MailMessage) error { return f(ctx, msg) }

// ReuseEvent describes a detected refresh-token replay. The account's refresh
// session has already been cleared when it is delivered.
type ReuseEvent struct {
	AccountID  string
	Email      string
	IP         string
	DetectedAt time.Time
}

// SecurityResponder consumes security signals. OnRefreshReuse is called
// synchronously from Refresh and should return quickly.
type SecurityResponder interface {
	OnRefreshReuse(ctx context.Context, event ReuseEvent)
}

// SecurityResponderFunc adapts a function to [SecurityResponder].
type SecurityResponderFunc func(ctx context.Context, event ReuseEvent)

// OnRefreshReuse calls f.
func (f SecurityResponderFunc) OnRefreshReuse(ctx context.Context, event ReuseEvent) { f(ctx, event) }

// AuditEvent is one structured audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// ChannelSink buffers audit events on a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditEventRegister          = internalaudit.EventRegister
	AuditEventConfirmEmail      = internalaudit.EventConfirmEmail
	AuditEventLoginSuccess      = internalaudit.EventLoginSuccess
	AuditEventLoginFailure      = internalaudit.EventLoginFailure
	AuditEventLoginRateLimited  = internalaudit.EventLoginRateLimited
	AuditEventRefreshSuccess    = internalaudit.EventRefreshSuccess
	AuditEventRefreshReuse      = internalaudit.EventRefreshReuse
	AuditEventRefreshFailure    = internalaudit.EventRefreshFailure
	AuditEventForgotPassword    = internalaudit.EventForgotPassword
	AuditEventResetPassword     = internalaudit.EventResetPassword
	AuditEventUpdatePassword    = internalaudit.EventUpdatePassword
	AuditEventUpdateDetails     = internalaudit.EventUpdateDetails
	AuditEventTOTPEnabled       = internalaudit.EventTOTPEnabled
	AuditEventLogout            = internalaudit.EventLogout
	AuditEventMailDeliveryFault = internalaudit.EventMailDeliveryFault
)
