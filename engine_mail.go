package goIAM

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// linkBase prefers Config.PublicBaseURL over the per-call value.
func (e *Engine) linkBase(baseURL string) string {
	if e.config.PublicBaseURL != "" {
		baseURL = e.config.PublicBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ConfirmationURL is the link mailed after registration.
func ConfirmationURL(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// ResetURL is the link mailed by ForgotPassword.
func ResetURL(baseURL, path, token string) string {
	return strings.TrimRight(baseURL, "/") + strings.TrimRight(path, "/") + "/" + url.PathEscape(token)
}

func (e *Engine) sendConfirmation(ctx context.Context, to, baseURL, token string) error {
	link := ConfirmationURL(e.linkBase(baseURL), e.config.EmailConfirmation.Path, token)
	return e.send(ctx, MailMessage{
		From:    e.config.Mail.From,
		To:      to,
		Subject: e.config.EmailConfirmation.Subject,
		Text: fmt.Sprintf("You are receiving this email because you need to confirm your email address. "+
			"Please make a GET request to: \n\n %s", link),
		HTML: fmt.Sprintf(`Click <a href="%s">here</a> to confirm your account!`, html.EscapeString(link)),
	})
}

func (e *Engine) sendReset(ctx context.Context, to, baseURL, token string) error {
	link := ResetURL(e.linkBase(baseURL), e.config.PasswordReset.Path, token)
	return e.send(ctx, MailMessage{
		From:    e.config.Mail.From,
		To:      to,
		Subject: e.config.PasswordReset.Subject,
		Text: fmt.Sprintf("You are receiving this email because you (or someone else) has requested the reset of a password. "+
			"Please make a PATCH request to: \n\n %s", link),
		HTML: fmt.Sprintf(`Click <a href="%s">here</a> to reset your password!`, html.EscapeString(link)),
	})
}

func (e *Engine) send(ctx context.Context, msg MailMessage) error {
	sendCtx, cancel := context.WithTimeout(ctx, e.config.Mail.SendTimeout)
	defer cancel()
	return e.mailer.Send(sendCtx, msg)
}
