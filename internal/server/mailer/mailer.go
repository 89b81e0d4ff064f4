// Package mailer renders and sends the transactional emails of the account
// lifecycle.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// Mailer is what the services depend on.
type Mailer interface {
	SendVerification(ctx context.Context, to, code string) error
	SendWelcome(ctx context.Context, to, matric string) error
	SendPasswordReset(ctx context.Context, to, resetURL string) error
	SendResetSuccess(ctx context.Context, to string) error
	SendVoteConfirmation(ctx context.Context, to string) error
}

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// TemplateMailer renders the built-in templates and hands the result to a
// Sender.
type TemplateMailer struct {
	sender Sender
	from   string
}

// New renders the transactional templates and hands them to sender.
func New(sender Sender, from string) *TemplateMailer {
	return &TemplateMailer{sender: sender, from: from}
}

func (m *TemplateMailer) SendVerification(ctx context.Context, to, code string) error {
	return m.send(ctx, to, "Verify your email", verificationTmpl, map[string]any{"Code": code})
}

func (m *TemplateMailer) SendWelcome(ctx context.Context, to, matric string) error {
	return m.send(ctx, to, "Welcome to CryptoVote", welcomeTmpl, map[string]any{"Matric": matric})
}

func (m *TemplateMailer) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	return m.send(ctx, to, "Reset your password", resetRequestTmpl, map[string]any{"URL": resetURL})
}

func (m *TemplateMailer) SendResetSuccess(ctx context.Context, to string) error {
	return m.send(ctx, to, "Password reset successful", resetSuccessTmpl, nil)
}

func (m *TemplateMailer) SendVoteConfirmation(ctx context.Context, to string) error {
	return m.send(ctx, to, "Your vote has been recorded", voteConfirmedTmpl, nil)
}

func (m *TemplateMailer) send(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render %q: %w", subject, err)
	}
	msg := Message{From: m.from, To: to, Subject: subject, HTML: body.String()}
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}
