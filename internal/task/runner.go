// Package task runs the per-firing email pipeline for one account:
// generate content, send the email, report the outcome.
package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/autosendmail/autosendmail/internal/config"
	"github.com/autosendmail/autosendmail/internal/generator"
	"github.com/autosendmail/autosendmail/internal/logger"
)

// Generator produces the email content for one firing.
type Generator interface {
	Generate(ctx context.Context, aiPrompt, subjectPrefix string) (generator.EmailContent, error)
}

// Sender delivers one email and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, fromEmail, fromName, toEmail, subject, body string) (string, error)
}

// Notifier reports task outcomes on a side channel. Implementations must
// never fail the task; errors are their own problem.
type Notifier interface {
	NotifySuccess(ctx context.Context, accountName, toEmail, subject string)
	NotifyFailure(ctx context.Context, accountName, toEmail, errText string)
}

// Runner orchestrates one task firing. The shared generator, sender and
// notifier are read-only after construction, so a single Runner serves
// all accounts concurrently.
type Runner struct {
	gen      Generator
	sender   Sender
	notifier Notifier
	log      *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(gen Generator, sender Sender, notifier Notifier, log *logger.Logger) *Runner {
	return &Runner{
		gen:      gen,
		sender:   sender,
		notifier: notifier,
		log:      log.WithComponent("task"),
	}
}

// Run executes one firing for the account. The pipeline stops at the
// first failure; failures are logged and reported via the notifier but
// never propagated, so the next scheduled firing is the only retry.
func (r *Runner) Run(ctx context.Context, account config.Account) {
	log := r.log.WithAccount(account.Name).WithRun(uuid.NewString())
	log.Info().Str("to", account.ToEmail).Msg("task fired")

	content, err := r.gen.Generate(ctx, account.AIPrompt, account.SubjectPrefix)
	if err != nil {
		log.Error().Err(err).Msg("content generation failed")
		r.notifier.NotifyFailure(ctx, account.Name, account.ToEmail, err.Error())
		return
	}

	msgID, err := r.sender.Send(ctx, account.FromEmail, account.FromName, account.ToEmail, content.Subject, content.Body)
	if err != nil {
		log.Error().Err(err).Str("subject", content.Subject).Msg("email delivery failed")
		r.notifier.NotifyFailure(ctx, account.Name, account.ToEmail, err.Error())
		return
	}

	log.Info().
		Str("subject", content.Subject).
		Str("message_id", msgID).
		Msg("task completed")
	r.notifier.NotifySuccess(ctx, account.Name, account.ToEmail, content.Subject)
}
