// Package scheduler owns one cron-triggered job per account and drives
// the daemon's blocking run loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/autosendmail/autosendmail/internal/config"
	"github.com/autosendmail/autosendmail/internal/logger"
)

const (
	// misfireGrace is how late a firing may start and still run. Firings
	// delayed beyond it are dropped; there is no catch-up queue.
	misfireGrace = 300 * time.Second

	jobIDPrefix = "sendmail_"
)

// TaskFunc is the job body invoked for each due firing.
type TaskFunc func(ctx context.Context, account config.Account)

// Entry describes one registered job for inspection.
type Entry struct {
	ID   string
	Cron string
	Next time.Time
}

type job struct {
	id       string
	account  config.Account
	schedule cron.Schedule
}

// Scheduler triggers each account's task on its own cron cadence.
type Scheduler struct {
	loc  *time.Location
	jobs []*job
	run  TaskFunc
	log  *logger.Logger
}

// cronParser accepts exactly the 5-field minute-granularity syntax
// (no seconds, no @descriptors).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// New builds a scheduler with one job per account. A single invalid cron
// expression or duplicate account name fails construction; there is no
// partial scheduling.
func New(cfg *config.Config, run TaskFunc, log *logger.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		loc: loc,
		run: run,
		log: log.WithComponent("scheduler"),
	}

	seen := make(map[string]struct{}, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		schedule, err := cronParser.Parse(acc.Cron)
		if err != nil {
			return nil, fmt.Errorf("account %q: invalid cron expression %q: %w", acc.Name, acc.Cron, err)
		}

		id := jobIDPrefix + acc.Name
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate job id %q", id)
		}
		seen[id] = struct{}{}

		s.jobs = append(s.jobs, &job{id: id, account: acc, schedule: schedule})
		s.log.Info().
			Str("job_id", id).
			Str("cron", acc.Cron).
			Str("from", acc.FromEmail).
			Str("to", acc.ToEmail).
			Msg("registered job")
	}

	return s, nil
}

// Entries returns the registered jobs with their next fire times.
func (s *Scheduler) Entries() []Entry {
	now := time.Now().In(s.loc)
	entries := make([]Entry, 0, len(s.jobs))
	for _, j := range s.jobs {
		entries = append(entries, Entry{
			ID:   j.id,
			Cron: j.account.Cron,
			Next: j.schedule.Next(now),
		})
	}
	return entries
}

// Run blocks until ctx is cancelled, dispatching due jobs. Each job runs
// in its own loop, so successive firings of one account never overlap
// while different accounts may fire concurrently. On cancellation Run
// waits for in-flight task bodies to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Int("jobs", len(s.jobs)).Str("timezone", s.loc.String()).Msg("scheduler running")

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}

	<-ctx.Done()
	s.log.Info().Msg("scheduler stopping, waiting for in-flight jobs")
	wg.Wait()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// runJob sleeps until the job's next fire time, applies the misfire
// grace window, and invokes the task body synchronously.
func (s *Scheduler) runJob(ctx context.Context, j *job) {
	for {
		next := j.schedule.Next(time.Now().In(s.loc))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if missedGrace(next, time.Now()) {
			s.log.Warn().
				Str("job_id", j.id).
				Time("scheduled", next).
				Msg("firing missed grace window, skipping")
			continue
		}

		s.log.Debug().Str("job_id", j.id).Time("scheduled", next).Msg("dispatching job")
		// The task keeps a context that survives shutdown so an in-flight
		// firing can finish; Run still waits on the WaitGroup.
		s.run(context.WithoutCancel(ctx), j.account)
	}
}

// missedGrace reports whether a firing scheduled at the given time may
// no longer run.
func missedGrace(scheduled, now time.Time) bool {
	return now.Sub(scheduled) > misfireGrace
}
