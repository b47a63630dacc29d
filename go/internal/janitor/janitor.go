// Package janitor wipes idle planning sessions on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SessionCleaner defines what the janitor needs from the session repository
type SessionCleaner interface {
	CleanSession(ctx context.Context, sessionID string) error
}

// Config holds the cleanup schedule
type Config struct {
	// Schedule is a standard five-field cron expression. Empty disables the janitor.
	Schedule string        `yaml:"schedule"`
	Sessions []string      `yaml:"sessions"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Janitor runs CleanSession for each configured session on a schedule
type Janitor struct {
	cron     *cron.Cron
	cleaner  SessionCleaner
	sessions []string
	timeout  time.Duration
}

// New creates a janitor. It does not run until Start is called.
func New(cfg Config, cleaner SessionCleaner) (*Janitor, error) {
	if len(cfg.Sessions) == 0 {
		return nil, errors.New("janitor needs at least one session")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	j := &Janitor{
		cron:     cron.New(),
		cleaner:  cleaner,
		sessions: append([]string(nil), cfg.Sessions...),
		timeout:  timeout,
	}

	if _, err := j.cron.AddFunc(cfg.Schedule, j.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", cfg.Schedule, err)
	}
	return j, nil
}

// Start begins the schedule in the background
func (j *Janitor) Start() {
	j.cron.Start()
	log.Info().Strs("sessions", j.sessions).Msg("session janitor started")
}

// Stop halts the schedule and waits for a running cleanup, or until ctx is done
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
	log.Info().Msg("session janitor stopped")
}

// RunOnce cleans every configured session now. Failures do not stop the
// remaining sessions.
func (j *Janitor) RunOnce(ctx context.Context) error {
	var errs []error
	for _, sessionID := range j.sessions {
		if err := j.cleaner.CleanSession(ctx, sessionID); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("failed to clean session")
			errs = append(errs, fmt.Errorf("session %s: %w", sessionID, err))
			continue
		}
		log.Info().Str("session_id", sessionID).Msg("session cleaned")
	}
	return errors.Join(errs...)
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_ = j.RunOnce(ctx)
}
