package poker

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// countdownRun is a countdown owned by this controller. Only the client
// that started a countdown writes its ticks; every other client reads them.
type countdownRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartCountdown disables voting for seconds, writing the remaining time
// once per second. It replaces a countdown this client already runs.
func (c *Controller) StartCountdown(ctx context.Context, seconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireModeratorLocked(); err != nil {
		return err
	}
	if seconds <= 0 {
		return fmt.Errorf("%w: countdown must be positive, got %d", ErrValidation, seconds)
	}

	c.stopCountdownLocked()

	if err := c.repo.SetCountdown(ctx, c.sessionID, seconds); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Round.Countdown = seconds

	runCtx, cancel := context.WithCancel(context.Background())
	run := &countdownRun{cancel: cancel, done: make(chan struct{})}
	c.countdown = run

	// The ticker is created before the goroutine starts so fake clocks in
	// tests can wait for it.
	ticker := c.clock.NewTicker(time.Second)
	go c.runCountdown(runCtx, run, ticker, seconds)

	log.Info().
		Str("session_id", c.sessionID).
		Str("moderator", c.identity.Name).
		Int("seconds", seconds).
		Msg("countdown started")
	return nil
}

// runCountdown never takes c.mu, so stopCountdownLocked may wait for it.
func (c *Controller) runCountdown(ctx context.Context, run *countdownRun, ticker clockwork.Ticker, seconds int) {
	defer close(run.done)
	defer ticker.Stop()

	remaining := seconds
	for remaining > 0 {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", c.sessionID).Int("remaining", remaining).Msg("countdown cancelled")
			return
		case <-ticker.Chan():
		}
		if ctx.Err() != nil {
			return
		}

		// A clear or a newer countdown from another client replaces the
		// stored value; this run then has nothing left to drive.
		stored, err := c.repo.Countdown(ctx, c.sessionID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", c.sessionID).Msg("failed to read countdown")
		} else if stored != remaining {
			log.Info().
				Str("session_id", c.sessionID).
				Int("remaining", remaining).
				Int("stored", stored).
				Msg("countdown superseded")
			return
		}

		remaining--
		if err := c.repo.SetCountdown(ctx, c.sessionID, remaining); err != nil {
			log.Warn().Err(err).Str("session_id", c.sessionID).Int("remaining", remaining).Msg("failed to write countdown tick")
		}
	}

	if err := c.repo.SetVotingLocked(ctx, c.sessionID, false); err != nil {
		log.Warn().Err(err).Str("session_id", c.sessionID).Msg("failed to reopen voting after countdown")
	}
	log.Info().Str("session_id", c.sessionID).Msg("countdown finished")
}

// stopCountdownLocked cancels the owned countdown and waits until it can no
// longer write.
func (c *Controller) stopCountdownLocked() {
	if c.countdown == nil {
		return
	}
	c.countdown.cancel()
	<-c.countdown.done
	c.countdown = nil
}

// CountdownRunning reports whether this client is driving a countdown.
func (c *Controller) CountdownRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdown == nil {
		return false
	}
	select {
	case <-c.countdown.done:
		return false
	default:
		return true
	}
}
