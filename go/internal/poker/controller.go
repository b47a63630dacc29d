package poker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/rs/zerolog/log"
)

// SessionRepository defines what the controller needs from the repository
type SessionRepository interface {
	Snapshot(ctx context.Context, sessionID string) (models.Snapshot, error)
	Users(ctx context.Context, sessionID string) (map[string]models.User, error)
	PutUser(ctx context.Context, sessionID string, user models.User) error
	RemoveUser(ctx context.Context, sessionID, name string) error
	ClearUsers(ctx context.Context, sessionID string) error
	PutVote(ctx context.Context, sessionID, name string, point int) error
	SetReveal(ctx context.Context, sessionID string, reveal bool) error
	Countdown(ctx context.Context, sessionID string) (int, error)
	SetCountdown(ctx context.Context, sessionID string, seconds int) error
	SetVotingLocked(ctx context.Context, sessionID string, locked bool) error
	ClearRound(ctx context.Context, sessionID string) error
	Mark() uint64
}

// Phase is the state a joined client is in, derived from the mirror.
type Phase string

const (
	PhaseUnjoined  Phase = "unjoined"
	PhaseVoting    Phase = "voting"
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhaseRevealed  Phase = "revealed"
)

// Overlay is a transient state layered over the phase.
type Overlay string

const (
	OverlayNone           Overlay = ""
	OverlayBlocked        Overlay = "blocked"
	OverlayOutlierConfirm Overlay = "outlier_confirm"
)

// VoteOutcome describes an accepted vote.
type VoteOutcome struct {
	Point   int  `json:"point"`
	Outlier bool `json:"outlier"`
}

// Controller is one client's view of a shared session. It mirrors the
// remote state, enforces voting rules before writing, and owns the
// countdown when its user started one.
type Controller struct {
	mu        sync.Mutex
	repo      SessionRepository
	sessionID string
	policy    Policy
	clock     clockwork.Clock

	identity *Identity
	overlay  Overlay
	remote   models.Snapshot
	// writeSeq marks the last own write; older snapshots are ignored.
	writeSeq  uint64
	countdown *countdownRun
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the voting rules.
func WithPolicy(p Policy) Option {
	return func(c *Controller) {
		if len(p.Scale) == 0 {
			p.Scale = DefaultScale
		}
		c.policy = p
	}
}

// WithClock sets the clock driving countdowns.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// NewController creates an unjoined controller for a session
func NewController(repo SessionRepository, sessionID string, opts ...Option) *Controller {
	c := &Controller{
		repo:      repo,
		sessionID: sessionID,
		policy:    DefaultPolicy(),
		clock:     clockwork.NewRealClock(),
		remote:    models.NewSnapshot(sessionID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the session this controller mirrors.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Identity returns the joined identity, if any.
func (c *Controller) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Join registers name in the shared user set.
func (c *Controller) Join(ctx context.Context, name string, role models.Role) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return Identity{}, err
	}
	if c.identity != nil {
		return Identity{}, fmt.Errorf("%w: already joined as %s", ErrValidation, c.identity.Name)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if role == "" {
		return Identity{}, fmt.Errorf("%w: role is required", ErrValidation)
	}
	if !role.Valid() {
		return Identity{}, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	if c.policy.excluded(name) {
		c.overlay = OverlayBlocked
		log.Info().Str("session_id", c.sessionID).Str("name", name).Msg("join blocked by exclusion policy")
		return Identity{}, ErrDeniedIdentity
	}

	users, err := c.repo.Users(ctx, c.sessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, taken := users[name]; taken {
		return Identity{}, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	user := models.User{ID: uuid.New(), Name: name, Role: role}
	if err := c.repo.PutUser(ctx, c.sessionID, user); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()

	c.identity = &Identity{Name: user.Name, Role: user.Role, ID: user.ID}
	c.remote.Users[user.Name] = user

	log.Info().
		Str("session_id", c.sessionID).
		Str("name", user.Name).
		Str("role", string(user.Role)).
		Msg("user joined")

	return *c.identity, nil
}

// Restore resumes a seat from a stored token when the remote record still
// matches it.
func (c *Controller) Restore(ctx context.Context, token string) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return Identity{}, err
	}

	id, err := ParseToken(token)
	if err != nil {
		return Identity{}, err
	}
	if c.policy.excluded(id.Name) {
		c.overlay = OverlayBlocked
		return Identity{}, ErrDeniedIdentity
	}

	snap, err := c.repo.Snapshot(ctx, c.sessionID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	user, ok := snap.Users[id.Name]
	if !ok || user.ID != id.ID {
		return Identity{}, fmt.Errorf("%w: %s is no longer joined", ErrValidation, id.Name)
	}

	c.identity = &Identity{Name: user.Name, Role: user.Role, ID: user.ID}
	c.applyLocked(snap)

	log.Info().Str("session_id", c.sessionID).Str("name", user.Name).Msg("identity restored")
	return *c.identity, nil
}

// Vote records point for the joined user. The returned outcome flags an
// outlier, after which ConfirmOutlier must be called before anything else.
func (c *Controller) Vote(ctx context.Context, point int) (VoteOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return VoteOutcome{}, err
	}
	if c.identity == nil {
		return VoteOutcome{}, ErrNotJoined
	}
	if !c.policy.Scale.Contains(point) {
		return VoteOutcome{}, fmt.Errorf("%w: %d is not on the scale", ErrValidation, point)
	}

	// The round is checked against the store, not only the mirror.
	snap, err := c.repo.Snapshot(ctx, c.sessionID)
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.applyLocked(snap)
	if c.identity == nil {
		return VoteOutcome{}, ErrNotJoined
	}
	if !c.remote.Round.VotingOpen() {
		return VoteOutcome{}, ErrVotingClosed
	}

	name := c.identity.Name
	if _, voted := c.remote.Round.Votes[name]; voted {
		return VoteOutcome{}, ErrAlreadyVoted
	}

	others := make([]int, 0, len(c.remote.Round.Votes))
	for _, p := range c.remote.Round.Votes {
		others = append(others, p)
	}
	outcome := VoteOutcome{Point: point, Outlier: c.policy.IsOutlier(point, others)}

	if err := c.repo.PutVote(ctx, c.sessionID, name, point); err != nil {
		return VoteOutcome{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Round.Votes[name] = point

	if outcome.Outlier {
		c.overlay = OverlayOutlierConfirm
	}

	log.Debug().
		Str("session_id", c.sessionID).
		Str("name", name).
		Int("point", point).
		Bool("outlier", outcome.Outlier).
		Msg("vote recorded")

	return outcome, nil
}

// ConfirmOutlier dismisses the outlier interstitial.
func (c *Controller) ConfirmOutlier() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay == OverlayOutlierConfirm {
		c.overlay = OverlayNone
	}
}

// DismissBlocked leaves the rejection overlay.
func (c *Controller) DismissBlocked() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overlay == OverlayBlocked {
		c.overlay = OverlayNone
	}
}

// Reveal makes every vote visible to every client.
func (c *Controller) Reveal(ctx context.Context) error {
	return c.setReveal(ctx, true)
}

// Hide masks votes again.
func (c *Controller) Hide(ctx context.Context) error {
	return c.setReveal(ctx, false)
}

func (c *Controller) setReveal(ctx context.Context, reveal bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireModeratorLocked(); err != nil {
		return err
	}
	if err := c.repo.SetReveal(ctx, c.sessionID, reveal); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Round.RevealVotes = reveal

	log.Info().Str("session_id", c.sessionID).Bool("reveal", reveal).Msg("reveal flag set")
	return nil
}

// LockVoting disables voting for every client until unlocked.
func (c *Controller) LockVoting(ctx context.Context) error {
	return c.setVotingLocked(ctx, true)
}

// UnlockVoting re-enables voting.
func (c *Controller) UnlockVoting(ctx context.Context) error {
	return c.setVotingLocked(ctx, false)
}

func (c *Controller) setVotingLocked(ctx context.Context, locked bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireModeratorLocked(); err != nil {
		return err
	}
	if err := c.repo.SetVotingLocked(ctx, c.sessionID, locked); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Round.VotingLocked = locked
	return nil
}

// ClearVotes resets the vote map, reveal flag, countdown and lock.
func (c *Controller) ClearVotes(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	return c.clearVotesLocked(ctx)
}

func (c *Controller) clearVotesLocked(ctx context.Context) error {
	c.stopCountdownLocked()

	if err := c.repo.ClearRound(ctx, c.sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Round = models.NewSnapshot(c.sessionID).Round

	log.Info().Str("session_id", c.sessionID).Msg("votes cleared")
	return nil
}

// ClearUsers empties the shared user set, this client included.
func (c *Controller) ClearUsers(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	return c.clearUsersLocked(ctx)
}

func (c *Controller) clearUsersLocked(ctx context.Context) error {
	if err := c.repo.ClearUsers(ctx, c.sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	c.remote.Users = make(map[string]models.User)
	c.leaveLocked()

	log.Info().Str("session_id", c.sessionID).Msg("users cleared")
	return nil
}

// CleanSession clears votes and users.
func (c *Controller) CleanSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return err
	}
	if err := c.clearVotesLocked(ctx); err != nil {
		return err
	}
	return c.clearUsersLocked(ctx)
}

// Logout removes this client's user record.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return ErrNotJoined
	}

	name := c.identity.Name
	if err := c.repo.RemoveUser(ctx, c.sessionID, name); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.writeSeq = c.repo.Mark()
	delete(c.remote.Users, name)
	c.leaveLocked()

	log.Info().Str("session_id", c.sessionID).Str("name", name).Msg("user logged out")
	return nil
}

// leaveLocked drops the local identity and anything tied to it.
func (c *Controller) leaveLocked() {
	c.stopCountdownLocked()
	c.identity = nil
	if c.overlay == OverlayOutlierConfirm {
		c.overlay = OverlayNone
	}
}

// Sync reads the session and applies it.
func (c *Controller) Sync(ctx context.Context) error {
	snap, err := c.repo.Snapshot(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	c.Apply(snap)
	return nil
}

// Apply reconciles the mirror with a remote snapshot. Snapshots started
// before this client's last write are ignored; the next one covers it.
func (c *Controller) Apply(snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(snap)
}

func (c *Controller) applyLocked(snap models.Snapshot) {
	if snap.SessionID != c.sessionID || snap.Seq < c.writeSeq {
		return
	}
	c.remote = cloneSnapshot(snap)

	if c.identity == nil {
		return
	}
	if user, ok := c.remote.Users[c.identity.Name]; !ok || user.ID != c.identity.ID {
		log.Info().
			Str("session_id", c.sessionID).
			Str("name", c.identity.Name).
			Msg("user record removed remotely")
		c.leaveLocked()
	}
}

// Phase derives the client state from the mirror.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phaseLocked()
}

func (c *Controller) phaseLocked() Phase {
	if c.identity == nil {
		return PhaseUnjoined
	}
	round := c.remote.Round
	switch {
	case round.RevealVotes:
		return PhaseRevealed
	case round.Countdown > 0:
		return PhaseCountdown
	}
	if _, voted := round.Votes[c.identity.Name]; voted || round.VotingLocked {
		return PhaseWaiting
	}
	return PhaseVoting
}

// Overlay returns the active overlay.
func (c *Controller) Overlay() Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlay
}

// Close stops a countdown this client owns. The shared value stays as is.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCountdownLocked()
}

func (c *Controller) guardLocked() error {
	switch c.overlay {
	case OverlayOutlierConfirm:
		return ErrConfirmPending
	case OverlayBlocked:
		return ErrDeniedIdentity
	}
	return nil
}

func (c *Controller) requireModeratorLocked() error {
	if err := c.guardLocked(); err != nil {
		return err
	}
	if c.identity == nil {
		return ErrNotJoined
	}
	if !c.identity.Role.IsModerator() {
		return ErrNotModerator
	}
	return nil
}

func cloneSnapshot(snap models.Snapshot) models.Snapshot {
	out := snap
	out.Users = make(map[string]models.User, len(snap.Users))
	for k, v := range snap.Users {
		out.Users[k] = v
	}
	out.Round.Votes = make(map[string]int, len(snap.Round.Votes))
	for k, v := range snap.Round.Votes {
		out.Round.Votes[k] = v
	}
	return out
}
