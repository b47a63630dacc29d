package poker

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSession = "default"

type fixture struct {
	kv   *store.Memory
	repo *Repository
}

func newFixture() *fixture {
	kv := store.NewMemory()
	return &fixture{kv: kv, repo: NewRepository(kv)}
}

func (f *fixture) controller(opts ...Option) *Controller {
	return NewController(f.repo, testSession, opts...)
}

func (f *fixture) joined(t *testing.T, name string, role models.Role, opts ...Option) *Controller {
	t.Helper()
	c := f.controller(opts...)
	_, err := c.Join(context.Background(), name, role)
	require.NoError(t, err)
	return c
}

func (f *fixture) snapshot(t *testing.T) models.Snapshot {
	t.Helper()
	snap, err := f.repo.Snapshot(context.Background(), testSession)
	require.NoError(t, err)
	return snap
}

func syncAll(t *testing.T, controllers ...*Controller) {
	t.Helper()
	for _, c := range controllers {
		require.NoError(t, c.Sync(context.Background()))
	}
}

func TestController_JoinValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	c := f.controller()

	tests := []struct {
		name string
		user string
		role models.Role
	}{
		{name: "empty name", user: "", role: models.RoleDev},
		{name: "blank name", user: "   ", role: models.RoleDev},
		{name: "empty role", user: "ada", role: ""},
		{name: "unknown role", user: "ada", role: "QA"},
	}
	for _, tt := range tests {
		_, err := c.Join(ctx, tt.user, tt.role)
		assert.ErrorIs(t, err, ErrValidation, tt.name)
	}

	assert.Empty(t, f.snapshot(t).Users)
	assert.Equal(t, PhaseUnjoined, c.Phase())
}

func TestController_Join(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	c := f.controller()

	id, err := c.Join(ctx, "  Ada ", models.RolePlatform)
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.Name)
	assert.Equal(t, models.RolePlatform, id.Role)

	snap := f.snapshot(t)
	require.Contains(t, snap.Users, "Ada")
	assert.Equal(t, id.ID, snap.Users["Ada"].ID)
	assert.Equal(t, PhaseVoting, c.Phase())

	_, err = c.Join(ctx, "Ada2", models.RoleDev)
	assert.ErrorIs(t, err, ErrValidation, "already joined")
}

func TestController_JoinNameTaken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	f.joined(t, "Ada", models.RoleDev)
	before := f.snapshot(t)

	_, err := f.controller().Join(ctx, "Ada", models.RoleCMS)
	assert.ErrorIs(t, err, ErrNameTaken)

	after := f.snapshot(t)
	assert.Equal(t, before.Users, after.Users)

	// Names are compared case-sensitively.
	_, err = f.controller().Join(ctx, "ada", models.RoleCMS)
	assert.NoError(t, err)
}

func TestController_JoinDenied(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()

	deny, err := NewDenyList([]string{"satan"}, nil)
	require.NoError(t, err)
	policy := DefaultPolicy()
	policy.Exclusion = deny
	c := f.controller(WithPolicy(policy))

	_, err = c.Join(ctx, "Lord SaTaN", models.RoleDev)
	assert.ErrorIs(t, err, ErrDeniedIdentity)
	assert.Equal(t, OverlayBlocked, c.Overlay())
	assert.Empty(t, f.snapshot(t).Users)

	_, err = c.Join(ctx, "Ada", models.RoleDev)
	assert.ErrorIs(t, err, ErrDeniedIdentity, "blocked until dismissed")

	c.DismissBlocked()
	assert.Equal(t, OverlayNone, c.Overlay())
	_, err = c.Join(ctx, "Ada", models.RoleDev)
	assert.NoError(t, err)
}

func TestController_Vote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()

	_, err := f.controller().Vote(ctx, 3)
	assert.ErrorIs(t, err, ErrNotJoined)

	ada := f.joined(t, "Ada", models.RoleDev)
	bob := f.joined(t, "Bob", models.RoleDev)

	_, err = ada.Vote(ctx, 4)
	assert.ErrorIs(t, err, ErrValidation)

	outcome, err := ada.Vote(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, VoteOutcome{Point: 3}, outcome)
	assert.Equal(t, PhaseWaiting, ada.Phase())

	_, err = ada.Vote(ctx, 5)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	syncAll(t, bob)
	_, err = bob.Vote(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"Ada": 3, "Bob": 2}, f.snapshot(t).Round.Votes)
}

func TestController_VoteOutlier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	ada := f.joined(t, "Ada", models.RoleDev)
	bob := f.joined(t, "Bob", models.RoleDev)
	cat := f.joined(t, "Cat", models.RoleDev)

	_, err := ada.Vote(ctx, 1)
	require.NoError(t, err)

	syncAll(t, bob, cat)
	outcome, err := bob.Vote(ctx, 3)
	require.NoError(t, err)
	assert.False(t, outcome.Outlier)

	outcome, err = cat.Vote(ctx, 8)
	require.NoError(t, err)
	assert.True(t, outcome.Outlier)
	assert.Equal(t, OverlayOutlierConfirm, cat.Overlay())

	// The vote is recorded even though it needs confirming.
	assert.Equal(t, 8, f.snapshot(t).Round.Votes["Cat"])

	assert.ErrorIs(t, cat.ClearVotes(ctx), ErrConfirmPending)
	cat.ConfirmOutlier()
	assert.Equal(t, OverlayNone, cat.Overlay())
	_, err = cat.Vote(ctx, 1)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestController_VoteWhileLockedIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	mod := f.joined(t, "Mod", models.RolePlatform)
	dev := f.joined(t, "Dev", models.RoleDev)

	require.NoError(t, mod.LockVoting(ctx))
	syncAll(t, dev)
	assert.Equal(t, PhaseWaiting, dev.Phase())

	_, err := dev.Vote(ctx, 5)
	assert.ErrorIs(t, err, ErrVotingClosed)
	assert.Empty(t, f.snapshot(t).Round.Votes)

	require.NoError(t, mod.UnlockVoting(ctx))
	syncAll(t, dev)
	_, err = dev.Vote(ctx, 5)
	assert.NoError(t, err)
}

func TestController_RevealAndHide(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	mod := f.joined(t, "Mod", models.RolePlatform)
	dev := f.joined(t, "Dev", models.RoleDev)

	assert.ErrorIs(t, dev.Reveal(ctx), ErrNotModerator)
	assert.ErrorIs(t, f.controller().Reveal(ctx), ErrNotJoined)

	_, err := dev.Vote(ctx, 1)
	require.NoError(t, err)
	syncAll(t, mod)
	_, err = mod.Vote(ctx, 13)
	require.NoError(t, err)
	mod.ConfirmOutlier()

	syncAll(t, dev)
	view := dev.View()
	assert.Nil(t, view.Stats)
	assert.Equal(t, []VoteView{{Name: "Dev", Value: "1"}, {Name: "Mod", Value: HiddenVote}}, view.Votes)

	require.NoError(t, mod.Reveal(ctx))
	assert.True(t, f.snapshot(t).Round.RevealVotes)

	syncAll(t, dev)
	view = dev.View()
	assert.Equal(t, PhaseRevealed, view.Phase)
	assert.Equal(t, []VoteView{{Name: "Dev", Value: "1"}, {Name: "Mod", Value: "13"}}, view.Votes)
	require.NotNil(t, view.Stats)
	assert.Equal(t, 7.0, view.Stats.Mean)
	assert.Equal(t, 8, view.Stats.Closest)

	require.NoError(t, mod.Hide(ctx))
	assert.False(t, f.snapshot(t).Round.RevealVotes)
}

func TestController_ClearVotes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	mod := f.joined(t, "Mod", models.RolePlatform)

	_, err := mod.Vote(ctx, 5)
	require.NoError(t, err)
	require.NoError(t, mod.Reveal(ctx))
	require.NoError(t, mod.LockVoting(ctx))

	require.NoError(t, mod.ClearVotes(ctx))

	snap := f.snapshot(t)
	assert.Empty(t, snap.Round.Votes)
	assert.False(t, snap.Round.RevealVotes)
	assert.Zero(t, snap.Round.Countdown)
	assert.False(t, snap.Round.VotingLocked)
	assert.Contains(t, snap.Users, "Mod", "users survive")

	stats := ComputeStats(snap.Round.Votes)
	assert.Zero(t, stats.Mean)
	assert.False(t, stats.AllSame)
	assert.Empty(t, stats.Counts)

	assert.Equal(t, PhaseVoting, mod.Phase())
}

func TestController_ClearUsersAndCleanSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	mod := f.joined(t, "Mod", models.RolePlatform)
	dev := f.joined(t, "Dev", models.RoleDev)

	_, err := dev.Vote(ctx, 3)
	require.NoError(t, err)

	require.NoError(t, mod.ClearUsers(ctx))
	snap := f.snapshot(t)
	assert.Empty(t, snap.Users)
	assert.Equal(t, map[string]int{"Dev": 3}, snap.Round.Votes, "stale votes remain")
	assert.Equal(t, PhaseUnjoined, mod.Phase())

	syncAll(t, dev)
	assert.Equal(t, PhaseUnjoined, dev.Phase())

	again := f.joined(t, "Mod", models.RolePlatform)
	require.NoError(t, again.Reveal(ctx))
	require.NoError(t, again.CleanSession(ctx))

	snap = f.snapshot(t)
	assert.Empty(t, snap.Users)
	assert.Empty(t, snap.Round.Votes)
	assert.False(t, snap.Round.RevealVotes)
	assert.Zero(t, snap.Round.Countdown)
}

func TestController_Logout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	ada := f.joined(t, "Ada", models.RoleDev)
	f.joined(t, "Bob", models.RoleDev)

	require.NoError(t, ada.Logout(ctx))
	_, joined := ada.Identity()
	assert.False(t, joined)

	snap := f.snapshot(t)
	assert.NotContains(t, snap.Users, "Ada")
	assert.Contains(t, snap.Users, "Bob")

	assert.ErrorIs(t, ada.Logout(ctx), ErrNotJoined)
}

func TestController_Restore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()

	ada := f.controller()
	id, err := ada.Join(ctx, "Ada", models.RolePlatform)
	require.NoError(t, err)

	reloaded := f.controller()
	restored, err := reloaded.Restore(ctx, id.Token())
	require.NoError(t, err)
	assert.Equal(t, id, restored)
	assert.NoError(t, reloaded.Reveal(ctx))

	require.NoError(t, ada.Logout(ctx))
	_, err = f.controller().Restore(ctx, id.Token())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.controller().Restore(ctx, "garbage")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestController_RestoreLoadsRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	clock := clockwork.NewFakeClock()
	mod := f.joined(t, "Mod", models.RolePlatform, WithClock(clock))
	defer mod.Close()

	dev := f.controller()
	id, err := dev.Join(ctx, "Dev", models.RoleDev)
	require.NoError(t, err)
	_, err = dev.Vote(ctx, 3)
	require.NoError(t, err)

	reloaded := f.controller()
	_, err = reloaded.Restore(ctx, id.Token())
	require.NoError(t, err)
	assert.Equal(t, PhaseWaiting, reloaded.Phase())
	assert.Equal(t, []VoteView{{Name: "Dev", Value: "3"}}, reloaded.View().Votes)

	_, err = reloaded.Vote(ctx, 13)
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	require.NoError(t, mod.ClearVotes(ctx))
	require.NoError(t, mod.StartCountdown(ctx, 5))

	again := f.controller()
	_, err = again.Restore(ctx, id.Token())
	require.NoError(t, err)
	assert.Equal(t, PhaseCountdown, again.Phase())

	_, err = again.Vote(ctx, 13)
	assert.ErrorIs(t, err, ErrVotingClosed)
	assert.Empty(t, f.snapshot(t).Round.Votes)
}

func TestController_VoteChecksStoredRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	mod := f.joined(t, "Mod", models.RolePlatform)
	dev := f.joined(t, "Dev", models.RoleDev)

	require.NoError(t, mod.LockVoting(ctx))
	_, err := dev.Vote(ctx, 5)
	assert.ErrorIs(t, err, ErrVotingClosed, "lock applies before the next sync")

	require.NoError(t, mod.UnlockVoting(ctx))
	require.NoError(t, f.repo.PutVote(ctx, testSession, "Dev", 2))
	_, err = dev.Vote(ctx, 5)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.Equal(t, 2, f.snapshot(t).Round.Votes["Dev"])

	require.NoError(t, f.repo.RemoveUser(ctx, testSession, "Dev"))
	_, err = dev.Vote(ctx, 5)
	assert.ErrorIs(t, err, ErrNotJoined)
}

func TestController_ApplyIgnoresStaleSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()

	stale := f.snapshot(t)
	c := f.joined(t, "Ada", models.RoleDev)

	c.Apply(stale)
	assert.Equal(t, PhaseVoting, c.Phase(), "snapshot read before the join must not evict")

	other := f.snapshot(t)
	other.SessionID = "elsewhere"
	other.Users = nil
	c.Apply(other)
	assert.Equal(t, PhaseVoting, c.Phase())

	require.NoError(t, f.repo.RemoveUser(ctx, testSession, "Ada"))
	syncAll(t, c)
	assert.Equal(t, PhaseUnjoined, c.Phase())
}

func TestController_StoreUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewController(NewRepository(failingKV{}), testSession)

	_, err := c.Join(ctx, "Ada", models.RoleDev)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, c.Sync(ctx), ErrStoreUnavailable)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, assert.AnError }
func (failingKV) List(context.Context, string) (map[string][]byte, error) {
	return nil, assert.AnError
}
func (failingKV) Put(context.Context, string, []byte) error { return assert.AnError }
func (failingKV) Delete(context.Context, string) error      { return assert.AnError }
func (failingKV) DeletePrefix(context.Context, string) error {
	return assert.AnError
}
func (failingKV) Watch(context.Context, string) (<-chan store.Event, error) {
	return nil, assert.AnError
}
