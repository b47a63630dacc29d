package janitor

import (
	"context"
	"testing"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	repo := poker.NewRepository(store.NewMemory())

	_, err := New(Config{Schedule: "0 3 * * *"}, repo)
	assert.Error(t, err, "no sessions")

	_, err = New(Config{Schedule: "every day", Sessions: []string{"default"}}, repo)
	assert.Error(t, err)

	j, err := New(Config{Schedule: "@daily", Sessions: []string{"default"}}, repo)
	require.NoError(t, err)
	j.Start()
	j.Stop(context.Background())
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := poker.NewRepository(store.NewMemory())

	for _, sid := range []string{"a", "b", "keep"} {
		c := poker.NewController(repo, sid)
		_, err := c.Join(ctx, "Ada", models.RolePlatform)
		require.NoError(t, err)
		_, err = c.Vote(ctx, 5)
		require.NoError(t, err)
		require.NoError(t, c.Reveal(ctx))
	}

	j, err := New(Config{Schedule: "@hourly", Sessions: []string{"a", "b"}}, repo)
	require.NoError(t, err)
	require.NoError(t, j.RunOnce(ctx))

	for _, sid := range []string{"a", "b"} {
		snap, err := repo.Snapshot(ctx, sid)
		require.NoError(t, err)
		assert.Empty(t, snap.Users, sid)
		assert.Empty(t, snap.Round.Votes, sid)
		assert.False(t, snap.Round.RevealVotes, sid)
	}

	kept, err := repo.Snapshot(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, kept.Users, 1)
	assert.Equal(t, map[string]int{"Ada": 5}, kept.Round.Votes)
}

type failingCleaner struct {
	calls []string
}

func (f *failingCleaner) CleanSession(_ context.Context, sessionID string) error {
	f.calls = append(f.calls, sessionID)
	if sessionID == "bad" {
		return assert.AnError
	}
	return nil
}

func TestRunOnce_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	cleaner := &failingCleaner{}

	j, err := New(Config{Schedule: "@hourly", Sessions: []string{"bad", "good"}}, cleaner)
	require.NoError(t, err)

	err = j.RunOnce(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"bad", "good"}, cleaner.calls)
}
