package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), SQLiteConfig{Path: filepath.Join(t.TempDir(), "poker.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_GetPutDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.Get(ctx, "sessions/a/users/Zoë")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "sessions/a/users/Zoë", []byte(`{"name":"Zoë"}`)))
	require.NoError(t, s.Put(ctx, "sessions/a/users/Zoë", []byte(`{"name":"Zoë","role":"Dev"}`)))
	value, err := s.Get(ctx, "sessions/a/users/Zoë")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Zoë","role":"Dev"}`, string(value))

	require.NoError(t, s.Delete(ctx, "sessions/a/users/Zoë"))
	_, err = s.Get(ctx, "sessions/a/users/Zoë")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListAndDeletePrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestSQLite(t)

	require.NoError(t, s.Put(ctx, "sessions/a/votes/votes/Zoë", []byte("3")))
	require.NoError(t, s.Put(ctx, "sessions/a/votes/revealVotes", []byte("true")))
	require.NoError(t, s.Put(ctx, "sessions/a/users/Zoë", []byte("{}")))
	require.NoError(t, s.Put(ctx, "sessions/ab/votes/countdown", []byte("5")))

	votes, err := s.List(ctx, "sessions/a/votes/")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"sessions/a/votes/votes/Zoë":   []byte("3"),
		"sessions/a/votes/revealVotes": []byte("true"),
	}, votes)

	ctxWatch, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := s.Watch(ctxWatch, "sessions/a/")
	require.NoError(t, err)

	require.NoError(t, s.DeletePrefix(ctx, "sessions/a/votes/"))
	got := map[string]Op{}
	for i := 0; i < 2; i++ {
		ev := receive(t, events)
		got[ev.Key] = ev.Op
	}
	assert.Equal(t, map[string]Op{
		"sessions/a/votes/votes/Zoë":   OpDelete,
		"sessions/a/votes/revealVotes": OpDelete,
	}, got)

	rest, err := s.List(ctx, "sessions/")
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestSQLite_Persists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "poker.db")

	s, err := NewSQLite(ctx, SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "sessions/a/votes/countdown", []byte("4")))
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(ctx, SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "sessions/a/votes/countdown")
	require.NoError(t, err)
	assert.Equal(t, "4", string(value))
}
