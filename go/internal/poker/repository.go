package poker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/store"
	"github.com/rs/zerolog/log"
)

// KV defines what the repository needs from the session store
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Watch(ctx context.Context, prefix string) (<-chan store.Event, error)
}

const (
	usersPath        = "users"
	votesPath        = "votes"
	voteMapPath      = "votes"
	revealPath       = "revealVotes"
	countdownPath    = "countdown"
	votingLockedPath = "votingLocked"
)

// Repository maps sessions onto store keys:
//
//	sessions/<sid>/users/<name>          -> User
//	sessions/<sid>/votes/votes/<name>    -> int
//	sessions/<sid>/votes/revealVotes     -> bool
//	sessions/<sid>/votes/countdown       -> int
//	sessions/<sid>/votes/votingLocked    -> bool
type Repository struct {
	kv  KV
	seq atomic.Uint64
}

// NewRepository creates a new session repository
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// SessionPrefix is the key prefix holding everything of one session.
func SessionPrefix(sessionID string) string {
	return store.Join("sessions", sessionID) + "/"
}

func usersPrefix(sessionID string) string {
	return SessionPrefix(sessionID) + usersPath + "/"
}

func votesPrefix(sessionID string) string {
	return SessionPrefix(sessionID) + votesPath + "/"
}

func roundKey(sessionID, field string) string {
	return votesPrefix(sessionID) + field
}

func voteKey(sessionID, name string) string {
	return votesPrefix(sessionID) + voteMapPath + "/" + name
}

// Mark returns a sequence number ordered after every snapshot started so far.
func (r *Repository) Mark() uint64 {
	return r.seq.Add(1)
}

// Snapshot reads both session paths. The returned Seq is taken before the
// read starts.
func (r *Repository) Snapshot(ctx context.Context, sessionID string) (models.Snapshot, error) {
	snap := models.NewSnapshot(sessionID)
	snap.Seq = r.seq.Add(1)

	entries, err := r.kv.List(ctx, SessionPrefix(sessionID))
	if err != nil {
		return snap, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}

	prefix := SessionPrefix(sessionID)
	for key, value := range entries {
		if err := decodeEntry(&snap, strings.TrimPrefix(key, prefix), value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping malformed session entry")
		}
	}
	return snap, nil
}

func decodeEntry(snap *models.Snapshot, path string, value []byte) error {
	switch {
	case strings.HasPrefix(path, usersPath+"/"):
		name := strings.TrimPrefix(path, usersPath+"/")
		var user models.User
		if err := json.Unmarshal(value, &user); err != nil {
			return err
		}
		if user.Name == "" {
			user.Name = name
		}
		snap.Users[name] = user

	case strings.HasPrefix(path, votesPath+"/"+voteMapPath+"/"):
		name := strings.TrimPrefix(path, votesPath+"/"+voteMapPath+"/")
		var point int
		if err := json.Unmarshal(value, &point); err != nil {
			return err
		}
		snap.Round.Votes[name] = point

	case path == votesPath+"/"+revealPath:
		return json.Unmarshal(value, &snap.Round.RevealVotes)

	case path == votesPath+"/"+countdownPath:
		return json.Unmarshal(value, &snap.Round.Countdown)

	case path == votesPath+"/"+votingLockedPath:
		return json.Unmarshal(value, &snap.Round.VotingLocked)
	}
	return nil
}

// Users reads the joined users of a session keyed by name.
func (r *Repository) Users(ctx context.Context, sessionID string) (map[string]models.User, error) {
	entries, err := r.kv.List(ctx, usersPrefix(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	snap := models.NewSnapshot(sessionID)
	prefix := SessionPrefix(sessionID)
	for key, value := range entries {
		if err := decodeEntry(&snap, strings.TrimPrefix(key, prefix), value); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping malformed user entry")
		}
	}
	return snap.Users, nil
}

// PutUser writes a user record under its name.
func (r *Repository) PutUser(ctx context.Context, sessionID string, user models.User) error {
	return r.put(ctx, usersPrefix(sessionID)+user.Name, user)
}

// RemoveUser deletes a user record.
func (r *Repository) RemoveUser(ctx context.Context, sessionID, name string) error {
	if err := r.kv.Delete(ctx, usersPrefix(sessionID)+name); err != nil {
		return fmt.Errorf("failed to remove user %s: %w", name, err)
	}
	return nil
}

// ClearUsers deletes every user record of a session.
func (r *Repository) ClearUsers(ctx context.Context, sessionID string) error {
	if err := r.kv.DeletePrefix(ctx, usersPrefix(sessionID)); err != nil {
		return fmt.Errorf("failed to clear users: %w", err)
	}
	return nil
}

// PutVote writes one entry of the vote map.
func (r *Repository) PutVote(ctx context.Context, sessionID, name string, point int) error {
	return r.put(ctx, voteKey(sessionID, name), point)
}

// SetReveal writes the reveal flag.
func (r *Repository) SetReveal(ctx context.Context, sessionID string, reveal bool) error {
	return r.put(ctx, roundKey(sessionID, revealPath), reveal)
}

// SetCountdown writes the seconds left on the countdown.
func (r *Repository) SetCountdown(ctx context.Context, sessionID string, seconds int) error {
	return r.put(ctx, roundKey(sessionID, countdownPath), seconds)
}

// Countdown reads the seconds left on the countdown. A missing value is 0.
func (r *Repository) Countdown(ctx context.Context, sessionID string) (int, error) {
	data, err := r.kv.Get(ctx, roundKey(sessionID, countdownPath))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read countdown: %w", err)
	}

	var seconds int
	if err := json.Unmarshal(data, &seconds); err != nil {
		return 0, fmt.Errorf("failed to decode countdown: %w", err)
	}
	return seconds, nil
}

// SetVotingLocked writes the moderator voting lock.
func (r *Repository) SetVotingLocked(ctx context.Context, sessionID string, locked bool) error {
	return r.put(ctx, roundKey(sessionID, votingLockedPath), locked)
}

// ClearRound deletes the vote map, reveal flag, countdown and lock.
func (r *Repository) ClearRound(ctx context.Context, sessionID string) error {
	if err := r.kv.DeletePrefix(ctx, votesPrefix(sessionID)); err != nil {
		return fmt.Errorf("failed to clear votes: %w", err)
	}
	return nil
}

// CleanSession deletes the round and the user set of a session.
func (r *Repository) CleanSession(ctx context.Context, sessionID string) error {
	if err := r.ClearRound(ctx, sessionID); err != nil {
		return err
	}
	return r.ClearUsers(ctx, sessionID)
}

// Watch subscribes to every change of a session.
func (r *Repository) Watch(ctx context.Context, sessionID string) (<-chan store.Event, error) {
	events, err := r.kv.Watch(ctx, SessionPrefix(sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to watch session %s: %w", sessionID, err)
	}
	return events, nil
}

func (r *Repository) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}
