package poker

import "errors"

var (
	// ErrValidation is returned for empty names or roles, unknown points and
	// malformed or stale identity tokens.
	ErrValidation = errors.New("validation failed")
	// ErrNameTaken is returned when a joined user already has the name.
	ErrNameTaken = errors.New("name taken")
	// ErrDeniedIdentity is returned when the exclusion policy rejects a name.
	ErrDeniedIdentity = errors.New("identity denied")
	// ErrStoreUnavailable wraps any failure of the session store.
	ErrStoreUnavailable = errors.New("session store unavailable")

	ErrNotJoined      = errors.New("not joined")
	ErrNotModerator   = errors.New("moderator role required")
	ErrVotingClosed   = errors.New("voting is closed")
	ErrAlreadyVoted   = errors.New("already voted this round")
	ErrConfirmPending = errors.New("outlier vote awaiting confirmation")
)
