package models

// VoteSession is the shared voting round of one session.
type VoteSession struct {
	Votes        map[string]int `json:"votes"`
	RevealVotes  bool           `json:"revealVotes"`
	Countdown    int            `json:"countdown"`
	VotingLocked bool           `json:"votingLocked"`
}

// VotingOpen reports whether new votes are accepted.
func (v VoteSession) VotingOpen() bool {
	return v.Countdown <= 0 && !v.VotingLocked
}

// Snapshot is one read of both session paths.
type Snapshot struct {
	SessionID string          `json:"session_id"`
	Users     map[string]User `json:"users"`
	Round     VoteSession     `json:"round"`

	// Seq orders this read against writes made through the same repository.
	Seq uint64 `json:"-"`
}

// NewSnapshot returns an empty snapshot for a session.
func NewSnapshot(sessionID string) Snapshot {
	return Snapshot{
		SessionID: sessionID,
		Users:     make(map[string]User),
		Round:     VoteSession{Votes: make(map[string]int)},
	}
}
