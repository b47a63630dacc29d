package poker

import (
	"sort"
	"strconv"

	"github.com/mcdev12/planningpoker/go/internal/models"
)

// HiddenVote is shown in place of votes the viewer may not see yet.
const HiddenVote = "?"

// View is what a client renders.
type View struct {
	SessionID   string     `json:"session_id"`
	Identity    *Identity  `json:"identity,omitempty"`
	Phase       Phase      `json:"phase"`
	Overlay     Overlay    `json:"overlay,omitempty"`
	Users       []UserView `json:"users"`
	Votes       []VoteView `json:"votes"`
	RevealVotes bool       `json:"reveal_votes"`
	Countdown   int        `json:"countdown,omitempty"`
	VotingOpen  bool       `json:"voting_open"`
	Scale       []int      `json:"scale"`
	Stats       *Stats     `json:"stats,omitempty"`
}

// UserView is one joined user.
type UserView struct {
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
	Voted bool        `json:"voted"`
}

// VoteView is one entry of the vote map as the viewer may see it.
type VoteView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// View renders the mirror for this client.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := RenderView(c.remote, c.identity, c.policy.Scale)
	v.Phase = c.phaseLocked()
	v.Overlay = c.overlay
	return v
}

// RenderView renders a snapshot for viewer, or for an anonymous observer
// when viewer is nil. Votes stay masked unless revealed or the viewer's own.
func RenderView(snap models.Snapshot, viewer *Identity, scale Scale) View {
	round := snap.Round
	v := View{
		SessionID:   snap.SessionID,
		Phase:       PhaseUnjoined,
		Users:       make([]UserView, 0, len(snap.Users)),
		Votes:       make([]VoteView, 0, len(round.Votes)),
		RevealVotes: round.RevealVotes,
		VotingOpen:  round.VotingOpen(),
		Scale:       append([]int(nil), scale...),
	}
	if round.Countdown > 0 {
		v.Countdown = round.Countdown
	}
	if viewer != nil {
		id := *viewer
		v.Identity = &id
	}

	for _, u := range snap.Users {
		_, voted := round.Votes[u.Name]
		v.Users = append(v.Users, UserView{Name: u.Name, Role: u.Role, Voted: voted})
	}
	sort.Slice(v.Users, func(i, j int) bool { return v.Users[i].Name < v.Users[j].Name })

	for name, point := range round.Votes {
		value := HiddenVote
		if round.RevealVotes || (viewer != nil && viewer.Name == name) {
			value = strconv.Itoa(point)
		}
		v.Votes = append(v.Votes, VoteView{Name: name, Value: value})
	}
	sort.Slice(v.Votes, func(i, j int) bool { return v.Votes[i].Name < v.Votes[j].Name })

	if round.RevealVotes {
		stats := scale.Stats(round.Votes)
		v.Stats = &stats
	}
	return v
}
