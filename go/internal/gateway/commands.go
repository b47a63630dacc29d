package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/rs/zerolog/log"
)

// CommandHandler executes client commands against one controller
type CommandHandler struct {
	controller       *poker.Controller
	defaultCountdown int
}

// NewCommandHandler creates a handler for a connection's controller
func NewCommandHandler(controller *poker.Controller, defaultCountdown int) *CommandHandler {
	return &CommandHandler{
		controller:       controller,
		defaultCountdown: defaultCountdown,
	}
}

// Handle runs cmd and returns the messages to send back, always ending with
// the client's current view.
func (h *CommandHandler) Handle(ctx context.Context, cmd ClientCommand) []ServerMessage {
	var out []ServerMessage

	reply, err := h.execute(ctx, cmd)
	if err != nil {
		log.Debug().
			Err(err).
			Str("session_id", h.controller.SessionID()).
			Str("command", string(cmd.Type)).
			Msg("command rejected")
		out = append(out, newErrorMessage(cmd.RequestID, err))
	} else if reply != nil {
		out = append(out, *reply)
	}

	return append(out, newViewMessage(h.controller.View()))
}

func (h *CommandHandler) execute(ctx context.Context, cmd ClientCommand) (*ServerMessage, error) {
	c := h.controller

	switch cmd.Type {
	case CommandJoin:
		id, err := c.Join(ctx, cmd.Name, cmd.Role)
		if err != nil {
			return nil, err
		}
		msg := newIdentityMessage(cmd.RequestID, id)
		return &msg, nil

	case CommandRestore:
		id, err := c.Restore(ctx, cmd.Token)
		if err != nil {
			return nil, err
		}
		msg := newIdentityMessage(cmd.RequestID, id)
		return &msg, nil

	case CommandVote:
		outcome, err := c.Vote(ctx, cmd.Point)
		if err != nil {
			return nil, err
		}
		msg := ServerMessage{
			Type:      MessageTypeVote,
			RequestID: cmd.RequestID,
			Timestamp: time.Now().UTC(),
			Vote:      &outcome,
		}
		return &msg, nil

	case CommandReveal:
		return nil, c.Reveal(ctx)
	case CommandHide:
		return nil, c.Hide(ctx)
	case CommandClearVotes:
		return nil, c.ClearVotes(ctx)
	case CommandClearUsers:
		return nil, c.ClearUsers(ctx)
	case CommandCleanSession:
		return nil, c.CleanSession(ctx)

	case CommandStartCountdown:
		seconds := cmd.Seconds
		if seconds == 0 {
			seconds = h.defaultCountdown
		}
		return nil, c.StartCountdown(ctx, seconds)

	case CommandLockVoting:
		return nil, c.LockVoting(ctx)
	case CommandUnlockVoting:
		return nil, c.UnlockVoting(ctx)

	case CommandConfirmOutlier:
		c.ConfirmOutlier()
		return nil, nil
	case CommandDismissBlocked:
		c.DismissBlocked()
		return nil, nil

	case CommandLogout:
		return nil, c.Logout(ctx)
	}

	return nil, fmt.Errorf("%w: unknown command %q", errBadRequest, cmd.Type)
}
