package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mcdev12/planningpoker/go/internal/models"
	"github.com/mcdev12/planningpoker/go/internal/poker"
)

// CommandType is the type of a client command
type CommandType string

const (
	CommandJoin           CommandType = "join"
	CommandRestore        CommandType = "restore"
	CommandVote           CommandType = "vote"
	CommandReveal         CommandType = "reveal"
	CommandHide           CommandType = "hide"
	CommandClearVotes     CommandType = "clear_votes"
	CommandClearUsers     CommandType = "clear_users"
	CommandCleanSession   CommandType = "clean_session"
	CommandStartCountdown CommandType = "start_countdown"
	CommandLockVoting     CommandType = "lock_voting"
	CommandUnlockVoting   CommandType = "unlock_voting"
	CommandConfirmOutlier CommandType = "confirm_outlier"
	CommandDismissBlocked CommandType = "dismiss_blocked"
	CommandLogout         CommandType = "logout"
)

// ClientCommand is a message received from a client
type ClientCommand struct {
	Type      CommandType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	Token     string      `json:"token,omitempty"`
	Point     int         `json:"point,omitempty"`
	Seconds   int         `json:"seconds,omitempty"`
}

// MessageType is the type of a server message
type MessageType string

const (
	MessageTypeView     MessageType = "view"
	MessageTypeIdentity MessageType = "identity"
	MessageTypeVote     MessageType = "vote"
	MessageTypeError    MessageType = "error"
)

// ServerMessage is a message sent to a client
type ServerMessage struct {
	Type      MessageType        `json:"type"`
	RequestID string             `json:"request_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	View      *poker.View        `json:"view,omitempty"`
	Identity  *IdentityPayload   `json:"identity,omitempty"`
	Vote      *poker.VoteOutcome `json:"vote,omitempty"`
	Error     *ErrorPayload      `json:"error,omitempty"`
}

// IdentityPayload is sent after join and restore. Token is what the client
// stores to restore its seat later.
type IdentityPayload struct {
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
	ID    string      `json:"id"`
	Token string      `json:"token"`
}

// ErrorPayload describes a rejected command
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorCode is the wire form of a poker error
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "validation"
	ErrorCodeNameTaken        ErrorCode = "name_taken"
	ErrorCodeDenied           ErrorCode = "denied"
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrorCodeNotJoined        ErrorCode = "not_joined"
	ErrorCodeNotModerator     ErrorCode = "not_moderator"
	ErrorCodeVotingClosed     ErrorCode = "voting_closed"
	ErrorCodeAlreadyVoted     ErrorCode = "already_voted"
	ErrorCodeConfirmPending   ErrorCode = "confirm_pending"
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeInternal         ErrorCode = "internal"
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{poker.ErrValidation, ErrorCodeValidation},
	{poker.ErrNameTaken, ErrorCodeNameTaken},
	{poker.ErrDeniedIdentity, ErrorCodeDenied},
	{poker.ErrStoreUnavailable, ErrorCodeStoreUnavailable},
	{poker.ErrNotJoined, ErrorCodeNotJoined},
	{poker.ErrNotModerator, ErrorCodeNotModerator},
	{poker.ErrVotingClosed, ErrorCodeVotingClosed},
	{poker.ErrAlreadyVoted, ErrorCodeAlreadyVoted},
	{poker.ErrConfirmPending, ErrorCodeConfirmPending},
	{errBadRequest, ErrorCodeBadRequest},
}

var errBadRequest = errors.New("bad request")

// CodeFor maps an error returned by a command to its wire code
func CodeFor(err error) ErrorCode {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ErrorCodeInternal
}

func newViewMessage(view poker.View) ServerMessage {
	return ServerMessage{Type: MessageTypeView, Timestamp: time.Now().UTC(), View: &view}
}

func newIdentityMessage(requestID string, id poker.Identity) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeIdentity,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Identity: &IdentityPayload{
			Name:  id.Name,
			Role:  id.Role,
			ID:    id.ID.String(),
			Token: id.Token(),
		},
	}
}

func newErrorMessage(requestID string, err error) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeError,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
		Error:     &ErrorPayload{Code: CodeFor(err), Message: err.Error()},
	}
}

// ParseCommand decodes a client command
func ParseCommand(data []byte) (ClientCommand, error) {
	var cmd ClientCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ClientCommand{}, errors.Join(errBadRequest, err)
	}
	if cmd.Type == "" {
		return ClientCommand{}, errors.Join(errBadRequest, errors.New("command type is required"))
	}
	return cmd, nil
}
