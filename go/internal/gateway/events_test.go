package gateway

import (
	"fmt"
	"testing"

	"github.com/mcdev12/planningpoker/go/internal/poker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("%w: name is required", poker.ErrValidation), ErrorCodeValidation},
		{poker.ErrNameTaken, ErrorCodeNameTaken},
		{poker.ErrDeniedIdentity, ErrorCodeDenied},
		{fmt.Errorf("%w: timeout", poker.ErrStoreUnavailable), ErrorCodeStoreUnavailable},
		{poker.ErrNotJoined, ErrorCodeNotJoined},
		{poker.ErrNotModerator, ErrorCodeNotModerator},
		{poker.ErrVotingClosed, ErrorCodeVotingClosed},
		{poker.ErrAlreadyVoted, ErrorCodeAlreadyVoted},
		{poker.ErrConfirmPending, ErrorCodeConfirmPending},
		{fmt.Errorf("%w: unknown command", errBadRequest), ErrorCodeBadRequest},
		{assert.AnError, ErrorCodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeFor(tt.err), tt.err.Error())
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cmd, err := ParseCommand([]byte(`{"type":"vote","point":5,"request_id":"r1"}`))
	require.NoError(t, err)
	assert.Equal(t, ClientCommand{Type: CommandVote, Point: 5, RequestID: "r1"}, cmd)

	_, err = ParseCommand([]byte(`{"point":5}`))
	assert.Equal(t, ErrorCodeBadRequest, CodeFor(err))

	_, err = ParseCommand([]byte(`not json`))
	assert.Equal(t, ErrorCodeBadRequest, CodeFor(err))
}
