package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"im-session/protocol"
)

func Test_ParseJoinError_Maps_Condition_Codes(t *testing.T) {
	req := require.New(t)

	cases := map[string]protocol.JoinError{
		"password-required":     protocol.JoinErrorPasswordRequired,
		"not-authorized":        protocol.JoinErrorPasswordRequired,
		"banned":                protocol.JoinErrorBanned,
		"item-not-found":        protocol.JoinErrorRoomNotFound,
		"conflict":              protocol.JoinErrorNickInUse,
		"max-users":             protocol.JoinErrorMaxUsers,
		"timed-out":             protocol.JoinErrorTimedOut,
		"canceled":              protocol.JoinErrorCanceled,
		"registration-required": protocol.JoinErrorUnauthorized,
		"forbidden":             protocol.JoinErrorForbidden,
		"bad-request":           protocol.JoinErrorBadRequest,
		"something-new":         protocol.JoinErrorUnknown,
		"":                      protocol.JoinErrorUnknown,
	}
	for code, want := range cases {
		req.Equal(want, protocol.ParseJoinError(code), "code %q", code)
	}
}

func Test_JoinError_Messages_Are_Total(t *testing.T) {
	req := require.New(t)
	for e := protocol.JoinErrorUnknown; e <= protocol.JoinErrorBadRequest; e++ {
		req.NotEmpty(e.Error())
	}
	// Out-of-range values degrade to the unknown text.
	req.Equal(protocol.JoinErrorUnknown.Error(), protocol.JoinError(99).Error())
}
