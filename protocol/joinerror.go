package protocol

// JoinError is the closed taxonomy of chat-room join failures. Wire
// protocols map their own condition codes onto it; the UI maps it to
// text with Error, a pure lookup.
type JoinError int

const (
	JoinErrorUnknown JoinError = iota
	JoinErrorPasswordRequired
	JoinErrorBanned
	JoinErrorRoomNotFound
	JoinErrorNickInUse
	JoinErrorMaxUsers
	JoinErrorTimedOut
	JoinErrorCanceled
	JoinErrorUnauthorized
	JoinErrorForbidden
	JoinErrorBadRequest
)

func (e JoinError) Error() string {
	switch e {
	case JoinErrorPasswordRequired:
		return "a password is required to join this chat room"
	case JoinErrorBanned:
		return "you have been banned from this chat room"
	case JoinErrorRoomNotFound:
		return "the chat room could not be found"
	case JoinErrorNickInUse:
		return "the nickname is already in use in this chat room"
	case JoinErrorMaxUsers:
		return "the chat room has reached its maximum number of users"
	case JoinErrorTimedOut:
		return "joining the chat room timed out"
	case JoinErrorCanceled:
		return "joining the chat room was canceled"
	case JoinErrorUnauthorized:
		return "you are not authorized to join this chat room"
	case JoinErrorForbidden:
		return "joining this chat room is forbidden"
	case JoinErrorBadRequest:
		return "the chat room rejected the join request"
	default:
		return "an unknown error occurred while joining the chat room"
	}
}

// ParseJoinError maps a transport condition code to the taxonomy.
// Anything unrecognized degrades to unknown rather than failing.
func ParseJoinError(code string) JoinError {
	switch code {
	case "password-required", "not-authorized":
		return JoinErrorPasswordRequired
	case "banned":
		return JoinErrorBanned
	case "room-not-found", "item-not-found":
		return JoinErrorRoomNotFound
	case "nick-in-use", "conflict":
		return JoinErrorNickInUse
	case "max-users":
		return JoinErrorMaxUsers
	case "timed-out":
		return JoinErrorTimedOut
	case "canceled":
		return JoinErrorCanceled
	case "unauthorized", "registration-required":
		return JoinErrorUnauthorized
	case "forbidden":
		return JoinErrorForbidden
	case "bad-request":
		return JoinErrorBadRequest
	default:
		return JoinErrorUnknown
	}
}
