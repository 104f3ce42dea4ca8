// Package event carries the typed notifications the session layer
// emits instead of ad-hoc callbacks. Every public mutation of an
// account, contact, chatroom, protocol, or the session itself is
// announced here; the UI and the transcript logger are just two of the
// subscribers.
package event

import "im-session/domain"

type Type string

const (
	AccountAddedType   Type = "ACCOUNT_ADDED"
	AccountRemovedType Type = "ACCOUNT_REMOVED"

	ContactAddedType   Type = "CONTACT_ADDED"
	ContactUpdatedType Type = "CONTACT_UPDATED"
	ContactRemovedType Type = "CONTACT_REMOVED"

	ChatroomAddedType       Type = "CHATROOM_ADDED"
	ChatroomRemovedType     Type = "CHATROOM_REMOVED"
	ChatroomUpdatedType     Type = "CHATROOM_UPDATED"
	ChatroomAutoConnectType Type = "CHATROOM_AUTO_CONNECT"

	ConnectingType    Type = "CONNECTING"
	ConnectedType     Type = "CONNECTED"
	DisconnectingType Type = "DISCONNECTING"
	DisconnectedType  Type = "DISCONNECTED"

	SessionConnectedType    Type = "SESSION_CONNECTED"
	SessionDisconnectedType Type = "SESSION_DISCONNECTED"

	NewMessageType    Type = "NEW_MESSAGE"
	MessageSentType   Type = "MESSAGE_SENT"
	ComposingType     Type = "COMPOSING"
	ProtocolErrorType Type = "PROTOCOL_ERROR"
)

// Event pairs a Type with its payload. Payloads are the structs below;
// handlers type-switch on them.
type Event struct {
	Type    Type
	Payload any
}

// Handler consumes events. Each kind of subscriber has its own handler.
type Handler interface {
	Handle(event Event)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(Event)

func (f HandlerFunc) Handle(e Event) { f(e) }

type AccountAdded struct{ Account *domain.Account }

type AccountRemoved struct{ Account *domain.Account }

type ContactAdded struct{ Contact *domain.Contact }

type ContactUpdated struct{ Contact *domain.Contact }

type ContactRemoved struct{ Contact *domain.Contact }

type ChatroomAdded struct{ Chatroom *domain.Chatroom }

type ChatroomRemoved struct{ Chatroom *domain.Chatroom }

type ChatroomUpdated struct{ Chatroom *domain.Chatroom }

// ChatroomAutoConnect asks the chat-room provider layer to join one
// room; the session raises one per auto-connecting room when its
// account comes up.
type ChatroomAutoConnect struct{ Chatroom *domain.Chatroom }

type Connecting struct{ Account *domain.Account }

type Connected struct{ Account *domain.Account }

type Disconnecting struct{ Account *domain.Account }

type Disconnected struct {
	Account *domain.Account
	Reason  string
}

// NewMessage is a delivered incoming message. Own is the receiving
// account's own contact, filled in by the session for subscribers that
// need the conversation anchor (the transcript logger).
type NewMessage struct {
	Message *domain.Message
	Own     *domain.Contact
}

// MessageSent mirrors NewMessage for the outgoing direction.
type MessageSent struct {
	Message *domain.Message
	Own     *domain.Contact
}

type Composing struct {
	Contact   *domain.Contact
	Composing bool
}

// ProtocolError is a transport or authentication failure surfaced from
// one account's connection. Never swallowed, never auto-retried.
type ProtocolError struct {
	Account *domain.Account
	Err     error
}
