// Package protocol defines the per-account connection contract: a
// state machine over an abstract transport, polymorphic over the
// capability set a concrete wire protocol implements. Wire grammar is
// the transport's business; this package only owns states, events, and
// bookkeeping.
package protocol

import (
	"context"

	"im-session/domain"
	"im-session/domain/event"
)

// State is the connection lifecycle of one account.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Protocol is the capability contract one connected account fulfils.
// Concrete variants may implement only part of it; unimplemented
// operations are no-ops (embed Base), not errors.
type Protocol interface {
	Account() *domain.Account
	State() State
	IsConnected() bool

	// Login moves Disconnected -> Connecting and drives the transport
	// open + authenticate sequence asynchronously; progress and
	// failure surface as events, never as silent state.
	Login(ctx context.Context) error
	// Logout is idempotent; calling it while disconnected is a no-op.
	Logout()

	SendMessage(msg *domain.Message) error
	SendComposing(contact *domain.Contact, composing bool) error
	SetPresence(state domain.PresenceState, status string) error

	AddContact(id, name string, groups []string) error
	RenameContact(contact *domain.Contact, name string) error
	RemoveContact(contact *domain.Contact) error
	ActiveResource(contact *domain.Contact) string
	FindContact(id string) *domain.Contact
	Contacts() []*domain.Contact

	RegisterAccount(username, password string, cb func(error)) (*Request, error)
	ChangePassword(newPassword string, cb func(error)) (*Request, error)
	RequestVCard(contact *domain.Contact, cb func(*domain.VCard, error)) (*Request, error)
	PublishVCard(card *domain.VCard) error
	RequestVersion(contact *domain.Contact, cb func(string, error)) (*Request, error)

	JoinRoom(room *domain.Chatroom) error
	LeaveRoom(room *domain.Chatroom) error
	SendRoomMessage(room *domain.Chatroom, body string) error

	// Subscribe attaches a handler to every event this connection
	// raises. The session is the primary subscriber.
	Subscribe(h event.Handler)
}

// PasswordFunc is the synchronous get-password upcall, consulted when
// an account has no stored credential at login time.
type PasswordFunc func(account *domain.Account) string

// Base is a Protocol with every operation stubbed out. Partial wire
// implementations embed it so missing capabilities degrade to no-ops.
type Base struct{}

func (Base) Account() *domain.Account          { return nil }
func (Base) State() State                      { return StateDisconnected }
func (Base) IsConnected() bool                 { return false }
func (Base) Login(context.Context) error       { return nil }
func (Base) Logout()                           {}
func (Base) SendMessage(*domain.Message) error { return nil }
func (Base) SendComposing(*domain.Contact, bool) error {
	return nil
}
func (Base) SetPresence(domain.PresenceState, string) error { return nil }
func (Base) AddContact(string, string, []string) error      { return nil }
func (Base) RenameContact(*domain.Contact, string) error    { return nil }
func (Base) RemoveContact(*domain.Contact) error            { return nil }
func (Base) ActiveResource(*domain.Contact) string          { return "" }
func (Base) FindContact(string) *domain.Contact             { return nil }
func (Base) Contacts() []*domain.Contact                    { return nil }
func (Base) RegisterAccount(string, string, func(error)) (*Request, error) {
	return nil, nil
}
func (Base) ChangePassword(string, func(error)) (*Request, error) {
	return nil, nil
}
func (Base) RequestVCard(*domain.Contact, func(*domain.VCard, error)) (*Request, error) {
	return nil, nil
}
func (Base) PublishVCard(*domain.VCard) error { return nil }
func (Base) RequestVersion(*domain.Contact, func(string, error)) (*Request, error) {
	return nil, nil
}
func (Base) JoinRoom(*domain.Chatroom) error               { return nil }
func (Base) LeaveRoom(*domain.Chatroom) error              { return nil }
func (Base) SendRoomMessage(*domain.Chatroom, string) error { return nil }
func (Base) Subscribe(event.Handler)                        {}
