//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"im-session/domain"
	"im-session/domain/event"
)

// EventSink consumes session events. The UI is one sink, the transcript
// logger another.
type EventSink interface {
	Consume(e event.Event)
}

// SecretStore is the external credential collaborator. When present,
// account passwords live here instead of inside accounts.xml.
type SecretStore interface {
	// Password returns the stored credential for an account id and
	// whether one exists. An empty stored value is treated as absent.
	Password(accountID string) (string, bool)
	SetPassword(accountID, password string) error
	DeletePassword(accountID string) error
}

// ContactResolver is the slice of the ContactManager a protocol
// connection needs: find-or-create by identity and the own contact.
type ContactResolver interface {
	FindOrCreate(account *domain.Account, typ domain.ContactType, id string) (*domain.Contact, bool)
	OwnContact(account *domain.Account) *domain.Contact
}

// TranscriptWriter receives every delivered and sent chat message.
// Everything past this call is the logging subsystem's business.
type TranscriptWriter interface {
	Record(own *domain.Contact, msg *domain.Message, incoming bool) error
}

// NodeKind tags an outgoing wire node. Stanza grammar is the
// transport's concern; the protocol layer only names intents.
type NodeKind int

const (
	NodeMessage NodeKind = iota
	NodeComposing
	NodePresence
	NodeRosterGet
	NodeRosterAdd
	NodeRosterRename
	NodeRosterRemove
	NodeJoin
	NodeLeave
	NodeRoomMessage
	NodeRegister
	NodeChangePassword
	NodeVCardGet
	NodeVCardSet
	NodeVersionGet
)

// WireNode is an intent handed to the transport for encoding.
type WireNode struct {
	Kind      NodeKind
	ID        string // request correlation id, empty for fire-and-forget
	To        string
	Body      string
	Subject   string
	Groupchat bool
	Active    bool // composing state
	Name      string
	Groups    []string
	Show      string
	Status    string
	Priority  int
	Nick      string
	Password  string
	VCard     *domain.VCard
}

// WireKind tags an incoming transport event.
type WireKind int

const (
	WireMessage WireKind = iota
	WirePresence
	WireComposing
	WireRoster
	WireJoined
	WireJoinError
	WireOccupant
	WireResult
	WireDisconnect
)

type WireMessageEvent struct {
	From      string
	Body      string
	Subject   string
	Groupchat bool
}

type WirePresenceEvent struct {
	From        string
	Resource    string
	Show        string
	Status      string
	Priority    int
	Unavailable bool
}

type WireComposingEvent struct {
	From   string
	Active bool
}

type WireRosterItem struct {
	ID           string
	Name         string
	Subscription string
	Groups       []string
}

type WireJoinedEvent struct {
	Room string // room@server
	Nick string
}

type WireJoinErrorEvent struct {
	Room string
	Code string
}

type WireOccupantEvent struct {
	Room        string
	Nick        string
	Role        string
	Affiliation string
	Left        bool
}

// WireResultEvent completes a correlated request (registration,
// password change, vcard, version).
type WireResultEvent struct {
	ID      string
	Err     string
	VCard   *domain.VCard
	Version string
}

type WireDisconnectEvent struct {
	Reason string
}

// WireEvent is one incoming transport event; exactly one of the
// payload pointers matching Kind is set (Roster uses the slice).
type WireEvent struct {
	Kind       WireKind
	Message    *WireMessageEvent
	Presence   *WirePresenceEvent
	Composing  *WireComposingEvent
	Roster     []WireRosterItem
	Joined     *WireJoinedEvent
	JoinError  *WireJoinErrorEvent
	Occupant   *WireOccupantEvent
	Result     *WireResultEvent
	Disconnect *WireDisconnectEvent
}

// TransportConfig is everything a transport needs to reach a server.
type TransportConfig struct {
	Server   string
	Port     int
	UseSSL   bool
	UseProxy bool
}

// Transport is the wire collaborator: open, authenticate, send, close,
// plus a channel of decoded incoming events. The channel is closed when
// the connection drops; events arrive in wire order.
type Transport interface {
	Open(ctx context.Context, cfg TransportConfig) error
	Authenticate(ctx context.Context, id, password, resource string) error
	Send(node WireNode) error
	Close() error
	Events() <-chan WireEvent
}

// TransportFactory builds a fresh transport per login attempt.
type TransportFactory func(account *domain.Account) Transport
