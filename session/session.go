// Package session holds the top-level coordinator: the only component
// that owns protocol instances. It fans their events out to the rest
// of the application, keeps the global connection counters, and routes
// outgoing messages to the right account.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"im-session/domain"
	"im-session/domain/event"
	imerrors "im-session/errors"
	"im-session/managers"
	"im-session/protocol"
)

// ProtocolFactory builds the protocol instance for one account.
type ProtocolFactory func(account *domain.Account) protocol.Protocol

// accountPhase tracks which counter an account currently occupies, so
// a disconnect decrements the right one even when events arrive out of
// order.
type accountPhase int

const (
	phaseOffline accountPhase = iota
	phaseConnecting
	phaseConnected
)

// Session aggregates all accounts' connections behind one event
// stream, one unified contact list, and one presence setter.
type Session struct {
	log       *slog.Logger
	emitter   *event.Emitter
	accounts  *managers.AccountManager
	contacts  *managers.ContactManager
	chatrooms *managers.ChatroomManager
	factory   ProtocolFactory

	mu             sync.Mutex
	protocols      map[*domain.Account]protocol.Protocol
	phases         map[*domain.Account]accountPhase
	connectedSince map[*domain.Account]time.Time
	connecting     int
	connected      int
}

// NewSession wires the coordinator to its managers. It subscribes to
// the account manager's events so protocols appear and disappear with
// their accounts, and registers every already-known account.
func NewSession(log *slog.Logger, accounts *managers.AccountManager, contacts *managers.ContactManager, chatrooms *managers.ChatroomManager, factory ProtocolFactory, emitter *event.Emitter) *Session {
	s := &Session{
		log:            log,
		emitter:        emitter,
		accounts:       accounts,
		contacts:       contacts,
		chatrooms:      chatrooms,
		factory:        factory,
		protocols:      make(map[*domain.Account]protocol.Protocol),
		phases:         make(map[*domain.Account]accountPhase),
		connectedSince: make(map[*domain.Account]time.Time),
	}

	emitter.SubscribeFunc(event.AccountAddedType, func(e event.Event) {
		if p, ok := e.Payload.(event.AccountAdded); ok {
			s.AddAccount(p.Account)
		}
	})
	emitter.SubscribeFunc(event.AccountRemovedType, func(e event.Event) {
		if p, ok := e.Payload.(event.AccountRemoved); ok {
			s.RemoveAccount(p.Account)
		}
	})

	for _, account := range accounts.All() {
		s.AddAccount(account)
	}
	return s
}

// AddAccount binds a fresh protocol to the account and wires its
// events into the session. Idempotent.
func (s *Session) AddAccount(account *domain.Account) {
	s.mu.Lock()
	if _, tracked := s.protocols[account]; tracked {
		s.mu.Unlock()
		return
	}
	p := s.factory(account)
	s.protocols[account] = p
	s.phases[account] = phaseOffline
	s.mu.Unlock()

	p.Subscribe(event.HandlerFunc(func(e event.Event) {
		s.handleProtocolEvent(account, e)
	}))
}

// RemoveAccount detaches and releases the protocol. It does not log
// the account out; callers disconnect first.
func (s *Session) RemoveAccount(account *domain.Account) {
	s.mu.Lock()
	delete(s.protocols, account)
	delete(s.phases, account)
	delete(s.connectedSince, account)
	s.mu.Unlock()

	s.contacts.RemoveAccount(account)
}

// Protocol exposes the connection bound to an account, or nil.
func (s *Session) Protocol(account *domain.Account) protocol.Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocols[account]
}

// Connect starts connections. With an account it connects just that
// one. With none: when every account agrees on its auto-connect flag,
// all are connected; with mixed flags only the auto-connecting ones
// are. The startup flag restricts to auto-connecting accounts
// regardless. This heuristic gives "connect everything" and "connect
// what's configured to auto-start" without a separate control; keep it
// as is.
func (s *Session) Connect(ctx context.Context, account *domain.Account, startup bool) {
	if account != nil {
		s.connectOne(ctx, account)
		return
	}

	all := s.accounts.All()
	if len(all) == 0 {
		return
	}
	uniform := lo.EveryBy(all, func(a *domain.Account) bool { return a.AutoConnect == all[0].AutoConnect })
	for _, a := range all {
		if startup || !uniform {
			if !a.AutoConnect {
				continue
			}
		}
		s.connectOne(ctx, a)
	}
}

func (s *Session) connectOne(ctx context.Context, account *domain.Account) {
	p := s.Protocol(account)
	if p == nil {
		s.log.Warn("Connect requested for untracked account", "account", account.Name)
		return
	}
	if err := p.Login(ctx); err != nil {
		s.log.Warn("Login refused", "account", account.Name, "error", err)
	}
}

// Disconnect logs out one account, or all of them when nil.
func (s *Session) Disconnect(account *domain.Account) {
	if account != nil {
		if p := s.Protocol(account); p != nil {
			p.Logout()
		}
		return
	}
	s.mu.Lock()
	protocols := make([]protocol.Protocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		protocols = append(protocols, p)
	}
	s.mu.Unlock()
	for _, p := range protocols {
		p.Logout()
	}
}

// ConnectedDuration reports how long the account has been connected,
// or zero when it is not.
func (s *Session) ConnectedDuration(account *domain.Account) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	since, ok := s.connectedSince[account]
	if !ok {
		return 0
	}
	return time.Since(since)
}

// ConnectedCount returns the number of currently connected accounts.
func (s *Session) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ConnectingCount returns the number of accounts mid-login.
func (s *Session) ConnectingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting
}

// Contacts is the unified list aggregated across all active protocols.
func (s *Session) Contacts() []*domain.Contact {
	s.mu.Lock()
	protocols := make([]protocol.Protocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		protocols = append(protocols, p)
	}
	s.mu.Unlock()

	var out []*domain.Contact
	for _, p := range protocols {
		out = append(out, p.Contacts()...)
	}
	return out
}

// SetPresence applies one presence to every connected account.
func (s *Session) SetPresence(state domain.PresenceState, status string) {
	s.mu.Lock()
	protocols := make([]protocol.Protocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		protocols = append(protocols, p)
	}
	s.mu.Unlock()

	for _, p := range protocols {
		if !p.IsConnected() {
			continue
		}
		if err := p.SetPresence(state, status); err != nil {
			s.log.Warn("Presence update failed", "error", err)
		}
	}
}

// SendMessage resolves the sending account from the message's sender
// contact, then delegates to that account's protocol. An unresolvable
// sender fails locally: logged, not retried.
func (s *Session) SendMessage(msg *domain.Message) error {
	account := s.FindAccountForOwnContact(msg.From)
	if account == nil {
		s.log.Warn("Dropping message with unresolvable sender")
		return imerrors.ErrNoAccount
	}
	p := s.Protocol(account)
	if p == nil {
		return imerrors.ErrNoAccount
	}
	if err := p.SendMessage(msg); err != nil {
		return err
	}
	s.emitter.Emit(event.Event{Type: event.MessageSentType, Payload: event.MessageSent{
		Message: msg,
		Own:     s.contacts.OwnContact(account),
	}})
	return nil
}

// SendComposing forwards a typing notification on the right account.
func (s *Session) SendComposing(own, to *domain.Contact, composing bool) error {
	account := s.FindAccountForOwnContact(own)
	if account == nil {
		return imerrors.ErrNoAccount
	}
	p := s.Protocol(account)
	if p == nil {
		return imerrors.ErrNoAccount
	}
	return p.SendComposing(to, composing)
}

// FindAccountForOwnContact matches by own-contact identity.
func (s *Session) FindAccountForOwnContact(contact *domain.Contact) *domain.Account {
	if contact == nil {
		return nil
	}
	s.mu.Lock()
	accounts := make([]*domain.Account, 0, len(s.protocols))
	for a := range s.protocols {
		accounts = append(accounts, a)
	}
	s.mu.Unlock()

	for _, a := range accounts {
		if s.contacts.OwnContact(a).Equal(contact) {
			return a
		}
	}
	return nil
}

// FindAccount asks each protocol whether it knows the contact's id and
// then checks identity equality. The indirection exists because a
// contact's account reference is not trustworthy before the protocol
// has resolved it.
func (s *Session) FindAccount(contact *domain.Contact) *domain.Account {
	if contact == nil {
		return nil
	}
	s.mu.Lock()
	pairs := make(map[*domain.Account]protocol.Protocol, len(s.protocols))
	for a, p := range s.protocols {
		pairs[a] = p
	}
	s.mu.Unlock()

	for a, p := range pairs {
		known := p.FindContact(contact.ID())
		if known != nil && known.Equal(contact) {
			return a
		}
	}
	return nil
}

// handleProtocolEvent maintains the counters and timers, dispatches
// chat-room auto-joins, and re-emits everything on the session stream.
func (s *Session) handleProtocolEvent(account *domain.Account, e event.Event) {
	switch e.Type {
	case event.ConnectingType:
		s.mu.Lock()
		s.phases[account] = phaseConnecting
		s.connecting++
		s.mu.Unlock()

	case event.ConnectedType:
		s.mu.Lock()
		s.decrementLocked(&s.connecting, "connecting")
		s.phases[account] = phaseConnected
		s.connected++
		edge := s.connected == 1
		s.connectedSince[account] = time.Now()
		s.mu.Unlock()

		s.emitter.Emit(e)
		if edge {
			s.emitter.Emit(event.Event{Type: event.SessionConnectedType})
		}
		s.autoJoinRooms(account)
		return

	case event.DisconnectedType:
		s.mu.Lock()
		wasConnected := s.phases[account] == phaseConnected
		switch s.phases[account] {
		case phaseConnected:
			s.decrementLocked(&s.connected, "connected")
		case phaseConnecting:
			s.decrementLocked(&s.connecting, "connecting")
		default:
			s.log.Warn("Disconnect without matching connect", "account", account.Name)
		}
		s.phases[account] = phaseOffline
		edge := wasConnected && s.connected == 0
		delete(s.connectedSince, account)
		s.mu.Unlock()

		s.emitter.Emit(e)
		if edge {
			s.emitter.Emit(event.Event{Type: event.SessionDisconnectedType})
		}
		return

	case event.NewMessageType:
		// Attach the conversation anchor before re-emitting.
		if p, ok := e.Payload.(event.NewMessage); ok && p.Own == nil {
			p.Own = s.contacts.OwnContact(account)
			e.Payload = p
		}
	}

	s.emitter.Emit(e)
}

// decrementLocked clamps at zero: a negative counter is a programming
// error, logged and ignored so one bookkeeping glitch cannot take the
// whole session down.
func (s *Session) decrementLocked(counter *int, name string) {
	if *counter <= 0 {
		s.log.Warn("Connection counter would go negative, clamping", "counter", name)
		*counter = 0
		return
	}
	*counter--
}

func (s *Session) autoJoinRooms(account *domain.Account) {
	for _, room := range s.chatrooms.ByAccount(account) {
		if !room.AutoConnect() {
			continue
		}
		s.emitter.Emit(event.Event{Type: event.ChatroomAutoConnectType, Payload: event.ChatroomAutoConnect{Chatroom: room}})
	}
}
