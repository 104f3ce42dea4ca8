package protocol_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"im-session/contract"
	"im-session/domain"
	"im-session/domain/event"
	imerrors "im-session/errors"
	"im-session/protocol"
	"im-session/transport"
)

func testLogger() *slog.Logger {
	// Silencing logs for clean test output
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver is an in-memory contract.ContactResolver.
type fakeResolver struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
	own      map[string]*domain.Contact
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		contacts: make(map[string]*domain.Contact),
		own:      make(map[string]*domain.Contact),
	}
}

func (f *fakeResolver) FindOrCreate(account *domain.Account, typ domain.ContactType, id string) (*domain.Contact, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", typ, id)
	if c, ok := f.contacts[key]; ok {
		return c, false
	}
	c := domain.NewContact(account, typ, id)
	f.contacts[key] = c
	return c, true
}

func (f *fakeResolver) OwnContact(account *domain.Account) *domain.Contact {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.own[account.ID]; ok {
		return c
	}
	c := domain.NewContact(account, domain.ContactUser, account.ID)
	f.own[account.ID] = c
	return c
}

// recorder collects every event the client emits.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t event.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t event.Type) (event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return event.Event{}, false
}

type clientFixture struct {
	client    *protocol.Client
	loopback  *transport.Loopback
	resolver  *fakeResolver
	recording *recorder
	account   *domain.Account
}

func newClientFixture(t *testing.T, configure func(*transport.Loopback)) *clientFixture {
	t.Helper()
	account := &domain.Account{Name: "alice", ID: "alice@example.org", Password: "hunter2"}
	loopback := transport.NewLoopback()
	if configure != nil {
		configure(loopback)
	}
	resolver := newFakeResolver()
	client := protocol.NewClient(testLogger(), account,
		func(*domain.Account) contract.Transport { return loopback },
		resolver, nil)

	rec := &recorder{}
	client.Subscribe(rec)
	return &clientFixture{
		client:    client,
		loopback:  loopback,
		resolver:  resolver,
		recording: rec,
		account:   account,
	}
}

func (f *clientFixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.client.Login(context.Background()))
	require.Eventually(t, f.client.IsConnected, time.Second, 5*time.Millisecond)
}

func Test_Login_Connects_And_Fetches_The_Roster(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, func(l *transport.Loopback) {
		l.Roster = []contract.WireRosterItem{
			{ID: "bob@example.org", Name: "Bob", Subscription: "both", Groups: []string{"friends"}},
		}
	})

	req.Equal(protocol.StateDisconnected, f.client.State())
	f.login(t)

	req.Equal(1, f.recording.count(event.ConnectingType))
	req.Equal(1, f.recording.count(event.ConnectedType))

	req.Eventually(func() bool {
		return f.client.FindContact("bob@example.org") != nil
	}, time.Second, 5*time.Millisecond)

	bob := f.client.FindContact("bob@example.org")
	req.Equal("Bob", bob.Name())
	req.Equal(domain.SubscriptionBoth, bob.Subscription())
	req.Equal([]string{"friends"}, bob.Groups())
	req.Len(f.client.Contacts(), 1)
}

func Test_Second_Login_While_Connected_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	req.ErrorIs(f.client.Login(context.Background()), imerrors.ErrAlreadyConnected)
}

func Test_Failed_Authentication_Surfaces_As_Events(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, func(l *transport.Loopback) { l.FailAuth = true })

	req.NoError(f.client.Login(context.Background()))
	req.Eventually(func() bool {
		return f.recording.count(event.DisconnectedType) == 1
	}, time.Second, 5*time.Millisecond)

	req.Equal(1, f.recording.count(event.ProtocolErrorType))
	req.Equal(protocol.StateDisconnected, f.client.State())

	e, ok := f.recording.last(event.ProtocolErrorType)
	req.True(ok)
	payload := e.Payload.(event.ProtocolError)
	req.ErrorIs(payload.Err, transport.ErrRefused)
}

func Test_Logout_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	f.client.Logout()
	f.client.Logout()

	req.Equal(protocol.StateDisconnected, f.client.State())
	req.Equal(1, f.recording.count(event.DisconnectedType))
}

func Test_Sending_While_Disconnected_Fails(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)

	to := domain.NewContact(f.account, domain.ContactList, "bob@example.org")
	msg := domain.NewMessage(f.resolver.OwnContact(f.account), to, "hello")
	req.ErrorIs(f.client.SendMessage(msg), imerrors.ErrNotConnected)
	req.ErrorIs(f.client.SetPresence(domain.PresenceAway, "brb"), imerrors.ErrNotConnected)
}

func Test_Incoming_Message_Creates_A_Temporary_Contact(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WireMessage, Message: &contract.WireMessageEvent{
		From: "carol@example.org/phone",
		Body: "hi there",
	}})

	req.Eventually(func() bool {
		return f.recording.count(event.NewMessageType) == 1
	}, time.Second, 5*time.Millisecond)

	e, _ := f.recording.last(event.NewMessageType)
	msg := e.Payload.(event.NewMessage).Message
	req.Equal("hi there", msg.Body)
	req.Equal(domain.MessageChat, msg.Type)
	// The sender is registered under its bare id.
	req.Equal("carol@example.org", msg.From.ID())
	req.Equal(domain.ContactTemporary, msg.From.Type)
}

func Test_Message_Echo_Round_Trip(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	to := domain.NewContact(f.account, domain.ContactList, "bob@example.org")
	msg := domain.NewMessage(f.resolver.OwnContact(f.account), to, "ping")
	req.NoError(f.client.SendMessage(msg))

	// The loopback peer echoes chat messages straight back.
	req.Eventually(func() bool {
		return f.recording.count(event.NewMessageType) == 1
	}, time.Second, 5*time.Millisecond)

	e, _ := f.recording.last(event.NewMessageType)
	req.Equal("ping", e.Payload.(event.NewMessage).Message.Body)
}

func Test_Presence_Updates_Roster_Contacts(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, func(l *transport.Loopback) {
		l.Roster = []contract.WireRosterItem{{ID: "bob@example.org", Subscription: "both"}}
	})
	f.login(t)
	req.Eventually(func() bool {
		return f.client.FindContact("bob@example.org") != nil
	}, time.Second, 5*time.Millisecond)

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WirePresence, Presence: &contract.WirePresenceEvent{
		From:     "bob@example.org/desk",
		Show:     "away",
		Status:   "lunch",
		Priority: 5,
	}})

	bob := f.client.FindContact("bob@example.org")
	req.Eventually(func() bool { return bob.Online() }, time.Second, 5*time.Millisecond)

	top := bob.TopPresence()
	req.Equal(domain.PresenceAway, top.State)
	req.Equal("lunch", top.Status)
	req.Equal("desk", f.client.ActiveResource(bob))

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WirePresence, Presence: &contract.WirePresenceEvent{
		From:        "bob@example.org/desk",
		Unavailable: true,
	}})
	req.Eventually(func() bool { return !bob.Online() }, time.Second, 5*time.Millisecond)
}

func Test_Join_Confirms_And_Join_Error_Marks_The_Room(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	lobby := domain.NewChatroom(f.account, "conference.example.org", "lobby")
	lobby.SetNick("alice")
	req.NoError(f.client.JoinRoom(lobby))
	// The loopback confirms the join immediately.
	req.Eventually(func() bool {
		return lobby.Status() == domain.ChatroomActive
	}, time.Second, 5*time.Millisecond)

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WireJoinError, JoinError: &contract.WireJoinErrorEvent{
		Room: lobby.IDString(),
		Code: "banned",
	}})
	req.Eventually(func() bool {
		return lobby.Status() == domain.ChatroomError
	}, time.Second, 5*time.Millisecond)
	req.ErrorIs(lobby.LastError(), protocol.JoinErrorBanned)
	req.Equal(1, f.recording.count(event.ProtocolErrorType))
}

func Test_Occupants_Track_The_Joined_Set(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	lobby := domain.NewChatroom(f.account, "conference.example.org", "lobby")
	lobby.SetNick("alice")
	req.NoError(f.client.JoinRoom(lobby))

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WireOccupant, Occupant: &contract.WireOccupantEvent{
		Room: lobby.IDString(),
		Nick: "carol",
		Role: "moderator",
	}})
	req.Eventually(func() bool { return lobby.Occupants() == 1 }, time.Second, 5*time.Millisecond)

	carol := lobby.FindJoined(lobby.IDString() + "/carol")
	req.NotNil(carol)
	req.Equal(domain.RoleModerator, lobby.Joined()[carol].Role)

	f.loopback.Deliver(contract.WireEvent{Kind: contract.WireOccupant, Occupant: &contract.WireOccupantEvent{
		Room: lobby.IDString(),
		Nick: "carol",
		Left: true,
	}})
	req.Eventually(func() bool { return lobby.Occupants() == 0 }, time.Second, 5*time.Millisecond)
}

func Test_Disconnect_Resets_Rooms_And_Pending_Requests(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	lobby := domain.NewChatroom(f.account, "conference.example.org", "lobby")
	req.NoError(f.client.JoinRoom(lobby))
	req.Eventually(func() bool {
		return lobby.Status() == domain.ChatroomActive
	}, time.Second, 5*time.Millisecond)

	f.client.Logout()
	req.Equal(domain.ChatroomInactive, lobby.Status())
}

func Test_Version_Request_Completes_Through_The_Wire(t *testing.T) {
	req := require.New(t)
	f := newClientFixture(t, nil)
	f.login(t)

	bob := domain.NewContact(f.account, domain.ContactList, "bob@example.org")
	done := make(chan string, 1)
	_, err := f.client.RequestVersion(bob, func(version string, err error) {
		req.NoError(err)
		done <- version
	})
	req.NoError(err)

	select {
	case version := <-done:
		req.Equal("loopback", version)
	case <-time.After(time.Second):
		t.Fatal("version request never completed")
	}
}

// silentTransport accepts everything and answers nothing, for
// exercising in-flight request cancellation.
type silentTransport struct {
	events chan contract.WireEvent
}

func (s *silentTransport) Open(context.Context, contract.TransportConfig) error { return nil }
func (s *silentTransport) Authenticate(context.Context, string, string, string) error {
	return nil
}
func (s *silentTransport) Send(contract.WireNode) error      { return nil }
func (s *silentTransport) Close() error                      { return nil }
func (s *silentTransport) Events() <-chan contract.WireEvent { return s.events }

func Test_Canceled_Request_Fires_Continuation_Once(t *testing.T) {
	req := require.New(t)
	account := &domain.Account{Name: "alice", ID: "alice@example.org", Password: "hunter2"}
	silent := &silentTransport{events: make(chan contract.WireEvent)}
	client := protocol.NewClient(testLogger(), account,
		func(*domain.Account) contract.Transport { return silent },
		newFakeResolver(), nil)
	req.NoError(client.Login(context.Background()))
	req.Eventually(client.IsConnected, time.Second, 5*time.Millisecond)

	var mu sync.Mutex
	var errs []error
	r, err := client.RequestVCard(domain.NewContact(account, domain.ContactList, "bob@example.org"),
		func(_ *domain.VCard, err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		})
	req.NoError(err)

	r.Cancel()
	r.Cancel()

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	req.Len(errs, 1)
	req.ErrorIs(errs[0], imerrors.ErrRequestCanceled)
}
