package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"im-session/contract"
	"im-session/domain"
	"im-session/domain/event"
	imerrors "im-session/errors"
)

// Client is the generic connection state machine: it drives one
// account's transport through Disconnected -> Connecting -> Connected
// -> Disconnecting -> Disconnected, translates wire events into domain
// events, and keeps the roster and joined rooms for this connection.
//
// Each Client owns one reader goroutine per connection; events from a
// single connection are delivered in wire order. Nothing here blocks
// on another account's connection.
type Client struct {
	log      *slog.Logger
	account  *domain.Account
	factory  contract.TransportFactory
	contacts contract.ContactResolver
	emitter  *event.Emitter
	password PasswordFunc

	mu        sync.Mutex
	state     State
	transport contract.Transport
	cancel    context.CancelFunc
	roster    map[string]*domain.Contact
	rooms     map[string]*domain.Chatroom
	pending   map[string]*Request
	reqSeq    int
}

var _ Protocol = (*Client)(nil)

func NewClient(log *slog.Logger, account *domain.Account, factory contract.TransportFactory, contacts contract.ContactResolver, password PasswordFunc) *Client {
	return &Client{
		log:      log.With("account", account.Name),
		account:  account,
		factory:  factory,
		contacts: contacts,
		emitter:  event.NewEmitter(),
		password: password,
		roster:   make(map[string]*domain.Contact),
		rooms:    make(map[string]*domain.Chatroom),
		pending:  make(map[string]*Request),
	}
}

func (c *Client) Account() *domain.Account { return c.account }

func (c *Client) Subscribe(h event.Handler) { c.emitter.SubscribeAll(h) }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// Login opens the transport and authenticates asynchronously. It
// returns an error only when called in the wrong state or without a
// transport; connection failures surface as error + disconnected
// events so the session's bookkeeping sees them.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return imerrors.ErrAlreadyConnected
	}
	if c.factory == nil {
		c.mu.Unlock()
		return imerrors.ErrTransportRequired
	}
	transport := c.factory(c.account)
	loginCtx, cancel := context.WithCancel(ctx)
	c.transport = transport
	c.cancel = cancel
	c.state = StateConnecting
	c.mu.Unlock()

	c.emit(event.ConnectingType, event.Connecting{Account: c.account})
	go c.connect(loginCtx, transport)
	return nil
}

func (c *Client) connect(ctx context.Context, transport contract.Transport) {
	server := c.account.Server
	if server == "" {
		server = c.account.Host()
	}
	cfg := contract.TransportConfig{
		Server:   server,
		Port:     c.account.Port,
		UseSSL:   c.account.UseSSL,
		UseProxy: c.account.UseProxy,
	}
	if err := transport.Open(ctx, cfg); err != nil {
		c.loginFailed(fmt.Errorf("opening transport: %w", err))
		return
	}

	password := c.account.Password
	if password == "" && c.password != nil {
		// Synchronous upcall: no stored credential, ask the host.
		password = c.password(c.account)
	}
	if err := transport.Authenticate(ctx, c.account.ID, password, c.account.Resource); err != nil {
		_ = transport.Close()
		c.loginFailed(fmt.Errorf("authenticating: %w", err))
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Logout won the race; the transport is already closed.
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()

	c.emit(event.ConnectedType, event.Connected{Account: c.account})
	go c.readLoop(transport)
	if err := transport.Send(contract.WireNode{Kind: contract.NodeRosterGet}); err != nil {
		c.log.Warn("Roster request failed", "error", err)
	}
}

func (c *Client) loginFailed(err error) {
	c.mu.Lock()
	if c.state != StateConnecting {
		// A concurrent Logout already owns the teardown.
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.transport = nil
	c.mu.Unlock()

	c.log.Warn("Login failed", "error", err)
	c.emit(event.ProtocolErrorType, event.ProtocolError{Account: c.account, Err: err})
	c.emit(event.DisconnectedType, event.Disconnected{Account: c.account, Reason: err.Error()})
}

// Logout is idempotent: calling it while already disconnected is a
// no-op. A connect still in flight is canceled.
func (c *Client) Logout() {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateDisconnecting {
		c.mu.Unlock()
		return
	}
	transport := c.transport
	cancel := c.cancel
	c.state = StateDisconnecting
	c.mu.Unlock()

	c.emit(event.DisconnectingType, event.Disconnecting{Account: c.account})
	if cancel != nil {
		cancel()
	}
	if transport != nil {
		_ = transport.Close()
	}
	c.finishDisconnect("disconnected by user")
}

// finishDisconnect is the single convergence point back to
// Disconnected; both Logout and the reader goroutine call it and the
// second call is a no-op.
func (c *Client) finishDisconnect(reason string) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.transport = nil
	rooms := c.rooms
	c.rooms = make(map[string]*domain.Chatroom)
	pending := c.pending
	c.pending = make(map[string]*Request)
	c.mu.Unlock()

	for _, room := range rooms {
		room.SetStatus(domain.ChatroomInactive)
	}
	for _, req := range pending {
		req.complete(nil, imerrors.ErrNotConnected)
	}
	c.emit(event.DisconnectedType, event.Disconnected{Account: c.account, Reason: reason})
}

func (c *Client) readLoop(transport contract.Transport) {
	for wire := range transport.Events() {
		switch wire.Kind {
		case contract.WireRoster:
			for _, item := range wire.Roster {
				c.handleRosterItem(item)
			}
		case contract.WireMessage:
			c.handleMessage(wire.Message)
		case contract.WirePresence:
			c.handlePresence(wire.Presence)
		case contract.WireComposing:
			c.handleComposing(wire.Composing)
		case contract.WireJoined:
			c.handleJoined(wire.Joined)
		case contract.WireJoinError:
			c.handleJoinError(wire.JoinError)
		case contract.WireOccupant:
			c.handleOccupant(wire.Occupant)
		case contract.WireResult:
			c.handleResult(wire.Result)
		case contract.WireDisconnect:
			c.finishDisconnect(wire.Disconnect.Reason)
			return
		}
	}
	c.finishDisconnect("connection closed")
}

// --- incoming wire handling -------------------------------------------------

func (c *Client) handleRosterItem(item contract.WireRosterItem) {
	if item.Subscription == "remove" {
		c.mu.Lock()
		contact := c.roster[item.ID]
		delete(c.roster, item.ID)
		c.mu.Unlock()
		if contact != nil {
			c.emit(event.ContactRemovedType, event.ContactRemoved{Contact: contact})
		}
		return
	}

	contact, created := c.contacts.FindOrCreate(c.account, domain.ContactList, item.ID)
	if contact.Type == domain.ContactTemporary {
		// Promoted: the server put it on the roster.
		contact.Type = domain.ContactList
	}
	if item.Name != "" {
		contact.SetName(item.Name)
	}
	contact.SetGroups(item.Groups)
	contact.SetSubscription(parseSubscription(item.Subscription))

	c.mu.Lock()
	c.roster[item.ID] = contact
	c.mu.Unlock()

	if created {
		c.emit(event.ContactAddedType, event.ContactAdded{Contact: contact})
	} else {
		c.emit(event.ContactUpdatedType, event.ContactUpdated{Contact: contact})
	}
}

func (c *Client) handleMessage(wm *contract.WireMessageEvent) {
	bare, _ := splitResource(wm.From)
	var from *domain.Contact
	var msgType domain.MessageType

	if wm.Groupchat {
		msgType = domain.MessageGroupchat
		c.mu.Lock()
		room := c.rooms[bare]
		c.mu.Unlock()
		if room != nil {
			if joined := room.FindJoined(wm.From); joined != nil {
				from = joined
			}
		}
		if from == nil {
			from, _ = c.contacts.FindOrCreate(c.account, domain.ContactChatroom, wm.From)
		}
	} else {
		msgType = domain.MessageChat
		from, _ = c.contacts.FindOrCreate(c.account, domain.ContactTemporary, bare)
	}

	msg := domain.NewMessage(from, c.contacts.OwnContact(c.account), wm.Body)
	msg.Subject = wm.Subject
	msg.Type = msgType
	c.emit(event.NewMessageType, event.NewMessage{Message: msg})
}

func (c *Client) handlePresence(wp *contract.WirePresenceEvent) {
	bare, resource := splitResource(wp.From)
	if resource == "" {
		resource = wp.Resource
	}

	c.mu.Lock()
	contact := c.roster[bare]
	c.mu.Unlock()
	if contact == nil {
		// Presence from someone we never saw; tolerated, not tracked.
		c.log.Debug("Dropping presence of unknown contact", "from", wp.From)
		return
	}

	if wp.Unavailable {
		contact.RemovePresence(resource)
	} else {
		contact.SetPresence(domain.Presence{
			Resource: resource,
			State:    parseShow(wp.Show),
			Priority: wp.Priority,
			Status:   wp.Status,
		})
	}
	c.emit(event.ContactUpdatedType, event.ContactUpdated{Contact: contact})
}

func (c *Client) handleComposing(wc *contract.WireComposingEvent) {
	bare, _ := splitResource(wc.From)
	c.mu.Lock()
	contact := c.roster[bare]
	c.mu.Unlock()
	if contact == nil {
		return
	}
	c.emit(event.ComposingType, event.Composing{Contact: contact, Composing: wc.Active})
}

func (c *Client) handleJoined(wj *contract.WireJoinedEvent) {
	c.mu.Lock()
	room := c.rooms[wj.Room]
	c.mu.Unlock()
	if room == nil {
		c.log.Warn("Join confirmation for unknown room", "room", wj.Room)
		return
	}
	room.SetLastError(nil)
	room.SetStatus(domain.ChatroomActive)
}

func (c *Client) handleJoinError(we *contract.WireJoinErrorEvent) {
	c.mu.Lock()
	room := c.rooms[we.Room]
	delete(c.rooms, we.Room)
	c.mu.Unlock()
	if room == nil {
		return
	}
	joinErr := ParseJoinError(we.Code)
	room.SetLastError(joinErr)
	room.SetStatus(domain.ChatroomError)
	c.emit(event.ProtocolErrorType, event.ProtocolError{Account: c.account, Err: joinErr})
}

func (c *Client) handleOccupant(wo *contract.WireOccupantEvent) {
	c.mu.Lock()
	room := c.rooms[wo.Room]
	c.mu.Unlock()
	if room == nil {
		return
	}

	occupantID := wo.Room + "/" + wo.Nick
	if wo.Left {
		if contact := room.FindJoined(occupantID); contact != nil {
			room.RemoveJoined(contact)
		}
		return
	}

	contact, _ := c.contacts.FindOrCreate(c.account, domain.ContactChatroom, occupantID)
	contact.SetName(wo.Nick)
	room.AddJoined(contact, domain.Occupant{
		Role:        parseRole(wo.Role),
		Affiliation: parseAffiliation(wo.Affiliation),
	})
}

func (c *Client) handleResult(wr *contract.WireResultEvent) {
	c.mu.Lock()
	req := c.pending[wr.ID]
	delete(c.pending, wr.ID)
	c.mu.Unlock()
	if req == nil {
		return
	}
	var err error
	if wr.Err != "" {
		err = fmt.Errorf("%s", wr.Err)
	}
	req.complete(wr, err)
}

// --- outgoing operations ----------------------------------------------------

// send rejects the node unless the state machine is Connected; the
// contract does not buffer, queueing is the caller's problem.
func (c *Client) send(node contract.WireNode) error {
	c.mu.Lock()
	if c.state != StateConnected || c.transport == nil {
		c.mu.Unlock()
		return imerrors.ErrNotConnected
	}
	transport := c.transport
	c.mu.Unlock()
	return transport.Send(node)
}

func (c *Client) SendMessage(msg *domain.Message) error {
	if msg.To == nil {
		return imerrors.ErrContactNotFound
	}
	return c.send(contract.WireNode{
		Kind:      contract.NodeMessage,
		To:        msg.To.ID(),
		Body:      msg.Body,
		Subject:   msg.Subject,
		Groupchat: msg.Type == domain.MessageGroupchat,
	})
}

func (c *Client) SendComposing(contact *domain.Contact, composing bool) error {
	return c.send(contract.WireNode{
		Kind:   contract.NodeComposing,
		To:     contact.ID(),
		Active: composing,
	})
}

func (c *Client) SetPresence(state domain.PresenceState, status string) error {
	return c.send(contract.WireNode{
		Kind:   contract.NodePresence,
		Show:   state.String(),
		Status: status,
	})
}

func (c *Client) AddContact(id, name string, groups []string) error {
	return c.send(contract.WireNode{
		Kind:   contract.NodeRosterAdd,
		To:     id,
		Name:   name,
		Groups: groups,
	})
}

func (c *Client) RenameContact(contact *domain.Contact, name string) error {
	return c.send(contract.WireNode{
		Kind:   contract.NodeRosterRename,
		To:     contact.ID(),
		Name:   name,
		Groups: contact.Groups(),
	})
}

func (c *Client) RemoveContact(contact *domain.Contact) error {
	return c.send(contract.WireNode{
		Kind: contract.NodeRosterRemove,
		To:   contact.ID(),
	})
}

// ActiveResource is the resource the contact's highest-priority
// presence came from, or empty while offline.
func (c *Client) ActiveResource(contact *domain.Contact) string {
	if top := contact.TopPresence(); top != nil {
		return top.Resource
	}
	return ""
}

func (c *Client) FindContact(id string) *domain.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster[id]
}

func (c *Client) Contacts() []*domain.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Contact, 0, len(c.roster))
	for _, contact := range c.roster {
		out = append(out, contact)
	}
	return out
}

// --- request/response exchanges ---------------------------------------------

func (c *Client) newPending(deliver func(*contract.WireResultEvent, error)) *Request {
	c.mu.Lock()
	c.reqSeq++
	id := fmt.Sprintf("req-%d", c.reqSeq)
	req := newRequest(id, deliver, func(id string) {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	})
	c.pending[id] = req
	c.mu.Unlock()
	return req
}

func (c *Client) RegisterAccount(username, password string, cb func(error)) (*Request, error) {
	req := c.newPending(func(_ *contract.WireResultEvent, err error) {
		if cb != nil {
			cb(err)
		}
	})
	if err := c.send(contract.WireNode{
		Kind:     contract.NodeRegister,
		ID:       req.ID(),
		Name:     username,
		Password: password,
	}); err != nil {
		req.Cancel()
		return nil, err
	}
	return req, nil
}

func (c *Client) ChangePassword(newPassword string, cb func(error)) (*Request, error) {
	req := c.newPending(func(_ *contract.WireResultEvent, err error) {
		if cb != nil {
			cb(err)
		}
	})
	if err := c.send(contract.WireNode{
		Kind:     contract.NodeChangePassword,
		ID:       req.ID(),
		Password: newPassword,
	}); err != nil {
		req.Cancel()
		return nil, err
	}
	return req, nil
}

func (c *Client) RequestVCard(contact *domain.Contact, cb func(*domain.VCard, error)) (*Request, error) {
	req := c.newPending(func(res *contract.WireResultEvent, err error) {
		var card *domain.VCard
		if res != nil {
			card = res.VCard
		}
		if err == nil && card != nil {
			contact.SetVCard(card)
		}
		if cb != nil {
			cb(card, err)
		}
	})
	if err := c.send(contract.WireNode{
		Kind: contract.NodeVCardGet,
		ID:   req.ID(),
		To:   contact.ID(),
	}); err != nil {
		req.Cancel()
		return nil, err
	}
	return req, nil
}

func (c *Client) PublishVCard(card *domain.VCard) error {
	return c.send(contract.WireNode{Kind: contract.NodeVCardSet, VCard: card})
}

func (c *Client) RequestVersion(contact *domain.Contact, cb func(string, error)) (*Request, error) {
	req := c.newPending(func(res *contract.WireResultEvent, err error) {
		version := ""
		if res != nil {
			version = res.Version
		}
		if cb != nil {
			cb(version, err)
		}
	})
	to := contact.ID()
	if resource := c.ActiveResource(contact); resource != "" {
		to = to + "/" + resource
	}
	if err := c.send(contract.WireNode{
		Kind: contract.NodeVersionGet,
		ID:   req.ID(),
		To:   to,
	}); err != nil {
		req.Cancel()
		return nil, err
	}
	return req, nil
}

// --- chat rooms -------------------------------------------------------------

// JoinRoom registers the room before sending so a confirmation that
// arrives immediately still finds it.
func (c *Client) JoinRoom(room *domain.Chatroom) error {
	c.mu.Lock()
	c.rooms[room.IDString()] = room
	c.mu.Unlock()
	room.SetStatus(domain.ChatroomJoining)

	err := c.send(contract.WireNode{
		Kind:     contract.NodeJoin,
		To:       room.IDString(),
		Nick:     room.Nick(),
		Password: room.Password(),
	})
	if err != nil {
		c.mu.Lock()
		delete(c.rooms, room.IDString())
		c.mu.Unlock()
		room.SetStatus(domain.ChatroomInactive)
		return err
	}
	return nil
}

func (c *Client) LeaveRoom(room *domain.Chatroom) error {
	err := c.send(contract.WireNode{
		Kind: contract.NodeLeave,
		To:   room.IDString(),
		Nick: room.Nick(),
	})
	c.mu.Lock()
	delete(c.rooms, room.IDString())
	c.mu.Unlock()
	room.SetStatus(domain.ChatroomInactive)
	return err
}

func (c *Client) SendRoomMessage(room *domain.Chatroom, body string) error {
	return c.send(contract.WireNode{
		Kind:      contract.NodeRoomMessage,
		To:        room.IDString(),
		Body:      body,
		Groupchat: true,
	})
}

// --- helpers ----------------------------------------------------------------

func (c *Client) emit(t event.Type, payload any) {
	c.emitter.Emit(event.Event{Type: t, Payload: payload})
}

func splitResource(id string) (bare, resource string) {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}

func parseSubscription(s string) domain.Subscription {
	switch s {
	case "to":
		return domain.SubscriptionTo
	case "from":
		return domain.SubscriptionFrom
	case "both":
		return domain.SubscriptionBoth
	default:
		return domain.SubscriptionNone
	}
}

func parseShow(show string) domain.PresenceState {
	switch show {
	case "chat":
		return domain.PresenceChat
	case "away":
		return domain.PresenceAway
	case "xa":
		return domain.PresenceXA
	case "dnd":
		return domain.PresenceDND
	default:
		return domain.PresenceAvailable
	}
}

func parseRole(role string) domain.Role {
	switch role {
	case "visitor":
		return domain.RoleVisitor
	case "participant":
		return domain.RoleParticipant
	case "moderator":
		return domain.RoleModerator
	default:
		return domain.RoleNone
	}
}

func parseAffiliation(affiliation string) domain.Affiliation {
	switch affiliation {
	case "member":
		return domain.AffiliationMember
	case "admin":
		return domain.AffiliationAdmin
	case "owner":
		return domain.AffiliationOwner
	case "outcast":
		return domain.AffiliationOutcast
	default:
		return domain.AffiliationNone
	}
}
