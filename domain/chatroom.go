package domain

import (
	"fmt"
	"sync"
)

// ChatroomStatus is the lifecycle of a room as seen by this client.
type ChatroomStatus int

const (
	ChatroomInactive ChatroomStatus = iota
	ChatroomJoining
	ChatroomActive
	ChatroomError
	ChatroomUnknown
)

func (s ChatroomStatus) String() string {
	switch s {
	case ChatroomInactive:
		return "inactive"
	case ChatroomJoining:
		return "joining"
	case ChatroomActive:
		return "active"
	case ChatroomError:
		return "error"
	default:
		return "unknown"
	}
}

// Role is what an occupant may currently do in the room.
type Role int

const (
	RoleNone Role = iota
	RoleVisitor
	RoleParticipant
	RoleModerator
)

// Affiliation is an occupant's long-lived association with the room.
type Affiliation int

const (
	AffiliationNone Affiliation = iota
	AffiliationMember
	AffiliationAdmin
	AffiliationOwner
	AffiliationOutcast
)

// Occupant is the room-scoped standing of one joined contact.
type Occupant struct {
	Role        Role
	Affiliation Affiliation
}

// Chatroom is a named multi-party room scoped to an account. Its string
// identity is room@server; the numeric ID is process-local, assigned by
// the ChatroomManager at registration and never persisted.
type Chatroom struct {
	mu          sync.RWMutex
	id          int64
	account     *Account
	server      string
	room        string
	name        string
	nick        string
	password    string
	autoConnect bool
	favorite    bool
	status      ChatroomStatus
	occupants   uint
	lastError   error
	joined      map[*Contact]Occupant
	ownContact  *Contact

	nextToken int
	onChange  map[int]func(*Chatroom)
}

func NewChatroom(account *Account, server, room string) *Chatroom {
	return &Chatroom{
		account:  account,
		server:   server,
		room:     room,
		joined:   make(map[*Contact]Occupant),
		onChange: make(map[int]func(*Chatroom)),
	}
}

func (r *Chatroom) ID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// AssignID sets the process-local numeric id. The ChatroomManager is
// the only caller; an id of zero means "not yet registered".
func (r *Chatroom) AssignID(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
}

func (r *Chatroom) Account() *Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.account
}

// IDString is the room's wire identity, room@server.
func (r *Chatroom) IDString() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("%s@%s", r.room, r.server)
}

// OwnContactID derives the address of the local user inside this room.
func (r *Chatroom) OwnContactID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownContactIDLocked()
}

func (r *Chatroom) ownContactIDLocked() string {
	return fmt.Sprintf("%s@%s/%s", r.room, r.server, r.nick)
}

func (r *Chatroom) Server() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.server
}

func (r *Chatroom) SetServer(server string) {
	r.mu.Lock()
	r.server = server
	r.syncOwnContactLocked()
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Room() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room
}

func (r *Chatroom) SetRoom(room string) {
	r.mu.Lock()
	r.room = room
	r.syncOwnContactLocked()
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Nick() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nick
}

func (r *Chatroom) SetNick(nick string) {
	r.mu.Lock()
	r.nick = nick
	r.syncOwnContactLocked()
	r.mu.Unlock()
	r.notify()
}

// syncOwnContactLocked keeps the derived own-contact id in step with
// server/room/nick. Invariant: ownContact.id == room@server/nick.
func (r *Chatroom) syncOwnContactLocked() {
	if r.ownContact != nil {
		r.ownContact.SetID(r.ownContactIDLocked())
	}
}

func (r *Chatroom) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

func (r *Chatroom) SetName(name string) {
	r.mu.Lock()
	r.name = name
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Password() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.password
}

func (r *Chatroom) SetPassword(password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.password = password
}

func (r *Chatroom) AutoConnect() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autoConnect
}

func (r *Chatroom) SetAutoConnect(auto bool) {
	r.mu.Lock()
	r.autoConnect = auto
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Favorite() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.favorite
}

func (r *Chatroom) SetFavorite(favorite bool) {
	r.mu.Lock()
	r.favorite = favorite
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Status() ChatroomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus transitions the room. Going Inactive clears the joined map
// and the occupant count: whatever we knew about the room is stale.
func (r *Chatroom) SetStatus(status ChatroomStatus) {
	r.mu.Lock()
	r.status = status
	if status == ChatroomInactive {
		r.joined = make(map[*Contact]Occupant)
		r.occupants = 0
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Chatroom) Occupants() uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.occupants
}

func (r *Chatroom) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

func (r *Chatroom) SetLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastError = err
}

func (r *Chatroom) AddJoined(contact *Contact, occupant Occupant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.joined[contact]; !ok {
		r.occupants++
	}
	r.joined[contact] = occupant
}

func (r *Chatroom) RemoveJoined(contact *Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.joined[contact]; ok {
		delete(r.joined, contact)
		r.occupants--
	}
}

func (r *Chatroom) Joined() map[*Contact]Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[*Contact]Occupant, len(r.joined))
	for c, o := range r.joined {
		out[c] = o
	}
	return out
}

func (r *Chatroom) FindJoined(id string) *Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for c := range r.joined {
		if c.ID() == id {
			return c
		}
	}
	return nil
}

func (r *Chatroom) OwnContact() *Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownContact
}

func (r *Chatroom) SetOwnContact(contact *Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownContact = contact
}

// OnChange registers a callback fired after name, nick, server, room,
// favorite, auto-connect, or status mutations. Returns a token for
// Unsubscribe. The ChatroomManager uses this to re-sort and re-persist.
func (r *Chatroom) OnChange(fn func(*Chatroom)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextToken++
	r.onChange[r.nextToken] = fn
	return r.nextToken
}

func (r *Chatroom) Unsubscribe(token int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.onChange, token)
}

// notify snapshots the callbacks before calling them so a callback may
// subscribe or unsubscribe without deadlocking.
func (r *Chatroom) notify() {
	r.mu.RLock()
	fns := make([]func(*Chatroom), 0, len(r.onChange))
	for _, fn := range r.onChange {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(r)
	}
}
