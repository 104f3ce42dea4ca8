package managers

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"im-session/domain"
	"im-session/domain/event"
	"im-session/storage"
)

// ChatroomManager owns the ordered set of chat rooms across all
// accounts, persists the favorites, and resolves each room's own
// contact through the ContactManager.
type ChatroomManager struct {
	mu       sync.RWMutex
	log      *slog.Logger
	path     string
	accounts *AccountManager
	contacts *ContactManager
	emitter  *event.Emitter

	rooms       []*domain.Chatroom
	tokens      map[*domain.Chatroom]int
	nextID      int64
	defaultName string
}

func NewChatroomManager(log *slog.Logger, path string, accounts *AccountManager, contacts *ContactManager, emitter *event.Emitter) *ChatroomManager {
	m := &ChatroomManager{
		log:      log,
		path:     path,
		accounts: accounts,
		contacts: contacts,
		emitter:  emitter,
		tokens:   make(map[*domain.Chatroom]int),
	}
	m.load()
	return m
}

func (m *ChatroomManager) load() {
	entries, defaultName, err := storage.LoadChatrooms(m.path)
	if err != nil {
		m.log.Warn("Ignoring unreadable chatrooms file", "path", m.path, "error", err)
		return
	}
	m.defaultName = defaultName
	for _, e := range entries {
		account := m.accounts.Find(e.Account)
		if account == nil {
			// A favorite may outlive its account; drop it quietly.
			m.log.Warn("Skipping chatroom of unknown account", "account", e.Account, "room", e.Room)
			continue
		}
		room := domain.NewChatroom(account, e.Server, e.Room)
		room.SetName(e.Name)
		room.SetNick(e.Nick)
		room.SetPassword(e.Password)
		room.SetAutoConnect(bool(e.AutoConnect))
		room.SetFavorite(true)
		m.Add(room)
	}
}

// Add registers a chatroom: assigns its process-local numeric id,
// resolves the own contact through the ContactManager, inserts the
// room sorted by name (unnamed rooms first), and subscribes to its
// change notifications so the order and the favorites file stay
// current. Rejected when the same room is already tracked.
func (m *ChatroomManager) Add(room *domain.Chatroom) bool {
	m.mu.Lock()
	if _, tracked := m.tokens[room]; tracked {
		m.mu.Unlock()
		return false
	}
	if room.ID() == 0 {
		m.nextID++
		room.AssignID(m.nextID)
	}
	m.mu.Unlock()

	own, _ := m.contacts.FindOrCreate(room.Account(), domain.ContactChatroom, room.OwnContactID())
	room.SetOwnContact(own)

	token := room.OnChange(m.roomChanged)

	m.mu.Lock()
	m.tokens[room] = token
	m.rooms = append(m.rooms, room)
	m.sortLocked()
	m.mu.Unlock()

	m.emitter.Emit(event.Event{Type: event.ChatroomAddedType, Payload: event.ChatroomAdded{Chatroom: room}})
	return true
}

// roomChanged re-sorts on rename, keeps the derived own-contact id
// registered under the contact table, persists favorites, and
// re-emits so the UI can refresh.
func (m *ChatroomManager) roomChanged(room *domain.Chatroom) {
	m.mu.Lock()
	m.sortLocked()
	m.mu.Unlock()

	if err := m.Store(); err != nil {
		m.log.Warn("Failed to persist chatrooms", "error", err)
	}
	m.emitter.Emit(event.Event{Type: event.ChatroomUpdatedType, Payload: event.ChatroomUpdated{Chatroom: room}})
}

// Remove unsubscribes from the room's change notifications, drops it,
// and emits chatroom-removed.
func (m *ChatroomManager) Remove(room *domain.Chatroom) {
	m.mu.Lock()
	token, tracked := m.tokens[room]
	if !tracked {
		m.mu.Unlock()
		return
	}
	delete(m.tokens, room)
	for i, existing := range m.rooms {
		if existing == room {
			m.rooms = append(m.rooms[:i], m.rooms[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	room.Unsubscribe(token)
	m.emitter.Emit(event.Event{Type: event.ChatroomRemovedType, Payload: event.ChatroomRemoved{Chatroom: room}})
}

// FindExtended returns the first chatroom matching server+room,
// optionally filtered by account. More than one match is unexpected
// but tolerated: it is logged and the first is used.
func (m *ChatroomManager) FindExtended(account *domain.Account, server, roomName string) *domain.Chatroom {
	m.mu.RLock()
	matches := lo.Filter(m.rooms, func(r *domain.Chatroom, _ int) bool {
		if r.Server() != server || r.Room() != roomName {
			return false
		}
		if account == nil {
			return true
		}
		a := r.Account()
		return a != nil && a.Equal(account)
	})
	m.mu.RUnlock()

	if len(matches) == 0 {
		return nil
	}
	if len(matches) > 1 {
		m.log.Warn("Multiple chatrooms share one identity, using the first",
			"server", server, "room", roomName, "matches", len(matches))
	}
	return matches[0]
}

// FindOrCreate wraps FindExtended; on a miss it constructs and adds a
// new room so two rooms never share the same string identity.
func (m *ChatroomManager) FindOrCreate(account *domain.Account, server, roomName string) (*domain.Chatroom, bool) {
	if existing := m.FindExtended(account, server, roomName); existing != nil {
		return existing, false
	}
	room := domain.NewChatroom(account, server, roomName)
	m.Add(room)
	return room, true
}

// Default returns the chatroom whose name matches the persisted
// default, else the first room, else nil.
func (m *ChatroomManager) Default() *domain.Chatroom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaultName != "" {
		for _, r := range m.rooms {
			if r.Name() == m.defaultName {
				return r
			}
		}
	}
	if len(m.rooms) > 0 {
		return m.rooms[0]
	}
	return nil
}

func (m *ChatroomManager) SetDefault(room *domain.Chatroom) {
	m.mu.Lock()
	m.defaultName = room.Name()
	m.mu.Unlock()
	if err := m.Store(); err != nil {
		m.log.Warn("Failed to persist default chatroom", "error", err)
	}
}

func (m *ChatroomManager) All() []*domain.Chatroom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Chatroom, len(m.rooms))
	copy(out, m.rooms)
	return out
}

// ByAccount returns the rooms scoped to one account, in display order.
func (m *ChatroomManager) ByAccount(account *domain.Account) []*domain.Chatroom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Filter(m.rooms, func(r *domain.Chatroom, _ int) bool {
		a := r.Account()
		return a != nil && a.Equal(account)
	})
}

// Store persists only favorite rooms; transient rooms are never
// written to disk.
func (m *ChatroomManager) Store() error {
	m.mu.RLock()
	favorites := lo.Filter(m.rooms, func(r *domain.Chatroom, _ int) bool {
		return r.Favorite()
	})
	defaultName := m.defaultName
	m.mu.RUnlock()

	entries := make([]storage.ChatroomXML, 0, len(favorites))
	for _, r := range favorites {
		account := r.Account()
		if account == nil {
			continue
		}
		entries = append(entries, storage.ChatroomXML{
			Name:        r.Name(),
			Nick:        r.Nick(),
			Server:      r.Server(),
			Room:        r.Room(),
			Password:    r.Password(),
			AutoConnect: storage.YesNo(r.AutoConnect()),
			Account:     account.Name,
		})
	}
	return storage.SaveChatrooms(m.path, entries, defaultName)
}

// sortLocked keeps the list ordered by name, case-sensitively, with
// unnamed rooms before any named entry for stability.
func (m *ChatroomManager) sortLocked() {
	sort.SliceStable(m.rooms, func(i, j int) bool {
		a, b := m.rooms[i].Name(), m.rooms[j].Name()
		if a == "" || b == "" {
			return a == "" && b != ""
		}
		return a < b
	})
}
