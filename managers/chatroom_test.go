package managers_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"im-session/domain"
	"im-session/domain/event"
	"im-session/managers"
	"im-session/storage"
)

type chatroomFixture struct {
	accounts  *managers.AccountManager
	contacts  *managers.ContactManager
	chatrooms *managers.ChatroomManager
	account   *domain.Account
	path      string
}

func newChatroomFixture(t *testing.T) *chatroomFixture {
	t.Helper()
	dir := t.TempDir()
	emitter := event.NewEmitter()
	accounts := managers.NewAccountManager(testLogger(), filepath.Join(dir, storage.AccountsFile), nil, emitter)
	account := &domain.Account{Name: "alice", ID: "alice@example.org"}
	require.True(t, accounts.Add(account))
	contacts := managers.NewContactManager(testLogger(), filepath.Join(dir, storage.ContactsFile), accounts, emitter)

	path := filepath.Join(dir, storage.ChatroomsFile)
	return &chatroomFixture{
		accounts:  accounts,
		contacts:  contacts,
		chatrooms: managers.NewChatroomManager(testLogger(), path, accounts, contacts, emitter),
		account:   account,
		path:      path,
	}
}

func Test_FindOrCreate_Never_Duplicates_A_Room(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	first, created := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	req.True(created)
	req.NotZero(first.ID())

	second, created := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	req.False(created)
	req.Same(first, second)
}

func Test_Add_Resolves_Own_Contact_Through_Contact_Table(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	room := domain.NewChatroom(f.account, "conference.example.org", "lobby")
	room.SetNick("alice")
	req.True(f.chatrooms.Add(room))
	req.False(f.chatrooms.Add(room))

	own := room.OwnContact()
	req.NotNil(own)
	req.Equal(domain.ContactChatroom, own.Type)
	req.Same(own, f.contacts.FindExtended(f.account, domain.ContactChatroom, room.OwnContactID()))
}

func Test_Rooms_Sort_By_Name_With_Unnamed_First(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	zulu, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "zulu")
	zulu.SetName("zulu")
	alpha, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "alpha")
	alpha.SetName("Alpha")
	unnamed, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "anon")

	all := f.chatrooms.All()
	req.Equal([]*domain.Chatroom{unnamed, alpha, zulu}, all)

	// Renaming re-sorts.
	zulu.SetName("AAA")
	req.Equal([]*domain.Chatroom{unnamed, zulu, alpha}, f.chatrooms.All())
}

func Test_Only_Favorite_Rooms_Are_Persisted(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	favorite, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	favorite.SetName("Lobby")
	favorite.SetNick("alice")
	favorite.SetAutoConnect(true)
	favorite.SetFavorite(true)

	transient, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "adhoc")
	_ = transient

	req.NoError(f.chatrooms.Store())

	entries, _, err := storage.LoadChatrooms(f.path)
	req.NoError(err)
	req.Len(entries, 1)
	req.Equal("lobby", entries[0].Room)
	req.Equal("conference.example.org", entries[0].Server)
	req.Equal("alice", entries[0].Nick)
	req.True(bool(entries[0].AutoConnect))
	req.Equal("alice", entries[0].Account)
}

func Test_Loaded_Rooms_Are_Favorites_Again(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	favorite, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	favorite.SetFavorite(true)
	req.NoError(f.chatrooms.Store())

	reloaded := managers.NewChatroomManager(testLogger(), f.path, f.accounts, f.contacts, event.NewEmitter())
	rooms := reloaded.All()
	req.Len(rooms, 1)
	req.True(rooms[0].Favorite())
}

func Test_Rooms_Of_Unknown_Account_Are_Skipped_On_Load(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	room, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	room.SetFavorite(true)
	req.NoError(f.chatrooms.Store())

	dir := t.TempDir()
	emitter := event.NewEmitter()
	emptyAccounts := managers.NewAccountManager(testLogger(), filepath.Join(dir, storage.AccountsFile), nil, emitter)
	contacts := managers.NewContactManager(testLogger(), filepath.Join(dir, storage.ContactsFile), emptyAccounts, emitter)

	reloaded := managers.NewChatroomManager(testLogger(), f.path, emptyAccounts, contacts, emitter)
	req.Empty(reloaded.All())
}

func Test_Default_Room_Resolution(t *testing.T) {
	req := require.New(t)
	f := newChatroomFixture(t)

	req.Nil(f.chatrooms.Default())

	lobby, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "lobby")
	lobby.SetName("Lobby")
	den, _ := f.chatrooms.FindOrCreate(f.account, "conference.example.org", "den")
	den.SetName("Den")

	// No persisted default: first in display order.
	req.Equal(f.chatrooms.All()[0], f.chatrooms.Default())

	f.chatrooms.SetDefault(lobby)
	req.Same(lobby, f.chatrooms.Default())
}
