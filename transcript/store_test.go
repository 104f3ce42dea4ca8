package transcript

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"im-session/domain"
	"im-session/domain/event"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Messages_Come_Back_Newest_First(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t), testLogger(), nil)

	conversation := "alice@example.org|bob@example.org"
	at := time.Now().UTC()
	for i, author := range []string{"alice@example.org", "bob@example.org", "alice@example.org"} {
		req.NoError(store.StoreMessage(StoredMessage{
			ID:           uuid.New(),
			Conversation: conversation,
			Author:       author,
			Body:         fmt.Sprintf("line %d", i),
			At:           at.Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, _, err := store.Messages(conversation, nil)
	req.NoError(err)
	req.Len(messages, 3)
	req.Equal("line 2", messages[0].Body)
	req.Equal("line 0", messages[2].Body)
}

func Test_Conversations_Are_Isolated(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t), testLogger(), nil)

	req.NoError(store.StoreMessage(StoredMessage{
		ID: uuid.New(), Conversation: "a|b", Body: "one", At: time.Now(),
	}))
	req.NoError(store.StoreMessage(StoredMessage{
		ID: uuid.New(), Conversation: "a|c", Body: "two", At: time.Now(),
	}))

	messages, _, err := store.Messages("a|b", nil)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("one", messages[0].Body)
}

func Test_Limit_Caps_One_Page(t *testing.T) {
	req := require.New(t)
	limit := 2
	store := NewStore(openTestDB(t), testLogger(), &limit)

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(store.StoreMessage(StoredMessage{
			ID:           uuid.New(),
			Conversation: "a|b",
			Body:         fmt.Sprintf("line %d", i),
			At:           at.Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, _, err := store.Messages("a|b", nil)
	req.NoError(err)
	req.Len(messages, limit)
}

func Test_Cursor_Pages_Without_Duplicates(t *testing.T) {
	req := require.New(t)
	limit := 4
	store := NewStore(openTestDB(t), testLogger(), &limit)

	now := time.Now().UTC()
	for i := 1; i <= 10; i++ {
		req.NoError(store.StoreMessage(StoredMessage{
			ID:           uuid.New(),
			Conversation: "a|b",
			Author:       fmt.Sprintf("user_%d", i),
			Body:         fmt.Sprintf("Message %d", i),
			At:           now.Add(time.Duration(i) * time.Minute),
		}))
	}

	page1, cursor1, err := store.Messages("a|b", nil)
	req.NoError(err)
	req.Len(page1, 4)
	req.Equal("user_10", page1[0].Author)
	req.Equal("user_7", page1[3].Author)
	req.NotEmpty(cursor1)

	page2, cursor2, err := store.Messages("a|b", cursor1)
	req.NoError(err)
	req.Len(page2, 4)
	req.Equal("user_6", page2[0].Author)
	req.Equal("user_3", page2[3].Author)

	page3, cursor3, err := store.Messages("a|b", cursor2)
	req.NoError(err)
	req.Len(page3, 2)
	req.Equal("user_1", page3[1].Author)

	page4, _, err := store.Messages("a|b", cursor3)
	req.NoError(err)
	req.Empty(page4)
}

func Test_Sink_Records_Both_Directions(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t), testLogger(), nil)
	sink := NewSink(store, testLogger())

	account := &domain.Account{Name: "alice", ID: "alice@example.org"}
	own := domain.NewContact(account, domain.ContactUser, account.ID)
	carol := domain.NewContact(account, domain.ContactTemporary, "carol@example.org")

	base := time.Now().UTC()
	incoming := domain.NewMessage(carol, own, "hi alice")
	incoming.CreatedAt = base
	outgoing := domain.NewMessage(own, carol, "hi carol")
	outgoing.CreatedAt = base.Add(time.Minute)

	sink.Consume(event.Event{Type: event.NewMessageType, Payload: event.NewMessage{
		Message: incoming,
		Own:     own,
	}})
	sink.Consume(event.Event{Type: event.MessageSentType, Payload: event.MessageSent{
		Message: outgoing,
		Own:     own,
	}})

	messages, _, err := store.Messages("alice@example.org|carol@example.org", nil)
	req.NoError(err)
	req.Len(messages, 2)

	// Both directions land under the same conversation key.
	req.Equal("hi carol", messages[0].Body)
	req.False(messages[0].Incoming)
	req.Equal("hi alice", messages[1].Body)
	req.True(messages[1].Incoming)
}

func Test_Sink_Drops_Anchorless_Messages(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t), testLogger(), nil)
	sink := NewSink(store, testLogger())

	account := &domain.Account{Name: "alice", ID: "alice@example.org"}
	carol := domain.NewContact(account, domain.ContactTemporary, "carol@example.org")

	req.NoError(sink.Record(nil, domain.NewMessage(carol, nil, "orphan"), true))

	messages, _, err := store.Messages("", nil)
	req.NoError(err)
	req.Empty(messages)
}
