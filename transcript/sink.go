package transcript

import (
	"fmt"
	"log/slog"

	"im-session/contract"
	"im-session/domain"
	"im-session/domain/event"
)

// Sink bridges the session event stream to the store: every delivered
// and every sent chat message becomes one transcript line.
type Sink struct {
	store Store
	log   *slog.Logger
}

var (
	_ contract.EventSink        = Sink{}
	_ contract.TranscriptWriter = Sink{}
)

func NewSink(store Store, log *slog.Logger) Sink {
	return Sink{store: store, log: log}
}

func (s Sink) Consume(e event.Event) {
	switch evt := e.Payload.(type) {
	case event.NewMessage:
		if err := s.Record(evt.Own, evt.Message, true); err != nil {
			s.log.Error(err.Error())
		}
	case event.MessageSent:
		if err := s.Record(evt.Own, evt.Message, false); err != nil {
			s.log.Error(err.Error())
		}
	}
}

// Record writes one message under its conversation key. Messages with
// no resolvable conversation anchor are dropped with a debug line; they
// carry no context a reader could file them under.
func (s Sink) Record(own *domain.Contact, msg *domain.Message, incoming bool) error {
	conversation := conversationKey(own, msg, incoming)
	if conversation == "" {
		s.log.Debug("Skipping transcript line without conversation anchor")
		return nil
	}
	author := ""
	if msg.From != nil {
		author = msg.From.ID()
	}
	return s.store.StoreMessage(StoredMessage{
		ID:           msg.ID,
		Conversation: conversation,
		Author:       author,
		Body:         msg.Body,
		Incoming:     incoming,
		At:           msg.CreatedAt,
	})
}

// conversationKey pairs the own contact with the peer so both
// directions of a dialogue land under one prefix.
func conversationKey(own *domain.Contact, msg *domain.Message, incoming bool) string {
	peer := msg.To
	if incoming {
		peer = msg.From
	}
	if own == nil || peer == nil {
		return ""
	}
	return fmt.Sprintf("%s|%s", own.ID(), peer.ID())
}
