// Package domain contains core concepts of the messaging session.
// This file defines Message events and related rules.
// Messages are immutable once constructed.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType mirrors the wire-level chat semantics without committing
// to any particular protocol's grammar.
type MessageType int

const (
	MessageChat MessageType = iota
	MessageGroupchat
	MessageHeadline
)

// Message is one delivered or outgoing chat message. From and To are
// non-owning contact references resolved through the ContactManager.
type Message struct {
	ID        uuid.UUID
	From      *Contact
	To        *Contact
	Body      string
	Subject   string
	Type      MessageType
	CreatedAt time.Time
}

func NewMessage(from, to *Contact, body string) *Message {
	return &Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Body:      body,
		Type:      MessageChat,
		CreatedAt: time.Now().UTC(),
	}
}
