// Package transport hosts transport implementations for the protocol
// layer. The real wire (TLS, proxies, stanza encoding) is an external
// collaborator; the loopback transport here is a complete in-memory
// stand-in used by tests and by the daemon when no wire is configured.
package transport

import (
	"context"
	"sync"

	"im-session/contract"
	"im-session/domain"
)

// Loopback is an in-memory transport: authentication always succeeds
// unless configured otherwise, chat messages are echoed back from the
// peer, rooms confirm joins immediately, and correlated requests
// succeed. Deterministic and ordered, which is exactly what the state
// machine needs for testing.
type Loopback struct {
	// FailOpen and FailAuth make the corresponding stage return
	// ErrRefused, for exercising the failure paths.
	FailOpen bool
	FailAuth bool

	// Roster is handed out on a roster request.
	Roster []contract.WireRosterItem

	mu     sync.Mutex
	open   bool
	events chan contract.WireEvent
}

var _ contract.Transport = (*Loopback)(nil)

// ErrRefused is what a loopback stage failure looks like.
var ErrRefused = refusedError{}

type refusedError struct{}

func (refusedError) Error() string { return "connection refused" }

// Factory adapts Loopback construction to the transport factory shape.
func Factory(*domain.Account) contract.Transport {
	return NewLoopback()
}

func NewLoopback() *Loopback {
	return &Loopback{events: make(chan contract.WireEvent, 64)}
}

func (l *Loopback) Open(ctx context.Context, _ contract.TransportConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.FailOpen {
		return ErrRefused
	}
	l.mu.Lock()
	l.open = true
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Authenticate(ctx context.Context, _, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.FailAuth {
		return ErrRefused
	}
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return nil
	}
	l.open = false
	close(l.events)
	return nil
}

func (l *Loopback) Events() <-chan contract.WireEvent {
	return l.events
}

// Send reacts to outgoing nodes the way a well-behaved peer would.
func (l *Loopback) Send(node contract.WireNode) error {
	switch node.Kind {
	case contract.NodeRosterGet:
		l.Deliver(contract.WireEvent{Kind: contract.WireRoster, Roster: l.Roster})
	case contract.NodeMessage:
		if !node.Groupchat {
			l.Deliver(contract.WireEvent{Kind: contract.WireMessage, Message: &contract.WireMessageEvent{
				From: node.To,
				Body: node.Body,
			}})
		}
	case contract.NodeRoomMessage:
		l.Deliver(contract.WireEvent{Kind: contract.WireMessage, Message: &contract.WireMessageEvent{
			From:      node.To + "/" + "echo",
			Body:      node.Body,
			Groupchat: true,
		}})
	case contract.NodeJoin:
		l.Deliver(contract.WireEvent{Kind: contract.WireJoined, Joined: &contract.WireJoinedEvent{
			Room: node.To,
			Nick: node.Nick,
		}})
	case contract.NodeRegister, contract.NodeChangePassword, contract.NodeVCardGet, contract.NodeVersionGet:
		result := &contract.WireResultEvent{ID: node.ID}
		if node.Kind == contract.NodeVCardGet {
			result.VCard = &domain.VCard{Name: node.To}
		}
		if node.Kind == contract.NodeVersionGet {
			result.Version = "loopback"
		}
		l.Deliver(contract.WireEvent{Kind: contract.WireResult, Result: result})
	}
	return nil
}

// Deliver injects an incoming wire event, as tests do to script a
// conversation. Events delivered after Close are dropped.
func (l *Loopback) Deliver(evt contract.WireEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return
	}
	l.events <- evt
}
