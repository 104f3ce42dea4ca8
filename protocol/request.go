package protocol

import (
	"sync"

	"im-session/contract"
	imerrors "im-session/errors"
)

// Request tracks one in-flight request/response exchange (registration,
// password change, vcard, version). Cancel is always safe: canceling a
// request that already completed or failed is a no-op.
type Request struct {
	id string

	mu       sync.Mutex
	done     bool
	canceled bool
	deliver  func(res *contract.WireResultEvent, err error)
	cleanup  func(id string)
}

func newRequest(id string, deliver func(*contract.WireResultEvent, error), cleanup func(string)) *Request {
	return &Request{id: id, deliver: deliver, cleanup: cleanup}
}

func (r *Request) ID() string { return r.id }

// Cancel aborts the request. The continuation fires once with
// ErrRequestCanceled; a later wire result for this id is dropped.
func (r *Request) Cancel() {
	r.mu.Lock()
	if r.done || r.canceled {
		r.mu.Unlock()
		return
	}
	r.canceled = true
	deliver := r.deliver
	cleanup := r.cleanup
	r.mu.Unlock()

	if cleanup != nil {
		cleanup(r.id)
	}
	if deliver != nil {
		deliver(nil, imerrors.ErrRequestCanceled)
	}
}

// complete delivers the wire result unless the request was canceled or
// has already completed. Returns whether the continuation ran.
func (r *Request) complete(res *contract.WireResultEvent, err error) bool {
	r.mu.Lock()
	if r.done || r.canceled {
		r.mu.Unlock()
		return false
	}
	r.done = true
	deliver := r.deliver
	r.mu.Unlock()

	if deliver != nil {
		deliver(res, err)
	}
	return true
}
