package event

import "sync"

// Emitter is a synchronous fan-out point. Handlers run on the emitting
// goroutine, in subscription order; events from one source are
// therefore delivered in the order they were raised. The handler list
// is snapshotted before delivery so a handler may subscribe or
// unsubscribe re-entrantly.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[Type][]Handler)}
}

func (e *Emitter) Subscribe(t Type, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = append(e.handlers[t], h)
}

func (e *Emitter) SubscribeFunc(t Type, fn func(Event)) {
	e.Subscribe(t, HandlerFunc(fn))
}

// SubscribeAll registers a handler for every event type. The session
// uses this to re-emit protocol events wholesale.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

func (e *Emitter) Emit(evt Event) {
	e.mu.RLock()
	snapshot := make([]Handler, 0, len(e.handlers[evt.Type])+len(e.all))
	snapshot = append(snapshot, e.handlers[evt.Type]...)
	snapshot = append(snapshot, e.all...)
	e.mu.RUnlock()

	for _, h := range snapshot {
		h.Handle(evt)
	}
}
