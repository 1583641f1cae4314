package wallet

import "sync"

// EventKind names a wallet event.
type EventKind string

const (
	// EventReady fires after every successful Connect.
	EventReady EventKind = "ready"
	// EventStateChanged fires after every persisted state mutation.
	EventStateChanged EventKind = "stateChanged"
)

// Event is delivered to listeners. NetworkID is set on EventReady only.
type Event struct {
	Kind      EventKind `json:"kind"`
	WalletID  string    `json:"walletId"`
	NetworkID string    `json:"networkId,omitempty"`
}

type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[EventKind]map[int]func(Event)
}

func (e *emitter) on(kind EventKind, fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[EventKind]map[int]func(Event))
	}
	if e.listeners[kind] == nil {
		e.listeners[kind] = make(map[int]func(Event))
	}
	id := e.nextID
	e.nextID++
	e.listeners[kind][id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners[kind], id)
	}
}

// emit calls listeners synchronously, outside the registry lock.
func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	fns := make([]func(Event), 0, len(e.listeners[ev.Kind]))
	for _, fn := range e.listeners[ev.Kind] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
