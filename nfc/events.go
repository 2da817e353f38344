package nfc

import (
	"fmt"
	"sync"
	"time"
)

// Operation identifies what an armed request or a session does with a tag.
type Operation int

const (
	OpNone Operation = iota
	OpRead
	OpWrite
)

func (o Operation) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return "none"
	}
}

// EventKind is the closed set of notifications a session publishes.
type EventKind int

const (
	EventReadStart EventKind = iota
	EventReadComplete
	EventReadError
	EventWriteStart
	EventWriteComplete
	EventWriteError
	EventCardRemoved
)

var eventKindNames = [...]string{
	EventReadStart:     "read_start",
	EventReadComplete:  "read_complete",
	EventReadError:     "read_error",
	EventWriteStart:    "write_start",
	EventWriteComplete: "write_complete",
	EventWriteError:    "write_error",
	EventCardRemoved:   "card_removed",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k EventKind) Valid() bool {
	return k >= 0 && int(k) < len(eventKindNames)
}

// Kinds returns every event kind in declaration order.
func Kinds() []EventKind {
	kinds := make([]EventKind, len(eventKindNames))
	for i := range eventKindNames {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// ParseEventKind maps a kind name back to its EventKind.
func ParseEventKind(name string) (EventKind, bool) {
	for i, n := range eventKindNames {
		if n == name {
			return EventKind(i), true
		}
	}
	return 0, false
}

// Event is a single notification published on the Bus.
type Event struct {
	Kind      EventKind
	Op        Operation
	SessionID string
	TagID     string // Hex identifier of the tag, diagnostics only
	Attempt   int
	Data      []byte // Raw payload for ReadComplete, written bytes for WriteComplete
	Text      string // Payload decoded as text for ReadComplete
	Err       error  // Set for ReadError, WriteError and CardRemoved
	Time      time.Time
}

// Listener wraps a callback so that it has a stable identity on the Bus.
// Subscribing the same *Listener twice for a kind is a no-op.
type Listener struct {
	fn func(Event)
}

// NewListener creates a Listener around fn.
func NewListener(fn func(Event)) *Listener {
	return &Listener{fn: fn}
}

// Bus maps event kinds to ordered listener lists and delivers events
// synchronously on the publisher's goroutine.
type Bus struct {
	mu        sync.RWMutex
	listeners map[EventKind][]*Listener
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[EventKind][]*Listener)}
}

// Subscribe adds l for kind unless it is already subscribed.
func (b *Bus) Subscribe(kind EventKind, l *Listener) {
	if l == nil || l.fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners[kind] {
		if existing == l {
			return
		}
	}
	b.listeners[kind] = append(b.listeners[kind], l)
}

// On subscribes fn for kind and returns the Listener needed to unsubscribe it.
func (b *Bus) On(kind EventKind, fn func(Event)) *Listener {
	l := NewListener(fn)
	b.Subscribe(kind, l)
	return l
}

// SubscribeAll subscribes l to every event kind.
func (b *Bus) SubscribeAll(l *Listener) {
	for _, kind := range Kinds() {
		b.Subscribe(kind, l)
	}
}

// Unsubscribe removes l from kind. Unknown listeners are ignored.
func (b *Bus) Unsubscribe(kind EventKind, l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.listeners[kind]
	for i, existing := range current {
		if existing != l {
			continue
		}
		// Copy so a concurrent Publish keeps iterating its own snapshot.
		next := make([]*Listener, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		if len(next) == 0 {
			delete(b.listeners, kind)
		} else {
			b.listeners[kind] = next
		}
		return
	}
}

// UnsubscribeAll removes l from every event kind.
func (b *Bus) UnsubscribeAll(l *Listener) {
	for _, kind := range Kinds() {
		b.Unsubscribe(kind, l)
	}
}

// Publish calls every listener subscribed to ev.Kind, in subscription order.
// A panicking listener is not recovered.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	snapshot := b.listeners[ev.Kind]
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

// Count returns how many listeners are subscribed to kind.
func (b *Bus) Count(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}
