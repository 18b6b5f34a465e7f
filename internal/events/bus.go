// Package events implements the change event bus (§4.8): a synchronous,
// in-process publish/subscribe hub that notifies interested listeners
// whenever a concept or relation changes, used to drive cache
// invalidation and external change-data-capture feeds without coupling
// the graph and storage layers directly to their consumers.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Kind identifies what changed.
type Kind int

const (
	ConceptCreated Kind = iota
	ConceptUpdated
	ConceptDeleted
	RelationCreated
	RelationDeleted
)

func (k Kind) String() string {
	switch k {
	case ConceptCreated:
		return "concept_created"
	case ConceptUpdated:
		return "concept_updated"
	case ConceptDeleted:
		return "concept_deleted"
	case RelationCreated:
		return "relation_created"
	case RelationDeleted:
		return "relation_deleted"
	default:
		return "unknown"
	}
}

// Event describes one change.
type Event struct {
	Kind    Kind
	RowID   int64
	Type    string // concept type or relation kind, for filtering
	Payload any
}

// Handler receives published events. Handlers run synchronously on the
// publishing goroutine in subscription order; a slow or panicking
// handler blocks/breaks the publisher, so handlers should be quick and
// defer their own heavy lifting.
type Handler func(Event)

type subscription struct {
	id      Token
	typ     string // "" for subscribers registered via SubscribeAll
	handler Handler
}

// Token identifies one subscription, returned by Subscribe/SubscribeAll
// and consumed by Unsubscribe. Tokens are UUIDs rather than sequential
// counters so they stay unique across bus instances and process restarts
// (useful once subscriptions are persisted or logged for diagnostics).
type Token string

// Bus is a synchronous change event bus.
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers handler for events whose Type matches typ exactly.
// It returns a token usable with Unsubscribe.
func (b *Bus) Subscribe(typ string, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := Token(uuid.NewString())
	b.subs = append(b.subs, subscription{id: id, typ: typ, handler: handler})
	return id
}

// SubscribeAll registers handler for every event regardless of Type.
func (b *Bus) SubscribeAll(handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := Token(uuid.NewString())
	b.subs = append(b.subs, subscription{id: id, typ: "", handler: handler})
	return id
}

// Unsubscribe removes a previously registered handler by token. It is a
// no-op if the token is unknown.
func (b *Bus) Unsubscribe(id Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every matching subscriber, in subscription
// order, using a snapshot of the subscriber list taken under lock so a
// handler that subscribes or unsubscribes during delivery never mutates
// the slice being iterated.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.RUnlock()

	for _, s := range snapshot {
		if s.typ == "" || s.typ == ev.Type {
			s.handler(ev)
		}
	}
}

// SubscriberCount reports how many subscriptions (both typed and
// catch-all) are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
