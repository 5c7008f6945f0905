// Package notify is component (F): the observable surface of segment-
// change and end-of-data events derived from ReaderGroupState
// transitions, implemented as a broadcast fan-out per notifier kind
// rather than a shared mutable listener list (spec §9, "Notifier
// system").
package notify

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/pravega/readergroup/stream"
)

// Kind distinguishes the two observable surfaces spec §6.2 names.
type Kind int

const (
	SegmentChange Kind = iota
	EndOfData
)

// Event is published to every subscriber of its Kind.
type Event struct {
	Kind    Kind
	Stream  stream.Stream
	Segment stream.Segment
}

// id is the dedup key for the delivered-notification filter: kind,
// stream and segment. It carries nothing else, so two events for the same
// kind and segment share one key.
func (e Event) id() []byte {
	return []byte(string(rune(e.Kind)) + e.Stream.String() + e.Segment.String())
}

// Hub fans events of each Kind out to every registered channel. Each
// subscription has its own bounded cuckoo filter of event ids it has been
// offered; a later event with an id already in that filter is not sent to
// it. A new Subscribe starts with an empty filter, and the hub keeps no
// history, so nothing is replayed to a new subscription.
type Hub struct {
	mu   sync.Mutex
	subs map[Kind][]*subscription
}

type subscription struct {
	ch     chan Event
	seen   *cuckoo.Filter
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{subs: map[Kind][]*subscription{}}
}

// Subscribe registers a new listener for kind with a small buffered
// channel; the returned func unregisters it.
func (h *Hub) Subscribe(kind Kind) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, 64), seen: cuckoo.NewFilter(1024)}
	h.mu.Lock()
	h.subs[kind] = append(h.subs[kind], sub)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[kind]
		for i, s := range list {
			if s == sub {
				h.subs[kind] = append(list[:i], list[i+1:]...)
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Publish fans ev out to every subscriber of ev.Kind, skipping any
// subscriber that has already seen this exact event and dropping the
// event for a subscriber whose buffer is full rather than blocking the
// publisher (a slow listener must never stall state-update propagation).
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := ev.id()
	for _, sub := range h.subs[ev.Kind] {
		if sub.seen.Lookup(key) {
			continue
		}
		sub.seen.InsertUnique(key)
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
