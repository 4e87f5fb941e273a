package events

import (
	"sync"

	"github.com/Handik4/GenLayer-Escrow/core/types"
)

// payloadEvent is implemented by emitted events that carry a full attribute
// payload in addition to their type tag.
type payloadEvent interface {
	Event
	Event() *types.Event
}

// Entry is one recorded ledger event together with its assigned sequence number.
// Sequence numbers start at 1 and increase by one per emitted event.
type Entry struct {
	Sequence uint64      `json:"sequence"`
	Event    types.Event `json:"event"`
}

// Buffer is an Emitter that retains a bounded history of emitted events and
// fans them out to live subscribers. It backs the RPC event queries and the
// websocket stream.
type Buffer struct {
	mu      sync.Mutex
	limit   int
	nextSeq uint64
	entries []Entry
	subs    map[uint64]chan Entry
	nextSub uint64
}

// NewBuffer constructs an event buffer retaining at most limit entries. A
// non-positive limit falls back to a default of 1024.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 1024
	}
	return &Buffer{
		limit: limit,
		subs:  make(map[uint64]chan Entry),
	}
}

// Emit implements the Emitter interface. Events without a payload are recorded
// with an empty attribute map so subscribers still observe the type.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	record := types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	if payload, ok := evt.(payloadEvent); ok {
		if full := payload.Event(); full != nil {
			record.Type = full.Type
			for k, v := range full.Attributes {
				record.Attributes[k] = v
			}
		}
	}

	b.mu.Lock()
	b.nextSeq++
	entry := Entry{Sequence: b.nextSeq, Event: record}
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.limit {
		b.entries = b.entries[len(b.entries)-b.limit:]
	}
	for _, ch := range b.subs {
		select {
		case ch <- entry:
		default:
			// Slow subscriber: drop rather than block a state transition.
		}
	}
	b.mu.Unlock()
}

// List returns up to limit retained entries with sequence greater than
// afterSeq, oldest first. A non-positive limit returns all matching entries.
func (b *Buffer) List(afterSeq uint64, limit int) []Entry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		if entry.Sequence <= afterSeq {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Subscribe registers a live subscriber and returns its channel, a cancel
// function, and the retained backlog newer than afterSeq.
func (b *Buffer) Subscribe(afterSeq uint64) (<-chan Entry, func(), []Entry) {
	if b == nil {
		ch := make(chan Entry)
		close(ch)
		return ch, func() {}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Entry, 64)
	b.subs[id] = ch
	backlog := make([]Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		if entry.Sequence > afterSeq {
			backlog = append(backlog, entry)
		}
	}
	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel, backlog
}
