package events

import (
	"testing"

	"github.com/Handik4/GenLayer-Escrow/core/types"
)

type testEvent struct {
	evt *types.Event
}

func (e testEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e testEvent) Event() *types.Event { return e.evt }

func newTestEvent(kind, id string) testEvent {
	return testEvent{evt: &types.Event{Type: kind, Attributes: map[string]string{"id": id}}}
}

func TestBufferAssignsSequences(t *testing.T) {
	buf := NewBuffer(8)
	buf.Emit(newTestEvent("deals.created", "0"))
	buf.Emit(newTestEvent("deals.accepted", "0"))

	entries := buf.List(0, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sequence != 1 || entries[1].Sequence != 2 {
		t.Fatalf("unexpected sequences: %d, %d", entries[0].Sequence, entries[1].Sequence)
	}
	if entries[1].Event.Type != "deals.accepted" {
		t.Fatalf("unexpected event type %q", entries[1].Event.Type)
	}
}

func TestBufferEvictsOldest(t *testing.T) {
	buf := NewBuffer(2)
	buf.Emit(newTestEvent("deals.created", "0"))
	buf.Emit(newTestEvent("deals.created", "1"))
	buf.Emit(newTestEvent("deals.created", "2"))

	entries := buf.List(0, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 retained entries, got %d", len(entries))
	}
	if entries[0].Sequence != 2 {
		t.Fatalf("expected oldest retained sequence 2, got %d", entries[0].Sequence)
	}
}

func TestBufferSubscribeBacklogAndLive(t *testing.T) {
	buf := NewBuffer(8)
	buf.Emit(newTestEvent("deals.created", "0"))

	ch, cancel, backlog := buf.Subscribe(0)
	defer cancel()
	if len(backlog) != 1 {
		t.Fatalf("expected backlog of 1, got %d", len(backlog))
	}

	buf.Emit(newTestEvent("deals.accepted", "0"))
	entry := <-ch
	if entry.Sequence != 2 || entry.Event.Type != "deals.accepted" {
		t.Fatalf("unexpected live entry %+v", entry)
	}
}

func TestBufferListAfterSeq(t *testing.T) {
	buf := NewBuffer(8)
	for i := 0; i < 4; i++ {
		buf.Emit(newTestEvent("deals.created", "x"))
	}
	entries := buf.List(2, 1)
	if len(entries) != 1 || entries[0].Sequence != 3 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
