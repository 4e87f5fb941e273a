package arbitration

import (
	"strconv"

	"github.com/Handik4/GenLayer-Escrow/core/types"
)

const (
	EventTypeArbitrationRequested  = "deals.arbitration.requested"
	EventTypeArbitrationWorkerLost = "deals.arbitration.worker_lost"
	EventTypeArbitrationFailed     = "deals.arbitration.failed"
)

type ledgerEvent struct {
	evt *types.Event
}

func (e *ledgerEvent) EventType() string {
	if e == nil || e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e *ledgerEvent) Event() *types.Event { return e.evt }

// NewRequestedEvent records that an eligible arbitration request was admitted
// and is about to consult the oracle.
func NewRequestedEvent(id uint64, requestID, proofURL string) *ledgerEvent {
	return newArbitrationEvent(EventTypeArbitrationRequested, id, requestID, map[string]string{
		"proofUrl": proofURL,
	})
}

// NewWorkerLostEvent records a verdict against the worker. The deal remains
// ACTIVE and no funds moved.
func NewWorkerLostEvent(id uint64, requestID string) *ledgerEvent {
	return newArbitrationEvent(EventTypeArbitrationWorkerLost, id, requestID, nil)
}

// NewFailedEvent records an arbitration round that produced no usable verdict.
func NewFailedEvent(id uint64, requestID, reason string) *ledgerEvent {
	return newArbitrationEvent(EventTypeArbitrationFailed, id, requestID, map[string]string{
		"reason": reason,
	})
}

func newArbitrationEvent(eventType string, id uint64, requestID string, extra map[string]string) *ledgerEvent {
	attrs := map[string]string{
		"dealId":    strconv.FormatUint(id, 10),
		"requestId": requestID,
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &ledgerEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}
