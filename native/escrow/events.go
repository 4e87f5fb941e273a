package escrow

import (
	"strconv"

	"github.com/Handik4/GenLayer-Escrow/core/types"
	"github.com/Handik4/GenLayer-Escrow/crypto"
)

const (
	EventTypeDealCreated    = "deals.created"
	EventTypeDealAccepted   = "deals.accepted"
	EventTypeDealApproved   = "deals.approved"
	EventTypeDealCancelled  = "deals.cancelled"
	EventTypeArbitrationWon = "deals.arbitration.worker_won"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// deal, including the value actually locked (which may exceed budget+penalty).
func NewCreatedEvent(id uint64, deal *Agreement, lockedValue uint64) *types.Event {
	evt := newDealEvent(EventTypeDealCreated, id, deal)
	if evt != nil {
		evt.Attributes["lockedValue"] = strconv.FormatUint(lockedValue, 10)
	}
	return evt
}

// NewAcceptedEvent returns the canonical event payload emitted when the named
// worker accepts a deal.
func NewAcceptedEvent(id uint64, deal *Agreement) *types.Event {
	return newDealEvent(EventTypeDealAccepted, id, deal)
}

// NewApprovedEvent returns the canonical event payload for an employer
// approval paying the full locked amount to the worker.
func NewApprovedEvent(id uint64, deal *Agreement) *types.Event {
	evt := newDealEvent(EventTypeDealApproved, id, deal)
	if evt != nil {
		evt.Attributes["payout"] = strconv.FormatUint(deal.TotalLocked(), 10)
	}
	return evt
}

// NewCancelledEvent returns the canonical event payload for an employer
// cancellation splitting the locked amount between the parties.
func NewCancelledEvent(id uint64, deal *Agreement) *types.Event {
	evt := newDealEvent(EventTypeDealCancelled, id, deal)
	if evt != nil {
		evt.Attributes["workerPayout"] = strconv.FormatUint(deal.Penalty, 10)
		evt.Attributes["employerRefund"] = strconv.FormatUint(deal.Budget, 10)
	}
	return evt
}

// NewArbitrationWonEvent returns the canonical event payload emitted when a
// winning verdict settles the deal in the worker's favour.
func NewArbitrationWonEvent(id uint64, deal *Agreement) *types.Event {
	evt := newDealEvent(EventTypeArbitrationWon, id, deal)
	if evt != nil {
		evt.Attributes["payout"] = strconv.FormatUint(deal.TotalLocked(), 10)
	}
	return evt
}

func newDealEvent(eventType string, id uint64, deal *Agreement) *types.Event {
	if deal == nil {
		return nil
	}
	attrs := map[string]string{
		"dealId":   strconv.FormatUint(id, 10),
		"employer": crypto.NewAddress(crypto.GLXPrefix, deal.Employer[:]).String(),
		"worker":   crypto.NewAddress(crypto.GLXPrefix, deal.Worker[:]).String(),
		"budget":   strconv.FormatUint(deal.Budget, 10),
		"penalty":  strconv.FormatUint(deal.Penalty, 10),
		"status":   deal.Status.String(),
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
