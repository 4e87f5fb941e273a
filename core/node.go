package core

import (
	"context"
	"math/big"
	"sync"

	"github.com/Handik4/GenLayer-Escrow/core/events"
	"github.com/Handik4/GenLayer-Escrow/core/state"
	"github.com/Handik4/GenLayer-Escrow/native/arbitration"
	"github.com/Handik4/GenLayer-Escrow/native/escrow"
	"github.com/Handik4/GenLayer-Escrow/storage"
)

// Node owns the deal ledger and the arbitration bridge and serialises every
// public operation: each call runs to completion against ledger state before
// the next is admitted. The arbitration oracle call happens under the same
// admission, so a verdict is always applied against the state it was requested
// from; the status guards additionally enforce first-writer-wins.
type Node struct {
	mu sync.Mutex

	state  *state.Manager
	engine *escrow.Engine
	bridge *arbitration.Bridge
	events *events.Buffer
}

// NewNode wires a node over the supplied database. The proof fetcher and
// oracle back the arbitration bridge; tests pass stubs.
func NewNode(db storage.Database, fetcher arbitration.ProofFetcher, oracle arbitration.Oracle) *Node {
	manager := state.NewManager(db)
	buffer := events.NewBuffer(4096)

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(buffer)

	bridge := arbitration.NewBridge(engine, fetcher, oracle)
	bridge.SetEmitter(buffer)

	return &Node{
		state:  manager,
		engine: engine,
		bridge: bridge,
		events: buffer,
	}
}

// ApplyGenesisAlloc credits the configured genesis balances once per database
// lifetime.
func (n *Node) ApplyGenesisAlloc(alloc map[[20]byte]uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.ApplyGenesisAlloc(alloc)
}

// CreateDeal locks value against a new OPEN deal and returns its identifier.
func (n *Node) CreateDeal(employer [20]byte, value uint64, worker [20]byte, terms string, budget, penalty, deadline uint64, employerContact string) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CreateDeal(employer, value, worker, terms, budget, penalty, deadline, employerContact)
}

// AcceptDeal transitions an OPEN deal to ACTIVE on behalf of its named worker.
func (n *Node) AcceptDeal(id uint64, caller [20]byte, workerContact string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.AcceptDeal(id, caller, workerContact)
}

// ApproveAndPay settles an ACTIVE deal in the worker's favour.
func (n *Node) ApproveAndPay(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.ApproveAndPay(id, caller)
}

// CancelWithPenaltyPayout settles an ACTIVE deal by employer cancellation.
func (n *Node) CancelWithPenaltyPayout(id uint64, caller [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CancelWithPenaltyPayout(id, caller)
}

// RequestAiResolution runs one arbitration round for the deal.
func (n *Node) RequestAiResolution(ctx context.Context, id uint64, caller [20]byte, proofURL string) (arbitration.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.bridge.Request(ctx, id, caller, proofURL)
}

// ContractBalance returns the total value held by the custody account.
func (n *Node) ContractBalance() (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.CustodyBalance()
}

// AccountBalance returns the ledger balance of a party account.
func (n *Node) AccountBalance(addr [20]byte) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.AccountBalance(addr)
}

// Deal returns the stored agreement for id, if present.
func (n *Node) Deal(id uint64) (*escrow.Agreement, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.Deal(id)
}

// Deals returns up to limit agreements starting at fromID, in identifier order.
func (n *Node) Deals(fromID uint64, limit int) ([]uint64, []*escrow.Agreement, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.Deals(fromID, limit)
}

// TotalDeals returns the number of deals ever created.
func (n *Node) TotalDeals() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.engine.DealsIssued()
}

// Events returns retained ledger events with sequence greater than afterSeq.
func (n *Node) Events(afterSeq uint64, limit int) []events.Entry {
	return n.events.List(afterSeq, limit)
}

// SubscribeEvents registers a live event subscriber for the websocket stream.
func (n *Node) SubscribeEvents(afterSeq uint64) (<-chan events.Entry, func(), []events.Entry) {
	return n.events.Subscribe(afterSeq)
}
