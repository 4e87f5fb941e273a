package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Handik4/GenLayer-Escrow/core/events"
	"github.com/Handik4/GenLayer-Escrow/core/types"
)

var errNilState = errors.New("escrow engine: state not configured")

// ledgerState is the slice of ledger state the deal engine needs: the ordered
// deal table, the issued-deal counter, and balance-bearing accounts including
// the custody account.
type ledgerState interface {
	DealPut(id uint64, deal *Agreement) error
	DealGet(id uint64) (*Agreement, bool, error)
	DealsIssued() (uint64, error)
	SetDealsIssued(count uint64) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	CustodyAddress() [20]byte
}

type dealEvent struct {
	evt *types.Event
}

func (e dealEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e dealEvent) Event() *types.Event { return e.evt }

// Engine owns every deal state transition and fund-release decision. All
// public operations are guard-checked before any mutation; settling
// operations persist the new status before moving funds so a re-entrant call
// observes the deal as already settled.
type Engine struct {
	state   ledgerState
	emitter events.Emitter
	nowFn   func() uint64
}

// NewEngine creates a deal engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state ledgerState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for creation timestamps.
// Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(dealEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) loadDeal(id uint64) (*Agreement, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	deal, ok, err := e.state.DealGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return deal, nil
}

func (e *Engine) storeDeal(id uint64, deal *Agreement) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.DealPut(id, deal)
}

// transfer moves amount between two ledger accounts. A zero amount is a no-op.
func (e *Engine) transfer(from, to [20]byte, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	amt := new(big.Int).SetUint64(amount)
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureBalances()
	toAcc = toAcc.EnsureBalances()
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow: insufficient balance for transfer")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// CreateDeal locks value against a new OPEN deal and returns its identifier.
// Identifiers are dense and strictly increasing from 0. The attached value
// must cover budget+penalty and must be available on the employer's account;
// any excess over the requirement stays with the custody account and is not
// refunded.
func (e *Engine) CreateDeal(employer [20]byte, value uint64, worker [20]byte, terms string, budget, penalty, deadline uint64, employerContact string) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	required := new(big.Int).Add(new(big.Int).SetUint64(budget), new(big.Int).SetUint64(penalty))
	if new(big.Int).SetUint64(value).Cmp(required) < 0 {
		return 0, ErrInsufficientFunds
	}
	employerAcc, err := e.state.GetAccount(employer[:])
	if err != nil {
		return 0, err
	}
	if employerAcc.EnsureBalances().Balance.Cmp(new(big.Int).SetUint64(value)) < 0 {
		return 0, ErrInsufficientFunds
	}
	id, err := e.state.DealsIssued()
	if err != nil {
		return 0, err
	}
	if err := e.transfer(employer, e.state.CustodyAddress(), value); err != nil {
		return 0, err
	}
	deal := &Agreement{
		Employer:        employer,
		Worker:          worker,
		Terms:           terms,
		Budget:          budget,
		Penalty:         penalty,
		Deadline:        deadline,
		EmployerContact: employerContact,
		Status:          DealOpen,
		CreatedAt:       e.now(),
	}
	if err := e.storeDeal(id, deal); err != nil {
		return 0, err
	}
	if err := e.state.SetDealsIssued(id + 1); err != nil {
		return 0, err
	}
	e.emit(NewCreatedEvent(id, deal, value))
	return id, nil
}

// AcceptDeal transitions an OPEN deal to ACTIVE. Only the worker named at
// creation may accept, and only once.
func (e *Engine) AcceptDeal(id uint64, caller [20]byte, workerContact string) error {
	deal, err := e.loadDeal(id)
	if err != nil {
		return err
	}
	if caller != deal.Worker {
		return ErrUnauthorized
	}
	if deal.Status != DealOpen {
		return ErrNotAvailable
	}
	deal.WorkerContact = workerContact
	deal.Status = DealActive
	if err := e.storeDeal(id, deal); err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(id, deal))
	return nil
}

// ApproveAndPay settles an ACTIVE deal in the worker's favour: the full locked
// amount (budget+penalty) is paid to the worker. Only the employer may
// approve. The COMPLETED status is persisted before funds move.
func (e *Engine) ApproveAndPay(id uint64, caller [20]byte) error {
	deal, err := e.loadDeal(id)
	if err != nil {
		return err
	}
	if caller != deal.Employer {
		return ErrUnauthorized
	}
	if deal.Status != DealActive {
		return ErrNotActive
	}
	deal.Status = DealCompleted
	if err := e.storeDeal(id, deal); err != nil {
		return err
	}
	if err := e.transfer(e.state.CustodyAddress(), deal.Worker, deal.TotalLocked()); err != nil {
		return err
	}
	e.emit(NewApprovedEvent(id, deal))
	return nil
}

// CancelWithPenaltyPayout settles an ACTIVE deal by employer cancellation: the
// penalty bond goes to the worker and the budget returns to the employer. The
// two disbursements sum to the full locked amount.
func (e *Engine) CancelWithPenaltyPayout(id uint64, caller [20]byte) error {
	deal, err := e.loadDeal(id)
	if err != nil {
		return err
	}
	if caller != deal.Employer {
		return ErrUnauthorized
	}
	if deal.Status != DealActive {
		return ErrNotActive
	}
	deal.Status = DealCancelledByEmployer
	if err := e.storeDeal(id, deal); err != nil {
		return err
	}
	custody := e.state.CustodyAddress()
	if err := e.transfer(custody, deal.Worker, deal.Penalty); err != nil {
		return err
	}
	if err := e.transfer(custody, deal.Employer, deal.Budget); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(id, deal))
	return nil
}

// CheckArbitrationEligible applies the arbitration request gates: the caller
// must be the deal's worker and the deal must be ACTIVE. It returns a copy of
// the agreement for prompt construction.
func (e *Engine) CheckArbitrationEligible(id uint64, caller [20]byte) (*Agreement, error) {
	deal, err := e.loadDeal(id)
	if err != nil {
		return nil, err
	}
	if caller != deal.Worker {
		return nil, ErrUnauthorized
	}
	if deal.Status != DealActive {
		return nil, ErrNotActive
	}
	return deal.Clone(), nil
}

// SettleArbitrationWin applies a winning verdict: the deal completes and the
// full locked amount is paid to the worker. The gates are re-checked so the
// first settling transition wins even if another fired while the verdict was
// being obtained.
func (e *Engine) SettleArbitrationWin(id uint64, caller [20]byte) error {
	deal, err := e.loadDeal(id)
	if err != nil {
		return err
	}
	if caller != deal.Worker {
		return ErrUnauthorized
	}
	if deal.Status != DealActive {
		return ErrNotActive
	}
	deal.Status = DealCompleted
	if err := e.storeDeal(id, deal); err != nil {
		return err
	}
	if err := e.transfer(e.state.CustodyAddress(), deal.Worker, deal.TotalLocked()); err != nil {
		return err
	}
	e.emit(NewArbitrationWonEvent(id, deal))
	return nil
}

// Deal returns a copy of the stored agreement, if present.
func (e *Engine) Deal(id uint64) (*Agreement, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	deal, ok, err := e.state.DealGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return deal.Clone(), true, nil
}

// DealsIssued returns the total number of deals ever created.
func (e *Engine) DealsIssued() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.DealsIssued()
}

// CustodyBalance returns the total value currently held by the custody
// account. Public information, no authorization required.
func (e *Engine) CustodyBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	custody := e.state.CustodyAddress()
	acc, err := e.state.GetAccount(custody[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.EnsureBalances().Balance), nil
}

// AccountBalance returns the ledger balance of an arbitrary party account.
func (e *Engine) AccountBalance(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.EnsureBalances().Balance), nil
}
