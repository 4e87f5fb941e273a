package escrow

import (
	"fmt"
	"strings"
)

// DealStatus represents the lifecycle states supported by the deal ledger.
type DealStatus uint8

const (
	DealOpen DealStatus = iota
	DealActive
	DealCompleted
	DealCancelledByEmployer
)

// Agreement captures one employer/worker contract together with the funds
// locked against it. Budget is earned by the worker on satisfactory
// completion; Penalty is the worker-protection bond locked alongside it.
// Deadline is retained as opaque metadata and is not enforced by any
// transition.
type Agreement struct {
	Employer        [20]byte
	Worker          [20]byte
	Terms           string
	Budget          uint64
	Penalty         uint64
	Deadline        uint64
	EmployerContact string
	WorkerContact   string
	Status          DealStatus
	CreatedAt       uint64
}

// Clone returns a copy of the agreement so callers can safely mutate the copy
// without affecting the stored instance.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// TotalLocked returns budget+penalty, the exact amount locked at creation and
// disbursed in full by whichever settling transition fires.
func (a *Agreement) TotalLocked() uint64 {
	return a.Budget + a.Penalty
}

// Valid reports whether the status value is within the supported range.
func (s DealStatus) Valid() bool {
	switch s {
	case DealOpen, DealActive, DealCompleted, DealCancelledByEmployer:
		return true
	default:
		return false
	}
}

// String renders the canonical wire form of the status.
func (s DealStatus) String() string {
	switch s {
	case DealOpen:
		return "OPEN"
	case DealActive:
		return "ACTIVE"
	case DealCompleted:
		return "COMPLETED"
	case DealCancelledByEmployer:
		return "CANCELLED_BY_EMPLOYER"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// SanitizeAgreement validates and normalises the supplied agreement, returning
// a cloned instance with trimmed contact metadata. The function does not
// mutate the original value.
func SanitizeAgreement(a *Agreement) (*Agreement, error) {
	if a == nil {
		return nil, fmt.Errorf("nil agreement")
	}
	clone := a.Clone()
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid deal status: %d", clone.Status)
	}
	if clone.Budget > clone.Budget+clone.Penalty {
		return nil, fmt.Errorf("locked amount overflows")
	}
	clone.EmployerContact = strings.TrimSpace(clone.EmployerContact)
	clone.WorkerContact = strings.TrimSpace(clone.WorkerContact)
	return clone, nil
}
