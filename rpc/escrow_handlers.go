package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Handik4/GenLayer-Escrow/crypto"
	"github.com/Handik4/GenLayer-Escrow/native/arbitration"
	"github.com/Handik4/GenLayer-Escrow/native/escrow"
)

type createDealParams struct {
	Caller          string `json:"caller"`
	Value           string `json:"value"`
	Worker          string `json:"worker"`
	Terms           string `json:"terms"`
	Budget          string `json:"budget"`
	Penalty         string `json:"penalty"`
	Deadline        uint64 `json:"deadline"`
	EmployerContact string `json:"employerContact,omitempty"`
}

type acceptDealParams struct {
	ID            uint64 `json:"id"`
	Caller        string `json:"caller"`
	WorkerContact string `json:"workerContact,omitempty"`
}

type dealActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type resolutionParams struct {
	ID       uint64 `json:"id"`
	Caller   string `json:"caller"`
	ProofURL string `json:"proofUrl"`
}

type dealIDParams struct {
	ID uint64 `json:"id"`
}

type listDealsParams struct {
	FromID uint64 `json:"fromId,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type listEventsParams struct {
	AfterSequence uint64 `json:"afterSequence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type createDealResult struct {
	DealID uint64 `json:"dealId"`
	Status string `json:"status"`
}

type statusResult struct {
	Status string `json:"status"`
}

type resolutionResult struct {
	Outcome string `json:"outcome"`
}

type balanceResult struct {
	Balance string `json:"balance"`
}

type totalDealsResult struct {
	Total uint64 `json:"total"`
}

type dealJSON struct {
	ID              uint64 `json:"id"`
	Employer        string `json:"employer"`
	Worker          string `json:"worker"`
	Terms           string `json:"terms"`
	Budget          string `json:"budget"`
	Penalty         string `json:"penalty"`
	Deadline        uint64 `json:"deadline"`
	EmployerContact string `json:"employerContact,omitempty"`
	WorkerContact   string `json:"workerContact,omitempty"`
	Status          string `json:"status"`
	CreatedAt       uint64 `json:"createdAt"`
}

type listDealsResult struct {
	Deals []dealJSON `json:"deals"`
}

func dealToJSON(id uint64, deal *escrow.Agreement) dealJSON {
	return dealJSON{
		ID:              id,
		Employer:        crypto.NewAddress(crypto.GLXPrefix, deal.Employer[:]).String(),
		Worker:          crypto.NewAddress(crypto.GLXPrefix, deal.Worker[:]).String(),
		Terms:           deal.Terms,
		Budget:          strconv.FormatUint(deal.Budget, 10),
		Penalty:         strconv.FormatUint(deal.Penalty, 10),
		Deadline:        deal.Deadline,
		EmployerContact: deal.EmployerContact,
		WorkerContact:   deal.WorkerContact,
		Status:          deal.Status.String(),
		CreatedAt:       deal.CreatedAt,
	}
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(field, value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("%s must be provided", field)
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned decimal integer", field)
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeDealError maps ledger and bridge errors to their machine-readable
// status strings.
func writeDealError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeDealNotFound, "NOT_FOUND", nil)
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeDealForbidden, "UNAUTHORIZED", nil)
	case errors.Is(err, escrow.ErrNotAvailable):
		writeError(w, http.StatusConflict, id, codeDealConflict, "NOT_AVAILABLE", nil)
	case errors.Is(err, escrow.ErrNotActive):
		writeError(w, http.StatusConflict, id, codeDealConflict, "NOT_ACTIVE", nil)
	case errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, id, codeInsufficientFunds, "INSUFFICIENT_FUNDS", nil)
	case errors.Is(err, arbitration.ErrConsensusFailed):
		writeError(w, http.StatusBadGateway, id, codeConsensusFailed, "AI_CONSENSUS_FAILED", nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params createDealParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	worker, err := parseAddress(params.Worker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount("value", params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	budget, err := parseAmount("budget", params.Budget)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	penalty, err := parseAmount("penalty", params.Penalty)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	dealID, err := s.node.CreateDeal(caller, value, worker, params.Terms, budget, penalty, params.Deadline, params.EmployerContact)
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createDealResult{DealID: dealID, Status: "CREATED_AND_LOCKED"})
}

func (s *Server) handleAcceptDeal(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params acceptDealParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AcceptDeal(params.ID, caller, params.WorkerContact); err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusResult{Status: "ACTIVATED"})
}

func (s *Server) handleApproveAndPay(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params dealActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ApproveAndPay(params.ID, caller); err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusResult{Status: "FUNDS_TRANSFERRED_TO_WORKER"})
}

func (s *Server) handleCancelWithPenaltyPayout(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params dealActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.CancelWithPenaltyPayout(params.ID, caller); err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, statusResult{Status: "PENALTY_PAID_TO_WORKER_REMAINDER_REFUNDED"})
}

func (s *Server) handleRequestAiResolution(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params resolutionParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(params.ProofURL) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "proofUrl must be provided")
		return
	}
	outcome, err := s.node.RequestAiResolution(r.Context(), params.ID, caller, params.ProofURL)
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, resolutionResult{Outcome: string(outcome)})
}

func (s *Server) handleGetContractBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	balance, err := s.node.ContractBalance()
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: balance.String()})
}

func (s *Server) handleGetDeal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params dealIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	deal, ok, err := s.node.Deal(params.ID)
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	if !ok {
		writeDealError(w, req.ID, escrow.ErrNotFound)
		return
	}
	writeResult(w, req.ID, dealToJSON(params.ID, deal))
}

func (s *Server) handleListDeals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listDealsParams{}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	ids, deals, err := s.node.Deals(params.FromID, params.Limit)
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	out := listDealsResult{Deals: make([]dealJSON, 0, len(deals))}
	for i, deal := range deals {
		out.Deals = append(out.Deals, dealToJSON(ids[i], deal))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleTotalDeals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.TotalDeals()
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalDealsResult{Total: total})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.AccountBalance(addr)
	if err != nil {
		writeDealError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Balance: balance.String()})
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	writeResult(w, req.ID, s.node.Events(params.AfterSequence, params.Limit))
}
