package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Handik4/GenLayer-Escrow/core"
	"github.com/Handik4/GenLayer-Escrow/crypto"
	"github.com/Handik4/GenLayer-Escrow/storage"
)

type staticFetcher struct {
	text string
	err  error
}

func (f *staticFetcher) FetchText(context.Context, string) (string, error) {
	return f.text, f.err
}

type staticOracle struct {
	answer string
	err    error
}

func (o *staticOracle) GenerateText(context.Context, string) (string, error) {
	return o.answer, o.err
}

type rpcHarness struct {
	t        *testing.T
	server   *httptest.Server
	token    string
	employer string
	worker   string
}

func newRPCHarness(t *testing.T, token string, oracle *staticOracle) *rpcHarness {
	t.Helper()

	employerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	workerKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	employer := employerKey.PubKey().Address()
	worker := workerKey.PubKey().Address()

	if oracle == nil {
		oracle = &staticOracle{answer: `{"win": false}`}
	}
	node := core.NewNode(storage.NewMemDB(), &staticFetcher{text: "delivered work"}, oracle)

	var employerRaw [20]byte
	copy(employerRaw[:], employer.Bytes())
	require.NoError(t, node.ApplyGenesisAlloc(map[[20]byte]uint64{employerRaw: 1_000_000}))

	server := NewServer(node, token, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &rpcHarness{
		t:        t,
		server:   ts,
		token:    token,
		employer: employer.String(),
		worker:   worker.String(),
	}
}

func (h *rpcHarness) call(method string, params interface{}, authed bool) *RPCResponse {
	h.t.Helper()

	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(h.t, err)

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/", bytes.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed && h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.server.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	out := &RPCResponse{}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
	return out
}

func (h *rpcHarness) createDeal() uint64 {
	h.t.Helper()
	resp := h.call("escrow_createDeal", createDealParams{
		Caller:   h.employer,
		Value:    "120",
		Worker:   h.worker,
		Terms:    "build the landing page",
		Budget:   "100",
		Penalty:  "20",
		Deadline: 1924992000,
	}, true)
	require.Nil(h.t, resp.Error)

	var result createDealResult
	decodeResult(h.t, resp, &result)
	require.Equal(h.t, "CREATED_AND_LOCKED", result.Status)
	return result.DealID
}

func decodeResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestRPCDealLifecycle(t *testing.T) {
	h := newRPCHarness(t, "test-token", nil)

	id := h.createDeal()
	require.Equal(t, uint64(0), id)

	resp := h.call("escrow_acceptDeal", acceptDealParams{ID: id, Caller: h.worker, WorkerContact: "@worker"}, true)
	require.Nil(t, resp.Error)
	var accepted statusResult
	decodeResult(t, resp, &accepted)
	require.Equal(t, "ACTIVATED", accepted.Status)

	resp = h.call("escrow_approveAndPay", dealActorParams{ID: id, Caller: h.employer}, true)
	require.Nil(t, resp.Error)
	var approved statusResult
	decodeResult(t, resp, &approved)
	require.Equal(t, "FUNDS_TRANSFERRED_TO_WORKER", approved.Status)

	resp = h.call("escrow_getDeal", dealIDParams{ID: id}, false)
	require.Nil(t, resp.Error)
	var deal dealJSON
	decodeResult(t, resp, &deal)
	require.Equal(t, "COMPLETED", deal.Status)
	require.Equal(t, "@worker", deal.WorkerContact)

	resp = h.call("escrow_getBalance", balanceParams{Address: h.worker}, false)
	require.Nil(t, resp.Error)
	var balance balanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "120", balance.Balance)

	resp = h.call("escrow_getContractBalance", nil, false)
	require.Nil(t, resp.Error)
	decodeResult(t, resp, &balance)
	require.Equal(t, "0", balance.Balance)
}

func TestRPCCancelWithPenaltyPayout(t *testing.T) {
	h := newRPCHarness(t, "test-token", nil)

	id := h.createDeal()
	resp := h.call("escrow_acceptDeal", acceptDealParams{ID: id, Caller: h.worker}, true)
	require.Nil(t, resp.Error)

	resp = h.call("escrow_cancelWithPenaltyPayout", dealActorParams{ID: id, Caller: h.employer}, true)
	require.Nil(t, resp.Error)
	var cancelled statusResult
	decodeResult(t, resp, &cancelled)
	require.Equal(t, "PENALTY_PAID_TO_WORKER_REMAINDER_REFUNDED", cancelled.Status)

	resp = h.call("escrow_getBalance", balanceParams{Address: h.worker}, false)
	require.Nil(t, resp.Error)
	var balance balanceResult
	decodeResult(t, resp, &balance)
	require.Equal(t, "20", balance.Balance)
}

func TestRPCRequiresBearerToken(t *testing.T) {
	h := newRPCHarness(t, "test-token", nil)

	resp := h.call("escrow_createDeal", createDealParams{
		Caller:  h.employer,
		Value:   "120",
		Worker:  h.worker,
		Terms:   "work",
		Budget:  "100",
		Penalty: "20",
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// read methods stay public
	resp = h.call("escrow_totalDeals", nil, false)
	require.Nil(t, resp.Error)
	var total totalDealsResult
	decodeResult(t, resp, &total)
	require.Equal(t, uint64(0), total.Total)
}

func TestRPCDomainErrors(t *testing.T) {
	h := newRPCHarness(t, "", nil)

	resp := h.call("escrow_acceptDeal", acceptDealParams{ID: 42, Caller: h.worker}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeDealNotFound, resp.Error.Code)
	require.Equal(t, "NOT_FOUND", resp.Error.Message)

	id := h.createDeal()
	resp = h.call("escrow_acceptDeal", acceptDealParams{ID: id, Caller: h.employer}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeDealForbidden, resp.Error.Code)
	require.Equal(t, "UNAUTHORIZED", resp.Error.Message)

	resp = h.call("escrow_createDeal", createDealParams{
		Caller:  h.employer,
		Value:   "50",
		Worker:  h.worker,
		Terms:   "underfunded job",
		Budget:  "100",
		Penalty: "20",
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInsufficientFunds, resp.Error.Code)
	require.Equal(t, "INSUFFICIENT_FUNDS", resp.Error.Message)
}

func TestRPCArbitrationOutcomes(t *testing.T) {
	oracle := &staticOracle{answer: "```json\n{\"win\": true}\n```"}
	h := newRPCHarness(t, "", oracle)

	id := h.createDeal()
	resp := h.call("escrow_acceptDeal", acceptDealParams{ID: id, Caller: h.worker}, false)
	require.Nil(t, resp.Error)

	resp = h.call("escrow_requestAiResolution", resolutionParams{ID: id, Caller: h.worker, ProofURL: "https://proof.example/report"}, false)
	require.Nil(t, resp.Error)
	var result resolutionResult
	decodeResult(t, resp, &result)
	require.Equal(t, "WORKER_WON", result.Outcome)

	resp = h.call("escrow_getDeal", dealIDParams{ID: id}, false)
	require.Nil(t, resp.Error)
	var deal dealJSON
	decodeResult(t, resp, &deal)
	require.Equal(t, "COMPLETED", deal.Status)

	// a losing verdict leaves the deal active for another attempt
	oracle.answer = `{"win": false}`
	second := h.createDeal()
	resp = h.call("escrow_acceptDeal", acceptDealParams{ID: second, Caller: h.worker}, false)
	require.Nil(t, resp.Error)

	resp = h.call("escrow_requestAiResolution", resolutionParams{ID: second, Caller: h.worker, ProofURL: "https://proof.example/report"}, false)
	require.Nil(t, resp.Error)
	decodeResult(t, resp, &result)
	require.Equal(t, "WORKER_LOST", result.Outcome)

	resp = h.call("escrow_getDeal", dealIDParams{ID: second}, false)
	require.Nil(t, resp.Error)
	decodeResult(t, resp, &deal)
	require.Equal(t, "ACTIVE", deal.Status)
}

func TestRPCArbitrationConsensusFailure(t *testing.T) {
	oracle := &staticOracle{answer: "the worker probably deserves it"}
	h := newRPCHarness(t, "", oracle)

	id := h.createDeal()
	resp := h.call("escrow_acceptDeal", acceptDealParams{ID: id, Caller: h.worker}, false)
	require.Nil(t, resp.Error)

	resp = h.call("escrow_requestAiResolution", resolutionParams{ID: id, Caller: h.worker, ProofURL: "https://proof.example/report"}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConsensusFailed, resp.Error.Code)
	require.Equal(t, "AI_CONSENSUS_FAILED", resp.Error.Message)
}

func TestRPCInvalidRequests(t *testing.T) {
	h := newRPCHarness(t, "", nil)

	resp := h.call("escrow_noSuchMethod", nil, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	resp = h.call("escrow_createDeal", createDealParams{
		Caller:  "not-an-address",
		Value:   "120",
		Worker:  h.worker,
		Terms:   "work",
		Budget:  "100",
		Penalty: "20",
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	resp = h.call("escrow_createDeal", createDealParams{
		Caller:  h.employer,
		Value:   "-5",
		Worker:  h.worker,
		Terms:   "work",
		Budget:  "100",
		Penalty: "20",
	}, false)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	raw, err := http.Post(h.server.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer raw.Body.Close()
	out := &RPCResponse{}
	require.NoError(t, json.NewDecoder(raw.Body).Decode(out))
	require.NotNil(t, out.Error)
	require.Equal(t, codeParseError, out.Error.Code)
}

func TestRPCListDealsAndEvents(t *testing.T) {
	h := newRPCHarness(t, "", nil)

	for i := 0; i < 3; i++ {
		h.createDeal()
	}

	resp := h.call("escrow_listDeals", listDealsParams{FromID: 1, Limit: 10}, false)
	require.Nil(t, resp.Error)
	var deals listDealsResult
	decodeResult(t, resp, &deals)
	require.Len(t, deals.Deals, 2)
	require.Equal(t, uint64(1), deals.Deals[0].ID)
	require.Equal(t, uint64(2), deals.Deals[1].ID)

	resp = h.call("escrow_totalDeals", nil, false)
	require.Nil(t, resp.Error)
	var total totalDealsResult
	decodeResult(t, resp, &total)
	require.Equal(t, uint64(3), total.Total)

	resp = h.call("escrow_listEvents", listEventsParams{Limit: 100}, false)
	require.Nil(t, resp.Error)
	entries, ok := resp.Result.([]interface{})
	require.True(t, ok, fmt.Sprintf("unexpected result shape %T", resp.Result))
	require.Len(t, entries, 3)
}
