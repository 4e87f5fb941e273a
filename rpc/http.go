package rpc

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/Handik4/GenLayer-Escrow/core"
	"github.com/Handik4/GenLayer-Escrow/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Domain error codes mirroring the deal ledger's taxonomy.
const (
	codeDealNotFound      = -32022
	codeDealForbidden     = -32023
	codeDealConflict      = -32024
	codeInsufficientFunds = -32026
	codeConsensusFailed   = -32027
)

// Server exposes the deal ledger over JSON-RPC 2.0. Mutating methods require
// the configured bearer token; read methods are public.
type Server struct {
	node      *core.Node
	authToken string
	log       *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer constructs an RPC server for the supplied node. An empty token
// disables authentication (local development only).
func NewServer(node *core.Node, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(authToken),
		log:       logger,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Router returns the HTTP handler serving the RPC endpoint and the websocket
// event stream.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	return r
}

// Start serves the RPC surface on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	clientIP := s.clientIP(r)
	if !s.allow(clientIP) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(recorder, r, &req)
	outcome := "ok"
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
	}
	observability.ModuleMetrics().Observe("escrow", req.Method, outcome, time.Since(started))
}

type rpcHandler func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"escrow_createDeal":              s.handleCreateDeal,
		"escrow_acceptDeal":              s.handleAcceptDeal,
		"escrow_approveAndPay":           s.handleApproveAndPay,
		"escrow_cancelWithPenaltyPayout": s.handleCancelWithPenaltyPayout,
		"escrow_requestAiResolution":     s.handleRequestAiResolution,
		"escrow_getContractBalance":      s.handleGetContractBalance,
		"escrow_getDeal":                 s.handleGetDeal,
		"escrow_listDeals":               s.handleListDeals,
		"escrow_totalDeals":              s.handleTotalDeals,
		"escrow_getBalance":              s.handleGetBalance,
		"escrow_listEvents":              s.handleListEvents,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type authError struct {
	Code    int
	Message string
	Data    interface{}
}

// requireAuth enforces the bearer token on mutating methods. A server with no
// configured token accepts every caller.
func (s *Server) requireAuth(r *http.Request) *authError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &authError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if strings.TrimSpace(strings.TrimPrefix(header, prefix)) != s.authToken {
		return &authError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}

func (s *Server) clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// allow applies a per-client token bucket: 10 requests/second with bursts of
// 20, matching the gateway's defaults.
func (s *Server) allow(clientIP string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(10), 20)
		s.limiters[clientIP] = limiter
	}
	return limiter.Allow()
}
