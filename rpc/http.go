package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stakepool/native/common"
	"stakepool/native/stakepool"
	"stakepool/observability"
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
)

// Server exposes the pool's command and query surface over JSON-RPC 2.0.
type Server struct {
	engine    *stakepool.Engine
	authToken string
	metrics   *observability.RPCMetrics
}

// NewServer wires a server around the pool engine. An empty auth token
// disables authentication for mutating methods; deployments should always set
// one.
func NewServer(engine *stakepool.Engine, authToken string) *Server {
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(authToken),
		metrics:   observability.Metrics(),
	}
}

// RPCRequest is the JSON-RPC request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

// RPCResponse is the JSON-RPC response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
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
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

// ServeHTTP handles one JSON-RPC request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	req := &RPCRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	handler, mutating := s.route(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		s.metrics.ObserveRequest(req.Method, "not_found", time.Since(start))
		return
	}
	if mutating {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			s.metrics.ObserveRequest(req.Method, "unauthorized", time.Since(start))
			return
		}
	}

	result, rpcErr := handler(req)
	if rpcErr != nil {
		writeError(w, statusForCode(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		s.metrics.ObserveError(req.Method, strconv.Itoa(rpcErr.Code))
		s.metrics.ObserveRequest(req.Method, "error", time.Since(start))
		return
	}
	writeResult(w, req.ID, result)
	s.metrics.ObserveRequest(req.Method, "ok", time.Since(start))
}

type rpcHandler func(req *RPCRequest) (interface{}, *RPCError)

func (s *Server) route(method string) (rpcHandler, bool) {
	switch method {
	case "stakepool_receive":
		return s.handleReceive, true
	case "stakepool_registerRewardAsset":
		return s.handleRegisterRewardAsset, true
	case "stakepool_updateRewardAssetEndpoint":
		return s.handleUpdateRewardAssetEndpoint, true
	case "stakepool_withdraw":
		return s.handleWithdraw, true
	case "stakepool_claim":
		return s.handleClaim, true
	case "stakepool_getPoolState":
		return s.handleGetPoolState, false
	case "stakepool_getPendingRewards":
		return s.handleGetPendingRewards, false
	default:
		return nil, false
	}
}

func statusForCode(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusForbidden
	case codeInvalidParams, codeInvalidRequest, codeParseError:
		return http.StatusBadRequest
	case codeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusOK
	}
}

// engineError translates a pool engine failure into a JSON-RPC error object.
// Every engine error aborts the whole operation, so the mapping is purely a
// presentation concern.
func engineError(err error) *RPCError {
	code := codeServerError
	switch {
	case errors.Is(err, stakepool.ErrUnauthorized), errors.Is(err, common.ErrModulePaused):
		code = codeUnauthorized
	case errors.Is(err, stakepool.ErrInvalidAmount),
		errors.Is(err, stakepool.ErrZeroDuration),
		errors.Is(err, stakepool.ErrUnknownPayload):
		code = codeInvalidParams
	}
	return &RPCError{Code: code, Message: err.Error()}
}
