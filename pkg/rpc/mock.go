package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"
)

type (
	// MockServer is a mock Solana RPC server for testing. Responses are
	// looked up per method; a method can be primed with either a result
	// payload or an RPCError.
	MockServer struct {
		server   *http.Server
		listener net.Listener
		mu       sync.RWMutex

		responses map[string]any
		errors    map[string]*RPCError
	}

	mockResponse struct {
		Jsonrpc string    `json:"jsonrpc"`
		Result  any       `json:"result,omitempty"`
		Error   *RPCError `json:"error,omitempty"`
		Id      any       `json:"id"`
	}
)

// NewMockServer creates a mock server primed with the given per-method
// results.
func NewMockServer(responses map[string]any) (*MockServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %v", err)
	}

	ms := &MockServer{
		listener:  listener,
		responses: responses,
		errors:    make(map[string]*RPCError),
	}
	if ms.responses == nil {
		ms.responses = make(map[string]any)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", ms.handleRPCRequest)
	ms.server = &http.Server{Handler: mux}

	go func() {
		_ = ms.server.Serve(listener)
	}()

	return ms, nil
}

// URL returns the URL of the mock server
func (ms *MockServer) URL() string {
	return fmt.Sprintf("http://%s", ms.listener.Addr().String())
}

// Close shuts down the mock server
func (ms *MockServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.server.Shutdown(ctx)
}

func (ms *MockServer) MustClose() {
	if err := ms.Close(); err != nil {
		panic(err)
	}
}

// SetResponse sets the result returned for a specific method.
func (ms *MockServer) SetResponse(method string, result any) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[method] = result
	delete(ms.errors, method)
}

// SetError makes a specific method fail with the given RPC error.
func (ms *MockServer) SetError(method string, rpcErr *RPCError) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.errors[method] = rpcErr
	delete(ms.responses, method)
}

func (ms *MockServer) handleRPCRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ms.mu.RLock()
	result, resultOk := ms.responses[req.Method]
	rpcErr, errOk := ms.errors[req.Method]
	ms.mu.RUnlock()

	response := mockResponse{Jsonrpc: "2.0", Id: req.Id}
	switch {
	case errOk:
		response.Error = rpcErr
	case resultOk:
		response.Result = result
	default:
		response.Error = &RPCError{Code: -32601, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// NewTestClient spins up a mock server primed with the given responses and
// returns a client pointed at it. Both are torn down with the test.
func NewTestClient(t *testing.T, responses map[string]any) (*MockServer, *Client) {
	server, err := NewMockServer(responses)
	if err != nil {
		t.Fatalf("failed to create mock server: %v", err)
	}
	t.Cleanup(server.MustClose)

	client := NewClient(&http.Client{}, server.URL(), time.Second)
	return server, client
}
