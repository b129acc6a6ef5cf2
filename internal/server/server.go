package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ironsheep/docrect-mcp/internal/pipeline"
)

// Server handles MCP protocol communication
type Server struct {
	svc     *pipeline.Service
	version string
	logger  *slog.Logger

	// inflight maps request ids of running tool calls to their cancel funcs.
	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a server that exposes svc as MCP tools.
func New(svc *pipeline.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:      svc,
		version:  version,
		logger:   logger,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Run serves MCP over stdin/stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one JSON-RPC message per line from r and writes responses to
// w. Tool calls run concurrently so a slow detection never blocks corner
// drags; responses may therefore arrive out of request order. Serve returns
// after every started call has answered.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	// Base64 images make for long lines.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	encoder := json.NewEncoder(w)
	send := func(resp *MCPResponse) {
		if resp == nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := encoder.Encode(resp); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
	defer wg.Wait()

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", "error", err)
			send(s.errorResponse(nil, -32700, "Parse error", err.Error()))
			continue
		}

		if req.Method != "tools/call" {
			send(s.handleRequest(ctx, &req))
			continue
		}

		callCtx, cancel := context.WithCancel(ctx)
		if !s.track(req.ID, cancel) {
			cancel()
			send(s.errorResponse(req.ID, -32600, "Invalid Request", "request id is already in use by a running call"))
			continue
		}
		wg.Add(1)
		go func(req MCPRequest) {
			defer wg.Done()
			defer s.untrack(req.ID)
			send(s.handleToolsCall(callCtx, &req))
		}(req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func requestKey(id interface{}) string {
	return fmt.Sprintf("%T:%v", id, id)
}

// track registers a running tool call. It reports false, leaving the
// existing entry alone, when id belongs to a call that is still running.
func (s *Server) track(id interface{}, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := requestKey(id)
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = cancel
	return true
}

func (s *Server) untrack(id interface{}) {
	s.mu.Lock()
	if cancel, ok := s.inflight[requestKey(id)]; ok {
		cancel()
		delete(s.inflight, requestKey(id))
	}
	s.mu.Unlock()
}

// cancelRequest aborts a running tool call. Unknown ids are ignored.
func (s *Server) cancelRequest(id interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.inflight[requestKey(id)]
	if ok {
		cancel()
	}
	return ok
}

type cancelledParams struct {
	RequestID interface{} `json:"requestId"`
	Reason    string      `json:"reason,omitempty"`
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "notifications/cancelled":
		var p cancelledParams
		if err := json.Unmarshal(req.Params, &p); err == nil && s.cancelRequest(p.RequestID) {
			s.logger.Debug("request cancelled", "id", p.RequestID, "reason", p.Reason)
		}
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "docrect-mcp",
				"version": s.version,
			},
		},
	}
}
