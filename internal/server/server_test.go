package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ironsheep/docrect-mcp/internal/pipeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := pipeline.New(pipeline.Deps{}, pipeline.Options{OutputDir: t.TempDir()})
	return New(svc, "test", nil)
}

func TestNew(t *testing.T) {
	s := newTestServer(t)
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.svc == nil || s.logger == nil {
		t.Fatal("New() did not initialize dependencies")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestRequestKey_DistinguishesTypes(t *testing.T) {
	if requestKey("1") == requestKey(float64(1)) {
		t.Error("string and numeric ids must not collide")
	}
	if requestKey(float64(7)) != requestKey(float64(7)) {
		t.Error("equal ids must map to the same key")
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := newTestServer(t)
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "docrect-mcp" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != "test" {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: "ping-1", Method: "ping"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if resp.ID != "ping-1" {
		t.Errorf("ID: got %v, want ping-1", resp.ID)
	}
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	toolsList, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(toolsList) != len(GetToolDefinitions()) {
		t.Errorf("Expected %d tools, got %d", len(GetToolDefinitions()), len(toolsList))
	}
}

func TestHandleRequest_Notifications(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{"notifications/initialized", "notifications/cancelled"} {
		t.Run(method, func(t *testing.T) {
			req := &MCPRequest{JSONRPC: "2.0", Method: method, Params: json.RawMessage(`{"requestId":99}`)}
			if resp := s.handleRequest(context.Background(), req); resp != nil {
				t.Errorf("%s should return nil response", method)
			}
		})
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "nonexistent/method"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != -32601 {
		t.Errorf("Error code: got %d, want -32601", resp.Error.Code)
	}
}

func TestCancelRequest(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.track(float64(5), cancel)
	if !s.cancelRequest(float64(5)) {
		t.Fatal("tracked request should be cancellable")
	}
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
	s.untrack(float64(5))
	if s.cancelRequest(float64(5)) {
		t.Error("untracked request should be unknown")
	}
}

func TestTrack_RejectsDuplicateID(t *testing.T) {
	s := newTestServer(t)
	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	_, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()

	if !s.track("dup", cancelFirst) {
		t.Fatal("first call should be tracked")
	}
	if s.track("dup", cancelSecond) {
		t.Fatal("a running id must not be tracked twice")
	}
	if first.Err() != nil {
		t.Error("rejecting the duplicate must not cancel the running call")
	}
	if !s.cancelRequest("dup") || first.Err() == nil {
		t.Error("cancellation should still reach the first call")
	}
}

func TestServe_DuplicateInflightID(t *testing.T) {
	s := newTestServer(t)
	running, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.track(float64(9), cancel)

	input := `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"document_cancel","arguments":{"session_id":"x"}}}`
	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var resp MCPResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("bad response %q: %v", out.String(), err)
	}
	if resp.Error == nil || resp.Error.Code != -32600 {
		t.Errorf("duplicate id: got %+v", resp.Error)
	}
	if running.Err() != nil {
		t.Error("the running call must not be cancelled by the duplicate")
	}
	if !s.cancelRequest(float64(9)) {
		t.Error("the running call should still be tracked")
	}
}

// TestServe drives a full session over a pipe: handshake, a tool call and
// a malformed line.
func TestServe(t *testing.T) {
	s := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"document_cancel","arguments":{"session_id":"nope"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	byID := map[string]MCPResponse{}
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var resp MCPResponse
		if err := json.Unmarshal(sc.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", sc.Text(), err)
		}
		byID[requestKey(resp.ID)] = resp
	}

	if len(byID) != 4 {
		t.Fatalf("expected 4 responses (3 requests + parse error), got %d: %v", len(byID), byID)
	}
	if r := byID[requestKey(nil)]; r.Error == nil || r.Error.Code != -32700 {
		t.Errorf("parse error response: %+v", r)
	}
	if r := byID[requestKey(float64(2))]; r.Error == nil || r.Error.Code != -32000 {
		t.Errorf("tool error response: %+v", r)
	}
	if r := byID[requestKey(float64(3))]; r.Error != nil {
		t.Errorf("ping: %+v", r.Error)
	}
}
