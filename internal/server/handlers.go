package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/docrect-mcp/internal/geometry"
	"github.com/ironsheep/docrect-mcp/internal/imaging"
	"github.com/ironsheep/docrect-mcp/internal/pipeline"
	"github.com/ironsheep/docrect-mcp/internal/scanerr"
	"github.com/ironsheep/docrect-mcp/internal/session"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "document_detect").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// The error data carries the failure kind so clients can tell a bad outline
// from a broken model install.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		return s.toolError(req.ID, err)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch name {
	// Images
	case "image_load":
		return s.handleImageLoad(args)

	// Detection and editing
	case "document_detect":
		return s.handleDocumentDetect(ctx, args)
	case "document_move_corner":
		return s.handleDocumentMoveCorner(args)
	case "document_drag_corner":
		return s.handleDocumentDragCorner(args)
	case "document_relayout":
		return s.handleDocumentRelayout(args)
	case "document_commit":
		return s.handleDocumentCommit(ctx, args)
	case "document_cancel":
		return s.handleDocumentCancel(args)
	case "document_reedit":
		return s.handleDocumentReedit(args)

	// Stateless operations
	case "document_rectify":
		return s.handleDocumentRectify(ctx, args)
	case "document_extract_code":
		return s.handleDocumentExtractCode(ctx, args)
	case "document_preview":
		return s.handleDocumentPreview(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// toolErrorData is the data payload of a failed tool call.
type toolErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) toolError(id interface{}, err error) *MCPResponse {
	return s.errorResponse(id, -32000, "Tool execution failed", toolErrorData{
		Kind:    errorKind(err),
		Message: err.Error(),
	})
}

// errorKinds maps sentinel errors to the kind reported to clients. Order
// matters: the first match wins.
var errorKinds = []struct {
	err  error
	kind string
}{
	{pipeline.ErrSuperseded, "superseded"},
	{pipeline.ErrUnknownOutput, "unknown_output"},
	{context.Canceled, "cancelled"},
	{context.DeadlineExceeded, "cancelled"},
	{session.ErrNotFound, "session_not_found"},
	{session.ErrBusy, "session_busy"},
	{session.ErrClosed, "session_closed"},
	{scanerr.ErrInitialization, "initialization"},
	{scanerr.ErrDecode, "decode"},
	{scanerr.ErrInvalidPolygon, "invalid_polygon"},
	{scanerr.ErrTransformFailure, "transform_failure"},
}

// errorKind names the failure category of err for clients.
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "error"
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Image Handlers ===

type imageLoadArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	switch {
	case a.Path != "":
		return s.svc.Load(a.Path)
	case a.ImageBase64 != "":
		return s.svc.LoadBase64(a.ImageBase64)
	}
	return nil, fmt.Errorf("path or image_base64 is required")
}

// === Detection and Editing Handlers ===

type documentDetectArgs struct {
	Ref      string        `json:"ref"`
	Viewport geometry.Rect `json:"viewport"`
}

func (s *Server) handleDocumentDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a documentDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Ref == "" {
		return nil, fmt.Errorf("ref is required")
	}
	return s.svc.Begin(ctx, a.Ref, a.Viewport)
}

type documentMoveCornerArgs struct {
	SessionID string  `json:"session_id"`
	Corner    string  `json:"corner"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

func (s *Server) handleDocumentMoveCorner(args json.RawMessage) (interface{}, error) {
	var a documentMoveCornerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	c, err := geometry.ParseCorner(a.Corner)
	if err != nil {
		return nil, err
	}
	return s.svc.MoveCorner(a.SessionID, c, geometry.DisplayPoint{X: a.X, Y: a.Y})
}

type documentDragCornerArgs struct {
	SessionID string  `json:"session_id"`
	Corner    string  `json:"corner"`
	DX        float64 `json:"dx"`
	DY        float64 `json:"dy"`
}

func (s *Server) handleDocumentDragCorner(args json.RawMessage) (interface{}, error) {
	var a documentDragCornerArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	c, err := geometry.ParseCorner(a.Corner)
	if err != nil {
		return nil, err
	}
	return s.svc.DragCorner(a.SessionID, c, a.DX, a.DY)
}

type documentRelayoutArgs struct {
	SessionID string        `json:"session_id"`
	Viewport  geometry.Rect `json:"viewport"`
}

func (s *Server) handleDocumentRelayout(args json.RawMessage) (interface{}, error) {
	var a documentRelayoutArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Relayout(a.SessionID, a.Viewport)
}

type documentCommitArgs struct {
	SessionID    string `json:"session_id"`
	IncludeImage bool   `json:"include_image"`
}

func (s *Server) handleDocumentCommit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a documentCommitArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Commit(ctx, a.SessionID, a.IncludeImage)
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleDocumentCancel(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := s.svc.Cancel(a.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": a.SessionID, "cancelled": true}, nil
}

type documentReeditArgs struct {
	OutputRef string        `json:"output_ref"`
	Viewport  geometry.Rect `json:"viewport"`
}

func (s *Server) handleDocumentReedit(args json.RawMessage) (interface{}, error) {
	var a documentReeditArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Reedit(a.OutputRef, a.Viewport)
}

// === Stateless Handlers ===

type documentRectifyArgs struct {
	Ref          string                 `json:"ref"`
	Corners      []geometry.SourcePoint `json:"corners"`
	Reorder      bool                   `json:"reorder"`
	IncludeImage bool                   `json:"include_image"`
}

func (s *Server) handleDocumentRectify(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a documentRectifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.Rectify(ctx, a.Ref, a.Corners, pipeline.RectifyOptions{
		Reorder: a.Reorder,
		Inline:  a.IncludeImage,
	})
}

type refArgs struct {
	Ref string `json:"ref"`
}

func (s *Server) handleDocumentExtractCode(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a refArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.svc.ExtractCode(ctx, a.Ref)
}

type documentPreviewArgs struct {
	SessionID    string `json:"session_id"`
	EdgeColor    string `json:"edge_color"`
	HandleRadius int    `json:"handle_radius"`
	MaxDimension *int   `json:"max_dimension"`
}

func (s *Server) handleDocumentPreview(args json.RawMessage) (interface{}, error) {
	var a documentPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	maxDim := 1024
	if a.MaxDimension != nil {
		maxDim = *a.MaxDimension
	}
	return s.svc.Preview(a.SessionID, imaging.OverlayOptions{
		EdgeColorHex: a.EdgeColor,
		HandleRadius: a.HandleRadius,
		MaxDimension: maxDim,
	})
}
