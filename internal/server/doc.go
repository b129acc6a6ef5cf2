// Package server implements the MCP (Model Context Protocol) server for
// document scanning.
//
// This package provides a JSON-RPC 2.0 server that exposes corner detection,
// interactive corner editing and perspective correction through the MCP
// protocol. A client loads a photo of a document, slide or whiteboard, gets
// suggested corners, adjusts them and receives a flattened 16:9 image.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - notifications/cancelled: Abort a running tools/call
//   - ping: Health check
//
// Tool calls run concurrently. Responses carry the request id and may be
// written out of order, so a drag answered while a detection is still
// running does not wait for it.
//
// # Available Tools
//
// Images:
//   - image_load: Load a file or base64 image, returns a reference
//
// Detection and editing:
//   - document_detect: Detect corners and open an editing session
//   - document_move_corner: Place one corner at a display position
//   - document_drag_corner: Move one corner by a display offset
//   - document_relayout: Reproject corners after a viewport change
//   - document_commit: Rectify with the current corners and close the session
//   - document_cancel: Discard a session
//   - document_reedit: Reopen a previous output with its corners
//
// Stateless:
//   - document_rectify: Rectify with explicit source-pixel corners
//   - document_extract_code: Read a QR or Data Matrix code
//   - document_preview: Render the live outline over the source image
//
// # Coordinates
//
// Editing tools work in display coordinates: the client passes the viewport
// rectangle the image is drawn into (aspect-fit, centred) and every corner it
// sends or receives is relative to that. Responses also carry the same corners
// in source pixels. Omitting the viewport makes the two spaces identical.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: "Tool execution failed"
//   - data: {"kind": ..., "message": ...}
//
// Kinds include invalid_polygon, transform_failure, decode, initialization,
// session_not_found, session_busy, session_closed, superseded and cancelled.
// A detection miss and a missing QR code are normal results, not errors.
//
// # Usage
//
//	srv := server.New(svc, version, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
