package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func viewportSchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": desc,
		"properties": map[string]interface{}{
			"x":      map[string]interface{}{"type": "number"},
			"y":      map[string]interface{}{"type": "number"},
			"width":  map[string]interface{}{"type": "number"},
			"height": map[string]interface{}{"type": "number"},
		},
		"required": []string{"width", "height"},
	}
}

var sessionIDSchema = map[string]interface{}{
	"type":        "string",
	"description": "Editing session id returned by document_detect or document_reedit",
}

var cornerSchema = map[string]interface{}{
	"type":        "string",
	"description": "Corner to move: top-left, top-right, bottom-right, bottom-left (or 0-3)",
	"enum":        []string{"top-left", "top-right", "bottom-right", "bottom-left", "0", "1", "2", "3"},
}

var includeImageSchema = map[string]interface{}{
	"type":        "boolean",
	"description": "Also return the rectified PNG as base64. Default false",
	"default":     false,
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Images
		{
			Name:        "image_load",
			Description: "Load an image from a file path or base64 data and return a reference plus its dimensions and format. Pass the reference to the document_* tools.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"image_base64": map[string]interface{}{
						"type":        "string",
						"description": "Base64 encoded image bytes (PNG, JPEG, GIF, BMP, TIFF or WebP), used when path is empty",
					},
				},
			},
		},

		// Detection and editing
		{
			Name:        "document_detect",
			Description: "Find the four corners of a document, slide or whiteboard in an image and open an editing session seeded with them. Falls back to a default inset rectangle when nothing is found. Corners are returned in display coordinates for the given viewport as well as in source pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ref": map[string]interface{}{
						"type":        "string",
						"description": "Image reference from image_load, or a file path",
					},
					"viewport": viewportSchema("Area the image is displayed in. Omit to work in source pixels"),
				},
				"required": []string{"ref"},
			},
		},
		{
			Name:        "document_move_corner",
			Description: "Place one corner of an editing session at a display-space position. The other corners are not changed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDSchema,
					"corner":     cornerSchema,
					"x": map[string]interface{}{
						"type":        "number",
						"description": "Display X coordinate",
					},
					"y": map[string]interface{}{
						"type":        "number",
						"description": "Display Y coordinate",
					},
				},
				"required": []string{"session_id", "corner", "x", "y"},
			},
		},
		{
			Name:        "document_drag_corner",
			Description: "Move one corner of an editing session by a display-space offset.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDSchema,
					"corner":     cornerSchema,
					"dx": map[string]interface{}{
						"type":        "number",
						"description": "Horizontal offset in display pixels",
					},
					"dy": map[string]interface{}{
						"type":        "number",
						"description": "Vertical offset in display pixels",
					},
				},
				"required": []string{"session_id", "corner", "dx", "dy"},
			},
		},
		{
			Name:        "document_relayout",
			Description: "Tell an editing session that its viewport changed (rotation, resize). Corners are reprojected so they stay on the same image features.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDSchema,
					"viewport":   viewportSchema("New display area"),
				},
				"required": []string{"session_id", "viewport"},
			},
		},
		{
			Name:        "document_commit",
			Description: "Rectify the image with the session's current corners into a 16:9 PNG and close the session. On an invalid outline the session stays open for further edits.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id":    sessionIDSchema,
					"include_image": includeImageSchema,
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "document_cancel",
			Description: "Discard an editing session without producing output.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDSchema,
				},
				"required": []string{"session_id"},
			},
		},
		{
			Name:        "document_reedit",
			Description: "Open a new editing session for a previously rectified output, seeded with the corners that produced it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output_ref": map[string]interface{}{
						"type":        "string",
						"description": "output_ref returned by document_commit or document_rectify",
					},
					"viewport": viewportSchema("Area the image is displayed in. Omit to work in source pixels"),
				},
				"required": []string{"output_ref"},
			},
		},

		// Stateless operations
		{
			Name:        "document_rectify",
			Description: "Rectify an image with explicit corners in source pixels, without an editing session.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ref": map[string]interface{}{
						"type":        "string",
						"description": "Image reference from image_load, or a file path",
					},
					"corners": map[string]interface{}{
						"type":        "array",
						"description": "Exactly four {x, y} points, top-left, top-right, bottom-right, bottom-left",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"x": map[string]interface{}{"type": "number"},
								"y": map[string]interface{}{"type": "number"},
							},
							"required": []string{"x", "y"},
						},
						"minItems": 4,
						"maxItems": 4,
					},
					"reorder": map[string]interface{}{
						"type":        "boolean",
						"description": "Sort the corners into top-left, top-right, bottom-right, bottom-left first. Default false",
						"default":     false,
					},
					"include_image": includeImageSchema,
				},
				"required": []string{"ref", "corners"},
			},
		},
		{
			Name:        "document_extract_code",
			Description: "Read a QR or Data Matrix code from an image, typically a rectified output. Returns found=false when there is none.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"ref": map[string]interface{}{
						"type":        "string",
						"description": "Image reference, output_ref, or a file path",
					},
				},
				"required": []string{"ref"},
			},
		},
		{
			Name:        "document_preview",
			Description: "Render the session's current outline and numbered corner handles over its source image and return it as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDSchema,
					"edge_color": map[string]interface{}{
						"type":        "string",
						"description": "Outline colour as #RRGGBB or #RRGGBBAA. Default white",
					},
					"handle_radius": map[string]interface{}{
						"type":        "integer",
						"description": "Corner handle radius in pixels. Default 6",
					},
					"max_dimension": map[string]interface{}{
						"type":        "integer",
						"description": "Downscale so the longer side is at most this many pixels. Default 1024, 0 keeps full size",
						"default":     1024,
					},
				},
				"required": []string{"session_id"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
