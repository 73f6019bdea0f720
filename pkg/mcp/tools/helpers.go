package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalBool extracts an optional boolean argument, returning def when
// the argument is absent or not a boolean.
func getOptionalBool(req mcp.CallToolRequest, key string, def bool) bool {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return def
	}
	val, ok := args[key].(bool)
	if !ok {
		return def
	}
	return val
}

// decodeArgument re-marshals a structured argument (array or object) into the
// given Go value. MCP arguments arrive as map[string]any / []any, so a JSON
// round-trip is the simplest faithful decode.
func decodeArgument(req mcp.CallToolRequest, key string, out any) error {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return fmt.Errorf("missing arguments")
	}
	raw, ok := args[key]
	if !ok {
		return fmt.Errorf("missing argument %q", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode argument %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode argument %q: %w", key, err)
	}
	return nil
}
