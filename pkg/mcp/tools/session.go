// Package tools provides MCP tool implementations for star-engine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/modelforge/star-engine/pkg/apperrors"
	"github.com/modelforge/star-engine/pkg/models"
	"github.com/modelforge/star-engine/pkg/services"
)

// SessionToolDeps contains dependencies for modeling session MCP tools.
type SessionToolDeps struct {
	Sessions services.SessionService
	Logger   *zap.Logger
}

// RegisterSessionTools registers the modeling session MCP tools.
func RegisterSessionTools(s *server.MCPServer, deps *SessionToolDeps) {
	registerListCandidatesTool(s, deps)
	registerSetIncludedTool(s, deps)
	registerToggleActiveTool(s, deps)
	registerExpandSnowflakeTool(s, deps)
	registerBuildSelectionTool(s, deps)
}

// parseSessionID extracts and validates the session_id argument.
func parseSessionID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("session_id")
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", "parameter 'session_id' is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewErrorResult("invalid_parameters", fmt.Sprintf("invalid session_id %q", raw))
	}
	return id, nil
}

// candidateRefFromRequest reads the identity triple arguments shared by the
// set_included and toggle_active tools.
func candidateRefFromRequest(req mcp.CallToolRequest) (models.CandidateRef, error) {
	source, err := req.RequireString("source_table")
	if err != nil {
		return models.CandidateRef{}, err
	}
	attribute, err := req.RequireString("source_attribute")
	if err != nil {
		return models.CandidateRef{}, err
	}
	target, err := req.RequireString("target_table")
	if err != nil {
		return models.CandidateRef{}, err
	}
	return models.CandidateRef{
		SourceTable:     source,
		SourceAttribute: attribute,
		TargetTable:     target,
	}, nil
}

// sessionErrorResult maps recoverable service errors onto structured tool
// results; system failures fall through as Go errors.
func sessionErrorResult(err error) (*mcp.CallToolResult, bool) {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return NewErrorResult("session_not_found", "no modeling session with that id"), true
	case errors.Is(err, apperrors.ErrNotFound):
		return NewErrorResult("candidate_not_found", err.Error()), true
	case errors.Is(err, apperrors.ErrNotInModel):
		return NewErrorResult("table_not_in_model", err.Error()), true
	}
	return nil, false
}

// registerListCandidatesTool adds the list_candidates tool.
func registerListCandidatesTool(s *server.MCPServer, deps *SessionToolDeps) {
	tool := mcp.NewTool(
		"list_candidates",
		mcp.WithDescription(
			"List every relationship candidate in a modeling session with its current "+
				"included/active state, in discovery order. Use this to inspect the session "+
				"before including candidates or building the selection.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Modeling session identifier. Required."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := parseSessionID(req)
		if errResult != nil {
			return errResult, nil
		}

		snap, err := deps.Sessions.Get(id)
		if err != nil {
			if result, ok := sessionErrorResult(err); ok {
				return result, nil
			}
			return nil, fmt.Errorf("failed to get session: %w", err)
		}

		response := map[string]any{
			"fact_table": snap.Fact.LogicalName,
			"candidates": snap.Candidates,
		}
		jsonResult, err := json.Marshal(response)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal candidates: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerSetIncludedTool adds the set_included tool.
func registerSetIncludedTool(s *server.MCPServer, deps *SessionToolDeps) {
	tool := mcp.NewTool(
		"set_included",
		mcp.WithDescription(
			"Include or exclude a relationship candidate. Including a candidate makes it "+
				"the active relationship for its (source, target) pair and deactivates the "+
				"others; excluding hands the active slot to the earliest remaining included "+
				"candidate. Returns every candidate whose state changed. "+
				"Example: set_included(session_id='...', source_table='opportunity', "+
				"source_attribute='customerid', target_table='account', included=true)",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Modeling session identifier. Required."),
		),
		mcp.WithString(
			"source_table",
			mcp.Required(),
			mcp.Description("Logical name of the table holding the lookup column. Required."),
		),
		mcp.WithString(
			"source_attribute",
			mcp.Required(),
			mcp.Description("Logical name of the lookup column. Required."),
		),
		mcp.WithString(
			"target_table",
			mcp.Required(),
			mcp.Description("Logical name of the table the lookup points at. Required."),
		),
		mcp.WithBoolean(
			"included",
			mcp.Description("Whether the candidate should be part of the model (default: true)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := parseSessionID(req)
		if errResult != nil {
			return errResult, nil
		}
		ref, err := candidateRefFromRequest(req)
		if err != nil {
			return nil, err
		}
		included := getOptionalBool(req, "included", true)

		changes, err := deps.Sessions.SetIncluded(id, ref, included)
		if err != nil {
			if result, ok := sessionErrorResult(err); ok {
				return result, nil
			}
			return nil, fmt.Errorf("failed to set included: %w", err)
		}

		jsonResult, err := json.Marshal(map[string]any{"changes": changes})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal changes: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerToggleActiveTool adds the toggle_active tool.
func registerToggleActiveTool(s *server.MCPServer, deps *SessionToolDeps) {
	tool := mcp.NewTool(
		"toggle_active",
		mcp.WithDescription(
			"Flip the active flag of a relationship candidate. Activating a candidate "+
				"deactivates the rest of its (source, target) group; deactivating the only "+
				"included candidate is a no-op because a group with included members must "+
				"keep exactly one active. The candidate is included first if it is not already.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Modeling session identifier. Required."),
		),
		mcp.WithString(
			"source_table",
			mcp.Required(),
			mcp.Description("Logical name of the table holding the lookup column. Required."),
		),
		mcp.WithString(
			"source_attribute",
			mcp.Required(),
			mcp.Description("Logical name of the lookup column. Required."),
		),
		mcp.WithString(
			"target_table",
			mcp.Required(),
			mcp.Description("Logical name of the table the lookup points at. Required."),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := parseSessionID(req)
		if errResult != nil {
			return errResult, nil
		}
		ref, err := candidateRefFromRequest(req)
		if err != nil {
			return nil, err
		}

		changes, err := deps.Sessions.ToggleActive(id, ref)
		if err != nil {
			if result, ok := sessionErrorResult(err); ok {
				return result, nil
			}
			return nil, fmt.Errorf("failed to toggle active: %w", err)
		}

		jsonResult, err := json.Marshal(map[string]any{"changes": changes})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal changes: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerExpandSnowflakeTool adds the expand_snowflake tool.
func registerExpandSnowflakeTool(s *server.MCPServer, deps *SessionToolDeps) {
	tool := mcp.NewTool(
		"expand_snowflake",
		mcp.WithDescription(
			"Register the parent-dimension candidates reachable from a dimension that is "+
				"already part of the model. Each lookup column on the dimension yields one "+
				"candidate per target table, excluding the fact table, the dimension itself, "+
				"and parents already registered. New candidates start excluded.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Modeling session identifier. Required."),
		),
		mcp.WithString(
			"dimension",
			mcp.Required(),
			mcp.Description("Logical name of the dimension to expand. Required."),
		),
		mcp.WithString(
			"dimension_display_name",
			mcp.Description("Optional - display name of the dimension"),
		),
		mcp.WithArray(
			"lookups",
			mcp.Required(),
			mcp.Description("Lookup columns of the dimension, each an object with "+
				"'logical_name', 'display_name', 'required', and 'targets' (target table names). Required."),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := parseSessionID(req)
		if errResult != nil {
			return errResult, nil
		}
		dimensionName, err := req.RequireString("dimension")
		if err != nil {
			return nil, err
		}
		var lookups []models.LookupAttribute
		if err := decodeArgument(req, "lookups", &lookups); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		dimension := models.Table{
			LogicalName: dimensionName,
			DisplayName: getOptionalString(req, "dimension_display_name"),
		}
		candidates, err := deps.Sessions.ExpandSnowflake(id, dimension, lookups)
		if err != nil {
			if result, ok := sessionErrorResult(err); ok {
				return result, nil
			}
			return nil, fmt.Errorf("failed to expand snowflake: %w", err)
		}

		jsonResult, err := json.Marshal(map[string]any{"candidates": candidates})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal candidates: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// registerBuildSelectionTool adds the build_selection tool.
func registerBuildSelectionTool(s *server.MCPServer, deps *SessionToolDeps) {
	tool := mcp.NewTool(
		"build_selection",
		mcp.WithDescription(
			"Finalize a modeling session into the relationship list and table closure. "+
				"Fails with a structured validation error if any (source, target) group of "+
				"included candidates has zero or more than one active relationship.",
		),
		mcp.WithString(
			"session_id",
			mcp.Required(),
			mcp.Description("Modeling session identifier. Required."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, errResult := parseSessionID(req)
		if errResult != nil {
			return errResult, nil
		}

		result, err := deps.Sessions.BuildSelection(id)
		if err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				return NewErrorResultWithDetails(string(verr.Kind), verr.Error(), verr), nil
			}
			if toolResult, ok := sessionErrorResult(err); ok {
				return toolResult, nil
			}
			return nil, fmt.Errorf("failed to build selection: %w", err)
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal selection: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}
