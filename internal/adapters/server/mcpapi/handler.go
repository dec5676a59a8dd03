// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/weft/internal/app"
	"github.com/hylla/weft/internal/domain"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing workflow and
// relationship tools. Calls attribute to an agent actor unless the caller
// passes explicit attribution.
func NewHandler(cfg Config, engine *app.Engine, relationships *app.Relationships) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("transition engine is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerTransitionTools(mcpSrv, engine)
	if relationships != nil {
		registerRelationshipTools(mcpSrv, relationships)
	}

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "weft"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// requestActor resolves actor attribution for one tool call. MCP callers
// default to an agent actor.
func requestActor(req mcp.CallToolRequest) domain.Actor {
	kind := req.GetString("actor_kind", "")
	id := req.GetString("actor_id", "")
	if kind == "" {
		return domain.AgentActor(id)
	}
	return domain.Actor{Kind: domain.NormalizeActorKind(domain.ActorKind(kind)), ID: id}
}

// registerTransitionTools registers workflow state tools.
func registerTransitionTools(srv *mcpserver.MCPServer, engine *app.Engine) {
	srv.AddTool(
		mcp.NewTool(
			"weft.attempt_transition",
			mcp.WithDescription("Attempt a workflow state transition for one object. Unsatisfied prerequisites block unless a justification is supplied."),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow identifier")),
			mcp.WithString("object_type", mcp.Required(), mcp.Description("Object type")),
			mcp.WithString("object_id", mcp.Required(), mcp.Description("Object identifier")),
			mcp.WithString("to_state", mcp.Required(), mcp.Description("Target state id")),
			mcp.WithString("kind", mcp.Description("Transition kind"), mcp.Enum("manual", "system", "agent")),
			mcp.WithString("justification", mcp.Description("Override reason to force past unsatisfied prerequisites")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workflowID, err := req.RequireString("workflow_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectType, err := req.RequireString("object_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectID, err := req.RequireString("object_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			toState, err := req.RequireString("to_state")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := engine.Attempt(ctx, app.AttemptInput{
				WorkflowID:    workflowID,
				ObjectType:    objectType,
				ObjectID:      objectID,
				ToState:       toState,
				Actor:         requestActor(req),
				Kind:          domain.TransitionKind(req.GetString("kind", "")),
				Justification: req.GetString("justification", ""),
			})
			if err != nil {
				if errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
					out, encodeErr := mcp.NewToolResultJSON(map[string]any{
						"error":  "prerequisites_unsatisfied",
						"result": result,
					})
					if encodeErr != nil {
						return nil, fmt.Errorf("encode attempt_transition result: %w", encodeErr)
					}
					return out, nil
				}
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(result)
			if err != nil {
				return nil, fmt.Errorf("encode attempt_transition result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.check_transition",
			mcp.WithDescription("Dry-run a transition: report whether it is allowed and which prerequisites fail, without changing state."),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow identifier")),
			mcp.WithString("object_type", mcp.Required(), mcp.Description("Object type")),
			mcp.WithString("object_id", mcp.Required(), mcp.Description("Object identifier")),
			mcp.WithString("to_state", mcp.Required(), mcp.Description("Target state id")),
			mcp.WithString("kind", mcp.Description("Transition kind"), mcp.Enum("manual", "system", "agent")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workflowID, err := req.RequireString("workflow_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectType, err := req.RequireString("object_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectID, err := req.RequireString("object_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			toState, err := req.RequireString("to_state")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := engine.Check(ctx, workflowID, objectType, objectID, toState, requestActor(req), domain.TransitionKind(req.GetString("kind", "")))
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(result)
			if err != nil {
				return nil, fmt.Errorf("encode check_transition result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.start_workflow",
			mcp.WithDescription("Place one object into a workflow's initial state."),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow identifier")),
			mcp.WithString("object_type", mcp.Required(), mcp.Description("Object type")),
			mcp.WithString("object_id", mcp.Required(), mcp.Description("Object identifier")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workflowID, err := req.RequireString("workflow_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectType, err := req.RequireString("object_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectID, err := req.RequireString("object_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			result, err := engine.Start(ctx, workflowID, objectType, objectID, requestActor(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(result)
			if err != nil {
				return nil, fmt.Errorf("encode start_workflow result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.list_history",
			mcp.WithDescription("List the transition audit trail for one object, oldest first."),
			mcp.WithString("object_type", mcp.Required(), mcp.Description("Object type")),
			mcp.WithString("object_id", mcp.Required(), mcp.Description("Object identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			objectType, err := req.RequireString("object_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectID, err := req.RequireString("object_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			history, err := engine.History(ctx, objectType, objectID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(map[string]any{"history": history})
			if err != nil {
				return nil, fmt.Errorf("encode list_history result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.list_objects_in_state",
			mcp.WithDescription("List object ids currently in one workflow state."),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow identifier")),
			mcp.WithString("state", mcp.Required(), mcp.Description("State id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			workflowID, err := req.RequireString("workflow_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			state, err := req.RequireString("state")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			ids, err := engine.ListObjectsInState(ctx, workflowID, state)
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(map[string]any{"object_ids": ids})
			if err != nil {
				return nil, fmt.Errorf("encode list_objects_in_state result: %w", err)
			}
			return out, nil
		},
	)
}

// registerRelationshipTools registers relationship create/remove/list tools.
func registerRelationshipTools(srv *mcpserver.MCPServer, relationships *app.Relationships) {
	srv.AddTool(
		mcp.NewTool(
			"weft.create_relationship",
			mcp.WithDescription("Create one named link between two objects."),
			mcp.WithString("source_type", mcp.Required(), mcp.Description("Source object type")),
			mcp.WithString("source_id", mcp.Required(), mcp.Description("Source object identifier")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Relationship name")),
			mcp.WithString("target_type", mcp.Required(), mcp.Description("Target object type")),
			mcp.WithString("target_id", mcp.Required(), mcp.Description("Target object identifier")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sourceType, err := req.RequireString("source_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			sourceID, err := req.RequireString("source_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			targetType, err := req.RequireString("target_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			targetID, err := req.RequireString("target_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rel, err := relationships.Create(ctx, app.CreateRelationshipInput{
				SourceType: sourceType,
				SourceID:   sourceID,
				Name:       name,
				TargetType: targetType,
				TargetID:   targetID,
				Actor:      requestActor(req),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(rel)
			if err != nil {
				return nil, fmt.Errorf("encode create_relationship result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.remove_relationship",
			mcp.WithDescription("Soft-delete one relationship by id. Removing an already-removed link is a no-op."),
			mcp.WithString("rel_id", mcp.Required(), mcp.Description("Relationship identifier")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			relID, err := req.RequireString("rel_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if err := relationships.Remove(ctx, relID, requestActor(req)); err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(map[string]any{"status": "removed"})
			if err != nil {
				return nil, fmt.Errorf("encode remove_relationship result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.restore_relationship",
			mcp.WithDescription("Restore one removed relationship as a fresh link with a new id."),
			mcp.WithString("rel_id", mcp.Required(), mcp.Description("Relationship identifier of the removed link")),
			mcp.WithString("actor_kind", mcp.Description("Actor kind (defaults to agent)"), mcp.Enum("human", "agent", "system")),
			mcp.WithString("actor_id", mcp.Description("Actor identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			relID, err := req.RequireString("rel_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			rel, err := relationships.Restore(ctx, relID, requestActor(req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(rel)
			if err != nil {
				return nil, fmt.Errorf("encode restore_relationship result: %w", err)
			}
			return out, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"weft.list_relationships",
			mcp.WithDescription("List relationships by source or target object."),
			mcp.WithString("direction", mcp.Required(), mcp.Description("Which side to match"), mcp.Enum("source", "target")),
			mcp.WithString("object_type", mcp.Required(), mcp.Description("Object type")),
			mcp.WithString("object_id", mcp.Required(), mcp.Description("Object identifier")),
			mcp.WithString("name", mcp.Description("Optional relationship name filter")),
			mcp.WithBoolean("include_removed", mcp.Description("Include soft-deleted links")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			direction, err := req.RequireString("direction")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectType, err := req.RequireString("object_type")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			objectID, err := req.RequireString("object_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name := req.GetString("name", "")
			activeOnly := !req.GetBool("include_removed", false)

			var rels []domain.Relationship
			switch direction {
			case "source":
				rels, err = relationships.ListBySource(ctx, objectType, objectID, name, activeOnly)
			case "target":
				rels, err = relationships.ListByTarget(ctx, objectType, objectID, name, activeOnly)
			default:
				return mcp.NewToolResultError("invalid_request: direction must be source or target"), nil
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			out, err := mcp.NewToolResultJSON(map[string]any{"relationships": rels})
			if err != nil {
				return nil, fmt.Errorf("encode list_relationships result: %w", err)
			}
			return out, nil
		},
	)
}

// toolResultFromError maps app and domain errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, app.ErrWorkflowNotFound), errors.Is(err, app.ErrStateNotFound), errors.Is(err, app.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return mcp.NewToolResultError("invalid_transition: " + err.Error())
	case errors.Is(err, domain.ErrAmbiguousTransition):
		return mcp.NewToolResultError("ambiguous_transition: " + err.Error())
	case errors.Is(err, domain.ErrDuplicateActive):
		return mcp.NewToolResultError("duplicate_active: " + err.Error())
	case errors.Is(err, domain.ErrDuplicateTag):
		return mcp.NewToolResultError("duplicate_tag: " + err.Error())
	case errors.Is(err, domain.ErrInvalidActor),
		errors.Is(err, domain.ErrInvalidTag),
		errors.Is(err, domain.ErrInvalidRelationship),
		errors.Is(err, domain.ErrInvalidID):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
