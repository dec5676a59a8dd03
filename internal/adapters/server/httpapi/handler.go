// Package httpapi provides the REST HTTP adapter for the workflow and
// relationship surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hylla/weft/internal/app"
	"github.com/hylla/weft/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed
// request handling.
const maxRequestBodyBytes int64 = 1 << 20

// RecordStore is the demo entity-record write surface used by the records
// endpoint to drive eager synchronization end to end.
type RecordStore interface {
	PutRecord(ctx context.Context, objectType, objectID string, fields map[string]string, displayValue string) error
}

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	engine        *app.Engine
	relationships *app.Relationships
	sync          *app.Syncer
	records       RecordStore
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs the HTTP API adapter.
func NewHandler(engine *app.Engine, relationships *app.Relationships, sync *app.Syncer, records RecordStore) *Handler {
	return &Handler{
		engine:        engine,
		relationships: relationships,
		sync:          sync,
		records:       records,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	switch {
	case matchPath(segments, "transitions"):
		h.requirePost(w, r, h.handleAttemptTransition)
	case matchPath(segments, "transitions", "check"):
		h.requirePost(w, r, h.handleCheckTransition)
	case matchPath(segments, "transitions", "start"):
		h.requirePost(w, r, h.handleStartWorkflow)
	case matchPath(segments, "workflows", "*", "states", "*", "objects"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListObjectsInState(w, r, segments[1], segments[3])
	case matchPath(segments, "objects", "*", "*", "history"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleHistory(w, r, segments[1], segments[2])
	case matchPath(segments, "objects", "*", "*", "display", "*"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleDisplayValue(w, r, segments[1], segments[2], segments[4])
	case matchPath(segments, "records", "*", "*"):
		if r.Method != http.MethodPut {
			writeMethodNotAllowed(w, http.MethodPut)
			return
		}
		h.handlePutRecord(w, r, segments[1], segments[2])
	case matchPath(segments, "relationships"):
		switch r.Method {
		case http.MethodPost:
			h.handleCreateRelationship(w, r)
		case http.MethodGet:
			h.handleListRelationships(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodPost, http.MethodGet)
		}
	case matchPath(segments, "relationships", "*"):
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w, http.MethodDelete)
			return
		}
		h.handleRemoveRelationship(w, r, segments[1])
	case matchPath(segments, "relationships", "*", "restore"):
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleRestoreRelationship(w, r, segments[1])
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// transitionRequest is the shared request shape for attempt, check, and
// start calls.
type transitionRequest struct {
	WorkflowID    string `json:"workflow_id"`
	ObjectType    string `json:"object_type"`
	ObjectID      string `json:"object_id"`
	ToState       string `json:"to_state"`
	ActorKind     string `json:"actor_kind"`
	ActorID       string `json:"actor_id"`
	Kind          string `json:"kind"`
	Justification string `json:"justification"`
}

// actor builds the request's actor, defaulting to a human caller.
func (req transitionRequest) actor() domain.Actor {
	kind := domain.NormalizeActorKind(domain.ActorKind(req.ActorKind))
	if req.ActorKind == "" {
		kind = domain.ActorKindHuman
	}
	return domain.Actor{Kind: kind, ID: req.ActorID}
}

// handleAttemptTransition executes one transition attempt.
func (h *Handler) handleAttemptTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.engine.Attempt(r.Context(), app.AttemptInput{
		WorkflowID:    req.WorkflowID,
		ObjectType:    req.ObjectType,
		ObjectID:      req.ObjectID,
		ToState:       req.ToState,
		Actor:         req.actor(),
		Kind:          domain.TransitionKind(req.Kind),
		Justification: req.Justification,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPrerequisitesUnsatisfied) {
			hint := "system transitions cannot be forced"
			if errors.Is(err, domain.ErrJustificationRequired) {
				hint = "retry with a justification to force the transition"
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": APIError{
					Code:    "prerequisites_unsatisfied",
					Message: err.Error(),
					Hint:    hint,
				},
				"result": result,
			})
			return
		}
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCheckTransition is the dry run used by UIs before committing.
func (h *Handler) handleCheckTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.engine.Check(r.Context(), req.WorkflowID, req.ObjectType, req.ObjectID, req.ToState, req.actor(), domain.TransitionKind(req.Kind))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStartWorkflow places an object into the workflow's initial state.
func (h *Handler) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	result, err := h.engine.Start(r.Context(), req.WorkflowID, req.ObjectType, req.ObjectID, req.actor())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListObjectsInState lists object ids currently in one state.
func (h *Handler) handleListObjectsInState(w http.ResponseWriter, r *http.Request, workflowID, state string) {
	ids, err := h.engine.ListObjectsInState(r.Context(), workflowID, state)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"object_ids": ids})
}

// handleHistory returns the object's transition records.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, objectType, objectID string) {
	history, err := h.engine.History(r.Context(), objectType, objectID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleDisplayValue reads one denormalized display value through the lazy
// sync path.
func (h *Handler) handleDisplayValue(w http.ResponseWriter, r *http.Request, objectType, objectID, relName string) {
	if h.sync == nil {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "sync engine not configured"})
		return
	}
	value, err := h.sync.ReadThrough(r.Context(), objectType, objectID, relName)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

// recordRequest is the demo entity-record write payload.
type recordRequest struct {
	Fields       map[string]string `json:"fields"`
	DisplayValue string            `json:"display_value"`
}

// handlePutRecord writes one entity record and triggers eager sync for
// relationships pointing at it.
func (h *Handler) handlePutRecord(w http.ResponseWriter, r *http.Request, objectType, objectID string) {
	if h.records == nil {
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: "record store not configured"})
		return
	}
	var req recordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.records.PutRecord(r.Context(), objectType, objectID, req.Fields, req.DisplayValue); err != nil {
		writeMappedError(w, err)
		return
	}
	if h.sync != nil {
		h.sync.OnTargetChanged(r.Context(), objectType, objectID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// relationshipRequest is the create-relationship payload.
type relationshipRequest struct {
	SourceType string            `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Name       string            `json:"name"`
	TargetType string            `json:"target_type"`
	TargetID   string            `json:"target_id"`
	ActorKind  string            `json:"actor_kind"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata"`
}

// handleCreateRelationship establishes one link.
func (h *Handler) handleCreateRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	kind := domain.NormalizeActorKind(domain.ActorKind(req.ActorKind))
	if req.ActorKind == "" {
		kind = domain.ActorKindHuman
	}
	rel, err := h.relationships.Create(r.Context(), app.CreateRelationshipInput{
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Name:       req.Name,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Actor:      domain.Actor{Kind: kind, ID: req.ActorID},
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// handleListRelationships lists links by source or target query params.
func (h *Handler) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	activeOnly := q.Get("include_removed") != "true"

	var (
		rels []domain.Relationship
		err  error
	)
	switch {
	case q.Get("source_type") != "" && q.Get("source_id") != "":
		rels, err = h.relationships.ListBySource(r.Context(), q.Get("source_type"), q.Get("source_id"), name, activeOnly)
	case q.Get("target_type") != "" && q.Get("target_id") != "":
		rels, err = h.relationships.ListByTarget(r.Context(), q.Get("target_type"), q.Get("target_id"), name, activeOnly)
	default:
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "bad_request",
			Message: "source_type/source_id or target_type/target_id query parameters are required",
		})
		return
	}
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

// actorRequest carries actor attribution for remove and restore calls.
type actorRequest struct {
	ActorKind string `json:"actor_kind"`
	ActorID   string `json:"actor_id"`
}

// actor builds the request's actor, defaulting to a human caller.
func (req actorRequest) actor() domain.Actor {
	kind := domain.NormalizeActorKind(domain.ActorKind(req.ActorKind))
	if req.ActorKind == "" {
		kind = domain.ActorKindHuman
	}
	return domain.Actor{Kind: kind, ID: req.ActorID}
}

// handleRemoveRelationship soft-deletes one link.
func (h *Handler) handleRemoveRelationship(w http.ResponseWriter, r *http.Request, relID string) {
	var req actorRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := h.relationships.Remove(r.Context(), relID, req.actor()); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// handleRestoreRelationship re-creates one removed link.
func (h *Handler) handleRestoreRelationship(w http.ResponseWriter, r *http.Request, relID string) {
	var req actorRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	rel, err := h.relationships.Restore(r.Context(), relID, req.actor())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// requirePost rejects non-POST methods before dispatching.
func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	next(w, r)
}

// splitPath normalizes and splits the request path into segments.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// matchPath reports whether segments match the pattern, where "*" matches
// any single non-empty segment.
func matchPath(segments []string, pattern ...string) bool {
	if len(segments) != len(pattern) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if segments[i] != p {
			return false
		}
	}
	return true
}

// decodeJSONBody decodes a bounded JSON body and writes the error response
// itself on failure. An empty body decodes to the zero value.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "bad_request", Message: "read request body failed"})
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "bad_request", Message: fmt.Sprintf("decode request body: %v", err)})
		return false
	}
	return true
}

// writeMappedError translates app and domain sentinels to HTTP statuses.
func writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrWorkflowNotFound), errors.Is(err, app.ErrStateNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "invalid_transition",
			Message: err.Error(),
			Hint:    "no such edge is defined; pick a valid target state",
		})
	case errors.Is(err, domain.ErrAmbiguousTransition):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "ambiguous_transition",
			Message: err.Error(),
			Hint:    "workflow configuration defines overlapping edges",
		})
	case errors.Is(err, domain.ErrDuplicateActive):
		writeJSONError(w, http.StatusConflict, APIError{Code: "duplicate_active", Message: err.Error()})
	case errors.Is(err, domain.ErrDuplicateTag):
		writeJSONError(w, http.StatusConflict, APIError{Code: "duplicate_tag", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidActor),
		errors.Is(err, domain.ErrInvalidTag),
		errors.Is(err, domain.ErrInvalidRelationship),
		errors.Is(err, domain.ErrInvalidID):
		writeJSONError(w, http.StatusBadRequest, APIError{Code: "bad_request", Message: err.Error()})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{Code: "internal", Message: err.Error()})
	}
}

// writeMethodNotAllowed writes one 405 with the allowed methods.
func writeMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, status int, apiErr APIError) {
	writeJSON(w, status, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
