package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolforge/agentgraph/internal/api/middleware"
	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/session"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	SessionID    string `json:"session_id"`
	ExecutionID  string `json:"execution_id"`
	ResponseHead string `json:"response_head"`
}

// chat is POST /agents/{workflow_id}/chat (spec.md §6): appends the user's
// message to (or opens) a ChatSession, then starts an execution of the
// workflow with trigger_type=chat. The full assistant reply streams back
// through the execution's SSE endpoint, not this response — response_head
// is always empty here, since the handler returns before the run emits any
// token, matching "the full assistant response is fetched via execution
// streaming."
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	workflowID := chi.URLParam(r, "workflowID")

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.Message == "" {
		middleware.WriteError(w, apperr.New(apperr.KindValidation, "message must not be empty"))
		return
	}

	var cs *session.ChatSession
	if req.SessionID != "" {
		cs, err = h.Sessions.GetSession(r.Context(), req.SessionID)
	} else {
		cs, err = h.Sessions.CreateSession(r.Context(), workflowID, claims.Subject)
	}
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if _, err := h.Sessions.AppendMessage(r.Context(), cs.ID, session.RoleUser, req.Message); err != nil {
		middleware.WriteError(w, err)
		return
	}

	wf, err := h.Workflows.Get(r.Context(), workflowID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	status, admitted, err := h.Sessions.Admit(r.Context(), claims.Subject, h.QuotaDefaultPerDay)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !admitted {
		middleware.WriteError(w, apperr.New(apperr.KindQuotaExceeded, "daily execution quota exhausted"))
		return
	}
	_ = status

	exec, err := h.Runner.Start(r.Context(), wf.ID, wf.Version, wf.Graph, "chat", claims.Subject, map[string]interface{}{
		"message":    req.Message,
		"session_id": cs.ID,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, chatResponse{
		SessionID:   cs.ID,
		ExecutionID: exec.ID,
	})
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	history, err := h.Sessions.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": history})
}

// clearMessages is DELETE /sessions/{id}/messages (spec.md §6): "clears
// content, preserves session". The session row and its id stay valid; only
// its message history is removed.
func (h *handlers) clearMessages(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.ClearMessages(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
