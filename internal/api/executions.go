package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/toolforge/agentgraph/internal/api/middleware"
	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/execution"
)

type runExecutionRequest struct {
	WorkflowID string                 `json:"workflow_id"`
	Input      map[string]interface{} `json:"input"`
}

// runExecution is POST /executions/run (spec.md §6): admits the caller
// against their daily quota, then starts the run asynchronously via
// execution.Runner and returns immediately with status=pending|running.
func (h *handlers) runExecution(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req runExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	wf, err := h.Workflows.Get(r.Context(), req.WorkflowID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !wf.IsPublic && wf.OwnerID != claims.Subject {
		middleware.WriteError(w, apperr.New(apperr.KindForbidden, "workflow is private"))
		return
	}

	status, admitted, err := h.Sessions.Admit(r.Context(), claims.Subject, h.QuotaDefaultPerDay)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !admitted {
		middleware.WriteError(w, apperr.New(apperr.KindQuotaExceeded, fmt.Sprintf("daily execution quota exhausted (%d/%d)", status.Used, status.LimitPerDay)))
		return
	}

	exec, err := h.Runner.Start(r.Context(), wf.ID, wf.Version, wf.Graph, "manual", claims.Subject, req.Input)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

// getExecution is GET /executions/{id} (spec.md §6): returns the
// Execution record as JSON, or — when the client requests
// Accept: text/event-stream and the execution is still non-terminal —
// streams its StepEvents as SSE frames, resuming after Last-Event-ID.
func (h *handlers) getExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := h.Executions.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if !exec.Status.IsTerminal() && acceptsEventStream(r) {
		h.streamExecution(w, r, id)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// streamExecution writes one SSE frame per StepEvent, flushing after each,
// per spec.md §6's "event: <kind>\ndata: <json>\nid: <seq>\n\n" format.
// Disconnection is detected via the request context, the same shape the
// teacher-adjacent pack's streaming handlers use.
func (h *handlers) streamExecution(w http.ResponseWriter, r *http.Request, runID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteError(w, apperr.New(apperr.KindInfrastructure, "streaming unsupported"))
		return
	}

	afterSeq := 0
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		if n, err := strconv.Atoi(last); err == nil {
			afterSeq = n
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.Hub.Subscribe(runID, afterSeq)
	defer h.Hub.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			writeSSEFrame(w, ev)
			flusher.Flush()
			if ev.IsTerminal() {
				return
			}
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, ev emit.Event) {
	payload, _ := json.Marshal(ev)
	fmt.Fprintf(w, "event: %s\ndata: %s\nid: %d\n\n", ev.Kind, payload, ev.Seq)
}

// cancelExecution is POST /executions/{id}/cancel (spec.md §6). It signals
// the in-flight run first (so node evaluations actually stop at their next
// suspension point) and then flips the Store's status, same order the
// run's own finalization uses so neither write can silently lose to a race
// against the other — whichever reaches the terminal status first wins.
func (h *handlers) cancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.Runner.Cancel(id)
	if err := h.Executions.Cancel(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) listExecutions(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	status := r.URL.Query().Get("status")
	var list []execution.Execution
	if status != "" {
		list, err = h.Executions.ListByStatus(r.Context(), execution.Status(status))
	} else if wfID := r.URL.Query().Get("workflow_id"); wfID != "" {
		list, err = h.Executions.ListByWorkflow(r.Context(), wfID, queryInt(r, "limit", 50))
	} else {
		middleware.WriteError(w, apperr.New(apperr.KindValidation, "workflow_id or status query parameter required"))
		return
	}
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("mine") == "true" {
		filtered := list[:0]
		for _, e := range list {
			if e.CreatedBy == claims.Subject {
				filtered = append(filtered, e)
			}
		}
		list = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"executions": list})
}
