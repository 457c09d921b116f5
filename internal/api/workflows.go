package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/toolforge/agentgraph/internal/api/middleware"
	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/workflow"
)

type createWorkflowRequest struct {
	Slug          string         `json:"slug"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	DescriptionZH string         `json:"description_zh"`
	IsPublic      bool           `json:"is_public"`
	Graph         workflow.Graph `json:"graph"`
}

func (h *handlers) createWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req createWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	wf := &workflow.Workflow{
		Slug:          req.Slug,
		Name:          req.Name,
		Description:   req.Description,
		DescriptionZH: req.DescriptionZH,
		IsPublic:      req.IsPublic,
		OwnerID:       claims.Subject,
		Graph:         req.Graph,
		TriggerType:   workflow.TriggerManual,
	}
	if err := h.Workflows.Create(r.Context(), wf); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	wf, err := h.Workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !wf.IsPublic && wf.OwnerID != claims.Subject {
		middleware.WriteError(w, apperr.New(apperr.KindForbidden, "workflow is private"))
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope != "mine" && scope != "public" {
		scope = "mine"
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	list, err := h.Workflows.List(r.Context(), scope, claims.Subject, page, limit)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": list})
}

type updateWorkflowRequest struct {
	ExpectedVersion int            `json:"expected_version"`
	Graph           workflow.Graph `json:"graph"`
	VersionNotes    string         `json:"version_notes"`
}

func (h *handlers) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.requireOwner(r, id, claims.Subject); err != nil {
		middleware.WriteError(w, err)
		return
	}

	var req updateWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	updated, err := h.Workflows.Update(r.Context(), id, req.ExpectedVersion, req.Graph, claims.Subject, req.VersionNotes)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handlers) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.requireOwner(r, id, claims.Subject); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if err := h.Workflows.Delete(r.Context(), id); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type forkWorkflowRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h *handlers) forkWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req forkWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	fork, err := h.Workflows.Fork(r.Context(), chi.URLParam(r, "id"), claims.Subject, req.Slug, req.Name)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

type revertWorkflowRequest struct {
	ExpectedVersion int `json:"expected_version"`
	TargetVersion   int `json:"target_version"`
}

func (h *handlers) revertWorkflow(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.requireOwner(r, id, claims.Subject); err != nil {
		middleware.WriteError(w, err)
		return
	}
	var req revertWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	reverted, err := h.Workflows.Revert(r.Context(), id, req.ExpectedVersion, req.TargetVersion, claims.Subject)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reverted)
}

func (h *handlers) listVersions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wf, err := h.Workflows.Get(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	versions, err := h.Workflows.ListVersions(r.Context(), id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_version": wf.Version,
		"history":         versions,
	})
}

func (h *handlers) compareVersions(w http.ResponseWriter, r *http.Request) {
	v1 := queryInt(r, "v1", 0)
	v2 := queryInt(r, "v2", 0)
	diff, err := h.Workflows.Compare(r.Context(), chi.URLParam(r, "id"), v1, v2)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

// requireOwner loads the workflow and confirms subject owns it, the
// shared guard for the three mutating single-workflow endpoints.
func (h *handlers) requireOwner(r *http.Request, id, subject string) error {
	wf, err := h.Workflows.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if wf.OwnerID != subject {
		return apperr.New(apperr.KindForbidden, "only the workflow owner may perform this action")
	}
	return nil
}
