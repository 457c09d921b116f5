package api

import (
	"net/http"
	"time"

	"github.com/toolforge/agentgraph/internal/api/middleware"
)

type usageResponse struct {
	Limit    int       `json:"limit"`
	Used     int       `json:"used"`
	ResetsAt time.Time `json:"resets_at"`
}

// usage is GET /users/me/usage (spec.md §6): reports the caller's quota
// status for the current day without admitting a new execution. The
// counter resets at the next UTC midnight (spec.md §4.4's "daily, user-local
// midnight — but stored in UTC").
func (h *handlers) usage(w http.ResponseWriter, r *http.Request) {
	claims, err := subjectFrom(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	status, err := h.Sessions.UsageToday(r.Context(), claims.Subject, h.QuotaDefaultPerDay)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	now := time.Now().UTC()
	resetsAt := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	writeJSON(w, http.StatusOK, usageResponse{
		Limit:    status.LimitPerDay,
		Used:     status.Used,
		ResetsAt: resetsAt,
	})
}
