package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// WriteError maps an apperr.Error (or any error) to the HTTP status and
// JSON body of spec.md §7's error taxonomy, the API-layer counterpart of
// apperr.HTTPStatus.
func WriteError(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(apperr.KindInfrastructure, "internal error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(ae))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    string(ae.Kind),
			"message": ae.Message,
			"code":    ae.Code,
		},
	})
}
