package httpapi

import (
	"encoding/json"
	"net/http"

	"objection-engine/internal/common/errors"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps the error taxonomy onto HTTP statuses. Validation
// errors carry their structured issue list to the client.
func writeError(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize("api", err)

	status := http.StatusInternalServerError
	switch stdErr.Kind {
	case errors.KindValidation:
		status = http.StatusBadRequest
	case errors.KindConflict, errors.KindDuplicateDelivery:
		status = http.StatusConflict
	case errors.KindTransient:
		status = http.StatusServiceUnavailable
	case errors.KindTerminal:
		if stdErr.Code == "AUTHENTICATION_ERROR" {
			status = http.StatusUnauthorized
		} else {
			status = http.StatusBadGateway
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    stdErr.Kind,
			"code":    stdErr.Code,
			"message": stdErr.Message,
			"issues":  stdErr.Issues,
		},
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewFieldValidationError("body", "request body is not valid JSON")
	}
	return nil
}
