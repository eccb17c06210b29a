package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"casacore/internal/core"
	"casacore/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError picks the status for a service-layer error. Validation
// failures and unknown records are client errors; an aggregation error
// names the offending record in the body.
func writeDomainError(w http.ResponseWriter, err error) {
	var aggErr *core.AggregationError
	switch {
	case errors.As(err, &aggErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":     aggErr.Error(),
			"record_id": aggErr.RecordID,
		})
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, core.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrEmptyID,
		core.ErrInvalidDate,
		core.ErrInvalidAmount,
		core.ErrEmptyDescription,
		core.ErrEmptyName,
		core.ErrInvalidType,
		core.ErrMissingFromAccount,
		core.ErrMissingToAccount,
		core.ErrInvalidCurrency,
		core.ErrUnsupportedCurrency,
		core.ErrNonPositiveAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
