package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lazypower/sounddrop/internal/drop"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are out; an encode error means the client went away.
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the drop error taxonomy onto HTTP statuses. Storage
// failures are logged and reported without internal detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, drop.ErrValidation):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, drop.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, drop.ErrAuth):
		writeErrorMsg(w, http.StatusForbidden, "forbidden")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeErrorMsg(w, http.StatusInternalServerError, "storage failure")
	}
}
