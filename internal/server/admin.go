package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/lazypower/sounddrop/internal/drop"
	"github.com/lazypower/sounddrop/internal/engine"
)

// authorized checks the shared admin secret. An empty configured key locks
// the admin surface.
func (s *Server) authorized(presented string) error {
	if s.opts.AdminKey == "" || presented == "" {
		return drop.ErrAuth
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.opts.AdminKey)) != 1 {
		return drop.ErrAuth
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (s *Server) handleAdminDrops(w http.ResponseWriter, r *http.Request) {
	if err := s.authorized(bearerToken(r)); err != nil {
		s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("admin auth rejected")
		s.writeError(w, r, err)
		return
	}

	records, err := s.engine.AdminDrops(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(records),
		"drops": records,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		key = bearerToken(r)
	}
	if err := s.authorized(key); err != nil {
		s.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("export auth rejected")
		s.writeError(w, r, err)
		return
	}

	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		writeErrorMsg(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	opts := engine.ExportOptions{Type: q.Get("type"), Theme: q.Get("theme")}
	if v := q.Get("since"); v != "" {
		day, err := s.engine.ParseDate(v)
		if err != nil {
			ms, perr := strconv.ParseInt(v, 10, 64)
			if perr != nil {
				writeErrorMsg(w, http.StatusBadRequest, "since must be YYYY-MM-DD or epoch milliseconds")
				return
			}
			opts.Since = ms
		} else {
			opts.Since = day.UnixMilli()
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorMsg(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}

	x, err := s.engine.Export(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	stamp := s.engine.Now().UTC().Format("20060102_150405")
	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sounddrop_export_"+stamp+".csv"))
		w.WriteHeader(http.StatusOK)
		if err := x.WriteCSV(w); err != nil {
			s.logger.Error().Err(err).Msg("write csv export")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sounddrop_export_"+stamp+".json"))
	w.WriteHeader(http.StatusOK)
	if err := x.WriteJSON(w); err != nil {
		s.logger.Error().Err(err).Msg("write json export")
	}
}
