package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/sounddrop/internal/drop"
	"github.com/lazypower/sounddrop/internal/engine"
)

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	day := s.engine.Now()
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := s.engine.ParseDate(q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		day = d
	}
	theme := s.engine.ThemeFor(day)
	writeJSON(w, http.StatusOK, map[string]any{
		"date":        day.In(s.engine.Options().Location).Format(engine.DateLayout),
		"title":       theme.Title,
		"description": theme.Description,
	})
}

func (s *Server) handleListDrops(w http.ResponseWriter, r *http.Request) {
	drops, err := s.engine.ListActive(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drops)
}

func (s *Server) handleGetDrop(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := s.engine.GetDrop(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := s.engine.AudioFor(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", a.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Filename))
	w.WriteHeader(http.StatusOK)
	if n, err := w.Write(a.Data); err != nil {
		s.logger.Warn().Err(err).
			Int64("id", id).
			Int("written", n).
			Int("size", len(a.Data)).
			Msg("audio download cut short")
	}
}

func (s *Server) handleCreateDrop(w http.ResponseWriter, r *http.Request) {
	var req engine.NewDrop
	if !s.decodeBody(w, r, &req) {
		return
	}
	d, err := s.engine.CreateDrop(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Text   string `json:"text"`
		Author string `json:"author"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	c, err := s.engine.AddComment(r.Context(), id, req.Text, req.Author)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	cid, ok := s.pathID(w, r, "cid")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	c, err := s.engine.EditComment(r.Context(), id, cid, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	cid, ok := s.pathID(w, r, "cid")
	if !ok {
		return
	}
	if err := s.engine.DeleteComment(r.Context(), id, cid); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleUpload accepts a multipart audio file and stores it as a drop with
// the audio inlined as a data URI.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > s.opts.MaxUploadBytes {
			writeErrorMsg(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("audio exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		writeErrorMsg(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()
	name := uploadName(header.Filename)
	if name == "" {
		writeErrorMsg(w, http.StatusBadRequest, "No file selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "read audio failed")
		return
	}

	audioType := r.FormValue("type")
	if audioType == "" {
		audioType = drop.TypeUploaded
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	stamp := s.engine.Now().Format("2006-01-02_15-04-05")
	d, err := s.engine.CreateDrop(r.Context(), engine.NewDrop{
		AudioData: drop.DataURI(mimeType, data),
		Context:   r.FormValue("context"),
		Type:      audioType,
		Filename:  fmt.Sprintf("%s_%s_%s", audioType, stamp, name),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// uploadName keeps only the last element of a client supplied filename,
// treating both slash styles as separators.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.WeeklySummary(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleArchiveForDate(w http.ResponseWriter, r *http.Request) {
	day, err := s.engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.engine.ArchiveForDate(r.Context(), day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return id, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeErrorMsg(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeErrorMsg(w, http.StatusBadRequest, "request body is empty")
		default:
			writeErrorMsg(w, http.StatusBadRequest, "invalid json: "+strings.TrimPrefix(err.Error(), "json: "))
		}
		return false
	}
	return true
}
