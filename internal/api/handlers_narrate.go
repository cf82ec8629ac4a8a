package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/docnarrate/internal/parser"
	"github.com/dgallion1/docnarrate/internal/pipeline"
	"github.com/google/uuid"
)

func (s *Server) handleNarrate(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	settings, err := s.settingsFromForm(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	job, status, err := s.newJob(header.Filename, file, settings)
	if err != nil {
		jsonError(w, err.Error(), status)
		return
	}
	job.Name = strings.TrimSpace(r.FormValue("name"))

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   job.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/jobs/%s/status", job.ID),
	})
}

func (s *Server) handleBatchNarrate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	settings, err := s.settingsFromForm(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	var results []map[string]any
	for _, fh := range files {
		job, err := s.openAndQueue(fh, settings)
		if err != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, map[string]any{
			"filename": job.Filename,
			"job_id":   job.ID,
			"status":   job.Snapshot().Status,
			"poll_url": fmt.Sprintf("/api/jobs/%s/status", job.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{"jobs": results})
}

func (s *Server) openAndQueue(fh *multipart.FileHeader, settings pipeline.Settings) (*pipeline.Job, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file")
	}
	defer f.Close()

	job, _, err := s.newJob(fh.Filename, f, settings)
	if err != nil {
		return nil, err
	}
	if err := s.orchestrator.Submit(job); err != nil {
		return nil, err
	}
	return job, nil
}

// newJob validates and reads one upload. The returned status is the HTTP
// code to use when err is non-nil.
func (s *Server) newJob(name string, file io.Reader, settings pipeline.Settings) (*pipeline.Job, int, error) {
	filename := sanitizeFilename(name)
	if !parser.IsSupportedExtension(filename) {
		return nil, http.StatusBadRequest, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("failed to read file")
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes)
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:        uuid.NewString(),
		Status:    pipeline.StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.SetFileData(data)
	return job, 0, nil
}

// settingsFromForm applies optional voice, speed, format and max_chars form
// values over the configured defaults.
func (s *Server) settingsFromForm(r *http.Request) (pipeline.Settings, error) {
	st := pipeline.Settings{
		Voice:         s.cfg.Voice,
		Speed:         s.cfg.Speed,
		Format:        s.cfg.FileFormat,
		MaxCharacters: s.cfg.MaxCharacters,
	}
	if v := strings.TrimSpace(r.FormValue("voice")); v != "" {
		st.Voice = v
	}
	if v := r.FormValue("speed"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return st, fmt.Errorf("speed must be a positive number")
		}
		st.Speed = f
	}
	if v := strings.TrimPrefix(strings.TrimSpace(r.FormValue("format")), "."); v != "" {
		if !supportedFormats[strings.ToLower(v)] {
			return st, fmt.Errorf("unsupported audio format: %s", v)
		}
		st.Format = strings.ToLower(v)
	}
	if v := r.FormValue("max_chars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return st, fmt.Errorf("max_chars must be a positive integer")
		}
		st.MaxCharacters = n
	}
	return st, nil
}

// supportedFormats are the response formats OpenAI-compatible speech
// services accept.
var supportedFormats = map[string]bool{
	"mp3":  true,
	"opus": true,
	"aac":  true,
	"flac": true,
	"wav":  true,
	"pcm":  true,
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
