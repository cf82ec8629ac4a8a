package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/dgallion1/docnarrate/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	body := map[string]any{
		"job_id":   snap.ID,
		"name":     snap.Name,
		"filename": snap.Filename,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"settings": snap.Settings,
		"progress": snap.Progress,
	}
	if snap.Audio {
		body["audio_url"] = "/api/jobs/" + snap.ID + "/audio"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleJobAudio(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	path := job.AudioPath()
	if path == "" {
		switch job.Snapshot().Status {
		case pipeline.StatusQueued, pipeline.StatusParsing, pipeline.StatusNarrating:
			jsonError(w, "audio not ready", http.StatusConflict)
		default:
			jsonError(w, "no single audio file for this job", http.StatusNotFound)
		}
		return
	}

	ext := filepath.Ext(path)
	if ct := mime.TypeByExtension(ext); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filepath.Base(path)}))
	http.ServeFile(w, r, path)
}
