package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleTTSStats(w http.ResponseWriter, r *http.Request) {
	if s.speech == nil || s.speech.Stats == nil {
		jsonError(w, "tts stats unavailable", http.StatusServiceUnavailable)
		return
	}

	conv := s.orchestrator.Converter()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"endpoint":    s.speech.Endpoint(),
		"stats":       s.speech.Stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
		"faults": map[string]int{
			"transport":     conv.TransportFaults(),
			"failed_splits": conv.FailedSplits(),
			"recoveries":    conv.Recoveries(),
		},
	})
}
