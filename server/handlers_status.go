package server

import (
	"net/http"

	"github.com/hzrd-media/viewer-tracker/tracker"
)

type statusResponse struct {
	Sessions           []tracker.SessionInfo `json:"sessions"`
	SessionCount       int                   `json:"session_count"`
	LedgerParticipants int                   `json:"ledger_participants"`
	PollInterval       string                `json:"poll_interval"`
	MetadataCircuit    string                `json:"metadata_circuit,omitempty"`
}

// HandleStatus reports the tracked sessions and ledger size.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	src := h.deps.Status
	if src == nil {
		http.Error(w, "tracker not running", http.StatusServiceUnavailable)
		return
	}
	sessions := src.Sessions()
	if sessions == nil {
		sessions = []tracker.SessionInfo{}
	}
	resp := statusResponse{
		Sessions:           sessions,
		SessionCount:       len(sessions),
		LedgerParticipants: src.Ledger().Len(),
		PollInterval:       src.Interval().String(),
	}
	if h.deps.CircuitState != nil {
		resp.MetadataCircuit = h.deps.CircuitState()
	}
	writeJSON(w, http.StatusOK, resp)
}
