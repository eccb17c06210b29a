package http

import (
	"log/slog"
	"net/http"
)

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperAdmin(w, r) {
		return
	}
	stats, err := s.ledger.SyncStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
	})
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if !s.requireSuperAdmin(w, r) {
		return
	}
	n, err := s.ledger.RetrySync(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	slog.InfoContext(r.Context(), "Failed sync items reset", "count", n)
	writeJSON(w, http.StatusOK, map[string]int64{"retried": n})
}
