package http

import (
	"encoding/base64"
	"log/slog"
	"net/http"
)

// Advisory endpoints are premium features. They require an active
// subscription and return candidates for the user to review; nothing is
// written to the ledger here.

func (s *Server) advisoryReady(w http.ResponseWriter, r *http.Request) bool {
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "advisory model is not configured")
		return false
	}
	return s.requireActiveSubscription(w, r)
}

func (s *Server) handleAssetGrowth(w http.ResponseWriter, r *http.Request) {
	if !s.advisoryReady(w, r) {
		return
	}
	var req struct {
		AssetID string `json:"asset_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	assets, err := s.ledger.ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for _, a := range assets {
		if a.ID == req.AssetID {
			advice, err := s.advisor.AssetGrowthAdvice(r.Context(), a)
			if err != nil {
				slog.ErrorContext(r.Context(), "Asset growth advice failed", "asset_id", a.ID, "error", err)
				writeError(w, http.StatusBadGateway, "advisory model error")
				return
			}
			writeJSON(w, http.StatusOK, advice)
			return
		}
	}
	writeError(w, http.StatusNotFound, "asset not found")
}

func (s *Server) handleReceiptScan(w http.ResponseWriter, r *http.Request) {
	if !s.advisoryReady(w, r) {
		return
	}
	var req struct {
		ImageBase64 string `json:"image_base64"`
		MimeType    string `json:"mime_type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image_base64 is not valid base64")
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "image_base64 is required")
		return
	}
	if req.MimeType == "" {
		req.MimeType = "image/jpeg"
	}

	lines, err := s.advisor.ScanReceipt(r.Context(), image, req.MimeType)
	if err != nil {
		slog.ErrorContext(r.Context(), "Receipt scan failed", "error", err)
		writeError(w, http.StatusBadGateway, "advisory model error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (s *Server) handleFarmForecast(w http.ResponseWriter, r *http.Request) {
	if !s.advisoryReady(w, r) {
		return
	}
	ops, err := s.ledger.ListFarmOperations(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	forecast, err := s.advisor.Forecast(r.Context(), ops)
	if err != nil {
		slog.ErrorContext(r.Context(), "Farm forecast failed", "error", err)
		writeError(w, http.StatusBadGateway, "advisory model error")
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}
