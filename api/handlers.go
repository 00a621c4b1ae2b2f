package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// =============================================================================
// Handlers
// =============================================================================

// handleRunEnrichment triggers a synchronous enrichment pass and returns
// its summary. A failed pass still yields the summary, with a 500.
func (a *API) handleRunEnrichment(w http.ResponseWriter, r *http.Request) {
	summary, err := a.enricher.Run(r.Context())
	if err != nil {
		a.logger.Errorw("Enrichment pass failed", "error", err)
		if summary != nil {
			writeJSON(w, http.StatusInternalServerError, summary, a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "enrichment pass failed", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, summary, a.logger)
}

// handleLatestThreats returns the most recently processed records.
// Query parameter: limit (default 10, max 100).
func (a *API) handleLatestThreats(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10, 100)
	records, err := a.threats.Latest(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load latest threats", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"threats": records,
	}, a.logger)
}

// handleStatistics returns aggregate counts over the stored corpus.
func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.threats.Statistics()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute statistics", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, a.logger)
}

// handleListRuns returns the run audit trail, newest first.
// Query parameter: limit (default 20, max 200).
func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 200)
	runs, err := a.runs.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	}, a.logger)
}

// handleLastRun returns the most recent run, or 404 when no pass has
// ever executed.
func (a *API) handleLastRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.LastRun()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load last run", err, a.logger)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no enrichment run recorded", nil, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, run, a.logger)
}

// handleHealth reports storage liveness.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.health(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, a.logger)
}

// =============================================================================
// Helpers
// =============================================================================

func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Errorw("Failed to encode response", "error", err)
	}
}

// writeError logs the full error internally and sends only the message
// to the client.
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if err != nil {
		logger.Errorw(message, "error", err, "status_code", statusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
