package insight

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"go.uber.org/zap"
)

const (
	defaultVerdictLimit = 50
	maxVerdictLimit     = 1000
)

// Routes implements plugin.HTTPProvider. Paths are mounted under
// /api/v1/insight.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/verdict", Handler: m.handleLatestVerdict},
		{Method: http.MethodGet, Path: "/verdicts", Handler: m.handleListVerdicts},
		{Method: http.MethodGet, Path: "/baselines", Handler: m.handleBaselines},
		{Method: http.MethodPost, Path: "/reset", Handler: m.handleReset},
	}
}

func (m *Module) handleLatestVerdict(w http.ResponseWriter, r *http.Request) {
	v, ok := m.LatestVerdict()
	if !ok {
		problem(w, r, http.StatusNotFound, "no window has been scored yet")
		return
	}
	respond(w, http.StatusOK, v)
}

// handleListVerdicts serves ?limit= most recent verdicts, newest first.
func (m *Module) handleListVerdicts(w http.ResponseWriter, r *http.Request) {
	if m.history == nil {
		problem(w, r, http.StatusNotImplemented, "verdict history requires the sqlite database")
		return
	}
	verdicts, err := m.history.ListVerdicts(r.Context(), verdictLimit(r))
	if err != nil {
		m.logger.Error("list verdicts", zap.Error(err))
		problem(w, r, http.StatusInternalServerError, "failed to list verdicts")
		return
	}
	respond(w, http.StatusOK, verdicts)
}

func (m *Module) handleBaselines(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, m.Baselines())
}

func (m *Module) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := m.Reset(r.Context()); err != nil {
		m.logger.Error("reset baselines", zap.Error(err))
		problem(w, r, http.StatusInternalServerError, "failed to reset baselines")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// problem writes an RFC 7807 body.
func problem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":     "about:blank",
		"title":    http.StatusText(status),
		"status":   status,
		"detail":   detail,
		"instance": r.URL.Path,
	})
}

// verdictLimit reads ?limit=, defaulting when absent or invalid and capping
// at maxVerdictLimit.
func verdictLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultVerdictLimit
	}
	return min(n, maxVerdictLimit)
}
