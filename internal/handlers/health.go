package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/gemvault/api/internal/domain"
	"github.com/gemvault/api/internal/platform/requestctx"
	"github.com/gemvault/api/internal/services"
	"go.uber.org/zap"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

// NewHealthHandlers constructs probe handlers. Without a system service /readyz reports ok.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system, clock: time.Now}
}

type healthCheckPayload struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMS int64     `json:"latencyMs"`
	CheckedAt time.Time `json:"checkedAt"`
}

type healthPayload struct {
	Status      string               `json:"status"`
	Version     string               `json:"version,omitempty"`
	Environment string               `json:"environment,omitempty"`
	Uptime      string               `json:"uptime,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	Checks      []healthCheckPayload `json:"checks,omitempty"`
}

// Healthz reports that the process is serving requests.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	payload := healthPayload{Status: domain.HealthStatusOK, Timestamp: h.clock().UTC()}
	if h.system != nil {
		build := h.system.BuildInfo()
		payload.Version = build.Version
		payload.Environment = build.Environment
		if !build.StartedAt.IsZero() {
			payload.Uptime = h.clock().Sub(build.StartedAt).Round(time.Second).String()
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes dependencies and answers 503 when any of them is down.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, healthPayload{Status: domain.HealthStatusOK, Timestamp: h.clock().UTC()})
		return
	}
	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		requestctx.Logger(r.Context()).Error("health report failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, healthPayload{Status: domain.HealthStatusError, Timestamp: h.clock().UTC()})
		return
	}

	payload := healthPayload{
		Status:      report.Status,
		Version:     report.Version,
		Environment: report.Environment,
		Uptime:      report.Uptime.Round(time.Second).String(),
		Timestamp:   report.GeneratedAt,
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		payload.Checks = append(payload.Checks, healthCheckPayload{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: check.CheckedAt,
		})
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
