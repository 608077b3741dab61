package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/api/response"
	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/watch"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

// DependencyCheck is a named readiness probe such as the cache or database.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// WatchLoader reports watch session load. Implemented by *watch.Manager.
type WatchLoader interface {
	Load() watch.Load
}

// OpsConfig configures the operational endpoints. Registry and Watches may be nil.
type OpsConfig struct {
	Version   string
	BuildTime string
	// Upstream names the timetable provider, e.g. "ptv".
	Upstream string
	Registry *resilience.Registry
	Watches  WatchLoader
	Checks   []DependencyCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
			"upstream":  h.cfg.Upstream,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - fails while any dependency is
// unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.checkSubsystems(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	details := make(map[string]interface{}, len(subsystems))
	for _, s := range subsystems {
		details[s.Name] = s.Status
		if s.Status == models.HealthStatusFail {
			health.Status = models.HealthStatusFail
		}
	}
	if len(details) > 0 {
		health.Details = details
	}

	status := http.StatusOK
	if health.Status == models.HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem, provider and watch
// session status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Upstream:   h.cfg.Upstream,
		Subsystems: h.checkSubsystems(r.Context()),
		Providers:  h.providerStatuses(),
		Watches:    h.watchLoad(),
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worse(status.Status, p.Status)
		if p.Status != models.HealthStatusOK {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "stale_departures:"+p.Provider)
		}
	}
	// New watches are refused once every slot is taken.
	if wl := status.Watches; wl != nil && wl.Capacity > 0 && wl.Open >= wl.Capacity {
		status.Status = worse(status.Status, models.HealthStatusDegraded)
		status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "watch_capacity")
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) checkSubsystems(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.cfg.Checks))
	for _, check := range h.cfg.Checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := check.Ping(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: check.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) providerStatuses() []models.ProviderStatus {
	if h.cfg.Registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.cfg.Registry.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		ps := models.ProviderStatus{Provider: ph.Name}
		switch ph.Status() {
		case resilience.StatusUnhealthy:
			ps.Status = models.HealthStatusFail
		case resilience.StatusDegraded:
			ps.Status = models.HealthStatusDegraded
		default:
			ps.Status = models.HealthStatusOK
		}
		if ph.LastSuccessAt != nil {
			ps.LastSuccessAt = models.NewTimestamp(*ph.LastSuccessAt)
		}
		if ph.LastFailureAt != nil {
			ps.LastFailureAt = models.NewTimestamp(*ph.LastFailureAt)
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func (h *OpsHandler) watchLoad() *models.WatchLoad {
	if h.cfg.Watches == nil {
		return nil
	}
	l := h.cfg.Watches.Load()
	return &models.WatchLoad{
		Open:     l.Open,
		Visible:  l.Visible,
		Hidden:   l.Open - l.Visible,
		Capacity: l.Capacity,
	}
}

// worse returns the more severe of two statuses. A failed subsystem or
// provider only degrades the service, since stale data can still be served.
func worse(current, other models.HealthStatus) models.HealthStatus {
	if current == models.HealthStatusOK && other != models.HealthStatusOK {
		return models.HealthStatusDegraded
	}
	return current
}
