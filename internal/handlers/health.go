package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/config"
	"github.com/taskforge-app/token-service/internal/constants"
	"github.com/taskforge-app/token-service/internal/database/postgres"
	"github.com/taskforge-app/token-service/internal/redis"
)

// HealthCheckTimeout bounds individual component checks.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler provides health check and monitoring endpoints.
type HealthHandler struct {
	config    *config.Config
	store     redis.Store
	dbMgr     *postgres.Manager
	logger    *logrus.Logger
	startTime time.Time
}

// HealthStatus is the health state of a component.
type HealthStatus string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy HealthStatus = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy HealthStatus = "unhealthy"
	// StatusDegraded indicates the component works but below expectations.
	StatusDegraded HealthStatus = "degraded"
)

// HealthResponse is the full health check response.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Details    map[string]interface{}     `json:"details,omitempty"`
}

// ComponentHealth is the health of one component.
type ComponentHealth struct {
	Status       HealthStatus `json:"status"`
	Message      string       `json:"message,omitempty"`
	LastChecked  time.Time    `json:"last_checked"`
	ResponseTime string       `json:"response_time,omitempty"`
}

// ReadinessResponse is the readiness probe response.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

var (
	healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "token_service",
		Name:      "health_checks_total",
		Help:      "Health checks by endpoint and outcome.",
	}, []string{"endpoint", "status"})

	componentHealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "token_service",
		Name:      "component_health_status",
		Help:      "Component health (1=healthy, 0=unhealthy).",
	}, []string{"component"})
)

// NewHealthHandler creates the health check handler. dbMgr may be nil
// when no account database is configured.
func NewHealthHandler(
	cfg *config.Config,
	store redis.Store,
	dbMgr *postgres.Manager,
	logger *logrus.Logger,
) *HealthHandler {
	return &HealthHandler{
		config:    cfg,
		store:     store,
		dbMgr:     dbMgr,
		logger:    logger,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the health and metrics endpoints.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/health/live", h.Liveness)
	mux.HandleFunc("/health/ready", h.Readiness)
	mux.Handle("/metrics", promhttp.Handler())
}

// Health runs all component checks and reports the aggregate status.
// A down token store makes the service unhealthy; a down account
// database only degrades it because the password grant falls back.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	components := make(map[string]ComponentHealth)
	overallStatus := StatusHealthy

	storeHealth := h.checkStorage(ctx)
	components["store"] = storeHealth
	if storeHealth.Status == StatusUnhealthy {
		overallStatus = StatusUnhealthy
	}

	databaseHealth := h.checkDatabase(ctx)
	components["database"] = databaseHealth
	if databaseHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	configHealth := h.checkConfiguration()
	components["configuration"] = configHealth
	if configHealth.Status != StatusHealthy && overallStatus == StatusHealthy {
		overallStatus = StatusDegraded
	}

	healthChecksTotal.WithLabelValues("health", string(overallStatus)).Inc()
	for component, health := range components {
		value := float64(0)
		if health.Status == StatusHealthy {
			value = 1
		}
		componentHealthStatus.WithLabelValues(component).Set(value)
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Version:    version,
		Uptime:     time.Since(h.startTime).String(),
		Components: components,
		Details: map[string]interface{}{
			"check_duration": time.Since(start).String(),
		},
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode health response")
	}
}

// Liveness reports that the process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	healthChecksTotal.WithLabelValues("liveness", "healthy").Inc()

	response := map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(h.startTime).String(),
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode liveness response")
	}
}

// Readiness reports whether the service should receive traffic. Only the
// token store gates readiness.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	components := make(map[string]ComponentHealth)
	ready := true

	storeHealth := h.checkStorage(ctx)
	components["store"] = storeHealth
	if storeHealth.Status == StatusUnhealthy {
		ready = false
	}

	components["database"] = h.checkDatabase(ctx)

	statusLabel := "ready"
	if !ready {
		statusLabel = "not_ready"
	}
	healthChecksTotal.WithLabelValues("readiness", statusLabel).Inc()

	response := ReadinessResponse{
		Ready:      ready,
		Timestamp:  time.Now(),
		Components: components,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode readiness response")
	}
}

func (h *HealthHandler) checkStorage(ctx context.Context) ComponentHealth {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.store.Ping(checkCtx)
	duration := time.Since(start)

	storageType := h.getStorageType()

	if err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      storageType + " connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := storageType + " is healthy"
	if storageType == "Redis" && duration > time.Second {
		status = StatusDegraded
		message = "Redis response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ComponentHealth {
	if h.dbMgr == nil || !h.config.IsPostgresConfigured() {
		return ComponentHealth{
			Status:      StatusHealthy,
			Message:     "Account database not configured (optional)",
			LastChecked: time.Now(),
		}
	}

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := h.dbMgr.Ping(checkCtx)
	duration := time.Since(start)

	if err != nil {
		h.logger.WithError(err).Debug("Database health check failed")
		return ComponentHealth{
			Status:       StatusUnhealthy,
			Message:      "PostgreSQL connection failed: " + err.Error(),
			LastChecked:  time.Now(),
			ResponseTime: duration.String(),
		}
	}

	status := StatusHealthy
	message := "PostgreSQL is healthy"
	if duration > 2*time.Second {
		status = StatusDegraded
		message = "PostgreSQL response time is slow"
	}

	return ComponentHealth{
		Status:       status,
		Message:      message,
		LastChecked:  time.Now(),
		ResponseTime: duration.String(),
	}
}

func (h *HealthHandler) getStorageType() string {
	switch h.store.(type) {
	case *redis.Client:
		return "Redis"
	case *redis.MemoryStore:
		return "In-Memory"
	default:
		return "Unknown"
	}
}

func (h *HealthHandler) checkConfiguration() ComponentHealth {
	var issues []string

	if h.config.Token.AuthorizationCodeTTL > 10*time.Minute {
		issues = append(issues, "authorization code TTL is unusually long")
	}
	if h.config.Token.AccessTokenTTL < time.Minute {
		issues = append(issues, "access token TTL is too short")
	}
	if h.config.Token.RefreshTokenTTL < h.config.Token.AccessTokenTTL {
		issues = append(issues, "refresh token TTL is shorter than access token TTL")
	}

	status := StatusHealthy
	message := "Configuration is valid"
	if len(issues) > 0 {
		status = StatusDegraded
		message = "Configuration issues: " + strings.Join(issues, ", ")
	}

	return ComponentHealth{
		Status:      status,
		Message:     message,
		LastChecked: time.Now(),
	}
}

// version is replaced at build time via -ldflags.
var version = "dev"
