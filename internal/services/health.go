package services

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/internal/database"
)

// CircuitReporter exposes the ranking backend circuit state.
type CircuitReporter interface {
	CircuitState() backend.CircuitState
}

type HealthService struct {
	logger  *logrus.Logger
	db      *database.Database
	backend CircuitReporter

	critical    map[string]func(context.Context) error
	nonCritical map[string]func(context.Context) error

	// Prometheus metrics
	healthCheckStatus   *prometheus.GaugeVec
	lastHealthCheck     *prometheus.GaugeVec
	systemMetrics       *prometheus.GaugeVec
	dbConnectionMetrics *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Services    map[string]string      `json:"services"`
	Critical    []string               `json:"critical_failures,omitempty"`
	NonCritical []string               `json:"non_critical_failures,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService builds the dependency checks for db. backendClient may be
// nil.
func NewHealthService(logger *logrus.Logger, db *database.Database, backendClient CircuitReporter) *HealthService {
	hs := &HealthService{
		logger:      logger,
		db:          db,
		backend:     backendClient,
		critical:    map[string]func(context.Context) error{},
		nonCritical: map[string]func(context.Context) error{},
	}

	if db != nil {
		if db.PG != nil {
			hs.critical["postgresql"] = func(ctx context.Context) error { return db.PG.Ping(ctx) }
		}
		if db.Redis != nil {
			hs.critical["redis"] = func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() }
		}
		if db.Neo4j != nil {
			hs.nonCritical["neo4j"] = func(ctx context.Context) error { return db.Neo4j.VerifyConnectivity(ctx) }
		}
	}
	if backendClient != nil {
		hs.nonCritical["ranking_backend"] = func(context.Context) error {
			if backendClient.CircuitState() == backend.CircuitOpen {
				return backend.ErrCircuitOpen
			}
			return nil
		}
	}

	hs.healthCheckStatus = register(logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_status",
		Help: "Health check status (1 = healthy, 0 = unhealthy)",
	}, []string{"service"}))

	hs.lastHealthCheck = register(logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "health_check_timestamp",
		Help: "Timestamp of last health check",
	}, []string{"service"}))

	hs.systemMetrics = register(logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "system_info",
		Help: "System information metrics",
	}, []string{"metric_type"}))

	hs.dbConnectionMetrics = register(logger, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "database_connection_pool_usage",
		Help: "Database connection pool usage percentage",
	}, []string{"database", "state"}))

	return hs
}

// Start runs the background collectors until ctx is cancelled.
func (s *HealthService) Start(ctx context.Context) {
	go s.collectSystemMetrics(ctx)
	go s.collectDatabaseMetrics(ctx)
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Timestamp: time.Now(),
		Services:  make(map[string]string),
	}

	allCriticalHealthy := true
	for name, check := range s.critical {
		if err := s.run(ctx, check); err != nil {
			status.Services[name] = "unhealthy"
			status.Critical = append(status.Critical, name)
			allCriticalHealthy = false
			s.logger.WithError(err).Errorf("Critical service %s is unhealthy", name)
			s.UpdateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.UpdateHealthMetrics(name, true)
		}
	}

	for name, check := range s.nonCritical {
		if err := s.run(ctx, check); err != nil {
			status.Services[name] = "unhealthy"
			status.NonCritical = append(status.NonCritical, name)
			s.logger.WithError(err).Warnf("Non-critical service %s is unhealthy", name)
			s.UpdateHealthMetrics(name, false)
		} else {
			status.Services[name] = "healthy"
			s.UpdateHealthMetrics(name, true)
		}
	}

	if s.backend != nil {
		status.Details = map[string]interface{}{
			"circuit_state": s.backend.CircuitState().String(),
		}
	}

	// Overall status
	if allCriticalHealthy {
		if len(status.NonCritical) == 0 {
			status.Status = "healthy"
		} else {
			status.Status = "degraded"
		}
	} else {
		status.Status = "unhealthy"
	}

	return status
}

func (s *HealthService) run(ctx context.Context, check func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return check(ctx)
}

// collectSystemMetrics collects system-level metrics
func (s *HealthService) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var memStats runtime.MemStats

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runtime.ReadMemStats(&memStats)

		s.systemMetrics.WithLabelValues("memory_alloc_bytes").Set(float64(memStats.Alloc))
		s.systemMetrics.WithLabelValues("memory_sys_bytes").Set(float64(memStats.Sys))
		s.systemMetrics.WithLabelValues("goroutines_count").Set(float64(runtime.NumGoroutine()))
		s.systemMetrics.WithLabelValues("gc_runs_total").Set(float64(memStats.NumGC))

		if memStats.NumGC > 0 {
			lastPause := memStats.PauseNs[(memStats.NumGC+255)%256]
			s.systemMetrics.WithLabelValues("gc_pause_ns").Set(float64(lastPause))
		}
	}
}

// collectDatabaseMetrics collects database connection metrics
func (s *HealthService) collectDatabaseMetrics(ctx context.Context) {
	if s.db == nil || s.db.PG == nil {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		stats := s.db.PG.Stat()

		s.dbConnectionMetrics.WithLabelValues("postgresql", "acquired_conns").Set(float64(stats.AcquiredConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "idle_conns").Set(float64(stats.IdleConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "max_conns").Set(float64(stats.MaxConns()))
		s.dbConnectionMetrics.WithLabelValues("postgresql", "total_conns").Set(float64(stats.TotalConns()))

		if stats.MaxConns() > 0 {
			usage := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			s.dbConnectionMetrics.WithLabelValues("postgresql", "usage_percent").Set(usage)
		}
	}
}

// UpdateHealthMetrics updates health check metrics
func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
