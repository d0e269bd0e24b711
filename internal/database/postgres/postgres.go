// Package postgres manages the connection pool to the TaskForge account
// database used by the password grant. The pool self-heals: a background
// monitor pings the database and reconnects when connectivity returns.
package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/taskforge-app/token-service/internal/config"
)

const healthCheckTimeout = 5 * time.Second

// ErrDatabaseUnavailable is returned when the database cannot be reached.
var ErrDatabaseUnavailable = errors.New("database is not available")

// Manager owns the PostgreSQL connection pool and its health monitoring.
type Manager struct {
	pool      *pgxpool.Pool
	config    *config.Config
	logger    *logrus.Logger
	available bool
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewManager creates a database manager. When no credentials are
// configured it returns a manager that never connects, and the password
// grant falls back to store-backed users.
func NewManager(cfg *config.Config, logger *logrus.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.IsPostgresConfigured() {
		if err := manager.connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to PostgreSQL on startup, will retry periodically")
		}
		go manager.healthMonitor()
	} else {
		logger.Info("PostgreSQL not configured, password grant will use the token store")
	}

	return manager
}

func (m *Manager) connect() error {
	poolConfig, err := pgxpool.ParseConfig(m.config.PostgresDSN())
	if err != nil {
		return err
	}

	poolConfig.MaxConns = m.config.Postgres.MaxConn
	poolConfig.MinConns = m.config.Postgres.MinConn
	poolConfig.MaxConnLifetime = m.config.Postgres.MaxConnLifetime
	poolConfig.MaxConnIdleTime = m.config.Postgres.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = m.config.Postgres.ConnectTimeout

	ctx, cancel := context.WithTimeout(m.ctx, m.config.Postgres.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return err
	}

	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return pingErr
	}

	m.mu.Lock()
	if m.pool != nil {
		m.pool.Close()
	}
	m.pool = pool
	m.available = true
	m.mu.Unlock()

	m.logger.Info("Connected to PostgreSQL account database")
	return nil
}

func (m *Manager) healthMonitor() {
	ticker := time.NewTicker(m.config.Postgres.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	m.mu.RLock()
	pool := m.pool
	wasAvailable := m.available
	m.mu.RUnlock()

	if pool == nil {
		if err := m.connect(); err != nil {
			m.mu.Lock()
			m.available = false
			m.mu.Unlock()

			if wasAvailable {
				m.logger.WithError(err).Warn("PostgreSQL connection lost, attempting reconnection")
			}
		}
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, healthCheckTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		m.mu.Lock()
		m.available = false
		m.mu.Unlock()

		if wasAvailable {
			m.logger.WithError(err).Warn("PostgreSQL health check failed, connection lost")
		}

		if reconnectErr := m.connect(); reconnectErr != nil {
			m.logger.WithError(reconnectErr).Debug("PostgreSQL reconnection attempt failed")
		}
		return
	}

	m.mu.Lock()
	restored := !m.available
	m.available = true
	m.mu.Unlock()

	if restored {
		m.logger.Info("PostgreSQL connection restored")
	}
}

// IsAvailable reports whether the database is currently reachable.
func (m *Manager) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Pool returns the current connection pool, or nil while unavailable.
// Repositories hold this method as a PoolGetter so they always see the
// pool that survived the last reconnect.
func (m *Manager) Pool() *pgxpool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.available {
		return m.pool
	}
	return nil
}

// Ping checks connectivity for health endpoints.
func (m *Manager) Ping(ctx context.Context) error {
	pool := m.Pool()
	if pool == nil {
		return ErrDatabaseUnavailable
	}
	return pool.Ping(ctx)
}

// Close stops monitoring and closes the pool.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pool != nil {
		m.pool.Close()
		m.pool = nil
	}
	m.available = false
}
