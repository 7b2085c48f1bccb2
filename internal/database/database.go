package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Connect opens the connection handle. It is a no-op when a handle is already
// open. Failures are logged and returned as *ConnectionError.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connectLocked()
}

func (m *Manager) connectLocked() error {
	if m.conn != nil {
		return nil
	}

	conn, err := m.open(m.dsn())
	if err != nil {
		return m.connectFailed(fmt.Errorf("failed to open database: %w", err))
	}

	// One handle per manager: pinning the pool keeps transactions, pragmas
	// and plain statements on the same SQLite connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return m.connectFailed(fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = conn.Close()
		return m.connectFailed(fmt.Errorf("failed to enable foreign keys: %w", err))
	}

	m.conn = conn

	if m.cfg.AutoMigrate {
		if err := m.migrateLocked(); err != nil {
			m.closeLocked()
			return m.connectFailed(err)
		}
	}

	m.log.Debug().Msg("Database connection established")
	return nil
}

func (m *Manager) connectFailed(err error) error {
	m.log.Error().Err(err).Msg("Failed to connect to database")
	return &ConnectionError{Path: m.cfg.Path, Err: err}
}

// Disconnect releases the connection handle. Calling it with no open handle
// does nothing. Close failures are logged, never returned.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.conn == nil {
		return
	}

	if err := m.conn.Close(); err != nil {
		m.log.Error().Err(err).Msg("Failed to close database connection")
	}
	m.conn = nil

	m.log.Debug().Msg("Database connection closed")
}

// Scope connects, runs fn and disconnects. The handle is released on every
// exit path, including a panic inside fn. A handle that was already open
// before Scope was called is left open.
func (m *Manager) Scope(fn func(*Manager) error) error {
	m.mu.Lock()
	owned := m.conn == nil
	err := m.connectLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if owned {
		defer m.Disconnect()
	}

	return fn(m)
}

// Open creates a manager for cfg and runs fn inside its scope.
func Open(cfg Config, fn func(*Manager) error) error {
	return New(cfg).Scope(fn)
}

// transactLocked wraps fn in a database transaction. The caller holds m.mu
// and has an open handle.
func (m *Manager) transactLocked(fn func(*sqlx.Tx) error) error {
	tx, err := m.conn.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
