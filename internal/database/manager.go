package database

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DefaultBusyTimeout is how long SQLite waits on a locked file before failing.
const DefaultBusyTimeout = 5 * time.Second

// Config describes the database file a Manager mediates access to.
type Config struct {
	// Path is the SQLite database file. ":memory:" is accepted.
	Path string

	// BusyTimeout bounds how long a statement waits for another process's lock.
	// Zero means DefaultBusyTimeout.
	BusyTimeout time.Duration

	// AutoMigrate applies the embedded schema migrations on every Connect.
	AutoMigrate bool
}

// Manager is the approved entrypoint for database access across the app.
// It owns at most one connection handle and serializes every operation on it.
type Manager struct {
	cfg  Config
	id   string
	log  zerolog.Logger
	open func(dsn string) (*sqlx.DB, error)

	mu   sync.Mutex
	conn *sqlx.DB
}

// New creates a manager for cfg. No connection is opened until Connect or
// the first operation that needs one.
func New(cfg Config) *Manager {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}

	id := uuid.NewString()
	return &Manager{
		cfg: cfg,
		id:  id,
		log: log.With().Str("session", id).Str("path", cfg.Path).Logger(),
		open: func(dsn string) (*sqlx.DB, error) {
			return sqlx.Open(DriverName, dsn)
		},
	}
}

// Path returns the database file path
func (m *Manager) Path() string {
	return m.cfg.Path
}

// ID returns the session id attached to this manager's log lines.
func (m *Manager) ID() string {
	return m.id
}

// Connected reports whether a connection handle is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// uriPathEscaper escapes the characters that end the path part of a file: URI.
var uriPathEscaper = strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23")

// dsn builds the modernc.org/sqlite connection string as a file: URI so that
// any path, including one containing '?', reaches SQLite intact. Foreign keys
// are enabled per connection so the setting survives the pool reopening its
// handle.
func (m *Manager) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", m.cfg.BusyTimeout.Milliseconds()))

	return "file:" + uriPathEscaper.Replace(m.cfg.Path) + "?" + q.Encode()
}
