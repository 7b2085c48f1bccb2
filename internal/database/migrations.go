package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

// migrationsTable is where goose records applied versions.
const migrationsTable = "goose_db_version"

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies all pending schema migrations.
func (m *Manager) Migrate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return err
	}
	return m.migrateLocked()
}

// SchemaVersion returns the highest applied migration version.
func (m *Manager) SchemaVersion() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return 0, err
	}

	provider, err := m.migrationProvider()
	if err != nil {
		return 0, err
	}

	version, err := provider.GetDBVersion(context.Background())
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

func (m *Manager) migrationProvider() (*goose.Provider, error) {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, m.conn.DB, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

func (m *Manager) migrateLocked() error {
	provider, err := m.migrationProvider()
	if err != nil {
		return err
	}

	results, err := provider.Up(context.Background())
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		m.log.Info().
			Int64("version", r.Source.Version).
			Str("name", filepath.Base(r.Source.Path)).
			Dur("duration", r.Duration).
			Msg("Applied migration")
	}

	if len(results) == 0 {
		m.log.Debug().Msg("Schema is up to date")
	}
	return nil
}
