package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
func (m *Manager) Optimize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	return nil
}

// Vacuum rebuilds the database file to reclaim unused space.
func (m *Manager) Vacuum() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// Backup writes a consistent copy of the database to dest. An existing file
// at dest is never overwritten.
func (m *Manager) Backup(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: %s", ErrBackupExists, dest)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to check backup destination: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.exec("VACUUM INTO ?", dest); err != nil {
		m.log.Error().Err(err).Str("dest", dest).Msg("Failed to back up database")
		return fmt.Errorf("failed to back up database: %w", err)
	}

	m.log.Info().Str("dest", dest).Msg("Database backed up")
	return nil
}

// Stats summarises the database contents.
type Stats struct {
	Tables    []string         `json:"tables"`
	RowCounts map[string]int64 `json:"row_counts"`
	SizeBytes int64            `json:"size_bytes"`
}

// Stats lists the user tables (as returned by Tables, so without migration
// metadata) with their row counts and the file size as reported by
// page_count * page_size.
func (m *Manager) Stats() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tables, err := m.tablesLocked()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Tables:    tables,
		RowCounts: make(map[string]int64, len(tables)),
	}

	for _, table := range tables {
		var count int64
		if err := m.get(&count, "SELECT COUNT(*) FROM "+quoteIdent(table)); err != nil {
			return Stats{}, fmt.Errorf("failed to count rows in %s: %w", table, err)
		}
		stats.RowCounts[table] = count
	}

	var pageCount, pageSize int64
	if err := m.get(&pageCount, "PRAGMA page_count"); err != nil {
		return Stats{}, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := m.get(&pageSize, "PRAGMA page_size"); err != nil {
		return Stats{}, fmt.Errorf("failed to get page size: %w", err)
	}
	stats.SizeBytes = pageCount * pageSize

	return stats, nil
}

// quoteIdent quotes a table or column name for direct inclusion in SQL.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
