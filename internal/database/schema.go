package database

import (
	"database/sql"
	"fmt"
)

// Column describes one column of a table as declared in the catalog.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null"`
	Default    *string `json:"default"`
	PrimaryKey bool    `json:"primary_key"`
}

// TableSchema is the ordered column list of a table.
type TableSchema []Column

// PrimaryKey returns the names of the primary key columns.
func (s TableSchema) PrimaryKey() []string {
	var keys []string
	for _, c := range s {
		if c.PrimaryKey {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

// tableInfoRow mirrors one row of pragma_table_info.
type tableInfoRow struct {
	CID     int64          `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int64          `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int64          `db:"pk"`
}

// TableSchema reads the column list of table from the catalog. It is never
// cached. Failures are logged and return an empty descriptor with a
// *QueryError; an unknown table wraps ErrTableNotFound.
func (m *Manager) TableSchema(table string) (TableSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	const query = `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	var info []tableInfoRow
	if err := m.selectRows(&info, query, table); err != nil {
		if _, ok := err.(*ConnectionError); ok {
			return TableSchema{}, err
		}
		m.log.Error().Err(err).Str("table", table).Msg("Failed to get table info")
		return TableSchema{}, &QueryError{Statement: query, Err: err}
	}

	if len(info) == 0 {
		m.log.Warn().Str("table", table).Msg("Table not found")
		return TableSchema{}, &QueryError{Statement: query, Err: fmt.Errorf("%w: %s", ErrTableNotFound, table)}
	}

	schema := make(TableSchema, 0, len(info))
	for _, r := range info {
		schema = append(schema, Column{
			Name:       r.Name,
			Type:       r.Type,
			NotNull:    r.NotNull != 0,
			Default:    nullStringToPtr(r.Default),
			PrimaryKey: r.PK > 0,
		})
	}

	return schema, nil
}

// Tables lists user tables in name order, leaving out SQLite's internal ones
// and the migration bookkeeping table.
func (m *Manager) Tables() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tablesLocked()
}

func (m *Manager) tablesLocked() ([]string, error) {
	var tables []string
	err := m.selectRows(&tables, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ?
		ORDER BY name
	`, migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

// PlanStep is one node of an EXPLAIN QUERY PLAN result.
type PlanStep struct {
	ID     int64  `db:"id" json:"id"`
	Parent int64  `db:"parent" json:"parent"`
	Detail string `db:"detail" json:"detail"`
}

// QueryPlan asks SQLite how it would execute query.
func (m *Manager) QueryPlan(query string, args ...any) ([]PlanStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return nil, err
	}

	rs, err := m.conn.Queryx("EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, &QueryError{Statement: query, Err: err}
	}
	defer rs.Close()

	// The third column's name varies between SQLite releases ("notused" or
	// "unused"), so scan positionally.
	var steps []PlanStep
	for rs.Next() {
		var (
			step   PlanStep
			unused any
		)
		if err := rs.Scan(&step.ID, &step.Parent, &unused, &step.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan query plan: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rs.Err(); err != nil {
		return nil, &QueryError{Statement: query, Err: err}
	}

	return steps, nil
}
