package database

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Rows is an ordered query result. It is built fresh for every call and
// shares nothing with the connection.
type Rows []Row

// Columns returns the column names of the first row in sorted order, or nil
// for an empty result.
func (r Rows) Columns() []string {
	if len(r) == 0 {
		return nil
	}
	cols := make([]string, 0, len(r[0]))
	for name := range r[0] {
		cols = append(cols, name)
	}
	slices.Sort(cols)
	return cols
}

// Query runs a statement that returns rows. On failure the error is logged,
// an empty result is returned and err is a *QueryError, so an empty result
// with a nil error always means "no rows".
func (m *Manager) Query(query string, args ...any) (Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return Rows{}, err
	}

	rows, err := m.queryLocked(query, args...)
	if err != nil {
		m.log.Error().Err(err).Str("statement", compact(query)).Msg("Failed to execute query")
		return Rows{}, &QueryError{Statement: query, Err: err}
	}

	return rows, nil
}

func (m *Manager) queryLocked(query string, args ...any) (Rows, error) {
	rs, err := m.conn.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	result := Rows{}
	for rs.Next() {
		row := make(Row)
		if err := rs.MapScan(row); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, row)
	}

	return result, rs.Err()
}

// Mutate runs an insert, update or delete and commits it immediately.
// On failure the pending work is rolled back and 0 is returned with a
// *QueryError.
func (m *Manager) Mutate(query string, args ...any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return 0, err
	}

	var affected int64
	err := m.transactLocked(func(tx *sqlx.Tx) error {
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		m.log.Error().Err(err).Str("statement", compact(query)).Msg("Failed to execute statement, rolled back")
		return 0, &QueryError{Statement: query, Err: err}
	}

	return affected, nil
}

// MutateMany runs one statement once per argument set. The whole batch
// commits or rolls back as a unit; the returned count is the sum over all
// sets, so INSERT OR IGNORE conflicts contribute nothing.
func (m *Manager) MutateMany(query string, argSets [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return 0, err
	}

	var affected int64
	err := m.transactLocked(func(tx *sqlx.Tx) error {
		n, err := execBatch(tx, query, argSets)
		affected = n
		return err
	})
	if err != nil {
		m.log.Error().Err(err).
			Str("statement", compact(query)).
			Int("parameter_sets", len(argSets)).
			Msg("Failed to execute batch, rolled back")
		return 0, &QueryError{Statement: query, Err: err}
	}

	return affected, nil
}

// execBatch prepares query once on tx and executes it for every argument set.
func execBatch(tx *sqlx.Tx, query string, argSets [][]any) (int64, error) {
	stmt, err := tx.Preparex(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var total int64
	for i, args := range argSets {
		res, err := stmt.Exec(args...)
		if err != nil {
			return 0, fmt.Errorf("parameter set %d: %w", i, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// compact collapses a multi-line statement for log output.
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
