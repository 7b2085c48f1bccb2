package database

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshot captures the full contents of the company tables.
func snapshot(t *testing.T, m *Manager) map[string]Rows {
	t.Helper()

	out := make(map[string]Rows)
	for table, order := range map[string]string{
		"departments": "department_id",
		"employees":   "employee_id",
	} {
		rows, err := m.Query("SELECT * FROM " + table + " ORDER BY " + order)
		require.NoError(t, err)
		out[table] = rows
	}
	return out
}

func TestExecuteTransaction_AllValidAppliesEachOperationOnce(t *testing.T) {
	m := setupSeededDB(t)
	employeesBefore := countRows(t, m, "employees")

	ok, err := m.ExecuteTransaction([]Operation{
		Exec("INSERT INTO departments (department_id, department_name, location, budget) VALUES (?, ?, ?, ?)",
			6, "Legal", "Seattle", 300000),
		Batch("INSERT INTO employees (first_name, last_name, email, department_id) VALUES (?, ?, ?, ?)",
			[]any{"Alex", "Johnson", "alex.j@company.com", 6},
			[]any{"Taylor", "Brown", "taylor.b@company.com", 6},
		),
		Exec("UPDATE departments SET budget = budget + ? WHERE department_id = ?", 1000, 6),
	})
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := m.Query("SELECT budget FROM departments WHERE department_id = 6")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 301000, rows[0]["budget"])

	assert.Equal(t, employeesBefore+2, countRows(t, m, "employees"))

	rows, err = m.Query("SELECT COUNT(*) AS n FROM employees WHERE department_id = 6")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rows[0]["n"])
}

func TestExecuteTransaction_FailureLeavesStateUntouched(t *testing.T) {
	m := setupSeededDB(t)
	before := snapshot(t, m)

	ok, err := m.ExecuteTransaction([]Operation{
		Exec("INSERT INTO departments (department_id, department_name) VALUES (?, ?)", 6, "Legal"),
		Exec("UPDATE employees SET salary = salary + 1"),
		Exec("INSERT INTO missing_table (id) VALUES (?)", 1),
	})
	assert.False(t, ok)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr), "expected *TransactionError, got %v", err)
	assert.Equal(t, 2, txErr.Index)
	assert.Contains(t, txErr.Statement, "missing_table")

	assert.Equal(t, before, snapshot(t, m))
}

func TestExecuteTransaction_FailingBatchRollsBackEarlierOperations(t *testing.T) {
	m := setupSeededDB(t)
	before := snapshot(t, m)

	ok, err := m.ExecuteTransaction([]Operation{
		Exec("DELETE FROM employees WHERE employee_id = ?", 10),
		Batch("INSERT INTO employees (first_name, last_name, email) VALUES (?, ?, ?)",
			[]any{"New", "Person", "new.person@company.com"},
			[]any{"Dup", "Person", "new.person@company.com"},
		),
	})
	assert.False(t, ok)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, 1, txErr.Index)

	assert.Equal(t, before, snapshot(t, m))
}

func TestExecuteTransaction_ForeignKeyViolationRollsBack(t *testing.T) {
	m := setupSeededDB(t)
	before := snapshot(t, m)

	ok, err := m.ExecuteTransaction([]Operation{
		Exec("INSERT INTO employees (first_name, last_name, email, department_id) VALUES (?, ?, ?, ?)",
			"Ghost", "Worker", "ghost@company.com", 42),
	})
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, before, snapshot(t, m))
}

func TestExecuteTransaction_RejectsMixedParameters(t *testing.T) {
	m := setupSeededDB(t)
	before := snapshot(t, m)

	ok, err := m.ExecuteTransaction([]Operation{
		Exec("DELETE FROM employees WHERE employee_id = ?", 10),
		{
			Statement: "INSERT INTO departments (department_name) VALUES (?)",
			Args:      []any{"Ops"},
			Batch:     [][]any{{"Ops"}},
		},
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	var txErr *TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, 1, txErr.Index)

	assert.Equal(t, before, snapshot(t, m))
}

func TestExecuteTransaction_EmptyStatementIsInvalid(t *testing.T) {
	m := setupTestDB(t)

	ok, err := m.ExecuteTransaction([]Operation{Exec("")})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestExecuteTransaction_NoOperations(t *testing.T) {
	m := setupTestDB(t)

	ok, err := m.ExecuteTransaction(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatch_DistinguishesSingleFromMulti(t *testing.T) {
	single := Exec("DELETE FROM employees WHERE employee_id = ?", 1)
	assert.False(t, single.isBatch())
	assert.Equal(t, []any{1}, single.Args)

	multi := Batch("DELETE FROM employees WHERE employee_id = ?", []any{1}, []any{2})
	assert.True(t, multi.isBatch())
	assert.Len(t, multi.Batch, 2)

	empty := Batch("DELETE FROM employees WHERE employee_id = ?")
	assert.True(t, empty.isBatch())
	assert.Empty(t, empty.Batch)
}
