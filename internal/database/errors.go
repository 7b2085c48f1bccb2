package database

import (
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned by TableSchema when the catalog has no such table.
	ErrTableNotFound = errors.New("table not found")

	// ErrInvalidOperation marks a malformed batch operation.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrBackupExists is returned when a backup destination is already present.
	ErrBackupExists = errors.New("backup destination already exists")
)

// ConnectionError reports a failure to open the database file.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a failed statement: a syntax error, a constraint
// violation or anything else the engine rejected.
type QueryError struct {
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("failed to execute statement: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// TransactionError reports the operation that aborted a batch. Index is the
// position of the failing operation, or -1 when begin or commit failed.
type TransactionError struct {
	Index     int
	Statement string
	Err       error
}

func (e *TransactionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("transaction failed: %v", e.Err)
	}
	return fmt.Sprintf("transaction failed at operation %d: %v", e.Index, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
