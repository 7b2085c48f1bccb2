package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Operation is one statement inside a transaction. Args binds a single
// execution; Batch runs the statement once per argument set. Setting both
// is invalid.
type Operation struct {
	Statement string
	Args      []any
	Batch     [][]any
}

// Exec builds a single-execution operation.
func Exec(statement string, args ...any) Operation {
	return Operation{Statement: statement, Args: args}
}

// Batch builds a multi-row operation.
func Batch(statement string, argSets ...[]any) Operation {
	if argSets == nil {
		argSets = [][]any{}
	}
	return Operation{Statement: statement, Batch: argSets}
}

func (op Operation) isBatch() bool {
	return op.Batch != nil
}

func (op Operation) validate() error {
	if op.Statement == "" {
		return fmt.Errorf("%w: empty statement", ErrInvalidOperation)
	}
	if op.Batch != nil && len(op.Args) > 0 {
		return fmt.Errorf("%w: both single and batch parameters set", ErrInvalidOperation)
	}
	return nil
}

// ExecuteTransaction applies ops in order on one handle and commits only
// after all of them succeed. Any failure rolls back the whole sequence and
// returns false with a *TransactionError naming the failing operation.
func (m *Manager) ExecuteTransaction(ops []Operation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.connectLocked(); err != nil {
		return false, err
	}

	if err := m.executeLocked(ops); err != nil {
		evt := m.log.Error().Err(err).Int("operations", len(ops))
		if txErr, ok := err.(*TransactionError); ok && txErr.Index >= 0 {
			evt = evt.Int("failed_at", txErr.Index).Str("statement", compact(txErr.Statement))
		}
		evt.Msg("Transaction failed, rolled back")
		return false, err
	}

	m.log.Debug().Int("operations", len(ops)).Msg("Transaction committed")
	return true, nil
}

// executeLocked runs ops in a single transaction. The caller holds m.mu and
// has an open handle.
func (m *Manager) executeLocked(ops []Operation) error {
	for i, op := range ops {
		if err := op.validate(); err != nil {
			return &TransactionError{Index: i, Statement: op.Statement, Err: err}
		}
	}

	var opErr *TransactionError
	err := m.transactLocked(func(tx *sqlx.Tx) error {
		for i, op := range ops {
			var err error
			if op.isBatch() {
				_, err = execBatch(tx, op.Statement, op.Batch)
			} else {
				_, err = tx.Exec(op.Statement, op.Args...)
			}
			if err != nil {
				opErr = &TransactionError{Index: i, Statement: op.Statement, Err: err}
				return opErr
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if opErr != nil {
		return opErr
	}
	return &TransactionError{Index: -1, Err: err}
}
