package database

import "database/sql"

// The helpers below assume m.mu is held. They open the handle on demand so
// that any operation issued before Connect still reaches the database.

func (m *Manager) exec(query string, args ...any) (sql.Result, error) {
	if err := m.connectLocked(); err != nil {
		return nil, err
	}
	return m.conn.Exec(query, args...)
}

func (m *Manager) selectRows(dest any, query string, args ...any) error {
	if err := m.connectLocked(); err != nil {
		return err
	}
	return m.conn.Select(dest, query, args...)
}

func (m *Manager) get(dest any, query string, args ...any) error {
	if err := m.connectLocked(); err != nil {
		return err
	}
	return m.conn.Get(dest, query, args...)
}
