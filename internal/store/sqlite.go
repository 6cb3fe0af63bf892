package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/noah-nozomu/gacha-app/internal/models"
)

// SQLite persists worksheets in a local database file, for kiosks that
// run without a network store. Each worksheet is kept as a single
// versioned row, preserving the whole-table replace semantics of the
// remote API: the version column is what makes conditional writes work.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS worksheets (
	name    TEXT PRIMARY KEY,
	version INTEGER NOT NULL DEFAULT 0,
	data    TEXT NOT NULL DEFAULT '{}'
);`

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrUnavailable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %v", ErrUnavailable, err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) ensureRow(ctx context.Context, table string) error {
	empty, _ := json.Marshal(models.Table{})
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO worksheets (name, version, data) VALUES (?, 0, ?)`,
		table, string(empty))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Read(ctx context.Context, table string) (models.Table, string, error) {
	if err := s.ensureRow(ctx, table); err != nil {
		return models.Table{}, "", err
	}
	var version int64
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM worksheets WHERE name = ?`, table).Scan(&version, &data)
	if err != nil {
		return models.Table{}, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var t models.Table
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return models.Table{}, "", fmt.Errorf("%w: corrupt worksheet %s: %v", ErrUnavailable, table, err)
	}
	return t, strconv.FormatInt(version, 10), nil
}

func (s *SQLite) Write(ctx context.Context, table string, t models.Table, version string) error {
	if err := s.ensureRow(ctx, table); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: encode worksheet: %v", ErrUnavailable, err)
	}

	var res sql.Result
	if version == "" {
		res, err = s.db.ExecContext(ctx,
			`UPDATE worksheets SET data = ?, version = version + 1 WHERE name = ?`,
			string(data), table)
	} else {
		var expected int64
		expected, err = strconv.ParseInt(version, 10, 64)
		if err != nil {
			return ErrVersionConflict
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE worksheets SET data = ?, version = version + 1 WHERE name = ? AND version = ?`,
			string(data), table, expected)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}
