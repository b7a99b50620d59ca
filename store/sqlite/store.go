// Package sqlite keeps index records in a single SQLite file.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gasparian/lsh-search-go/store"
)

const (
	schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB
	) WITHOUT ROWID`
	upsert = `INSERT INTO kv(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	selectGlob = `SELECT key, value FROM kv WHERE key GLOB ? ORDER BY key`
)

// Store is a SQLite-backed store.Store
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database file at path
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(key string, value []byte) error {
	_, err := s.db.Exec(upsert, key, value)
	return mapErr(err)
}

// FindMatching uses SQLite GLOB, which is case sensitive and lets '*' cross '/'
func (s *Store) FindMatching(pattern string) (store.Iterator, error) {
	rows, err := s.db.Query(selectGlob, pattern)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rowsIterator{rows: rows}, nil
}

func (s *Store) Begin() (store.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, mapErr(err)
	}
	return &sqlTx{tx: tx}, nil
}

type rowsIterator struct {
	rows *sql.Rows
	err  error
}

func (it *rowsIterator) Next() (store.Result, bool) {
	if it.err != nil || !it.rows.Next() {
		return store.Result{}, false
	}
	var res store.Result
	if err := it.rows.Scan(&res.Key, &res.Value); err != nil {
		it.err = err
		return store.Result{}, false
	}
	return res, true
}

func (it *rowsIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowsIterator) Close() error {
	return it.rows.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Put(key string, value []byte) error {
	_, err := t.tx.Exec(upsert, key, value)
	return mapErr(err)
}

func (t *sqlTx) Commit() error {
	return mapErr(t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	return mapErr(t.tx.Rollback())
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrTxDone):
		return store.ErrTxDone
	case err.Error() == "sql: database is closed":
		return fmt.Errorf("%w: %v", store.ErrClosed, err)
	}
	return err
}
