// Package sqlstore provides a ports.StateStore backed by database/sql.
// SQLite (modernc.org/sqlite, pure Go) and Postgres (pgx) are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/labflow/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2) instead of "?".
	Numbered bool
	// HistoryID is the column definition of the history primary key.
	HistoryID string
}

var (
	SQLite   = Dialect{Name: "sqlite", HistoryID: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	Postgres = Dialect{Name: "pgx", Numbered: true, HistoryID: "BIGSERIAL PRIMARY KEY"}
)

// DialectFor returns the dialect of a registered driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
}

// bind rewrites "?" placeholders for dialects that number them.
func (d Dialect) bind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements ports.StateStore on a SQL database.
//
// Timestamps are stored as unix nanoseconds so both dialects share the schema.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects with driver and dsn, and creates the tables if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	if dialect == SQLite {
		// A single connection keeps ":memory:" databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	s := NewFromDB(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an open database. The schema is not touched; call Migrate.
func NewFromDB(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates the states and history tables.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS states (
			uid TEXT NOT NULL,
			axis TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (uid, axis)
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id ` + s.dialect.HistoryID + `,
			uid TEXT NOT NULL,
			transition TEXT NOT NULL,
			axis TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			actor TEXT NOT NULL,
			comment TEXT NOT NULL,
			at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS history_uid ON history (uid)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetState returns the state of uid on axis.
func (s *Store) GetState(ctx context.Context, uid string, axis domain.Axis) (domain.StateID, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		s.dialect.bind(`SELECT state FROM states WHERE uid = ? AND axis = ?`), uid, string(axis)).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select state: %w", err)
	}
	return domain.StateID(state), nil
}

// SetState upserts the state and appends the history entry in one transaction.
func (s *Store) SetState(ctx context.Context, uid string, axis domain.Axis, state domain.StateID, entry domain.HistoryEntry) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, s.dialect.bind(`INSERT INTO states (uid, axis, state, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (uid, axis) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`),
		uid, string(axis), string(state), s.now().UnixNano()); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.bind(`INSERT INTO history (uid, transition, axis, from_state, to_state, actor, comment, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		uid, string(entry.Transition), string(entry.Axis), string(entry.From), string(entry.To),
		entry.Actor, entry.Comment, toNanos(entry.Timestamp)); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state of %s: %w", uid, err)
	}
	return nil
}

// History returns the entries of uid, newest first.
func (s *Store) History(ctx context.Context, uid string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.bind(`SELECT transition, axis, from_state, to_state, actor, comment, at
		FROM history WHERE uid = ? ORDER BY id DESC`), uid)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.HistoryEntry{}
	for rows.Next() {
		var (
			transition, axis, from, to string
			entry                      domain.HistoryEntry
			at                         int64
		)
		if err := rows.Scan(&transition, &axis, &from, &to, &entry.Actor, &entry.Comment, &at); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Transition = domain.TransitionID(transition)
		entry.Axis = domain.Axis(axis)
		entry.From = domain.StateID(from)
		entry.To = domain.StateID(to)
		entry.Timestamp = fromNanos(at)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Reindex touches updated_at of the given axes, or of every axis when none is given.
func (s *Store) Reindex(ctx context.Context, uid string, axes ...domain.Axis) error {
	now := s.now().UnixNano()
	if len(axes) == 0 {
		_, err := s.db.ExecContext(ctx, s.dialect.bind(`UPDATE states SET updated_at = ? WHERE uid = ?`), now, uid)
		if err != nil {
			return fmt.Errorf("reindex %s: %w", uid, err)
		}
		return nil
	}
	for _, axis := range axes {
		if _, err := s.db.ExecContext(ctx, s.dialect.bind(`UPDATE states SET updated_at = ? WHERE uid = ? AND axis = ?`),
			now, uid, string(axis)); err != nil {
			return fmt.Errorf("reindex %s: %w", uid, err)
		}
	}
	return nil
}

// Delete removes the states and the history of uid.
func (s *Store) Delete(ctx context.Context, uid string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, s.dialect.bind(`DELETE FROM states WHERE uid = ?`), uid); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.bind(`DELETE FROM history WHERE uid = ?`), uid); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete of %s: %w", uid, err)
	}
	return nil
}

// List returns every UID with a stored state, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT uid FROM states ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan uid: %w", err)
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
