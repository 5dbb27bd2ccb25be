// Package statestore persists the client-side state the login flow
// depends on. It mirrors the two browser storage scopes of the web
// client: a session scope (session id, most recent attendance page,
// most recent netid) that a storage reset wipes, and a durable scope
// that currently only holds the terms-acceptance flag.
package statestore

import (
	"context"
	"database/sql"
	"strings"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// keys held in the session scope
const (
	KeySessionId      = "session_id"
	KeyAttendanceHtml = "attendance_html"
	KeyNetid          = "netid"
)

// keys held in the durable scope
const (
	KeyTermsAccepted = "terms_accepted"
)

type Store struct {
	db *sql.DB
}

// NewStore wraps an already opened database. The schema must have
// been applied by the caller.
func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (and creates, if needed) a state database at the given
// DSN. A libsql:// URL goes through the libsql driver, anything else
// is treated as a local sqlite file.
func Open(dsn string) (Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") {
		driver = "libsql"
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return Store{}, err
	}
	if driver == "sqlite" {
		// see this stackoverflow post for information on why the following
		// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
		database.SetMaxOpenConns(1)
		_, err = database.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			return Store{}, err
		}
	}

	_, err = database.Exec(Schema)
	if err != nil {
		return Store{}, err
	}
	return Store{db: database}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) getFrom(ctx context.Context, table, key string) (string, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT value FROM "+table+" WHERE key = ?",
		key,
	)
	var value string
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s Store) setIn(ctx context.Context, table, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO "+table+" (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s Store) GetSession(ctx context.Context, key string) (string, bool, error) {
	return s.getFrom(ctx, "session_state", key)
}

func (s Store) SetSession(ctx context.Context, key, value string) error {
	return s.setIn(ctx, "session_state", key, value)
}

// ResetSession drops every session-scope value. This is the only way
// a session id gets regenerated.
func (s Store) ResetSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session_state")
	return err
}

func (s Store) GetDurable(ctx context.Context, key string) (string, bool, error) {
	return s.getFrom(ctx, "durable_state", key)
}

func (s Store) SetDurable(ctx context.Context, key, value string) error {
	return s.setIn(ctx, "durable_state", key, value)
}

func (s Store) TermsAccepted(ctx context.Context) (bool, error) {
	value, ok, err := s.GetDurable(ctx, KeyTermsAccepted)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// AcceptTerms records that the user opted to not be asked again.
func (s Store) AcceptTerms(ctx context.Context) error {
	return s.SetDurable(ctx, KeyTermsAccepted, "true")
}
