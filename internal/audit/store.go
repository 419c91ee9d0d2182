// Package audit is the append-only log of every directory-tool
// invocation this bridge makes, keyed loosely to the SCIM user the
// invocation was acting on.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Row is the persisted audit record (data model §3). Append-only: no
// update path exists anywhere in this package.
type Row struct {
	ID         string    `db:"id"`
	Cmdlet     string    `db:"cmdlet"`
	Parameters []byte    `db:"parameters"`
	Stdout     string    `db:"stdout"`
	Stderr     string    `db:"stderr"`
	ExitCode   int       `db:"exit_code"`
	DurationMs int64     `db:"duration_ms"`
	ScimUserID *string   `db:"scim_user_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Entry is the input shape callers build before a row is persisted.
// Parameters must already have sensitive keys redacted by the caller
// (internal/adtool does this before it ever constructs an Entry).
type Entry struct {
	Cmdlet     string
	Parameters map[string]any
	Stdout     string
	Stderr     string
	ExitCode   int
	Duration   time.Duration
	ScimUserID string // empty means the row's scim_user_id is NULL
}

const maxOutputChars = 65535

// Store persists audit rows.
type Store interface {
	Log(ctx context.Context, e Entry) error
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed audit Store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) Log(ctx context.Context, e Entry) error {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		params = []byte("{}")
	}

	var scimUserID *string
	if e.ScimUserID != "" {
		id := e.ScimUserID
		scimUserID = &id
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, cmdlet, parameters, stdout, stderr, exit_code, duration_ms, scim_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		uuid.NewString(),
		e.Cmdlet,
		params,
		truncate(e.Stdout, maxOutputChars),
		truncate(e.Stderr, maxOutputChars),
		e.ExitCode,
		e.Duration.Milliseconds(),
		scimUserID,
	)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
