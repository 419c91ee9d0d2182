// Package cache is the persisted mapping from SCIM id to the directory
// object it corresponds to: the SCIM view the IdP sent, the last AD
// view read back, and sync status (component F).
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	StatusSynced  = "synced"
	StatusPending = "pending"
	StatusError   = "error"
)

const maxLastErrorChars = 2000

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("cache: row not found")

// ErrDuplicateSam is returned by Insert when sam_account_name collides
// with an existing row, surfacing the unique-index race named in
// the concurrency model: the pre-check in the request processor is an
// optimization, this is the authoritative guard.
var ErrDuplicateSam = errors.New("cache: sam_account_name already exists")

// Row is the persisted cache record (data model §3).
type Row struct {
	ID             string    `db:"id"`
	ADObjectGUID   *string   `db:"ad_object_guid"`
	SamAccountName *string   `db:"sam_account_name"`
	ScimResource   string    `db:"scim_resource"`
	ADResource     *string   `db:"ad_resource"`
	SyncStatus     string    `db:"sync_status"`
	LastError      *string   `db:"last_error"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Fields is a partial update: nil fields are left unchanged. Use
// ClearLastError to explicitly null out last_error on a successful
// write, since a nil *string alone cannot distinguish "unset" from
// "set to NULL".
type Fields struct {
	ADObjectGUID   *string
	SamAccountName *string
	ScimResource   *string
	ADResource     *string
	SyncStatus     *string
	LastError      *string
	ClearLastError bool
}

// Store is the cache's storage contract. Mutation failures are fatal
// to the enclosing request — never swallowed, unlike audit writes.
type Store interface {
	FindByID(ctx context.Context, id string) (*Row, error)
	FindBySam(ctx context.Context, sam string) (*Row, error)
	Insert(ctx context.Context, row Row) error
	Update(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
	Page(ctx context.Context, column, op, value string, hasFilter bool, offset, limit int) ([]Row, int, error)
}

type store struct {
	db *sqlx.DB
}

// NewStore creates a Postgres-backed cache Store.
func NewStore(db *sqlx.DB) Store {
	return &store{db: db}
}

func (s *store) FindByID(ctx context.Context, id string) (*Row, error) {
	var row Row
	err := s.db.GetContext(ctx, &row, `SELECT * FROM scim_users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store) FindBySam(ctx context.Context, sam string) (*Row, error) {
	var row Row
	err := s.db.GetContext(ctx, &row, `SELECT * FROM scim_users WHERE sam_account_name = $1`, sam)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store) Insert(ctx context.Context, row Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scim_users (id, ad_object_guid, sam_account_name, scim_resource, ad_resource, sync_status, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		row.ID, row.ADObjectGUID, row.SamAccountName, row.ScimResource, row.ADResource, row.SyncStatus, row.LastError,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateSam
	}
	return err
}

// Update applies a partial set of column changes plus updated_at=now().
// ad_object_guid is never cleared once set (invariant 5): the caller
// must never pass a nil-clearing intent for it, and this layer simply
// never exposes a "clear GUID" operation.
func (s *store) Update(ctx context.Context, id string, fields Fields) error {
	sets := []string{}
	args := []any{}
	argN := 1

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argN))
		args = append(args, value)
		argN++
	}

	if fields.ADObjectGUID != nil {
		add("ad_object_guid", *fields.ADObjectGUID)
	}
	if fields.SamAccountName != nil {
		add("sam_account_name", *fields.SamAccountName)
	}
	if fields.ScimResource != nil {
		add("scim_resource", *fields.ScimResource)
	}
	if fields.ADResource != nil {
		add("ad_resource", *fields.ADResource)
	}
	if fields.SyncStatus != nil {
		add("sync_status", *fields.SyncStatus)
	}
	if fields.ClearLastError {
		add("last_error", nil)
	} else if fields.LastError != nil {
		add("last_error", truncate(*fields.LastError, maxLastErrorChars))
	}

	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scim_users SET %s WHERE id = $%d", strings.Join(sets, ", "), argN)
	res, err := s.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return ErrDuplicateSam
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scim_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Page returns totalResults and the requested window, ordered by
// created_at ascending. hasFilter false means no predicate (either the
// filter was absent, or the parser reported "unsupported").
func (s *store) Page(ctx context.Context, column, op, value string, hasFilter bool, offset, limit int) ([]Row, int, error) {
	where := ""
	args := []any{}
	if hasFilter {
		clause, arg, ok := filterClause(column, op, value, 1)
		if ok {
			where = "WHERE " + clause
			args = append(args, arg)
		}
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM scim_users " + where
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	query := fmt.Sprintf("SELECT * FROM scim_users %s ORDER BY created_at ASC LIMIT $%d OFFSET $%d", where, limitArg, offsetArg)
	args = append(args, limit, offset)

	var rows []Row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// filterClause renders a single comparison into SQL for eq, ne, co, sw
// and ew. Any other operator ParseFilter accepts (pr, gt, ge, lt, le)
// reports ok=false, and Page then serves an unfiltered page.
func filterClause(column, op, value string, argN int) (string, string, bool) {
	switch op {
	case "eq":
		return fmt.Sprintf("%s = $%d", column, argN), value, true
	case "ne":
		return fmt.Sprintf("%s != $%d", column, argN), value, true
	case "co":
		return fmt.Sprintf(`%s LIKE $%d ESCAPE '\'`, column, argN), "%" + escapeLike(value) + "%", true
	case "sw":
		return fmt.Sprintf(`%s LIKE $%d ESCAPE '\'`, column, argN), escapeLike(value) + "%", true
	case "ew":
		return fmt.Sprintf(`%s LIKE $%d ESCAPE '\'`, column, argN), "%" + escapeLike(value), true
	default:
		return "", "", false
	}
}

// escapeLike backslash-escapes the LIKE metacharacters %, _, and the
// escape character itself so a filter value like "john_doe" matches
// literally instead of "_" acting as a single-character wildcard.
func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(value)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
