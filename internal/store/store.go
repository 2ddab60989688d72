// Package store persists the tour graph in SQLite. Every operation runs
// inside a Tx obtained from Store.InTx so that multi-step graph mutations
// commit or roll back as a unit.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/playperu/tourcast/internal/audiotour"
)

// TimeLayout is the layout of every timestamp column. Archive stamps are
// compared textually, so all writes go through formatTime.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// The driver hands TEXT timestamps back through time.Time, so a column
// written as ".090Z" can be read as ".09Z" or, for whole seconds, "Z".
// RFC3339Nano accepts every such form.

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Tx is a database transaction plus the hooks to run once it commits.
type Tx struct {
	tx    *sql.Tx
	hooks []hook
}

type hook struct {
	name string
	fn   func(context.Context) error
}

// AfterCommit queues fn to run after the transaction commits. Hooks are
// dropped when the transaction rolls back. Their failures are logged and
// never reach the caller.
func (t *Tx) AfterCommit(name string, fn func(context.Context) error) {
	t.hooks = append(t.hooks, hook{name: name, fn: fn})
}

// InTx runs fn inside a single transaction. Any error from fn rolls back
// every write made through the Tx.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if err := runHooks(context.WithoutCancel(ctx), tx.hooks); err != nil {
		s.logger.Error("after-commit hooks failed", "hooks", len(tx.hooks), "error", err)
	}
	return nil
}

func runHooks(ctx context.Context, hooks []hook) error {
	var result *multierror.Error
	for _, h := range hooks {
		if err := h.fn(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return result.ErrorOrNil()
}

func newID() string { return uuid.NewString() }

func formatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// Now returns the current time truncated to the stored precision.
func Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

func decodeJSON(s string, dst any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	return nil
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" || ns.String == "null" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullRaw(m json.RawMessage) any {
	if len(m) == 0 || string(m) == "null" {
		return nil
	}
	return string(m)
}

func variantsOrEmpty(vs []audiotour.Variant) []audiotour.Variant {
	if vs == nil {
		return []audiotour.Variant{}
	}
	return vs
}

func mapOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// placeholders returns "?, ?, ?" and the matching argument list.
func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return audiotour.ErrNotFound
	}
	return err
}

func mustAffect(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return audiotour.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
