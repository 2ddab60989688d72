package store

import (
	"context"
	"encoding/json"

	"github.com/playperu/tourcast/internal/audiotour"
)

const versionColumns = `id, tour_id, is_staging, is_live, password_hash, data, created_at, updated_at`

func scanVersion(row scanner) (audiotour.Version, error) {
	var v audiotour.Version
	var staging, live int
	var data, createdAt, updatedAt string
	err := row.Scan(&v.ID, &v.TourID, &staging, &live, &v.PasswordHash, &data, &createdAt, &updatedAt)
	if err != nil {
		return v, notFound(err)
	}
	v.IsStaging = staging == 1
	v.IsLive = live == 1
	v.Data = json.RawMessage(data)
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return v, err
	}
	if v.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return v, err
	}
	return v, nil
}

// NewVersionID allocates an id before the version row exists, so assets
// can be copied under its prefix first.
func NewVersionID() string { return newID() }

func (t *Tx) CreateVersion(ctx context.Context, v *audiotour.Version) error {
	if v.ID == "" {
		v.ID = newID()
	}
	v.CreatedAt = Now()
	v.UpdatedAt = v.CreatedAt
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO versions (id, tour_id, is_staging, is_live, password_hash, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.TourID, boolInt(v.IsStaging), boolInt(v.IsLive), v.PasswordHash, string(v.Data),
		formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	return err
}

func (t *Tx) Version(ctx context.Context, id string) (audiotour.Version, error) {
	return scanVersion(t.tx.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, id))
}

// ListVersions returns a tour's versions, newest first.
func (t *Tx) ListVersions(ctx context.Context, tourID string) ([]audiotour.Version, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE tour_id = ? ORDER BY created_at DESC, id
	`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []audiotour.Version{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// LiveVersion returns the live version of a tour for one environment.
func (t *Tx) LiveVersion(ctx context.Context, tourID string, staging bool) (audiotour.Version, error) {
	return scanVersion(t.tx.QueryRowContext(ctx, `
		SELECT `+versionColumns+` FROM versions WHERE tour_id = ? AND is_staging = ? AND is_live = 1
	`, tourID, boolInt(staging)))
}

// ClearLiveVersions takes every version of the tour in the given
// environment off live, except exceptID.
func (t *Tx) ClearLiveVersions(ctx context.Context, tourID string, staging bool, exceptID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE versions SET is_live = 0, updated_at = ?
		WHERE tour_id = ? AND is_staging = ? AND is_live = 1 AND id <> ?
	`, formatTime(Now()), tourID, boolInt(staging), exceptID)
	return err
}

// UpdateVersionFlags writes the mutable parts of a published version.
func (t *Tx) UpdateVersionFlags(ctx context.Context, v *audiotour.Version) error {
	v.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE versions SET is_staging = ?, is_live = ?, password_hash = ?, updated_at = ? WHERE id = ?
	`, boolInt(v.IsStaging), boolInt(v.IsLive), v.PasswordHash, formatTime(v.UpdatedAt), v.ID))
}

func (t *Tx) DeleteVersion(ctx context.Context, id string) error {
	return mustAffect(t.tx.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, id))
}
