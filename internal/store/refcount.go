package store

import (
	"context"
	"time"

	"github.com/playperu/tourcast/internal/audiotour"
)

// Tours reach a stop through their intro stop or through a tour stop,
// either as the stop itself or as its transition.
const toursUsingStop = `
	SELECT id AS tour_id FROM tours WHERE intro_stop_id = ?
	UNION
	SELECT tour_id FROM tour_stops WHERE stop_id = ? OR transition_stop_id = ?`

// Tours reach a resource through their cover, or through a stop they
// reach that lists the resource on its timeline.
const toursUsingResource = `
	SELECT id AS tour_id FROM tours WHERE cover_resource_id = ?
	UNION
	SELECT t.id FROM tours t
	JOIN stop_resources sr ON sr.stop_id = t.intro_stop_id
	WHERE sr.resource_id = ?
	UNION
	SELECT ts.tour_id FROM tour_stops ts
	JOIN stop_resources sr ON sr.stop_id = ts.stop_id OR sr.stop_id = ts.transition_stop_id
	WHERE sr.resource_id = ?`

// CountToursUsingStop counts the distinct tours, archived or not, that
// reach stopID.
func (t *Tx) CountToursUsingStop(ctx context.Context, stopID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tour_id) FROM (`+toursUsingStop+`)`, stopID, stopID, stopID).Scan(&n)
	return n, err
}

// CountToursUsingResource counts the distinct tours, archived or not, that
// reach resourceID.
func (t *Tx) CountToursUsingResource(ctx context.Context, resourceID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tour_id) FROM (`+toursUsingResource+`)`, resourceID, resourceID, resourceID).Scan(&n)
	return n, err
}

func (t *Tx) ToursUsingStop(ctx context.Context, stopID string) ([]audiotour.Ref, error) {
	return t.refs(ctx, `SELECT id, name FROM tours WHERE id IN (`+toursUsingStop+`) ORDER BY name, id`, stopID, stopID, stopID)
}

func (t *Tx) ToursUsingResource(ctx context.Context, resourceID string) ([]audiotour.Ref, error) {
	return t.refs(ctx, `SELECT id, name FROM tours WHERE id IN (`+toursUsingResource+`) ORDER BY name, id`, resourceID, resourceID, resourceID)
}

// StopsUsingResource lists the stops whose timeline holds resourceID,
// named by link or address.
func (t *Tx) StopsUsingResource(ctx context.Context, resourceID string) ([]audiotour.Ref, error) {
	return t.refs(ctx, `
		SELECT DISTINCT s.id, COALESCE(NULLIF(s.link, ''), s.address)
		FROM stops s
		JOIN stop_resources sr ON sr.stop_id = s.id
		WHERE sr.resource_id = ?
		ORDER BY 2, 1
	`, resourceID)
}

func (t *Tx) refs(ctx context.Context, query string, args ...any) ([]audiotour.Ref, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []audiotour.Ref{}
	for rows.Next() {
		var r audiotour.Ref
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ArchiveStops stamps the given stops with at. Already archived stops keep
// their original stamp.
func (t *Tx) ArchiveStops(ctx context.Context, ids []string, at time.Time) error {
	return t.archive(ctx, "stops", ids, at)
}

func (t *Tx) ArchiveResources(ctx context.Context, ids []string, at time.Time) error {
	return t.archive(ctx, "resources", ids, at)
}

func (t *Tx) archive(ctx context.Context, table string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := placeholders(ids)
	args = append([]any{formatTime(at)}, args...)
	_, err := t.tx.ExecContext(ctx, `
		UPDATE `+table+` SET archived_at = ? WHERE archived_at IS NULL AND id IN (`+in+`)
	`, args...)
	return err
}

// RestoreStops clears the archive stamp of the given stops that were
// archived exactly at stamp, and returns how many it restored.
func (t *Tx) RestoreStops(ctx context.Context, ids []string, stamp time.Time) (int, error) {
	return t.restore(ctx, "stops", ids, stamp)
}

func (t *Tx) RestoreResources(ctx context.Context, ids []string, stamp time.Time) (int, error) {
	return t.restore(ctx, "resources", ids, stamp)
}

func (t *Tx) restore(ctx context.Context, table string, ids []string, stamp time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, args := placeholders(ids)
	args = append([]any{formatTime(stamp)}, args...)
	result, err := t.tx.ExecContext(ctx, `
		UPDATE `+table+` SET archived_at = NULL WHERE archived_at = ? AND id IN (`+in+`)
	`, args...)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
