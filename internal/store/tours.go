package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/playperu/tourcast/internal/audiotour"
)

const tourColumns = `id, team_id, cover_resource_id, intro_stop_id, name, names, descriptions,
	variants, visibility, archived_at, created_at, updated_at`

func scanTour(row scanner) (audiotour.Tour, error) {
	var tr audiotour.Tour
	var cover, intro, archivedAt sql.NullString
	var names, descriptions, variants, visibility, createdAt, updatedAt string
	err := row.Scan(&tr.ID, &tr.TeamID, &cover, &intro, &tr.Name, &names, &descriptions,
		&variants, &visibility, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		return tr, notFound(err)
	}
	tr.CoverResourceID = stringPtr(cover)
	tr.IntroStopID = stringPtr(intro)
	tr.Visibility = audiotour.Visibility(visibility)
	if err := decodeJSON(names, &tr.Names); err != nil {
		return tr, err
	}
	if err := decodeJSON(descriptions, &tr.Descriptions); err != nil {
		return tr, err
	}
	if err := decodeJSON(variants, &tr.Variants); err != nil {
		return tr, err
	}
	if tr.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return tr, err
	}
	if tr.CreatedAt, err = parseTime(createdAt); err != nil {
		return tr, err
	}
	if tr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return tr, err
	}
	return tr, nil
}

func (t *Tx) CreateTour(ctx context.Context, tr *audiotour.Tour) error {
	if tr.ID == "" {
		tr.ID = newID()
	}
	if tr.Visibility == "" {
		tr.Visibility = audiotour.VisibilityPrivate
	}
	tr.CreatedAt = Now()
	tr.UpdatedAt = tr.CreatedAt
	names, descriptions, variants, err := encodeLocalized(tr.Names, tr.Descriptions, tr.Variants)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO tours (id, team_id, cover_resource_id, intro_stop_id, name, names, descriptions,
			variants, visibility, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, tr.ID, tr.TeamID, nullString(tr.CoverResourceID), nullString(tr.IntroStopID), tr.Name,
		names, descriptions, variants, string(tr.Visibility),
		formatTime(tr.CreatedAt), formatTime(tr.UpdatedAt))
	return err
}

func (t *Tx) Tour(ctx context.Context, id string) (audiotour.Tour, error) {
	return scanTour(t.tx.QueryRowContext(ctx, `SELECT `+tourColumns+` FROM tours WHERE id = ?`, id))
}

// ListTours returns a team's tours by name. Archived tours are included
// only when archived is true, and then exclusively.
func (t *Tx) ListTours(ctx context.Context, teamID string, archived bool) ([]audiotour.Tour, error) {
	query := `SELECT ` + tourColumns + ` FROM tours WHERE team_id = ? AND archived_at IS NULL ORDER BY name`
	if archived {
		query = `SELECT ` + tourColumns + ` FROM tours WHERE team_id = ? AND archived_at IS NOT NULL ORDER BY name`
	}
	rows, err := t.tx.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tours := []audiotour.Tour{}
	for rows.Next() {
		tr, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		tours = append(tours, tr)
	}
	return tours, rows.Err()
}

// UpdateTour writes every mutable column of tr except archived_at.
func (t *Tx) UpdateTour(ctx context.Context, tr *audiotour.Tour) error {
	names, descriptions, variants, err := encodeLocalized(tr.Names, tr.Descriptions, tr.Variants)
	if err != nil {
		return err
	}
	tr.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE tours SET cover_resource_id = ?, intro_stop_id = ?, name = ?, names = ?,
			descriptions = ?, variants = ?, visibility = ?, updated_at = ?
		WHERE id = ?
	`, nullString(tr.CoverResourceID), nullString(tr.IntroStopID), tr.Name, names,
		descriptions, variants, string(tr.Visibility), formatTime(tr.UpdatedAt), tr.ID))
}

// SetTourArchived sets or clears (at == nil) the tour's archive stamp.
func (t *Tx) SetTourArchived(ctx context.Context, id string, at *time.Time) error {
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE tours SET archived_at = ?, updated_at = ? WHERE id = ?
	`, nullTime(at), formatTime(Now()), id))
}

func (t *Tx) DeleteTour(ctx context.Context, id string) error {
	return mustAffect(t.tx.ExecContext(ctx, `DELETE FROM tours WHERE id = ?`, id))
}

func encodeLocalized(names, descriptions map[string]string, variants []audiotour.Variant) (string, string, string, error) {
	n, err := encodeJSON(mapOrEmpty(names))
	if err != nil {
		return "", "", "", err
	}
	d, err := encodeJSON(mapOrEmpty(descriptions))
	if err != nil {
		return "", "", "", err
	}
	v, err := encodeJSON(variantsOrEmpty(variants))
	if err != nil {
		return "", "", "", err
	}
	return n, d, v, nil
}

const tourStopColumns = `id, tour_id, stop_id, transition_stop_id, position`

func scanTourStop(row scanner) (audiotour.TourStop, error) {
	var ts audiotour.TourStop
	var transition sql.NullString
	if err := row.Scan(&ts.ID, &ts.TourID, &ts.StopID, &transition, &ts.Position); err != nil {
		return ts, notFound(err)
	}
	ts.TransitionStopID = stringPtr(transition)
	return ts, nil
}

// TourStops returns the tour's stops ordered by position.
func (t *Tx) TourStops(ctx context.Context, tourID string) ([]audiotour.TourStop, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+tourStopColumns+` FROM tour_stops WHERE tour_id = ? ORDER BY position, id
	`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stops := []audiotour.TourStop{}
	for rows.Next() {
		ts, err := scanTourStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, ts)
	}
	return stops, rows.Err()
}

func (t *Tx) TourStop(ctx context.Context, id string) (audiotour.TourStop, error) {
	return scanTourStop(t.tx.QueryRowContext(ctx, `SELECT `+tourStopColumns+` FROM tour_stops WHERE id = ?`, id))
}

// NextTourStopPosition returns one past the highest position in the tour.
func (t *Tx) NextTourStopPosition(ctx context.Context, tourID string) (int, error) {
	var next int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM tour_stops WHERE tour_id = ?
	`, tourID).Scan(&next)
	return next, err
}

func (t *Tx) CreateTourStop(ctx context.Context, ts *audiotour.TourStop) error {
	if ts.ID == "" {
		ts.ID = newID()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tour_stops (id, tour_id, stop_id, transition_stop_id, position)
		VALUES (?, ?, ?, ?, ?)
	`, ts.ID, ts.TourID, ts.StopID, nullString(ts.TransitionStopID), ts.Position)
	return err
}

func (t *Tx) UpdateTourStop(ctx context.Context, ts *audiotour.TourStop) error {
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE tour_stops SET stop_id = ?, transition_stop_id = ?, position = ? WHERE id = ?
	`, ts.StopID, nullString(ts.TransitionStopID), ts.Position, ts.ID))
}

func (t *Tx) DeleteTourStop(ctx context.Context, id string) error {
	return mustAffect(t.tx.ExecContext(ctx, `DELETE FROM tour_stops WHERE id = ?`, id))
}

func (t *Tx) DeleteTourStopsByTour(ctx context.Context, tourID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM tour_stops WHERE tour_id = ?`, tourID)
	return err
}
