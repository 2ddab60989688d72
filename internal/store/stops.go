package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/playperu/tourcast/internal/audiotour"
)

const stopColumns = `id, team_id, type, link, address, coordinate, names, descriptions,
	variants, archived_at, created_at, updated_at`

func scanStop(row scanner) (audiotour.Stop, error) {
	var s audiotour.Stop
	var typ, names, descriptions, variants, createdAt, updatedAt string
	var coordinate, archivedAt sql.NullString
	err := row.Scan(&s.ID, &s.TeamID, &typ, &s.Link, &s.Address, &coordinate, &names,
		&descriptions, &variants, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		return s, notFound(err)
	}
	s.Type = audiotour.StopType(typ)
	if coordinate.Valid {
		var c audiotour.Coordinate
		if err := decodeJSON(coordinate.String, &c); err != nil {
			return s, err
		}
		s.Coordinate = &c
	}
	if err := decodeJSON(names, &s.Names); err != nil {
		return s, err
	}
	if err := decodeJSON(descriptions, &s.Descriptions); err != nil {
		return s, err
	}
	if err := decodeJSON(variants, &s.Variants); err != nil {
		return s, err
	}
	if s.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return s, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return s, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return s, err
	}
	return s, nil
}

func encodeCoordinate(c *audiotour.Coordinate) (any, error) {
	if c == nil {
		return nil, nil
	}
	return encodeJSON(c)
}

func (t *Tx) CreateStop(ctx context.Context, s *audiotour.Stop) error {
	if s.ID == "" {
		s.ID = newID()
	}
	names, descriptions, variants, err := encodeLocalized(s.Names, s.Descriptions, s.Variants)
	if err != nil {
		return err
	}
	coordinate, err := encodeCoordinate(s.Coordinate)
	if err != nil {
		return err
	}
	s.CreatedAt = Now()
	s.UpdatedAt = s.CreatedAt
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO stops (id, team_id, type, link, address, coordinate, names, descriptions,
			variants, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, s.ID, s.TeamID, string(s.Type), s.Link, s.Address, coordinate, names, descriptions,
		variants, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	return err
}

func (t *Tx) Stop(ctx context.Context, id string) (audiotour.Stop, error) {
	return scanStop(t.tx.QueryRowContext(ctx, `SELECT `+stopColumns+` FROM stops WHERE id = ?`, id))
}

// ListStops returns a team's stops, active or archived.
func (t *Tx) ListStops(ctx context.Context, teamID string, archived bool) ([]audiotour.Stop, error) {
	cond := `archived_at IS NULL`
	if archived {
		cond = `archived_at IS NOT NULL`
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+stopColumns+` FROM stops WHERE team_id = ? AND `+cond+` ORDER BY link, created_at
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stops := []audiotour.Stop{}
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// UpdateStop writes every mutable column of s except archived_at.
func (t *Tx) UpdateStop(ctx context.Context, s *audiotour.Stop) error {
	names, descriptions, variants, err := encodeLocalized(s.Names, s.Descriptions, s.Variants)
	if err != nil {
		return err
	}
	coordinate, err := encodeCoordinate(s.Coordinate)
	if err != nil {
		return err
	}
	s.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE stops SET type = ?, link = ?, address = ?, coordinate = ?, names = ?,
			descriptions = ?, variants = ?, updated_at = ?
		WHERE id = ?
	`, string(s.Type), s.Link, s.Address, coordinate, names, descriptions, variants,
		formatTime(s.UpdatedAt), s.ID))
}

// StopLinkTaken reports whether another stop of the team uses link.
func (t *Tx) StopLinkTaken(ctx context.Context, teamID, link, exceptID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM stops WHERE team_id = ? AND link = ? AND id <> ?
	`, teamID, link, exceptID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t *Tx) DeleteStops(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := placeholders(ids)
	_, err := t.tx.ExecContext(ctx, `DELETE FROM stops WHERE id IN (`+in+`)`, args...)
	return err
}

const stopResourceColumns = `id, stop_id, resource_id, start, "end", pause_at_end, options`

func scanStopResource(row scanner) (audiotour.StopResource, error) {
	var sr audiotour.StopResource
	var end sql.NullInt64
	var pause int
	var options sql.NullString
	if err := row.Scan(&sr.ID, &sr.StopID, &sr.ResourceID, &sr.Start, &end, &pause, &options); err != nil {
		return sr, notFound(err)
	}
	if end.Valid {
		e := int(end.Int64)
		sr.End = &e
	}
	sr.PauseAtEnd = pause == 1
	sr.Options = rawJSON(options)
	return sr, nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func (t *Tx) StopResources(ctx context.Context, stopID string) ([]audiotour.StopResource, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+stopResourceColumns+` FROM stop_resources WHERE stop_id = ? ORDER BY start, id
	`, stopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []audiotour.StopResource{}
	for rows.Next() {
		sr, err := scanStopResource(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, sr)
	}
	return entries, rows.Err()
}

func (t *Tx) StopResource(ctx context.Context, id string) (audiotour.StopResource, error) {
	return scanStopResource(t.tx.QueryRowContext(ctx, `SELECT `+stopResourceColumns+` FROM stop_resources WHERE id = ?`, id))
}

func (t *Tx) CreateStopResource(ctx context.Context, sr *audiotour.StopResource) error {
	if sr.ID == "" {
		sr.ID = newID()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stop_resources (id, stop_id, resource_id, start, "end", pause_at_end, options)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sr.ID, sr.StopID, sr.ResourceID, sr.Start, nullInt(sr.End), boolInt(sr.PauseAtEnd), nullRaw(sr.Options))
	return err
}

func (t *Tx) UpdateStopResource(ctx context.Context, sr *audiotour.StopResource) error {
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE stop_resources SET start = ?, "end" = ?, pause_at_end = ?, options = ? WHERE id = ?
	`, sr.Start, nullInt(sr.End), boolInt(sr.PauseAtEnd), nullRaw(sr.Options), sr.ID))
}

func (t *Tx) DeleteStopResource(ctx context.Context, id string) error {
	return mustAffect(t.tx.ExecContext(ctx, `DELETE FROM stop_resources WHERE id = ?`, id))
}

// DeleteStopResourcesOfStops removes every timeline entry of the given stops.
func (t *Tx) DeleteStopResourcesOfStops(ctx context.Context, stopIDs []string) error {
	if len(stopIDs) == 0 {
		return nil
	}
	in, args := placeholders(stopIDs)
	_, err := t.tx.ExecContext(ctx, `DELETE FROM stop_resources WHERE stop_id IN (`+in+`)`, args...)
	return err
}

// DeleteStopResourcesOfResources removes every timeline entry pointing at
// the given resources, whichever stop holds them.
func (t *Tx) DeleteStopResourcesOfResources(ctx context.Context, resourceIDs []string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	in, args := placeholders(resourceIDs)
	_, err := t.tx.ExecContext(ctx, `DELETE FROM stop_resources WHERE resource_id IN (`+in+`)`, args...)
	return err
}
