package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/playperu/tourcast/internal/audiotour"
)

const resourceColumns = `id, team_id, name, type, data, variants, archived_at, created_at, updated_at`

func scanResource(row scanner) (audiotour.Resource, error) {
	var r audiotour.Resource
	var typ, variants, createdAt, updatedAt string
	var data, archivedAt sql.NullString
	err := row.Scan(&r.ID, &r.TeamID, &r.Name, &typ, &data, &variants, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		return r, notFound(err)
	}
	r.Type = audiotour.ResourceType(typ)
	r.Data = rawJSON(data)
	if err := decodeJSON(variants, &r.Variants); err != nil {
		return r, err
	}
	if r.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return r, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, err
	}
	return r, nil
}

func (t *Tx) CreateResource(ctx context.Context, r *audiotour.Resource) error {
	if r.ID == "" {
		r.ID = newID()
	}
	variants, err := encodeJSON(variantsOrEmpty(r.Variants))
	if err != nil {
		return err
	}
	r.CreatedAt = Now()
	r.UpdatedAt = r.CreatedAt
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO resources (id, team_id, name, type, data, variants, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, r.ID, r.TeamID, r.Name, string(r.Type), nullRaw(r.Data), variants,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return err
}

func (t *Tx) Resource(ctx context.Context, id string) (audiotour.Resource, error) {
	return scanResource(t.tx.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
}

// ListResources returns a team's resources, active or archived.
func (t *Tx) ListResources(ctx context.Context, teamID string, archived bool) ([]audiotour.Resource, error) {
	cond := `archived_at IS NULL`
	if archived {
		cond = `archived_at IS NOT NULL`
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+resourceColumns+` FROM resources WHERE team_id = ? AND `+cond+` ORDER BY name
	`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []audiotour.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// UpdateResource writes name, data and variants. The type never changes.
func (t *Tx) UpdateResource(ctx context.Context, r *audiotour.Resource) error {
	variants, err := encodeJSON(variantsOrEmpty(r.Variants))
	if err != nil {
		return err
	}
	r.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE resources SET name = ?, data = ?, variants = ?, updated_at = ? WHERE id = ?
	`, r.Name, nullRaw(r.Data), variants, formatTime(r.UpdatedAt), r.ID))
}

func (t *Tx) DeleteResources(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := placeholders(ids)
	_, err := t.tx.ExecContext(ctx, `DELETE FROM resources WHERE id IN (`+in+`)`, args...)
	return err
}

const fileColumns = `id, resource_id, variant, key, original_name, external_url, duration,
	width, height, created_at, updated_at`

func scanFile(row scanner) (audiotour.File, error) {
	var f audiotour.File
	var duration sql.NullFloat64
	var width, height sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&f.ID, &f.ResourceID, &f.Variant, &f.Key, &f.OriginalName, &f.ExternalURL,
		&duration, &width, &height, &createdAt, &updatedAt)
	if err != nil {
		return f, notFound(err)
	}
	if duration.Valid {
		d := duration.Float64
		f.Duration = &d
	}
	if width.Valid {
		w := int(width.Int64)
		f.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		f.Height = &h
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return f, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return f, err
	}
	return f, nil
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// Files returns the files of one resource ordered by variant.
func (t *Tx) Files(ctx context.Context, resourceID string) ([]audiotour.File, error) {
	return t.FilesOfResources(ctx, []string{resourceID})
}

// FilesOfResources returns the files of the given resources ordered by
// resource and variant.
func (t *Tx) FilesOfResources(ctx context.Context, resourceIDs []string) ([]audiotour.File, error) {
	files := []audiotour.File{}
	if len(resourceIDs) == 0 {
		return files, nil
	}
	in, args := placeholders(resourceIDs)
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE resource_id IN (`+in+`) ORDER BY resource_id, variant
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (t *Tx) File(ctx context.Context, id string) (audiotour.File, error) {
	return scanFile(t.tx.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
}

// EnsureFile returns the resource's file for variant, creating an empty
// placeholder when none exists. created reports whether a row was added.
func (t *Tx) EnsureFile(ctx context.Context, resourceID, variant string) (f audiotour.File, created bool, err error) {
	f, err = scanFile(t.tx.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE resource_id = ? AND variant = ?
	`, resourceID, variant))
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, audiotour.ErrNotFound) {
		return f, false, err
	}

	f = audiotour.File{ID: newID(), ResourceID: resourceID, Variant: variant}
	f.CreatedAt = Now()
	f.UpdatedAt = f.CreatedAt
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO files (id, resource_id, variant, key, original_name, external_url, duration,
			width, height, created_at, updated_at)
		VALUES (?, ?, ?, '', '', '', NULL, NULL, NULL, ?, ?)
	`, f.ID, f.ResourceID, f.Variant, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
	if err != nil {
		return f, false, err
	}
	return f, true, nil
}

func (t *Tx) UpdateFile(ctx context.Context, f *audiotour.File) error {
	f.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE files SET key = ?, original_name = ?, external_url = ?, duration = ?,
			width = ?, height = ?, updated_at = ?
		WHERE id = ?
	`, f.Key, f.OriginalName, f.ExternalURL, nullFloat(f.Duration), nullInt(f.Width),
		nullInt(f.Height), formatTime(f.UpdatedAt), f.ID))
}

func (t *Tx) DeleteFilesOfResources(ctx context.Context, resourceIDs []string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	in, args := placeholders(resourceIDs)
	_, err := t.tx.ExecContext(ctx, `DELETE FROM files WHERE resource_id IN (`+in+`)`, args...)
	return err
}
