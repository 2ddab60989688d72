package store

import (
	"context"

	"github.com/playperu/tourcast/internal/audiotour"
)

const teamColumns = `id, name, link, variants, created_at, updated_at`

func scanTeam(row scanner) (audiotour.Team, error) {
	var tm audiotour.Team
	var variants, createdAt, updatedAt string
	if err := row.Scan(&tm.ID, &tm.Name, &tm.Link, &variants, &createdAt, &updatedAt); err != nil {
		return tm, notFound(err)
	}
	if err := decodeJSON(variants, &tm.Variants); err != nil {
		return tm, err
	}
	var err error
	if tm.CreatedAt, err = parseTime(createdAt); err != nil {
		return tm, err
	}
	if tm.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return tm, err
	}
	return tm, nil
}

func (t *Tx) CreateTeam(ctx context.Context, tm *audiotour.Team) error {
	if tm.ID == "" {
		tm.ID = newID()
	}
	variants, err := encodeJSON(variantsOrEmpty(tm.Variants))
	if err != nil {
		return err
	}
	tm.CreatedAt = Now()
	tm.UpdatedAt = tm.CreatedAt
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO teams (id, name, link, variants, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tm.ID, tm.Name, tm.Link, variants, formatTime(tm.CreatedAt), formatTime(tm.UpdatedAt))
	return err
}

func (t *Tx) Team(ctx context.Context, id string) (audiotour.Team, error) {
	return scanTeam(t.tx.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id))
}

func (t *Tx) TeamByLink(ctx context.Context, link string) (audiotour.Team, error) {
	return scanTeam(t.tx.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE link = ?`, link))
}

// TeamMembership is a Team as seen by one member.
type TeamMembership struct {
	Team audiotour.Team
	Role audiotour.Role
}

// ListTeams returns every team, marking each with the role of userID
// (empty when userID is not a member).
func (t *Tx) ListTeams(ctx context.Context, userID string, membersOnly bool) ([]TeamMembership, error) {
	query := `
		SELECT t.id, t.name, t.link, t.variants, t.created_at, t.updated_at, COALESCE(m.role, '')
		FROM teams t
		LEFT JOIN memberships m ON m.team_id = t.id AND m.user_id = ?`
	if membersOnly {
		query += ` WHERE m.user_id IS NOT NULL`
	}
	query += ` ORDER BY t.name`

	rows, err := t.tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []TeamMembership{}
	for rows.Next() {
		var tm TeamMembership
		var role string
		var variants, createdAt, updatedAt string
		if err := rows.Scan(&tm.Team.ID, &tm.Team.Name, &tm.Team.Link, &variants, &createdAt, &updatedAt, &role); err != nil {
			return nil, err
		}
		if err := decodeJSON(variants, &tm.Team.Variants); err != nil {
			return nil, err
		}
		if tm.Team.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if tm.Team.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		tm.Role = audiotour.Role(role)
		teams = append(teams, tm)
	}
	return teams, rows.Err()
}

func (t *Tx) UpdateTeam(ctx context.Context, tm *audiotour.Team) error {
	variants, err := encodeJSON(variantsOrEmpty(tm.Variants))
	if err != nil {
		return err
	}
	tm.UpdatedAt = Now()
	return mustAffect(t.tx.ExecContext(ctx, `
		UPDATE teams SET name = ?, link = ?, variants = ?, updated_at = ? WHERE id = ?
	`, tm.Name, tm.Link, variants, formatTime(tm.UpdatedAt), tm.ID))
}
