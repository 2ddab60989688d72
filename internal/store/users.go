package store

import (
	"context"
	"time"

	"github.com/playperu/tourcast/internal/audiotour"
)

const userColumns = `id, email, first_name, last_name, password_hash, is_admin, created_at`

func scanUser(row scanner) (audiotour.User, error) {
	var u audiotour.User
	var isAdmin int
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &isAdmin, &createdAt); err != nil {
		return u, notFound(err)
	}
	u.IsAdmin = isAdmin == 1
	t, err := parseTime(createdAt)
	if err != nil {
		return u, err
	}
	u.CreatedAt = t
	return u, nil
}

func (t *Tx) CreateUser(ctx context.Context, u *audiotour.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = Now()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, email, first_name, last_name, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, boolInt(u.IsAdmin), formatTime(u.CreatedAt))
	return err
}

func (t *Tx) User(ctx context.Context, id string) (audiotour.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (t *Tx) UserByEmail(ctx context.Context, email string) (audiotour.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (t *Tx) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateSession stores a new session for userID and returns its id.
func (t *Tx) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	id := newID()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)
	`, id, userID, formatTime(expiresAt))
	return id, err
}

// UserFromSession resolves an unexpired session to its user.
func (t *Tx) UserFromSession(ctx context.Context, sessionID string, now time.Time) (audiotour.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.first_name, u.last_name, u.password_hash, u.is_admin, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ?
	`, sessionID, formatTime(now)))
}

func (t *Tx) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// SetMembership adds userID to teamID or changes their role.
func (t *Tx) SetMembership(ctx context.Context, m audiotour.Membership) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO memberships (team_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role
	`, m.TeamID, m.UserID, string(m.Role))
	return err
}

// Role returns userID's role in teamID, or ErrNotFound for non-members.
func (t *Tx) Role(ctx context.Context, teamID, userID string) (audiotour.Role, error) {
	var role string
	err := t.tx.QueryRowContext(ctx, `
		SELECT role FROM memberships WHERE team_id = ? AND user_id = ?
	`, teamID, userID).Scan(&role)
	return audiotour.Role(role), notFound(err)
}
