package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/store"
)

type UserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	IsAdmin   bool
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (audiotour.User, error) {
	u := audiotour.User{
		Email:     normalizeEmail(in.Email),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		IsAdmin:   in.IsAdmin,
	}
	var verr audiotour.ValidationError
	if !strings.Contains(u.Email, "@") {
		verr.Add("email", "a valid email is required", in.Email)
	}
	if len(in.Password) < 8 {
		verr.Add("password", "password must have at least 8 characters", nil)
	}
	if err := verr.OrNil(); err != nil {
		return u, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return u, fmt.Errorf("hashing password: %w", err)
	}
	u.PasswordHash = string(hash)

	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		_, err := tx.UserByEmail(ctx, u.Email)
		if err == nil {
			return audiotour.Invalid("email", "email is already registered", u.Email)
		}
		if !errors.Is(err, audiotour.ErrNotFound) {
			return err
		}
		return tx.CreateUser(ctx, &u)
	})
	return u, err
}

// Login checks the credentials and opens a session. Unknown emails and
// wrong passwords are both ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, email, password string) (string, audiotour.User, error) {
	var u audiotour.User
	var sessionID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		u, err = tx.UserByEmail(ctx, normalizeEmail(email))
		if errors.Is(err, audiotour.ErrNotFound) {
			return audiotour.ErrUnauthenticated
		}
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return audiotour.ErrUnauthenticated
		}
		sessionID, err = tx.CreateSession(ctx, u.ID, store.Now().Add(s.sessionTTL))
		return err
	})
	if err != nil {
		return "", audiotour.User{}, err
	}
	return sessionID, u, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteSession(ctx, sessionID)
	})
}

// Authenticate resolves a session cookie value to its user.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (audiotour.User, error) {
	var u audiotour.User
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		u, err = tx.UserFromSession(ctx, sessionID, store.Now())
		if errors.Is(err, audiotour.ErrNotFound) {
			return audiotour.ErrUnauthenticated
		}
		return err
	})
	return u, err
}

// Authorize returns the user's role in the team when it allows min.
// Platform admins hold the OWNER role everywhere. Non-members get
// ErrForbidden.
func (s *Service) Authorize(ctx context.Context, u audiotour.User, teamID string, min audiotour.Role) (audiotour.Role, error) {
	if u.IsAdmin {
		return audiotour.RoleOwner, nil
	}
	var role audiotour.Role
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		role, err = tx.Role(ctx, teamID, u.ID)
		if errors.Is(err, audiotour.ErrNotFound) {
			return audiotour.ErrForbidden
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if !role.Allows(min) {
		return role, audiotour.ErrForbidden
	}
	return role, nil
}

type TeamInput struct {
	Name     string
	Link     string
	Variants []audiotour.Variant
}

// CreateTeam creates a team and makes ownerID its OWNER. An empty ownerID
// creates a team without members.
func (s *Service) CreateTeam(ctx context.Context, in TeamInput, ownerID string) (audiotour.Team, error) {
	tm := audiotour.Team{
		Name:     strings.TrimSpace(in.Name),
		Link:     strings.TrimSpace(in.Link),
		Variants: in.Variants,
	}
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		if err := validateTeam(ctx, tx, &tm); err != nil {
			return err
		}
		if err := tx.CreateTeam(ctx, &tm); err != nil {
			return err
		}
		if ownerID == "" {
			return nil
		}
		return tx.SetMembership(ctx, audiotour.Membership{TeamID: tm.ID, UserID: ownerID, Role: audiotour.RoleOwner})
	})
	return tm, err
}

func validateTeam(ctx context.Context, tx *store.Tx, tm *audiotour.Team) error {
	var verr audiotour.ValidationError
	if tm.Name == "" {
		verr.Add("name", "name is required", tm.Name)
	}
	if tm.Link == "" {
		verr.Add("link", "link is required", tm.Link)
	} else if other, err := tx.TeamByLink(ctx, tm.Link); err == nil && other.ID != tm.ID {
		verr.Add("link", "link is already used by another team", tm.Link)
	} else if err != nil && !errors.Is(err, audiotour.ErrNotFound) {
		return err
	}
	audiotour.ValidateVariants("variants", tm.Variants, &verr)
	return verr.OrNil()
}

type TeamPatch struct {
	Name     *string
	Link     *string
	Variants []audiotour.Variant
}

// UpdateTeam changes team settings. Team variants are the defaults of new
// content; existing tours keep theirs.
func (s *Service) UpdateTeam(ctx context.Context, teamID string, patch TeamPatch) (audiotour.Team, error) {
	var tm audiotour.Team
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if tm, err = tx.Team(ctx, teamID); err != nil {
			return err
		}
		if patch.Name != nil {
			tm.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Link != nil {
			tm.Link = strings.TrimSpace(*patch.Link)
		}
		if patch.Variants != nil {
			tm.Variants = patch.Variants
		}
		if err := validateTeam(ctx, tx, &tm); err != nil {
			return err
		}
		return tx.UpdateTeam(ctx, &tm)
	})
	return tm, err
}

// SetMember adds a user to a team or changes their role.
func (s *Service) SetMember(ctx context.Context, teamID, userID string, role audiotour.Role) error {
	if !role.Valid() {
		return audiotour.Invalid("role", "unknown role", role)
	}
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Team(ctx, teamID); err != nil {
			return err
		}
		if _, err := tx.User(ctx, userID); err != nil {
			return err
		}
		return tx.SetMembership(ctx, audiotour.Membership{TeamID: teamID, UserID: userID, Role: role})
	})
}
