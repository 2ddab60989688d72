package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

// TeamResponse is a team together with the caller's role in it.
type TeamResponse struct {
	audiotour.TeamJSON
	Role audiotour.Role `json:"role,omitempty"`
}

type CreateTeamRequest struct {
	Name     string              `json:"name" validate:"required"`
	Link     string              `json:"link" validate:"required,link"`
	Variants []audiotour.Variant `json:"variants"`
}

type UpdateTeamRequest struct {
	Name     *string             `json:"name" validate:"omitempty,min=1"`
	Link     *string             `json:"link" validate:"omitempty,link"`
	Variants []audiotour.Variant `json:"variants"`
}

type SetMemberRequest struct {
	UserID string         `json:"userId" validate:"required"`
	Role   audiotour.Role `json:"role" validate:"required,oneof=OWNER ADMIN EDITOR VIEWER"`
}

// handleListTeams lists the caller's teams; platform admins see all.
func handleListTeams(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		var teams []store.TeamMembership
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			teams, err = tx.ListTeams(ctx, u.ID, !u.IsAdmin)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]TeamResponse, len(teams))
		for i, tm := range teams {
			resp[i] = TeamResponse{TeamJSON: audiotour.NewTeamJSON(tm.Team), Role: tm.Role}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateTeam(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := currentUser(r)
		if !u.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var req CreateTeamRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		tm, err := a.svc.CreateTeam(r.Context(), lifecycle.TeamInput{
			Name:     req.Name,
			Link:     req.Link,
			Variants: req.Variants,
		}, u.ID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, TeamResponse{TeamJSON: audiotour.NewTeamJSON(tm), Role: audiotour.RoleOwner})
	}
}

func handleGetTeam(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tm, ok := a.team(w, r, chi.URLParam(r, "teamID"), audiotour.RoleViewer)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, TeamResponse{TeamJSON: audiotour.NewTeamJSON(tm)})
	}
}

func handleUpdateTeam(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleAdmin); !ok {
			return
		}
		var req UpdateTeamRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		tm, err := a.svc.UpdateTeam(r.Context(), teamID, lifecycle.TeamPatch{
			Name:     req.Name,
			Link:     req.Link,
			Variants: req.Variants,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, TeamResponse{TeamJSON: audiotour.NewTeamJSON(tm)})
	}
}

func handleSetMember(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleAdmin); !ok {
			return
		}
		var req SetMemberRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
		if err := a.svc.SetMember(r.Context(), teamID, req.UserID, req.Role); err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.Membership{TeamID: teamID, UserID: req.UserID, Role: req.Role})
	}
}
