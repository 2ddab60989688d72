package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

type CreateVersionRequest struct {
	IsStaging bool   `json:"isStaging"`
	IsLive    bool   `json:"isLive"`
	Password  string `json:"password"`
}

// UpdateVersionRequest changes only the fields present. An empty password
// removes the password.
type UpdateVersionRequest struct {
	IsStaging *bool   `json:"isStaging"`
	IsLive    *bool   `json:"isLive"`
	Password  *string `json:"password"`
}

const passwordHeader = "X-Tour-Password"

func handleListVersions(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleViewer); !ok {
			return
		}

		var versions []audiotour.Version
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			versions, err = tx.ListVersions(ctx, tourID)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]audiotour.VersionJSON, len(versions))
		for i, v := range versions {
			resp[i] = audiotour.NewVersionJSON(v, false)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateVersion(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleAdmin); !ok {
			return
		}
		var req CreateVersionRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		v, err := a.svc.PublishVersion(r.Context(), tourID, lifecycle.PublishOptions{
			IsStaging: req.IsStaging,
			IsLive:    req.IsLive,
			Password:  req.Password,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, audiotour.NewVersionJSON(v, false))
	}
}

// handleGetVersion includes the snapshot document.
func handleGetVersion(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := a.version(w, r, chi.URLParam(r, "versionID"), audiotour.RoleViewer)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewVersionJSON(v, true))
	}
}

func handleUpdateVersion(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versionID := chi.URLParam(r, "versionID")
		if _, ok := a.version(w, r, versionID, audiotour.RoleAdmin); !ok {
			return
		}
		var req UpdateVersionRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		v, err := a.svc.UpdateVersion(r.Context(), versionID, lifecycle.VersionPatch{
			IsStaging: req.IsStaging,
			IsLive:    req.IsLive,
			Password:  req.Password,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewVersionJSON(v, false))
	}
}

func handleDeleteVersion(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versionID := chi.URLParam(r, "versionID")
		if _, ok := a.version(w, r, versionID, audiotour.RoleAdmin); !ok {
			return
		}
		if err := a.svc.DeleteVersion(r.Context(), versionID); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleViewerTour serves the live snapshot of a tour without a session.
// ?staging=true selects the staging environment.
func handleViewerTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staging, _ := strconv.ParseBool(r.URL.Query().Get("staging"))

		v, err := a.svc.LiveVersion(r.Context(), chi.URLParam(r, "tourID"), staging, r.Header.Get(passwordHeader))
		if err != nil {
			a.fail(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(v.Data)
	}
}
