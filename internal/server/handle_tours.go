package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

type CreateTourRequest struct {
	Name         string               `json:"name" validate:"required"`
	Names        map[string]string    `json:"names"`
	Descriptions map[string]string    `json:"descriptions"`
	Variants     []audiotour.Variant  `json:"variants"`
	Visibility   audiotour.Visibility `json:"visibility" validate:"omitempty,oneof=PUBLIC UNLISTED PRIVATE"`
}

// UpdateTourRequest changes only the fields present. An empty
// coverResourceId or introStopId clears the reference.
type UpdateTourRequest struct {
	Name            *string               `json:"name" validate:"omitempty,min=1"`
	Names           map[string]string     `json:"names"`
	Descriptions    map[string]string     `json:"descriptions"`
	Variants        []audiotour.Variant   `json:"variants"`
	Visibility      *audiotour.Visibility `json:"visibility" validate:"omitempty,oneof=PUBLIC UNLISTED PRIVATE"`
	CoverResourceID *string               `json:"coverResourceId"`
	IntroStopID     *string               `json:"introStopId"`
}

// UpdateTourResponse is the updated tour and how many nodes gained variants.
type UpdateTourResponse struct {
	Tour        audiotour.TourJSON `json:"tour"`
	Propagation PropagationJSON    `json:"propagation"`
}

type PropagationJSON struct {
	Stops     int `json:"stops"`
	Resources int `json:"resources"`
	Files     int `json:"files"`
}

func newPropagationJSON(p lifecycle.Propagation) PropagationJSON {
	return PropagationJSON{Stops: p.Stops, Resources: p.Resources, Files: p.Files}
}

type DeleteTourResponse struct {
	Permanent bool     `json:"permanent"`
	Stops     []string `json:"stops"`
	Resources []string `json:"resources"`
	Versions  int      `json:"versions"`
}

type RestoreTourResponse struct {
	Stops     int `json:"stops"`
	Resources int `json:"resources"`
}

type CreateTourStopRequest struct {
	StopID           string `json:"stopId" validate:"required"`
	TransitionStopID string `json:"transitionStopId"`
	Position         *int   `json:"position" validate:"omitempty,min=0"`
}

type UpdateTourStopRequest struct {
	TransitionStopID *string `json:"transitionStopId"`
	Position         *int    `json:"position" validate:"omitempty,min=0"`
}

func handleListTours(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleViewer); !ok {
			return
		}
		archived := r.URL.Query().Get("archived") == "true"

		var tours []audiotour.Tour
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			tours, err = tx.ListTours(ctx, teamID, archived)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]audiotour.TourJSON, len(tours))
		for i, tr := range tours {
			resp[i] = audiotour.NewTourJSON(tr)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleEditor); !ok {
			return
		}
		var req CreateTourRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		tr, err := a.svc.CreateTour(r.Context(), teamID, lifecycle.TourInput{
			Name:         req.Name,
			Names:        req.Names,
			Descriptions: req.Descriptions,
			Variants:     req.Variants,
			Visibility:   req.Visibility,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, audiotour.NewTourJSON(tr))
	}
}

// handleGetTour returns the full tour document, as a version would
// snapshot it, with live asset URLs.
func handleGetTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleViewer); !ok {
			return
		}

		var doc audiotour.TourJSON
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			g, err := tx.LoadTourGraph(ctx, tourID)
			if err != nil {
				return err
			}
			doc = audiotour.NewTourDocument(g, a.svc.URLs())
			return nil
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleUpdateTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateTourRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		// Team variants are an ADMIN concern; tour variants follow them.
		if req.Variants != nil {
			if _, ok := a.tour(w, r, tourID, audiotour.RoleAdmin); !ok {
				return
			}
		}

		tr, p, err := a.svc.UpdateTour(r.Context(), tourID, lifecycle.TourPatch{
			Name:            req.Name,
			Names:           req.Names,
			Descriptions:    req.Descriptions,
			Variants:        req.Variants,
			Visibility:      req.Visibility,
			CoverResourceID: req.CoverResourceID,
			IntroStopID:     req.IntroStopID,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, UpdateTourResponse{Tour: audiotour.NewTourJSON(tr), Propagation: newPropagationJSON(p)})
	}
}

func handleDeleteTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		permanent := r.URL.Query().Get("permanent") == "true"
		min := audiotour.RoleEditor
		if permanent {
			min = audiotour.RoleAdmin
		}
		if _, ok := a.tour(w, r, tourID, min); !ok {
			return
		}

		res, err := a.svc.DeleteTour(r.Context(), tourID, permanent)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DeleteTourResponse{
			Permanent: res.Permanent,
			Stops:     nonNil(res.StopIDs),
			Resources: nonNil(res.ResourceIDs),
			Versions:  res.Versions,
		})
	}
}

func handleRestoreTour(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleAdmin); !ok {
			return
		}

		res, err := a.svc.RestoreTour(r.Context(), tourID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RestoreTourResponse{Stops: res.Stops, Resources: res.Resources})
	}
}

func handleListTourStops(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleViewer); !ok {
			return
		}

		var stops []audiotour.TourStop
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			stops, err = tx.TourStops(ctx, tourID)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]audiotour.TourStopJSON, len(stops))
		for i, ts := range stops {
			resp[i] = audiotour.NewTourStopJSON(ts)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateTourStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleEditor); !ok {
			return
		}
		var req CreateTourStopRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		ts, err := a.svc.AddTourStop(r.Context(), tourID, lifecycle.TourStopInput{
			StopID:           req.StopID,
			TransitionStopID: req.TransitionStopID,
			Position:         req.Position,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, audiotour.NewTourStopJSON(ts))
	}
}

func handleUpdateTourStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateTourStopRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		ts, err := a.svc.UpdateTourStop(r.Context(), tourID, chi.URLParam(r, "tourStopID"), lifecycle.TourStopPatch{
			TransitionStopID: req.TransitionStopID,
			Position:         req.Position,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewTourStopJSON(ts))
	}
}

func handleDeleteTourStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tourID := chi.URLParam(r, "tourID")
		if _, ok := a.tour(w, r, tourID, audiotour.RoleEditor); !ok {
			return
		}
		if err := a.svc.RemoveTourStop(r.Context(), tourID, chi.URLParam(r, "tourStopID")); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
