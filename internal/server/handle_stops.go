package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

type CreateStopRequest struct {
	Type         audiotour.StopType    `json:"type" validate:"omitempty,oneof=INTRO STOP TRANSITION"`
	Link         string                `json:"link" validate:"required,link"`
	Address      string                `json:"address"`
	Coordinate   *audiotour.Coordinate `json:"coordinate"`
	Names        map[string]string     `json:"names"`
	Descriptions map[string]string     `json:"descriptions"`
	Variants     []audiotour.Variant   `json:"variants"`
}

type UpdateStopRequest struct {
	Type         *audiotour.StopType   `json:"type" validate:"omitempty,oneof=INTRO STOP TRANSITION"`
	Link         *string               `json:"link" validate:"omitempty,link"`
	Address      *string               `json:"address"`
	Coordinate   *audiotour.Coordinate `json:"coordinate"`
	Names        map[string]string     `json:"names"`
	Descriptions map[string]string     `json:"descriptions"`
	Variants     []audiotour.Variant   `json:"variants"`
}

type CreateStopResourceRequest struct {
	ResourceID string          `json:"resourceId" validate:"required"`
	Start      int             `json:"start" validate:"min=0"`
	End        *int            `json:"end" validate:"omitempty,min=0"`
	PauseAtEnd bool            `json:"pauseAtEnd"`
	Options    json.RawMessage `json:"options"`
}

// UpdateStopResourceRequest changes only the fields present. clearEnd
// removes the end of the entry.
type UpdateStopResourceRequest struct {
	Start      *int            `json:"start" validate:"omitempty,min=0"`
	End        *int            `json:"end" validate:"omitempty,min=0"`
	ClearEnd   bool            `json:"clearEnd"`
	PauseAtEnd *bool           `json:"pauseAtEnd"`
	Options    json.RawMessage `json:"options"`
}

func handleListStops(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleViewer); !ok {
			return
		}
		archived := r.URL.Query().Get("archived") == "true"

		var stops []audiotour.Stop
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			stops, err = tx.ListStops(ctx, teamID, archived)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]audiotour.StopJSON, len(stops))
		for i, st := range stops {
			resp[i] = audiotour.NewStopJSON(st)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleEditor); !ok {
			return
		}
		var req CreateStopRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		st, err := a.svc.CreateStop(r.Context(), teamID, lifecycle.StopInput{
			Type:         req.Type,
			Link:         req.Link,
			Address:      req.Address,
			Coordinate:   req.Coordinate,
			Names:        req.Names,
			Descriptions: req.Descriptions,
			Variants:     req.Variants,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, audiotour.NewStopJSON(st))
	}
}

// handleGetStop returns the stop with its sorted timeline.
func handleGetStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleViewer); !ok {
			return
		}

		var doc audiotour.StopJSON
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			n, err := tx.LoadStopNode(ctx, stopID)
			if err != nil {
				return err
			}
			doc = audiotour.NewStopNodeJSON(*n, a.svc.URLs())
			return nil
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleUpdateStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateStopRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		st, err := a.svc.UpdateStop(r.Context(), stopID, lifecycle.StopPatch{
			Type:         req.Type,
			Link:         req.Link,
			Address:      req.Address,
			Coordinate:   req.Coordinate,
			Names:        req.Names,
			Descriptions: req.Descriptions,
			Variants:     req.Variants,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewStopJSON(st))
	}
}

// handleDeleteStop archives the stop, or deletes it with ?permanent=true.
// A stop used by any tour is a 409 listing those tours.
func handleDeleteStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		permanent := r.URL.Query().Get("permanent") == "true"
		min := audiotour.RoleEditor
		if permanent {
			min = audiotour.RoleAdmin
		}
		if _, ok := a.stop(w, r, stopID, min); !ok {
			return
		}
		if err := a.svc.DeleteStop(r.Context(), stopID, permanent); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRestoreStop(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleAdmin); !ok {
			return
		}
		if err := a.svc.RestoreStop(r.Context(), stopID); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCreateStopResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleEditor); !ok {
			return
		}
		var req CreateStopResourceRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		sr, err := a.svc.AddStopResource(r.Context(), stopID, lifecycle.StopResourceInput{
			ResourceID: req.ResourceID,
			Start:      req.Start,
			End:        req.End,
			PauseAtEnd: req.PauseAtEnd,
			Options:    req.Options,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, audiotour.NewStopResourceJSON(sr))
	}
}

func handleUpdateStopResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateStopResourceRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		sr, err := a.svc.UpdateStopResource(r.Context(), stopID, chi.URLParam(r, "stopResourceID"), lifecycle.StopResourcePatch{
			Start:      req.Start,
			End:        req.End,
			ClearEnd:   req.ClearEnd,
			PauseAtEnd: req.PauseAtEnd,
			Options:    req.Options,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewStopResourceJSON(sr))
	}
}

func handleDeleteStopResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stopID := chi.URLParam(r, "stopID")
		if _, ok := a.stop(w, r, stopID, audiotour.RoleEditor); !ok {
			return
		}
		if err := a.svc.RemoveStopResource(r.Context(), stopID, chi.URLParam(r, "stopResourceID")); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
