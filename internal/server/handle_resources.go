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

const maxUploadMemory = 32 << 20

type CreateResourceRequest struct {
	Name     string                 `json:"name" validate:"required"`
	Type     audiotour.ResourceType `json:"type" validate:"required"`
	Data     json.RawMessage        `json:"data"`
	Variants []audiotour.Variant    `json:"variants"`
}

type UpdateResourceRequest struct {
	Name     *string             `json:"name" validate:"omitempty,min=1"`
	Data     json.RawMessage     `json:"data"`
	Variants []audiotour.Variant `json:"variants"`
}

type UpdateFileRequest struct {
	ExternalURL *string  `json:"externalURL" validate:"omitempty,url"`
	Duration    *float64 `json:"duration" validate:"omitempty,min=0"`
	Width       *int     `json:"width" validate:"omitempty,min=0"`
	Height      *int     `json:"height" validate:"omitempty,min=0"`
}

func (a access) resourceJSON(r audiotour.Resource, files []audiotour.File) audiotour.ResourceJSON {
	return audiotour.NewResourceNodeJSON(audiotour.ResourceNode{Resource: r, Files: files}, a.svc.URLs())
}

func handleListResources(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleViewer); !ok {
			return
		}
		archived := r.URL.Query().Get("archived") == "true"

		var resources []audiotour.Resource
		err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
			var err error
			resources, err = tx.ListResources(ctx, teamID, archived)
			return err
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}

		resp := make([]audiotour.ResourceJSON, len(resources))
		for i, res := range resources {
			resp[i] = audiotour.NewResourceJSON(res)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCreateResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := chi.URLParam(r, "teamID")
		if _, ok := a.team(w, r, teamID, audiotour.RoleEditor); !ok {
			return
		}
		var req CreateResourceRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		res, files, err := a.svc.CreateResource(r.Context(), teamID, lifecycle.ResourceInput{
			Name:     req.Name,
			Type:     req.Type,
			Data:     req.Data,
			Variants: req.Variants,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, a.resourceJSON(res, files))
	}
}

func handleGetResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		if _, ok := a.resource(w, r, resourceID, audiotour.RoleViewer); !ok {
			return
		}

		res, files, err := a.svc.Files(r.Context(), resourceID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a.resourceJSON(res, files))
	}
}

func handleUpdateResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		if _, ok := a.resource(w, r, resourceID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateResourceRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		if _, err := a.svc.UpdateResource(r.Context(), resourceID, lifecycle.ResourcePatch{
			Name:     req.Name,
			Data:     req.Data,
			Variants: req.Variants,
		}); err != nil {
			a.fail(w, r, err)
			return
		}
		res, files, err := a.svc.Files(r.Context(), resourceID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, a.resourceJSON(res, files))
	}
}

// handleDeleteResource archives the resource, or deletes it and its
// objects with ?permanent=true. A resource still used by a tour or stop is
// a 409 listing them.
func handleDeleteResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		permanent := r.URL.Query().Get("permanent") == "true"
		min := audiotour.RoleEditor
		if permanent {
			min = audiotour.RoleAdmin
		}
		if _, ok := a.resource(w, r, resourceID, min); !ok {
			return
		}
		if err := a.svc.DeleteResource(r.Context(), resourceID, permanent); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRestoreResource(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		if _, ok := a.resource(w, r, resourceID, audiotour.RoleAdmin); !ok {
			return
		}
		if err := a.svc.RestoreResource(r.Context(), resourceID); err != nil {
			a.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUpdateFile(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		if _, ok := a.resource(w, r, resourceID, audiotour.RoleEditor); !ok {
			return
		}
		var req UpdateFileRequest
		if err := decode(r, &req); err != nil {
			a.fail(w, r, err)
			return
		}

		f, err := a.svc.UpdateFile(r.Context(), resourceID, chi.URLParam(r, "fileID"), lifecycle.FilePatch{
			ExternalURL: req.ExternalURL,
			Duration:    req.Duration,
			Width:       req.Width,
			Height:      req.Height,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewFileJSON(f, a.svc.URLs()))
	}
}

// handleUploadFile stores the multipart "file" part as the file's object,
// replacing any previous upload.
func handleUploadFile(a access) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID := chi.URLParam(r, "resourceID")
		if _, ok := a.resource(w, r, resourceID, audiotour.RoleEditor); !ok {
			return
		}

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, http.StatusBadRequest, "multipart form expected")
			return
		}
		defer r.MultipartForm.RemoveAll()
		part, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  "validation failed",
				Fields: []audiotour.FieldError{{Path: "file", Message: "file is required"}},
			})
			return
		}
		defer part.Close()

		f, err := a.svc.UploadFile(r.Context(), resourceID, chi.URLParam(r, "fileID"), lifecycle.Upload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        part,
		})
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, audiotour.NewFileJSON(f, a.svc.URLs()))
	}
}
