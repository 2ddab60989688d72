package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/store"
)

type ResourceInput struct {
	Name string
	Type audiotour.ResourceType
	Data json.RawMessage
	// Variants defaults to the team's variants when empty.
	Variants []audiotour.Variant
}

// CreateResource stores a resource with an empty File for each variant.
func (s *Service) CreateResource(ctx context.Context, teamID string, in ResourceInput) (audiotour.Resource, []audiotour.File, error) {
	r := audiotour.Resource{
		TeamID:   teamID,
		Name:     strings.TrimSpace(in.Name),
		Type:     in.Type,
		Data:     in.Data,
		Variants: in.Variants,
	}
	var files []audiotour.File
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		team, err := tx.Team(ctx, teamID)
		if err != nil {
			return err
		}
		if len(r.Variants) == 0 {
			r.Variants = team.Variants
		}
		if err := validateResource(&r); err != nil {
			return err
		}
		if err := tx.CreateResource(ctx, &r); err != nil {
			return err
		}
		for _, v := range r.Variants {
			f, _, err := tx.EnsureFile(ctx, r.ID, v.Code)
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return nil
	})
	return r, files, err
}

func validateResource(r *audiotour.Resource) error {
	var verr audiotour.ValidationError
	if r.Name == "" {
		verr.Add("name", "name is required", r.Name)
	}
	if !slices.Contains(audiotour.ResourceTypes, r.Type) {
		verr.Add("type", "unknown resource type", r.Type)
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		verr.Add("data", "data must be valid JSON", string(r.Data))
	}
	audiotour.ValidateVariants("variants", r.Variants, &verr)
	return verr.OrNil()
}

// ResourcePatch holds the fields of an UpdateResource call; nil fields are
// kept. The type of a resource never changes.
type ResourcePatch struct {
	Name     *string
	Data     json.RawMessage
	Variants []audiotour.Variant
}

// UpdateResource saves the patch and makes sure every variant has a File.
// Files of removed variants are kept so uploads are never lost.
func (s *Service) UpdateResource(ctx context.Context, resourceID string, patch ResourcePatch) (audiotour.Resource, error) {
	var r audiotour.Resource
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if r, err = tx.Resource(ctx, resourceID); err != nil {
			return err
		}
		if patch.Name != nil {
			r.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Data != nil {
			r.Data = patch.Data
		}
		if patch.Variants != nil {
			r.Variants = patch.Variants
		}
		if err := validateResource(&r); err != nil {
			return err
		}
		if err := tx.UpdateResource(ctx, &r); err != nil {
			return err
		}
		for _, v := range r.Variants {
			if _, _, err := tx.EnsureFile(ctx, r.ID, v.Code); err != nil {
				return err
			}
		}
		return nil
	})
	return r, err
}

// Files returns the resource's files, checking that the resource exists.
func (s *Service) Files(ctx context.Context, resourceID string) (audiotour.Resource, []audiotour.File, error) {
	var r audiotour.Resource
	var files []audiotour.File
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if r, err = tx.Resource(ctx, resourceID); err != nil {
			return err
		}
		files, err = tx.Files(ctx, resourceID)
		return err
	})
	return r, files, err
}

// FilePatch holds the metadata of an UpdateFile call; nil fields are kept.
type FilePatch struct {
	ExternalURL *string
	Duration    *float64
	Width       *int
	Height      *int
}

func (s *Service) UpdateFile(ctx context.Context, resourceID, fileID string, patch FilePatch) (audiotour.File, error) {
	var f audiotour.File
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if f, err = fileOf(ctx, tx, resourceID, fileID); err != nil {
			return err
		}
		if patch.ExternalURL != nil {
			f.ExternalURL = strings.TrimSpace(*patch.ExternalURL)
		}
		if patch.Duration != nil {
			f.Duration = patch.Duration
		}
		if patch.Width != nil {
			f.Width = patch.Width
		}
		if patch.Height != nil {
			f.Height = patch.Height
		}
		return tx.UpdateFile(ctx, &f)
	})
	return f, err
}

type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadKey reduces a client file name to a single object name segment.
func UploadKey(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(path.Base(name))
	switch name {
	case "", ".", "..", "/":
		return "upload"
	}
	return name
}

// UploadFile stores the body as the file's live object and records its key.
// The object is written before the row changes; the replaced object is
// removed after commit, and the new one if the row update fails.
func (s *Service) UploadFile(ctx context.Context, resourceID, fileID string, up Upload) (audiotour.File, error) {
	key := UploadKey(up.Name)
	var f audiotour.File
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		_, err := fileOf(ctx, tx, resourceID, fileID)
		return err
	})
	if err != nil {
		return f, err
	}

	objectKey := audiotour.FileStorageKey(fileID, key)
	if err := s.assets.Put(ctx, objectKey, up.Body, up.Size, up.ContentType); err != nil {
		return f, fmt.Errorf("storing upload: %w", err)
	}

	oldKey := f.Key
	err = s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if f, err = fileOf(ctx, tx, resourceID, fileID); err != nil {
			return err
		}
		oldKey = f.Key
		f.Key = key
		f.OriginalName = up.Name
		f.ExternalURL = ""
		if err := tx.UpdateFile(ctx, &f); err != nil {
			return err
		}
		if oldKey != "" && oldKey != key {
			old := audiotour.FileStorageKey(fileID, oldKey)
			tx.AfterCommit("delete "+old, func(ctx context.Context) error {
				return s.assets.Delete(ctx, old)
			})
		}
		return nil
	})
	if err != nil {
		if oldKey != key {
			if derr := s.assets.Delete(context.WithoutCancel(ctx), objectKey); derr != nil {
				s.logger.Error("removing orphaned upload", "key", objectKey, "error", derr)
			}
		}
		return f, err
	}
	s.logger.Info("file uploaded", "file_id", fileID, "key", key, "size", up.Size)
	return f, nil
}

func fileOf(ctx context.Context, tx *store.Tx, resourceID, fileID string) (audiotour.File, error) {
	f, err := tx.File(ctx, fileID)
	if err != nil {
		return f, err
	}
	if f.ResourceID != resourceID {
		return f, fmt.Errorf("file %s: %w", fileID, audiotour.ErrNotFound)
	}
	return f, nil
}
