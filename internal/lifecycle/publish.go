package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

type PublishOptions struct {
	IsStaging bool
	IsLive    bool
	// Password, when set, is required to view the version.
	Password string
}

// PublishVersion snapshots the tour's graph into a new Version. Every
// asset the document references is copied under the version's storage
// prefix and the document is rewritten to point at the copies. A live
// version replaces the previous live version of the same environment.
func (s *Service) PublishVersion(ctx context.Context, tourID string, opts PublishOptions) (audiotour.Version, error) {
	v := audiotour.Version{
		ID:        store.NewVersionID(),
		TourID:    tourID,
		IsStaging: opts.IsStaging,
		IsLive:    opts.IsLive,
	}
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return v, fmt.Errorf("hashing version password: %w", err)
		}
		v.PasswordHash = string(hash)
	}

	// Assets are copied between two short transactions so the single
	// database connection is not held during storage round trips. The write
	// transaction serializes the graph again and starts over when the tour
	// gained assets in between.
	copied := map[string]bool{}
	copying := false
	var teamID string
	var err error
	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		var doc []byte
		if doc, err = s.snapshot(ctx, tourID); err != nil {
			break
		}
		copying = true
		if err = s.copyAssets(ctx, v.ID, pending(audiotour.FindAssetRefs(doc), copied)); err != nil {
			break
		}
		for _, ref := range audiotour.FindAssetRefs(doc) {
			copied[ref.SourceKey()] = true
		}

		err = s.store.InTx(ctx, func(tx *store.Tx) error {
			g, doc, err := s.loadDocument(ctx, tx, tourID)
			if err != nil {
				return err
			}
			if len(pending(audiotour.FindAssetRefs(doc), copied)) > 0 {
				return errTourChanged
			}
			teamID = g.Tour.TeamID
			v.Data = audiotour.RewriteAssetRefs(doc, v.ID)

			if v.IsLive {
				if err := tx.ClearLiveVersions(ctx, tourID, v.IsStaging, v.ID); err != nil {
					return fmt.Errorf("clearing live versions: %w", err)
				}
			}
			return tx.CreateVersion(ctx, &v)
		})
		if !errors.Is(err, errTourChanged) {
			break
		}
	}
	if errors.Is(err, errTourChanged) {
		err = &audiotour.ConflictError{Message: "tour kept changing while it was published, try again"}
	}
	if err != nil {
		if copying {
			if derr := s.assets.DeletePrefix(context.WithoutCancel(ctx), audiotour.VersionPrefix(v.ID)); derr != nil {
				s.logger.Error("removing copies of failed publish", "version_id", v.ID, "error", derr)
			}
		}
		return v, err
	}

	s.cache.Invalidate(ctx, tourID)
	s.logger.Info("version published", "tour_id", tourID, "version_id", v.ID, "staging", v.IsStaging, "live", v.IsLive)
	s.emit(ctx, notify.VersionPublished, teamID, tourID, v.ID)
	return v, nil
}

const maxPublishAttempts = 3

var errTourChanged = errors.New("tour changed during publish")

// snapshot serializes the tour in a read-only pass.
func (s *Service) snapshot(ctx context.Context, tourID string) ([]byte, error) {
	var doc []byte
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		_, doc, err = s.loadDocument(ctx, tx, tourID)
		return err
	})
	return doc, err
}

func (s *Service) loadDocument(ctx context.Context, tx *store.Tx, tourID string) (*audiotour.TourGraph, []byte, error) {
	g, err := tx.LoadTourGraph(ctx, tourID)
	if err != nil {
		return nil, nil, err
	}
	if g.Tour.ArchivedAt != nil {
		return nil, nil, &audiotour.ConflictError{Message: "archived tours cannot be published"}
	}
	doc, err := audiotour.MarshalDocument(audiotour.NewTourDocument(g, s.urls))
	if err != nil {
		return nil, nil, fmt.Errorf("serializing tour: %w", err)
	}
	return g, doc, nil
}

// pending returns the refs whose live object has not been copied yet.
func pending(refs []audiotour.AssetRef, copied map[string]bool) []audiotour.AssetRef {
	var out []audiotour.AssetRef
	for _, ref := range refs {
		if !copied[ref.SourceKey()] {
			out = append(out, ref)
		}
	}
	return out
}

// copyAssets copies each referenced live object under the version prefix.
// Copies overwrite, so a retried publish converges. Copies already made
// stay behind when a later step fails.
func (s *Service) copyAssets(ctx context.Context, versionID string, refs []audiotour.AssetRef) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, ref := range refs {
		g.Go(func() error {
			if err := s.assets.Copy(gctx, ref.SourceKey(), ref.VersionKey(versionID)); err != nil {
				return fmt.Errorf("copying asset of file %s: %w", ref.FileID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type VersionPatch struct {
	IsLive    *bool
	IsStaging *bool
	// Password replaces the version password; an empty string removes it.
	Password *string
}

// UpdateVersion flips a version's flags or password. The snapshot itself
// never changes.
func (s *Service) UpdateVersion(ctx context.Context, versionID string, patch VersionPatch) (audiotour.Version, error) {
	var v audiotour.Version
	var hash *string
	if patch.Password != nil {
		h := ""
		if *patch.Password != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
			if err != nil {
				return v, fmt.Errorf("hashing version password: %w", err)
			}
			h = string(b)
		}
		hash = &h
	}

	var teamID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if v, err = tx.Version(ctx, versionID); err != nil {
			return err
		}
		tour, err := tx.Tour(ctx, v.TourID)
		if err != nil {
			return err
		}
		teamID = tour.TeamID

		if patch.IsStaging != nil {
			v.IsStaging = *patch.IsStaging
		}
		if patch.IsLive != nil {
			v.IsLive = *patch.IsLive
		}
		if hash != nil {
			v.PasswordHash = *hash
		}
		if v.IsLive {
			if err := tx.ClearLiveVersions(ctx, v.TourID, v.IsStaging, v.ID); err != nil {
				return fmt.Errorf("clearing live versions: %w", err)
			}
		}
		return tx.UpdateVersionFlags(ctx, &v)
	})
	if err != nil {
		return v, err
	}

	s.cache.Invalidate(ctx, v.TourID)
	s.emit(ctx, notify.VersionUpdated, teamID, v.TourID, v.ID)
	return v, nil
}

// DeleteVersion removes a version and, after commit, its copied assets.
func (s *Service) DeleteVersion(ctx context.Context, versionID string) error {
	var v audiotour.Version
	var teamID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if v, err = tx.Version(ctx, versionID); err != nil {
			return err
		}
		tour, err := tx.Tour(ctx, v.TourID)
		if err != nil {
			return err
		}
		teamID = tour.TeamID
		if err := tx.DeleteVersion(ctx, versionID); err != nil {
			return err
		}
		s.deleteAfterCommit(tx, audiotour.VersionPrefix(versionID))
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, v.TourID)
	s.emit(ctx, notify.VersionDeleted, teamID, v.TourID, versionID)
	return nil
}

// LiveVersion returns the live version a viewer may see. A password
// protected version requires the matching password: a missing one is
// ErrUnauthenticated and a wrong one ErrForbidden.
func (s *Service) LiveVersion(ctx context.Context, tourID string, staging bool, password string) (audiotour.Version, error) {
	v, ok := s.cache.LiveVersion(ctx, tourID, staging)
	if !ok {
		err := s.store.InTx(ctx, func(tx *store.Tx) error {
			var err error
			v, err = tx.LiveVersion(ctx, tourID, staging)
			return err
		})
		if err != nil {
			return v, err
		}
		s.cache.SetLiveVersion(ctx, v)
	}

	if v.HasPassword() {
		if password == "" {
			return audiotour.Version{}, audiotour.ErrUnauthenticated
		}
		err := bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return audiotour.Version{}, audiotour.ErrForbidden
		}
		if err != nil {
			return audiotour.Version{}, err
		}
	}
	return v, nil
}
