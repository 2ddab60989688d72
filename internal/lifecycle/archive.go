package lifecycle

import (
	"context"
	"fmt"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

// Collection is the part of a tour's graph that no other tour reaches.
type Collection struct {
	StopIDs     []string
	ResourceIDs []string
}

// CollectExclusive walks the tour's reachable Stops and Resources and keeps
// those referenced by exactly one tour. Reference counts include archived
// tours, so a node shared with an archived tour is never collected.
func CollectExclusive(ctx context.Context, tx *store.Tx, g *audiotour.TourGraph) (Collection, error) {
	var c Collection
	for _, n := range g.Resources() {
		count, err := tx.CountToursUsingResource(ctx, n.Resource.ID)
		if err != nil {
			return c, fmt.Errorf("counting tours using resource %s: %w", n.Resource.ID, err)
		}
		if count == 1 {
			c.ResourceIDs = append(c.ResourceIDs, n.Resource.ID)
		}
	}
	for _, n := range g.Stops() {
		count, err := tx.CountToursUsingStop(ctx, n.Stop.ID)
		if err != nil {
			return c, fmt.Errorf("counting tours using stop %s: %w", n.Stop.ID, err)
		}
		if count == 1 {
			c.StopIDs = append(c.StopIDs, n.Stop.ID)
		}
	}
	return c, nil
}

// DeleteResult reports what a tour deletion touched.
type DeleteResult struct {
	Permanent bool
	Collection
	Versions int
}

// DeleteTour archives the tour, or removes it for good when permanent is
// set, together with every Stop and Resource only it reaches. Shared nodes
// are left untouched. Archiving an archived tour does nothing.
func (s *Service) DeleteTour(ctx context.Context, tourID string, permanent bool) (DeleteResult, error) {
	res := DeleteResult{Permanent: permanent}
	var teamID string
	noop := false

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		g, err := tx.LoadTourGraph(ctx, tourID)
		if err != nil {
			return err
		}
		teamID = g.Tour.TeamID
		if !permanent && g.Tour.ArchivedAt != nil {
			noop = true
			return nil
		}

		if res.Collection, err = CollectExclusive(ctx, tx, g); err != nil {
			return err
		}
		if !permanent {
			return archiveTour(ctx, tx, tourID, res.Collection)
		}
		res.Versions, err = s.purgeTour(ctx, tx, tourID, res.Collection)
		return err
	})
	if err != nil {
		return res, err
	}
	if noop {
		return res, nil
	}

	s.cache.Invalidate(ctx, tourID)
	typ := notify.TourArchived
	if permanent {
		typ = notify.TourDeleted
	}
	s.logger.Info("tour deleted",
		"tour_id", tourID,
		"permanent", permanent,
		"stops", len(res.StopIDs),
		"resources", len(res.ResourceIDs),
		"versions", res.Versions,
	)
	s.emit(ctx, typ, teamID, tourID, "")
	return res, nil
}

func archiveTour(ctx context.Context, tx *store.Tx, tourID string, c Collection) error {
	at := store.Now()
	if err := tx.SetTourArchived(ctx, tourID, &at); err != nil {
		return err
	}
	if err := tx.ArchiveResources(ctx, c.ResourceIDs, at); err != nil {
		return fmt.Errorf("archiving resources: %w", err)
	}
	if err := tx.ArchiveStops(ctx, c.StopIDs, at); err != nil {
		return fmt.Errorf("archiving stops: %w", err)
	}
	return nil
}

// purgeTour deletes the tour's rows in dependency order and queues the
// storage prefixes of its versions and collected files for deletion.
func (s *Service) purgeTour(ctx context.Context, tx *store.Tx, tourID string, c Collection) (int, error) {
	if err := tx.DeleteTourStopsByTour(ctx, tourID); err != nil {
		return 0, fmt.Errorf("deleting tour stops: %w", err)
	}

	versions, err := tx.ListVersions(ctx, tourID)
	if err != nil {
		return 0, err
	}
	for _, v := range versions {
		if err := tx.DeleteVersion(ctx, v.ID); err != nil {
			return 0, fmt.Errorf("deleting version %s: %w", v.ID, err)
		}
		s.deleteAfterCommit(tx, audiotour.VersionPrefix(v.ID))
	}

	if err := tx.DeleteTour(ctx, tourID); err != nil {
		return 0, err
	}

	if err := s.purgeResources(ctx, tx, c.ResourceIDs); err != nil {
		return 0, err
	}
	if err := tx.DeleteStopResourcesOfStops(ctx, c.StopIDs); err != nil {
		return 0, fmt.Errorf("deleting stop resources of stops: %w", err)
	}
	if err := tx.DeleteStops(ctx, c.StopIDs); err != nil {
		return 0, fmt.Errorf("deleting stops: %w", err)
	}
	return len(versions), nil
}

func (s *Service) purgeResources(ctx context.Context, tx *store.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	files, err := tx.FilesOfResources(ctx, ids)
	if err != nil {
		return err
	}
	if err := tx.DeleteStopResourcesOfResources(ctx, ids); err != nil {
		return fmt.Errorf("deleting stop resources of resources: %w", err)
	}
	if err := tx.DeleteFilesOfResources(ctx, ids); err != nil {
		return fmt.Errorf("deleting files: %w", err)
	}
	if err := tx.DeleteResources(ctx, ids); err != nil {
		return fmt.Errorf("deleting resources: %w", err)
	}
	for _, f := range files {
		s.deleteAfterCommit(tx, audiotour.FilePrefix(f.ID))
	}
	return nil
}

// RestoreResult reports how many nodes a restore reactivated.
type RestoreResult struct {
	Stops     int
	Resources int
}

// RestoreTour reactivates an archived tour and the reachable Stops and
// Resources archived in the same pass, recognized by their archive stamp
// matching the tour's. Nodes archived at any other time stay archived.
// Restoring an active tour does nothing.
func (s *Service) RestoreTour(ctx context.Context, tourID string) (RestoreResult, error) {
	var res RestoreResult
	var teamID string
	restored := false

	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		g, err := tx.LoadTourGraph(ctx, tourID)
		if err != nil {
			return err
		}
		teamID = g.Tour.TeamID
		if g.Tour.ArchivedAt == nil {
			return nil
		}
		stamp := *g.Tour.ArchivedAt

		var resourceIDs, stopIDs []string
		for _, n := range g.Resources() {
			resourceIDs = append(resourceIDs, n.Resource.ID)
		}
		for _, n := range g.Stops() {
			stopIDs = append(stopIDs, n.Stop.ID)
		}
		if res.Resources, err = tx.RestoreResources(ctx, resourceIDs, stamp); err != nil {
			return fmt.Errorf("restoring resources: %w", err)
		}
		if res.Stops, err = tx.RestoreStops(ctx, stopIDs, stamp); err != nil {
			return fmt.Errorf("restoring stops: %w", err)
		}
		restored = true
		return tx.SetTourArchived(ctx, tourID, nil)
	})
	if err != nil || !restored {
		return res, err
	}

	s.logger.Info("tour restored", "tour_id", tourID, "stops", res.Stops, "resources", res.Resources)
	s.emit(ctx, notify.TourRestored, teamID, tourID, "")
	return res, nil
}

// DeleteStop archives or permanently deletes a stop that no tour uses.
// A stop still reached by any tour is a conflict listing those tours.
func (s *Service) DeleteStop(ctx context.Context, stopID string, permanent bool) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Stop(ctx, stopID); err != nil {
			return err
		}
		tours, err := tx.ToursUsingStop(ctx, stopID)
		if err != nil {
			return err
		}
		if len(tours) > 0 {
			return &audiotour.ConflictError{Message: "stop is still used by tours", Tours: tours}
		}

		ids := []string{stopID}
		if !permanent {
			return tx.ArchiveStops(ctx, ids, store.Now())
		}
		if err := tx.DeleteStopResourcesOfStops(ctx, ids); err != nil {
			return err
		}
		return tx.DeleteStops(ctx, ids)
	})
}

// DeleteResource archives or permanently deletes a resource that no tour
// or stop uses. Otherwise it is a conflict listing the referencing tours
// and stops.
func (s *Service) DeleteResource(ctx context.Context, resourceID string, permanent bool) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Resource(ctx, resourceID); err != nil {
			return err
		}
		tours, err := tx.ToursUsingResource(ctx, resourceID)
		if err != nil {
			return err
		}
		stops, err := tx.StopsUsingResource(ctx, resourceID)
		if err != nil {
			return err
		}
		if len(tours) > 0 || len(stops) > 0 {
			return &audiotour.ConflictError{Message: "resource is still in use", Tours: tours, Stops: stops}
		}

		ids := []string{resourceID}
		if !permanent {
			return tx.ArchiveResources(ctx, ids, store.Now())
		}
		return s.purgeResources(ctx, tx, ids)
	})
}

// RestoreStop clears a stop's archive stamp.
func (s *Service) RestoreStop(ctx context.Context, stopID string) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		st, err := tx.Stop(ctx, stopID)
		if err != nil || st.ArchivedAt == nil {
			return err
		}
		_, err = tx.RestoreStops(ctx, []string{stopID}, *st.ArchivedAt)
		return err
	})
}

// RestoreResource clears a resource's archive stamp.
func (s *Service) RestoreResource(ctx context.Context, resourceID string) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		r, err := tx.Resource(ctx, resourceID)
		if err != nil || r.ArchivedAt == nil {
			return err
		}
		_, err = tx.RestoreResources(ctx, []string{resourceID}, *r.ArchivedAt)
		return err
	})
}
