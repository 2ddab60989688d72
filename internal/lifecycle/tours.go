package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

type TourInput struct {
	Name         string
	Names        map[string]string
	Descriptions map[string]string
	// Variants defaults to the team's variants when empty.
	Variants   []audiotour.Variant
	Visibility audiotour.Visibility
}

func (s *Service) CreateTour(ctx context.Context, teamID string, in TourInput) (audiotour.Tour, error) {
	tr := audiotour.Tour{
		TeamID:       teamID,
		Name:         strings.TrimSpace(in.Name),
		Names:        in.Names,
		Descriptions: in.Descriptions,
		Variants:     in.Variants,
		Visibility:   in.Visibility,
	}
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		team, err := tx.Team(ctx, teamID)
		if err != nil {
			return err
		}
		if len(tr.Variants) == 0 {
			tr.Variants = team.Variants
		}
		if err := validateTour(&tr); err != nil {
			return err
		}
		codes := audiotour.VariantCodes(tr.Variants)
		tr.Names, _ = audiotour.EnsureKeys(tr.Names, codes)
		tr.Descriptions, _ = audiotour.EnsureKeys(tr.Descriptions, codes)
		return tx.CreateTour(ctx, &tr)
	})
	if err != nil {
		return tr, err
	}
	s.emit(ctx, notify.TourUpdated, teamID, tr.ID, "")
	return tr, nil
}

func validateTour(tr *audiotour.Tour) error {
	var verr audiotour.ValidationError
	if tr.Name == "" {
		verr.Add("name", "name is required", tr.Name)
	}
	switch tr.Visibility {
	case "", audiotour.VisibilityPublic, audiotour.VisibilityUnlisted, audiotour.VisibilityPrivate:
	default:
		verr.Add("visibility", "unknown visibility", tr.Visibility)
	}
	audiotour.ValidateVariants("variants", tr.Variants, &verr)
	return verr.OrNil()
}

// TourPatch holds the fields of an UpdateTour call; nil fields are kept.
// An empty CoverResourceID or IntroStopID clears the reference.
type TourPatch struct {
	Name            *string
	Names           map[string]string
	Descriptions    map[string]string
	Variants        []audiotour.Variant
	Visibility      *audiotour.Visibility
	CoverResourceID *string
	IntroStopID     *string
}

// UpdateTour saves the patch and, when variants, cover or intro changed,
// propagates the tour's variants through its graph in the same transaction.
func (s *Service) UpdateTour(ctx context.Context, tourID string, patch TourPatch) (audiotour.Tour, Propagation, error) {
	var tr audiotour.Tour
	var p Propagation
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if tr, err = tx.Tour(ctx, tourID); err != nil {
			return err
		}
		if tr.ArchivedAt != nil {
			return &audiotour.ConflictError{Message: "archived tours cannot be edited"}
		}

		graphChanged := false
		if patch.Name != nil {
			tr.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Names != nil {
			tr.Names = patch.Names
		}
		if patch.Descriptions != nil {
			tr.Descriptions = patch.Descriptions
		}
		if patch.Visibility != nil {
			tr.Visibility = *patch.Visibility
		}
		if patch.Variants != nil {
			graphChanged = graphChanged || !audiotour.VariantsEqual(tr.Variants, patch.Variants)
			tr.Variants = patch.Variants
		}
		if patch.CoverResourceID != nil {
			id, err := s.teamResourceRef(ctx, tx, tr.TeamID, "coverResourceId", *patch.CoverResourceID)
			if err != nil {
				return err
			}
			graphChanged = graphChanged || !sameRef(tr.CoverResourceID, id)
			tr.CoverResourceID = id
		}
		if patch.IntroStopID != nil {
			id, err := s.teamStopRef(ctx, tx, tr.TeamID, "introStopId", *patch.IntroStopID)
			if err != nil {
				return err
			}
			graphChanged = graphChanged || !sameRef(tr.IntroStopID, id)
			tr.IntroStopID = id
		}
		if err := validateTour(&tr); err != nil {
			return err
		}
		codes := audiotour.VariantCodes(tr.Variants)
		tr.Names, _ = audiotour.EnsureKeys(tr.Names, codes)
		tr.Descriptions, _ = audiotour.EnsureKeys(tr.Descriptions, codes)

		if err := tx.UpdateTour(ctx, &tr); err != nil {
			return err
		}
		if !graphChanged {
			return nil
		}
		p, err = PropagateVariants(ctx, tx, tourID)
		return err
	})
	if err != nil {
		return tr, p, err
	}
	if p.Changed() {
		s.logger.Info("variants propagated", "tour_id", tourID, "stops", p.Stops, "resources", p.Resources, "files", p.Files)
	}
	s.emit(ctx, notify.TourUpdated, tr.TeamID, tourID, "")
	return tr, p, nil
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// teamStopRef resolves a stop id given in an input field. The stop must be
// an active stop of the team; "" yields nil.
func (s *Service) teamStopRef(ctx context.Context, tx *store.Tx, teamID, path, id string) (*string, error) {
	if id == "" {
		return nil, nil
	}
	st, err := tx.Stop(ctx, id)
	if err != nil || st.TeamID != teamID {
		return nil, audiotour.Invalid(path, "stop does not exist", id)
	}
	if st.ArchivedAt != nil {
		return nil, audiotour.Invalid(path, "stop is archived", id)
	}
	return &st.ID, nil
}

func (s *Service) teamResourceRef(ctx context.Context, tx *store.Tx, teamID, path, id string) (*string, error) {
	if id == "" {
		return nil, nil
	}
	r, err := tx.Resource(ctx, id)
	if err != nil || r.TeamID != teamID {
		return nil, audiotour.Invalid(path, "resource does not exist", id)
	}
	if r.ArchivedAt != nil {
		return nil, audiotour.Invalid(path, "resource is archived", id)
	}
	return &r.ID, nil
}

type TourStopInput struct {
	StopID           string
	TransitionStopID string
	// Position defaults to the end of the tour.
	Position *int
}

// AddTourStop appends a stop to the tour. The stop and its transition
// receive the tour's variants.
func (s *Service) AddTourStop(ctx context.Context, tourID string, in TourStopInput) (audiotour.TourStop, error) {
	ts := audiotour.TourStop{TourID: tourID}
	var teamID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		tr, err := s.editableTour(ctx, tx, tourID)
		if err != nil {
			return err
		}
		teamID = tr.TeamID

		if in.StopID == "" {
			return audiotour.Invalid("stopId", "stopId is required", in.StopID)
		}
		stopID, err := s.teamStopRef(ctx, tx, teamID, "stopId", in.StopID)
		if err != nil {
			return err
		}
		ts.StopID = *stopID
		if ts.TransitionStopID, err = s.teamStopRef(ctx, tx, teamID, "transitionStopId", in.TransitionStopID); err != nil {
			return err
		}
		if in.Position != nil {
			ts.Position = *in.Position
		} else if ts.Position, err = tx.NextTourStopPosition(ctx, tourID); err != nil {
			return err
		}
		if err := tx.CreateTourStop(ctx, &ts); err != nil {
			return err
		}
		_, err = PropagateVariants(ctx, tx, tourID)
		return err
	})
	if err != nil {
		return ts, err
	}
	s.emit(ctx, notify.TourUpdated, teamID, tourID, "")
	return ts, nil
}

// TourStopPatch moves a tour stop or changes its transition; an empty
// TransitionStopID removes the transition.
type TourStopPatch struct {
	TransitionStopID *string
	Position         *int
}

func (s *Service) UpdateTourStop(ctx context.Context, tourID, tourStopID string, patch TourStopPatch) (audiotour.TourStop, error) {
	var ts audiotour.TourStop
	var teamID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		tr, err := s.editableTour(ctx, tx, tourID)
		if err != nil {
			return err
		}
		teamID = tr.TeamID
		if ts, err = tourStopOf(ctx, tx, tourID, tourStopID); err != nil {
			return err
		}

		propagate := false
		if patch.TransitionStopID != nil {
			id, err := s.teamStopRef(ctx, tx, teamID, "transitionStopId", *patch.TransitionStopID)
			if err != nil {
				return err
			}
			propagate = !sameRef(ts.TransitionStopID, id)
			ts.TransitionStopID = id
		}
		if patch.Position != nil {
			ts.Position = *patch.Position
		}
		if err := tx.UpdateTourStop(ctx, &ts); err != nil {
			return err
		}
		if propagate {
			_, err = PropagateVariants(ctx, tx, tourID)
		}
		return err
	})
	if err != nil {
		return ts, err
	}
	s.emit(ctx, notify.TourUpdated, teamID, tourID, "")
	return ts, nil
}

// RemoveTourStop detaches a stop from the tour. The stop itself is kept.
func (s *Service) RemoveTourStop(ctx context.Context, tourID, tourStopID string) error {
	var teamID string
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		tr, err := s.editableTour(ctx, tx, tourID)
		if err != nil {
			return err
		}
		teamID = tr.TeamID
		if _, err := tourStopOf(ctx, tx, tourID, tourStopID); err != nil {
			return err
		}
		return tx.DeleteTourStop(ctx, tourStopID)
	})
	if err != nil {
		return err
	}
	s.emit(ctx, notify.TourUpdated, teamID, tourID, "")
	return nil
}

func (s *Service) editableTour(ctx context.Context, tx *store.Tx, tourID string) (audiotour.Tour, error) {
	tr, err := tx.Tour(ctx, tourID)
	if err != nil {
		return tr, err
	}
	if tr.ArchivedAt != nil {
		return tr, &audiotour.ConflictError{Message: "archived tours cannot be edited"}
	}
	return tr, nil
}

func tourStopOf(ctx context.Context, tx *store.Tx, tourID, tourStopID string) (audiotour.TourStop, error) {
	ts, err := tx.TourStop(ctx, tourStopID)
	if err != nil {
		return ts, err
	}
	if ts.TourID != tourID {
		return ts, fmt.Errorf("tour stop %s: %w", tourStopID, audiotour.ErrNotFound)
	}
	return ts, nil
}
