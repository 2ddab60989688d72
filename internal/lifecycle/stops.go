package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/store"
)

type StopInput struct {
	Type         audiotour.StopType
	Link         string
	Address      string
	Coordinate   *audiotour.Coordinate
	Names        map[string]string
	Descriptions map[string]string
	// Variants defaults to the team's variants when empty.
	Variants []audiotour.Variant
}

func (s *Service) CreateStop(ctx context.Context, teamID string, in StopInput) (audiotour.Stop, error) {
	st := audiotour.Stop{
		TeamID:       teamID,
		Type:         in.Type,
		Link:         strings.TrimSpace(in.Link),
		Address:      in.Address,
		Coordinate:   in.Coordinate,
		Names:        in.Names,
		Descriptions: in.Descriptions,
		Variants:     in.Variants,
	}
	if st.Type == "" {
		st.Type = audiotour.StopTypeStop
	}
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		team, err := tx.Team(ctx, teamID)
		if err != nil {
			return err
		}
		if len(st.Variants) == 0 {
			st.Variants = team.Variants
		}
		if err := validateStop(ctx, tx, &st); err != nil {
			return err
		}
		codes := audiotour.VariantCodes(st.Variants)
		st.Names, _ = audiotour.EnsureKeys(st.Names, codes)
		st.Descriptions, _ = audiotour.EnsureKeys(st.Descriptions, codes)
		return tx.CreateStop(ctx, &st)
	})
	return st, err
}

func validateStop(ctx context.Context, tx *store.Tx, st *audiotour.Stop) error {
	var verr audiotour.ValidationError
	switch st.Type {
	case audiotour.StopTypeIntro, audiotour.StopTypeStop, audiotour.StopTypeTransition:
	default:
		verr.Add("type", "unknown stop type", st.Type)
	}
	if c := st.Coordinate; c != nil && (c.Type != "Point" || len(c.Coordinates) != 2) {
		verr.Add("coordinate", "coordinate must be a GeoJSON point", c)
	}
	audiotour.ValidateVariants("variants", st.Variants, &verr)
	if st.Link != "" {
		taken, err := tx.StopLinkTaken(ctx, st.TeamID, st.Link, st.ID)
		if err != nil {
			return err
		}
		if taken {
			verr.Add("link", "link is already used by another stop", st.Link)
		}
	}
	return verr.OrNil()
}

// StopPatch holds the fields of an UpdateStop call; nil fields are kept.
type StopPatch struct {
	Type         *audiotour.StopType
	Link         *string
	Address      *string
	Coordinate   *audiotour.Coordinate
	Names        map[string]string
	Descriptions map[string]string
	Variants     []audiotour.Variant
}

// UpdateStop saves the patch. Variants added to the stop are applied to
// every resource on its timeline.
func (s *Service) UpdateStop(ctx context.Context, stopID string, patch StopPatch) (audiotour.Stop, error) {
	var st audiotour.Stop
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if st, err = tx.Stop(ctx, stopID); err != nil {
			return err
		}
		if patch.Type != nil {
			st.Type = *patch.Type
		}
		if patch.Link != nil {
			st.Link = strings.TrimSpace(*patch.Link)
		}
		if patch.Address != nil {
			st.Address = *patch.Address
		}
		if patch.Coordinate != nil {
			st.Coordinate = patch.Coordinate
		}
		if patch.Names != nil {
			st.Names = patch.Names
		}
		if patch.Descriptions != nil {
			st.Descriptions = patch.Descriptions
		}
		variantsChanged := false
		if patch.Variants != nil {
			variantsChanged = !audiotour.VariantsEqual(st.Variants, patch.Variants)
			st.Variants = patch.Variants
		}
		if err := validateStop(ctx, tx, &st); err != nil {
			return err
		}
		codes := audiotour.VariantCodes(st.Variants)
		st.Names, _ = audiotour.EnsureKeys(st.Names, codes)
		st.Descriptions, _ = audiotour.EnsureKeys(st.Descriptions, codes)
		if err := tx.UpdateStop(ctx, &st); err != nil {
			return err
		}
		if !variantsChanged {
			return nil
		}

		entries, err := tx.StopResources(ctx, st.ID)
		if err != nil {
			return err
		}
		for _, sr := range entries {
			r, err := tx.Resource(ctx, sr.ResourceID)
			if err != nil {
				return err
			}
			if _, _, err := applyResourceVariants(ctx, tx, &r, st.Variants); err != nil {
				return err
			}
		}
		return nil
	})
	return st, err
}

type StopResourceInput struct {
	ResourceID string
	Start      int
	End        *int
	PauseAtEnd bool
	Options    json.RawMessage
}

func validateTimeline(start int, end *int) error {
	var verr audiotour.ValidationError
	if start < 0 {
		verr.Add("start", "start must not be negative", start)
	}
	if end != nil && *end < start {
		verr.Add("end", "end must not be before start", *end)
	}
	return verr.OrNil()
}

// AddStopResource places a resource on the stop's timeline. The resource
// receives the stop's variants.
func (s *Service) AddStopResource(ctx context.Context, stopID string, in StopResourceInput) (audiotour.StopResource, error) {
	sr := audiotour.StopResource{
		StopID:     stopID,
		Start:      in.Start,
		End:        in.End,
		PauseAtEnd: in.PauseAtEnd,
		Options:    in.Options,
	}
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		st, err := tx.Stop(ctx, stopID)
		if err != nil {
			return err
		}
		if in.ResourceID == "" {
			return audiotour.Invalid("resourceId", "resourceId is required", in.ResourceID)
		}
		if err := validateTimeline(sr.Start, sr.End); err != nil {
			return err
		}
		id, err := s.teamResourceRef(ctx, tx, st.TeamID, "resourceId", in.ResourceID)
		if err != nil {
			return err
		}
		sr.ResourceID = *id
		if err := tx.CreateStopResource(ctx, &sr); err != nil {
			return err
		}

		r, err := tx.Resource(ctx, sr.ResourceID)
		if err != nil {
			return err
		}
		_, _, err = applyResourceVariants(ctx, tx, &r, st.Variants)
		return err
	})
	return sr, err
}

// StopResourcePatch holds the timeline fields of an UpdateStopResource
// call; nil fields are kept. ClearEnd removes the end.
type StopResourcePatch struct {
	Start      *int
	End        *int
	ClearEnd   bool
	PauseAtEnd *bool
	Options    json.RawMessage
}

func (s *Service) UpdateStopResource(ctx context.Context, stopID, stopResourceID string, patch StopResourcePatch) (audiotour.StopResource, error) {
	var sr audiotour.StopResource
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		if sr, err = stopResourceOf(ctx, tx, stopID, stopResourceID); err != nil {
			return err
		}
		if patch.Start != nil {
			sr.Start = *patch.Start
		}
		if patch.End != nil {
			sr.End = patch.End
		}
		if patch.ClearEnd {
			sr.End = nil
		}
		if patch.PauseAtEnd != nil {
			sr.PauseAtEnd = *patch.PauseAtEnd
		}
		if patch.Options != nil {
			sr.Options = patch.Options
		}
		if err := validateTimeline(sr.Start, sr.End); err != nil {
			return err
		}
		return tx.UpdateStopResource(ctx, &sr)
	})
	return sr, err
}

// RemoveStopResource takes a resource off the stop's timeline. The
// resource itself is kept.
func (s *Service) RemoveStopResource(ctx context.Context, stopID, stopResourceID string) error {
	return s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := stopResourceOf(ctx, tx, stopID, stopResourceID); err != nil {
			return err
		}
		return tx.DeleteStopResource(ctx, stopResourceID)
	})
}

func stopResourceOf(ctx context.Context, tx *store.Tx, stopID, stopResourceID string) (audiotour.StopResource, error) {
	sr, err := tx.StopResource(ctx, stopResourceID)
	if err != nil {
		return sr, err
	}
	if sr.StopID != stopID {
		return sr, fmt.Errorf("stop resource %s: %w", stopResourceID, audiotour.ErrNotFound)
	}
	return sr, nil
}
