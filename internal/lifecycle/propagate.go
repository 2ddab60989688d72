package lifecycle

import (
	"context"
	"fmt"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/store"
)

// Propagation counts the nodes a PropagateVariants call changed.
type Propagation struct {
	Stops     int
	Resources int
	Files     int
}

func (p Propagation) Changed() bool { return p.Stops+p.Resources+p.Files > 0 }

// PropagateVariants makes every Stop and Resource reachable from the tour
// carry the tour's variants. Missing variants are appended to each node,
// stops gain empty names and descriptions for them, and every resource
// gets a File per tour variant. Running it again changes nothing.
func PropagateVariants(ctx context.Context, tx *store.Tx, tourID string) (Propagation, error) {
	var p Propagation
	g, err := tx.LoadTourGraph(ctx, tourID)
	if err != nil {
		return p, fmt.Errorf("loading tour graph: %w", err)
	}
	variants := g.Tour.Variants

	for _, n := range g.Stops() {
		changed, err := applyStopVariants(ctx, tx, &n.Stop, variants)
		if err != nil {
			return p, err
		}
		if changed {
			p.Stops++
		}
	}

	for _, n := range g.Resources() {
		changed, files, err := applyResourceVariants(ctx, tx, &n.Resource, variants)
		if err != nil {
			return p, err
		}
		if changed {
			p.Resources++
		}
		p.Files += files
	}
	return p, nil
}

func applyStopVariants(ctx context.Context, tx *store.Tx, s *audiotour.Stop, variants []audiotour.Variant) (bool, error) {
	merged, added := audiotour.MergeVariants(s.Variants, variants)
	codes := audiotour.VariantCodes(added)
	names, namesChanged := audiotour.EnsureKeys(s.Names, codes)
	descriptions, descChanged := audiotour.EnsureKeys(s.Descriptions, codes)
	if len(added) == 0 && !namesChanged && !descChanged {
		return false, nil
	}
	s.Variants, s.Names, s.Descriptions = merged, names, descriptions
	if err := tx.UpdateStop(ctx, s); err != nil {
		return false, fmt.Errorf("updating stop %s: %w", s.ID, err)
	}
	return true, nil
}

// applyResourceVariants merges variants into r and finds or creates a File
// for each of them. It reports whether r changed and how many files were
// created.
func applyResourceVariants(ctx context.Context, tx *store.Tx, r *audiotour.Resource, variants []audiotour.Variant) (bool, int, error) {
	merged, added := audiotour.MergeVariants(r.Variants, variants)
	if len(added) > 0 {
		r.Variants = merged
		if err := tx.UpdateResource(ctx, r); err != nil {
			return false, 0, fmt.Errorf("updating resource %s: %w", r.ID, err)
		}
	}

	created := 0
	for _, v := range variants {
		_, ok, err := tx.EnsureFile(ctx, r.ID, v.Code)
		if err != nil {
			return false, 0, fmt.Errorf("ensuring %s file of resource %s: %w", v.Code, r.ID, err)
		}
		if ok {
			created++
		}
	}
	return len(added) > 0, created, nil
}
