package store

import (
	"context"
	"fmt"

	"github.com/playperu/tourcast/internal/audiotour"
)

// graphLoader loads each Stop and Resource of a tour graph once, so nodes
// reached by several paths share one value.
type graphLoader struct {
	tx        *Tx
	stops     map[string]*audiotour.StopNode
	resources map[string]*audiotour.ResourceNode
}

// LoadTourGraph loads the tour with its team, cover resource, intro stop
// and tour stops, each stop with its timeline and every resource with its
// files. Tour stops come back ordered by position; timelines are in
// storage order.
func (t *Tx) LoadTourGraph(ctx context.Context, tourID string) (*audiotour.TourGraph, error) {
	tour, err := t.Tour(ctx, tourID)
	if err != nil {
		return nil, err
	}
	g := &audiotour.TourGraph{Tour: tour}

	team, err := t.Team(ctx, tour.TeamID)
	if err != nil {
		return nil, fmt.Errorf("loading team %s: %w", tour.TeamID, err)
	}
	g.Team = &team

	l := &graphLoader{
		tx:        t,
		stops:     map[string]*audiotour.StopNode{},
		resources: map[string]*audiotour.ResourceNode{},
	}

	if tour.CoverResourceID != nil {
		if g.CoverResource, err = l.resource(ctx, *tour.CoverResourceID); err != nil {
			return nil, fmt.Errorf("loading cover resource: %w", err)
		}
	}
	if tour.IntroStopID != nil {
		if g.IntroStop, err = l.stop(ctx, *tour.IntroStopID); err != nil {
			return nil, fmt.Errorf("loading intro stop: %w", err)
		}
	}

	tourStops, err := t.TourStops(ctx, tourID)
	if err != nil {
		return nil, err
	}
	for _, ts := range tourStops {
		node := audiotour.TourStopNode{TourStop: ts}
		if node.Stop, err = l.stop(ctx, ts.StopID); err != nil {
			return nil, fmt.Errorf("loading stop %s: %w", ts.StopID, err)
		}
		if ts.TransitionStopID != nil {
			if node.TransitionStop, err = l.stop(ctx, *ts.TransitionStopID); err != nil {
				return nil, fmt.Errorf("loading transition stop %s: %w", *ts.TransitionStopID, err)
			}
		}
		g.TourStops = append(g.TourStops, node)
	}
	return g, nil
}

func (l *graphLoader) stop(ctx context.Context, id string) (*audiotour.StopNode, error) {
	if n, ok := l.stops[id]; ok {
		return n, nil
	}
	s, err := l.tx.Stop(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := l.tx.StopResources(ctx, id)
	if err != nil {
		return nil, err
	}

	n := &audiotour.StopNode{Stop: s}
	for _, sr := range entries {
		res, err := l.resource(ctx, sr.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("loading resource %s: %w", sr.ResourceID, err)
		}
		n.Resources = append(n.Resources, audiotour.StopResourceNode{StopResource: sr, Resource: *res})
	}
	l.stops[id] = n
	return n, nil
}

func (l *graphLoader) resource(ctx context.Context, id string) (*audiotour.ResourceNode, error) {
	if n, ok := l.resources[id]; ok {
		return n, nil
	}
	r, err := l.tx.Resource(ctx, id)
	if err != nil {
		return nil, err
	}
	files, err := l.tx.Files(ctx, id)
	if err != nil {
		return nil, err
	}
	n := &audiotour.ResourceNode{Resource: r, Files: files}
	l.resources[id] = n
	return n, nil
}

// LoadStopNode loads a single stop with its timeline and the files of each
// attached resource.
func (t *Tx) LoadStopNode(ctx context.Context, stopID string) (*audiotour.StopNode, error) {
	l := &graphLoader{
		tx:        t,
		stops:     map[string]*audiotour.StopNode{},
		resources: map[string]*audiotour.ResourceNode{},
	}
	return l.stop(ctx, stopID)
}
