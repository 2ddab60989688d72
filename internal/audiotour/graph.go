package audiotour

import (
	"cmp"
	"slices"
	"strings"
)

// ResourceNode is a Resource together with its Files.
type ResourceNode struct {
	Resource Resource
	Files    []File
}

// StopResourceNode is one timeline entry of a Stop.
type StopResourceNode struct {
	StopResource StopResource
	Resource     ResourceNode
}

type StopNode struct {
	Stop      Stop
	Resources []StopResourceNode
}

type TourStopNode struct {
	TourStop       TourStop
	Stop           *StopNode
	TransitionStop *StopNode
}

// TourGraph is everything reachable from a Tour: its cover Resource, intro
// Stop, and every TourStop with its Stop and transition Stop, each with
// their attached Resources and Files.
type TourGraph struct {
	Tour          Tour
	Team          *Team
	CoverResource *ResourceNode
	IntroStop     *StopNode
	TourStops     []TourStopNode
}

// Stops returns the distinct reachable Stops in visiting order: intro stop
// first, then each TourStop's Stop followed by its transition Stop.
func (g *TourGraph) Stops() []*StopNode {
	var out []*StopNode
	seen := map[string]bool{}
	add := func(n *StopNode) {
		if n == nil || seen[n.Stop.ID] {
			return
		}
		seen[n.Stop.ID] = true
		out = append(out, n)
	}
	add(g.IntroStop)
	for _, ts := range g.TourStops {
		add(ts.Stop)
		add(ts.TransitionStop)
	}
	return out
}

// Resources returns the distinct reachable Resources: the cover Resource
// first, then every Resource attached to a reachable Stop.
func (g *TourGraph) Resources() []*ResourceNode {
	var out []*ResourceNode
	seen := map[string]bool{}
	add := func(n *ResourceNode) {
		if n == nil || seen[n.Resource.ID] {
			return
		}
		seen[n.Resource.ID] = true
		out = append(out, n)
	}
	add(g.CoverResource)
	for _, s := range g.Stops() {
		for i := range s.Resources {
			add(&s.Resources[i].Resource)
		}
	}
	return out
}

// CompareStopResources orders timeline entries by Resource type, then start
// offset, then Resource name. Strings compare bytewise.
func CompareStopResources(a, b StopResourceNode) int {
	if c := strings.Compare(string(a.Resource.Resource.Type), string(b.Resource.Resource.Type)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.StopResource.Start, b.StopResource.Start); c != 0 {
		return c
	}
	return strings.Compare(a.Resource.Resource.Name, b.Resource.Resource.Name)
}

// SortStopResources sorts entries in place with CompareStopResources.
func SortStopResources(entries []StopResourceNode) {
	slices.SortStableFunc(entries, CompareStopResources)
}

// SortTourStops sorts entries in place by ascending position.
func SortTourStops(entries []TourStopNode) {
	slices.SortStableFunc(entries, func(a, b TourStopNode) int {
		return cmp.Compare(a.TourStop.Position, b.TourStop.Position)
	})
}
