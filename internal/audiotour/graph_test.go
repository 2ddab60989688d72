package audiotour_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/playperu/tourcast/internal/audiotour"
)

func entry(id string, typ audiotour.ResourceType, start int, name string) audiotour.StopResourceNode {
	return audiotour.StopResourceNode{
		StopResource: audiotour.StopResource{ID: id, Start: start},
		Resource: audiotour.ResourceNode{
			Resource: audiotour.Resource{ID: "r-" + id, Type: typ, Name: name},
		},
	}
}

func ids(entries []audiotour.StopResourceNode) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.StopResource.ID
	}
	return out
}

func TestSortStopResources(t *testing.T) {
	tests := []struct {
		name    string
		entries []audiotour.StopResourceNode
		want    []string
	}{
		{
			name: "type compares bytewise",
			entries: []audiotour.StopResourceNode{
				entry("image", audiotour.ResourceTypeImage, 0, "a"),
				entry("audio", audiotour.ResourceTypeAudio, 0, "a"),
			},
			want: []string{"audio", "image"},
		},
		{
			name: "digits sort before letters",
			entries: []audiotour.StopResourceNode{
				entry("video", audiotour.ResourceTypeVideo, 0, "a"),
				entry("model", audiotour.ResourceType3DModel, 0, "a"),
				entry("ar", audiotour.ResourceTypeARLink, 0, "a"),
			},
			want: []string{"model", "ar", "video"},
		},
		{
			name: "same type orders by start",
			entries: []audiotour.StopResourceNode{
				entry("late", audiotour.ResourceTypeImage, 30, "a"),
				entry("early", audiotour.ResourceTypeImage, 5, "z"),
			},
			want: []string{"early", "late"},
		},
		{
			name: "same type and start orders by name",
			entries: []audiotour.StopResourceNode{
				entry("beta", audiotour.ResourceTypeImage, 10, "Beta"),
				entry("alpha", audiotour.ResourceTypeImage, 10, "Alpha"),
				entry("lower", audiotour.ResourceTypeImage, 10, "alpha"),
			},
			want: []string{"alpha", "beta", "lower"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audiotour.SortStopResources(tt.entries)
			assert.Equal(t, tt.want, ids(tt.entries))
		})
	}
}

func TestSortTourStops(t *testing.T) {
	stops := []audiotour.TourStopNode{
		{TourStop: audiotour.TourStop{ID: "c", Position: 3}},
		{TourStop: audiotour.TourStop{ID: "a", Position: 1}},
		{TourStop: audiotour.TourStop{ID: "b", Position: 2}},
	}
	audiotour.SortTourStops(stops)

	got := []string{stops[0].TourStop.ID, stops[1].TourStop.ID, stops[2].TourStop.ID}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestGraphReachableDedupes(t *testing.T) {
	shared := &audiotour.StopNode{
		Stop: audiotour.Stop{ID: "s1"},
		Resources: []audiotour.StopResourceNode{
			entry("sr1", audiotour.ResourceTypeAudio, 0, "narration"),
		},
	}
	transition := &audiotour.StopNode{Stop: audiotour.Stop{ID: "t1"}}
	cover := &audiotour.ResourceNode{Resource: audiotour.Resource{ID: "r-sr1"}}

	g := &audiotour.TourGraph{
		IntroStop:     shared,
		CoverResource: cover,
		TourStops: []audiotour.TourStopNode{
			{Stop: shared, TransitionStop: transition},
			{Stop: transition},
		},
	}

	stops := g.Stops()
	if assert.Len(t, stops, 2) {
		assert.Equal(t, "s1", stops[0].Stop.ID)
		assert.Equal(t, "t1", stops[1].Stop.ID)
	}
	assert.Len(t, g.Resources(), 1)
}
