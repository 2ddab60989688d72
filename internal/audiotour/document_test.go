package audiotour_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tourcast/internal/audiotour"
)

func sampleGraph() *audiotour.TourGraph {
	narration := audiotour.ResourceNode{
		Resource: audiotour.Resource{ID: "r-audio", Type: audiotour.ResourceTypeAudio, Name: "Narration"},
		Files:    []audiotour.File{{ID: "f-audio", ResourceID: "r-audio", Variant: "en-us", Key: "narration.mp3"}},
	}
	photo := audiotour.ResourceNode{
		Resource: audiotour.Resource{ID: "r-image", Type: audiotour.ResourceTypeImage, Name: "Photo"},
		Files:    []audiotour.File{{ID: "f-image", ResourceID: "r-image", Variant: "en-us", Key: "photo & co.jpg"}},
	}
	stop := &audiotour.StopNode{
		Stop: audiotour.Stop{ID: "s1", Type: audiotour.StopTypeStop},
		Resources: []audiotour.StopResourceNode{
			{StopResource: audiotour.StopResource{ID: "sr-image", StopID: "s1", ResourceID: "r-image"}, Resource: photo},
			{StopResource: audiotour.StopResource{ID: "sr-audio", StopID: "s1", ResourceID: "r-audio"}, Resource: narration},
		},
	}
	return &audiotour.TourGraph{
		Tour: audiotour.Tour{ID: "t1", TeamID: "team", Name: "Old Town", Visibility: audiotour.VisibilityPublic},
		Team: &audiotour.Team{ID: "team", Name: "Museum"},
		TourStops: []audiotour.TourStopNode{
			{TourStop: audiotour.TourStop{ID: "ts2", TourID: "t1", StopID: "s1", Position: 2}, Stop: stop},
			{TourStop: audiotour.TourStop{ID: "ts1", TourID: "t1", StopID: "s1", Position: 1}, Stop: stop},
		},
	}
}

func TestNewTourDocumentOrdering(t *testing.T) {
	g := sampleGraph()
	doc := audiotour.NewTourDocument(g, audiotour.AssetURLs{BaseURL: "https://x"})

	require.Len(t, doc.TourStops, 2)
	assert.Equal(t, "ts1", doc.TourStops[0].ID)
	assert.Equal(t, "ts2", doc.TourStops[1].ID)

	res := doc.TourStops[0].Stop.Resources
	require.Len(t, res, 2)
	assert.Equal(t, audiotour.ResourceTypeAudio, res[0].Type)
	assert.Equal(t, audiotour.ResourceTypeImage, res[1].Type)
	assert.Equal(t, "sr-audio", res[0].StopResource.ID)

	// The input graph keeps its original order.
	assert.Equal(t, "ts2", g.TourStops[0].TourStop.ID)
	assert.Equal(t, "sr-image", g.TourStops[0].Stop.Resources[0].StopResource.ID)
}

func TestMarshalDocumentKeepsURLsVerbatim(t *testing.T) {
	doc := audiotour.NewTourDocument(sampleGraph(), audiotour.AssetURLs{BaseURL: "https://x"})

	data, err := audiotour.MarshalDocument(doc)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "https://x/api/assets/files/f-image/key/photo%20&%20co.jpg"))
	assert.False(t, strings.HasSuffix(string(data), "\n"))

	refs := audiotour.FindAssetRefs(data)
	assert.Len(t, refs, 2)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "Old Town", back["name"])
}

func TestMarshalDocumentDeterministic(t *testing.T) {
	urls := audiotour.AssetURLs{BaseURL: "https://x"}
	first, err := audiotour.MarshalDocument(audiotour.NewTourDocument(sampleGraph(), urls))
	require.NoError(t, err)
	second, err := audiotour.MarshalDocument(audiotour.NewTourDocument(sampleGraph(), urls))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
