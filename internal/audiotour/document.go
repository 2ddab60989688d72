package audiotour

import (
	"bytes"
	"encoding/json"
	"time"
)

// Public JSON records. Field names follow the shape the viewers consume.

type TeamJSON struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Link     string    `json:"link"`
	Variants []Variant `json:"variants"`
}

type FileJSON struct {
	ID           string   `json:"id"`
	ResourceID   string   `json:"ResourceId"`
	Variant      string   `json:"variant"`
	URL          *string  `json:"URL"`
	ExternalURL  string   `json:"externalURL"`
	Key          string   `json:"key"`
	OriginalName string   `json:"originalName"`
	Duration     *float64 `json:"duration"`
	Width        *int     `json:"width"`
	Height       *int     `json:"height"`
}

type StopResourceJSON struct {
	ID         string          `json:"id"`
	StopID     string          `json:"StopId"`
	ResourceID string          `json:"ResourceId"`
	Start      int             `json:"start"`
	End        *int            `json:"end"`
	PauseAtEnd bool            `json:"pauseAtEnd"`
	Options    json.RawMessage `json:"options,omitempty"`
}

type ResourceJSON struct {
	ID           string            `json:"id"`
	TeamID       string            `json:"TeamId"`
	Name         string            `json:"name"`
	Type         ResourceType      `json:"type"`
	Data         json.RawMessage   `json:"data"`
	Variants     []Variant         `json:"variants"`
	ArchivedAt   *time.Time        `json:"archivedAt"`
	Files        []FileJSON        `json:"Files,omitempty"`
	StopResource *StopResourceJSON `json:"StopResource,omitempty"`
}

type StopJSON struct {
	ID           string            `json:"id"`
	TeamID       string            `json:"TeamId"`
	Type         StopType          `json:"type"`
	Link         string            `json:"link"`
	Address      string            `json:"address"`
	Coordinate   *Coordinate       `json:"coordinate"`
	Names        map[string]string `json:"names"`
	Descriptions map[string]string `json:"descriptions"`
	Variants     []Variant         `json:"variants"`
	ArchivedAt   *time.Time        `json:"archivedAt"`
	Resources    []ResourceJSON    `json:"Resources,omitempty"`
}

type TourStopJSON struct {
	ID               string    `json:"id"`
	TourID           string    `json:"TourId"`
	StopID           string    `json:"StopId"`
	TransitionStopID *string   `json:"TransitionStopId"`
	Position         int       `json:"position"`
	Stop             *StopJSON `json:"Stop,omitempty"`
	TransitionStop   *StopJSON `json:"TransitionStop,omitempty"`
}

type TourJSON struct {
	ID              string            `json:"id"`
	TeamID          string            `json:"TeamId"`
	CoverResourceID *string           `json:"CoverResourceId"`
	IntroStopID     *string           `json:"IntroStopId"`
	Name            string            `json:"name"`
	Names           map[string]string `json:"names"`
	Descriptions    map[string]string `json:"descriptions"`
	Variants        []Variant         `json:"variants"`
	Visibility      Visibility        `json:"visibility"`
	ArchivedAt      *time.Time        `json:"archivedAt"`
	CoverResource   *ResourceJSON     `json:"CoverResource,omitempty"`
	IntroStop       *StopJSON         `json:"IntroStop,omitempty"`
	Team            *TeamJSON         `json:"Team,omitempty"`
	TourStops       []TourStopJSON    `json:"TourStops,omitempty"`
}

type VersionJSON struct {
	ID          string          `json:"id"`
	TourID      string          `json:"TourId"`
	IsStaging   bool            `json:"isStaging"`
	IsLive      bool            `json:"isLive"`
	HasPassword bool            `json:"hasPassword"`
	Data        json.RawMessage `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewTeamJSON(t Team) TeamJSON {
	return TeamJSON{ID: t.ID, Name: t.Name, Link: t.Link, Variants: nonNilVariants(t.Variants)}
}

func NewFileJSON(f File, urls AssetURLs) FileJSON {
	return FileJSON{
		ID:           f.ID,
		ResourceID:   f.ResourceID,
		Variant:      f.Variant,
		URL:          urls.FileURL(f),
		ExternalURL:  f.ExternalURL,
		Key:          f.Key,
		OriginalName: f.OriginalName,
		Duration:     f.Duration,
		Width:        f.Width,
		Height:       f.Height,
	}
}

func NewResourceJSON(r Resource) ResourceJSON {
	return ResourceJSON{
		ID:         r.ID,
		TeamID:     r.TeamID,
		Name:       r.Name,
		Type:       r.Type,
		Data:       r.Data,
		Variants:   nonNilVariants(r.Variants),
		ArchivedAt: r.ArchivedAt,
	}
}

func NewResourceNodeJSON(n ResourceNode, urls AssetURLs) ResourceJSON {
	out := NewResourceJSON(n.Resource)
	out.Files = make([]FileJSON, len(n.Files))
	for i, f := range n.Files {
		out.Files[i] = NewFileJSON(f, urls)
	}
	return out
}

func NewStopResourceJSON(sr StopResource) StopResourceJSON {
	return StopResourceJSON{
		ID:         sr.ID,
		StopID:     sr.StopID,
		ResourceID: sr.ResourceID,
		Start:      sr.Start,
		End:        sr.End,
		PauseAtEnd: sr.PauseAtEnd,
		Options:    sr.Options,
	}
}

func NewStopJSON(s Stop) StopJSON {
	return StopJSON{
		ID:           s.ID,
		TeamID:       s.TeamID,
		Type:         s.Type,
		Link:         s.Link,
		Address:      s.Address,
		Coordinate:   s.Coordinate,
		Names:        nonNilMap(s.Names),
		Descriptions: nonNilMap(s.Descriptions),
		Variants:     nonNilVariants(s.Variants),
		ArchivedAt:   s.ArchivedAt,
	}
}

// NewStopNodeJSON serializes a Stop with its timeline entries sorted by
// CompareStopResources. n is not modified.
func NewStopNodeJSON(n StopNode, urls AssetURLs) StopJSON {
	out := NewStopJSON(n.Stop)
	entries := append([]StopResourceNode(nil), n.Resources...)
	SortStopResources(entries)
	out.Resources = make([]ResourceJSON, len(entries))
	for i, e := range entries {
		r := NewResourceNodeJSON(e.Resource, urls)
		sr := NewStopResourceJSON(e.StopResource)
		r.StopResource = &sr
		out.Resources[i] = r
	}
	return out
}

func NewTourStopJSON(ts TourStop) TourStopJSON {
	return TourStopJSON{
		ID:               ts.ID,
		TourID:           ts.TourID,
		StopID:           ts.StopID,
		TransitionStopID: ts.TransitionStopID,
		Position:         ts.Position,
	}
}

func NewTourJSON(t Tour) TourJSON {
	return TourJSON{
		ID:              t.ID,
		TeamID:          t.TeamID,
		CoverResourceID: t.CoverResourceID,
		IntroStopID:     t.IntroStopID,
		Name:            t.Name,
		Names:           nonNilMap(t.Names),
		Descriptions:    nonNilMap(t.Descriptions),
		Variants:        nonNilVariants(t.Variants),
		Visibility:      t.Visibility,
		ArchivedAt:      t.ArchivedAt,
	}
}

// NewTourDocument serializes a full Tour graph: TourStops by position,
// each Stop's Resources by CompareStopResources. g is not modified.
func NewTourDocument(g *TourGraph, urls AssetURLs) TourJSON {
	out := NewTourJSON(g.Tour)
	if g.Team != nil {
		team := NewTeamJSON(*g.Team)
		out.Team = &team
	}
	if g.CoverResource != nil {
		cover := NewResourceNodeJSON(*g.CoverResource, urls)
		out.CoverResource = &cover
	}
	if g.IntroStop != nil {
		intro := NewStopNodeJSON(*g.IntroStop, urls)
		out.IntroStop = &intro
	}

	stops := append([]TourStopNode(nil), g.TourStops...)
	SortTourStops(stops)
	out.TourStops = make([]TourStopJSON, len(stops))
	for i, ts := range stops {
		j := NewTourStopJSON(ts.TourStop)
		if ts.Stop != nil {
			s := NewStopNodeJSON(*ts.Stop, urls)
			j.Stop = &s
		}
		if ts.TransitionStop != nil {
			s := NewStopNodeJSON(*ts.TransitionStop, urls)
			j.TransitionStop = &s
		}
		out.TourStops[i] = j
	}
	return out
}

// NewVersionJSON omits the snapshot unless withData is set.
func NewVersionJSON(v Version, withData bool) VersionJSON {
	out := VersionJSON{
		ID:          v.ID,
		TourID:      v.TourID,
		IsStaging:   v.IsStaging,
		IsLive:      v.IsLive,
		HasPassword: v.HasPassword(),
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
	if withData {
		out.Data = v.Data
	}
	return out
}

// MarshalDocument encodes v without HTML escaping so embedded URLs stay
// byte-identical to what FileURL produced.
func MarshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilVariants(vs []Variant) []Variant {
	if vs == nil {
		return []Variant{}
	}
	return vs
}
