// Package audiotour defines the core domain types of the tour authoring
// platform and the pure functions that operate on them: variant merging,
// graph ordering, public JSON serialization and asset URL handling.
// It has no external dependencies.
package audiotour

import (
	"encoding/json"
	"time"
)

// Variant is a language/locale descriptor attached to Teams, Tours, Stops
// and Resources. Code is unique within a list.
type Variant struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type Team struct {
	ID        string
	Name      string
	Link      string
	Variants  []Variant
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityUnlisted Visibility = "UNLISTED"
	VisibilityPrivate  Visibility = "PRIVATE"
)

type Tour struct {
	ID              string
	TeamID          string
	CoverResourceID *string
	IntroStopID     *string
	Name            string
	Names           map[string]string
	Descriptions    map[string]string
	Variants        []Variant
	Visibility      Visibility
	ArchivedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type StopType string

const (
	StopTypeIntro      StopType = "INTRO"
	StopTypeStop       StopType = "STOP"
	StopTypeTransition StopType = "TRANSITION"
)

// Coordinate is a GeoJSON point: Coordinates holds [lng, lat].
type Coordinate struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type Stop struct {
	ID           string
	TeamID       string
	Type         StopType
	Link         string
	Address      string
	Coordinate   *Coordinate
	Names        map[string]string
	Descriptions map[string]string
	Variants     []Variant
	ArchivedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ResourceType string

const (
	ResourceType3DModel      ResourceType = "3D_MODEL"
	ResourceTypeARLink       ResourceType = "AR_LINK"
	ResourceTypeAudio        ResourceType = "AUDIO"
	ResourceTypeImage        ResourceType = "IMAGE"
	ResourceTypeImageOverlay ResourceType = "IMAGE_OVERLAY"
	ResourceTypeImageSphere  ResourceType = "IMAGE_SPHERE"
	ResourceTypeLink         ResourceType = "LINK"
	ResourceTypeVideo        ResourceType = "VIDEO"
)

// ResourceTypes lists every valid ResourceType.
var ResourceTypes = []ResourceType{
	ResourceType3DModel,
	ResourceTypeARLink,
	ResourceTypeAudio,
	ResourceTypeImage,
	ResourceTypeImageOverlay,
	ResourceTypeImageSphere,
	ResourceTypeLink,
	ResourceTypeVideo,
}

type Resource struct {
	ID         string
	TeamID     string
	Name       string
	Type       ResourceType
	Data       json.RawMessage
	Variants   []Variant
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubtitleSuffix marks the subtitle companion file of a variant ("en-us-vtt").
const SubtitleSuffix = "-vtt"

// File is one per-variant asset of a Resource. Key is the uploaded object
// name; ExternalURL is used instead when the asset lives elsewhere.
type File struct {
	ID           string
	ResourceID   string
	Variant      string
	Key          string
	OriginalName string
	ExternalURL  string
	Duration     *float64
	Width        *int
	Height       *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TourStop orders a Stop within a Tour. TransitionStopID, when set, is
// played immediately before the Stop.
type TourStop struct {
	ID               string
	TourID           string
	StopID           string
	TransitionStopID *string
	Position         int
}

// StopResource attaches a Resource to a Stop's playback timeline. Start and
// End are integer seconds.
type StopResource struct {
	ID         string
	StopID     string
	ResourceID string
	Start      int
	End        *int
	PauseAtEnd bool
	Options    json.RawMessage
}

type Version struct {
	ID           string
	TourID       string
	IsStaging    bool
	IsLive       bool
	PasswordHash string
	Data         json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether viewers must present a password.
func (v Version) HasPassword() bool { return v.PasswordHash != "" }

type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// FullNameAndEmail renders "First Last <email>", or just the email when
// neither name is set.
func (u User) FullNameAndEmail() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name + " <" + u.Email + ">"
}

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// Allows reports whether r grants at least the permissions of min.
func (r Role) Allows(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

type Membership struct {
	TeamID string
	UserID string
	Role   Role
}
