package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/tourcast/internal/audiotour"
)

// HealthResponse documents /healthz: one entry per probed dependency.
type HealthResponse map[string]struct {
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
}

type (
	teamPath         struct{ TeamID string `path:"teamID"` }
	tourPath         struct{ TourID string `path:"tourID"` }
	stopPath         struct{ StopID string `path:"stopID"` }
	resourcePath     struct{ ResourceID string `path:"resourceID"` }
	versionPath      struct{ VersionID string `path:"versionID"` }
	assetPath        struct{ Key string `path:"key"` }
	tourStopPath     struct {
		TourID     string `path:"tourID"`
		TourStopID string `path:"tourStopID"`
	}
	stopResourcePath struct {
		StopID         string `path:"stopID"`
		StopResourceID string `path:"stopResourceID"`
	}
	filePath struct {
		ResourceID string `path:"resourceID"`
		FileID     string `path:"fileID"`
	}
)

type listQuery struct {
	TeamID   string `path:"teamID"`
	Archived bool   `query:"archived" description:"List archived entities instead of active ones."`
}

type permanentQuery struct {
	Permanent bool `query:"permanent" description:"Remove for good instead of archiving. Requires ADMIN."`
}

type (
	deleteTourQuery struct {
		tourPath
		permanentQuery
	}
	deleteStopQuery struct {
		stopPath
		permanentQuery
	}
	deleteResourceQuery struct {
		resourcePath
		permanentQuery
	}
)

type viewerQuery struct {
	TourID   string `path:"tourID"`
	Staging  bool   `query:"staging"`
	Password string `header:"X-Tour-Password"`
}

type uploadRequest struct {
	File string `formData:"file" format:"binary" required:"true"`
}

type operation struct {
	method, path, summary, description string
	params                             any
	req                                any
	resp                               any
	status                             int
	errors                             []int
	contentType                        string
}

var operations = []operation{
	{method: http.MethodGet, path: "/healthz", summary: "Health check",
		description: "Probes every configured dependency.",
		resp:        HealthResponse{}, status: http.StatusOK, errors: []int{http.StatusServiceUnavailable}},

	{method: http.MethodPost, path: "/api/auth/login", summary: "Log in",
		description: "Authenticate with email and password. Sets the tourcast_session cookie.",
		req:         LoginRequest{}, resp: UserResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/auth/logout", summary: "Log out",
		description: "Ends the session and clears the cookie.", status: http.StatusOK},
	{method: http.MethodGet, path: "/api/auth/me", summary: "Current user",
		resp: UserResponse{}, status: http.StatusOK, errors: []int{http.StatusUnauthorized}},

	{method: http.MethodGet, path: "/api/teams", summary: "List teams",
		description: "Teams the caller belongs to; platform admins see every team.",
		resp:        []TeamResponse{}, status: http.StatusOK, errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/teams", summary: "Create team",
		description: "Platform admins only. The caller becomes OWNER.",
		req:         CreateTeamRequest{}, resp: TeamResponse{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden}},
	{method: http.MethodGet, path: "/api/teams/{teamID}", summary: "Get team",
		params: teamPath{}, resp: TeamResponse{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/teams/{teamID}", summary: "Update team",
		description: "Requires ADMIN. Team variants are the default for new tours, stops and resources.",
		params:      teamPath{}, req: UpdateTeamRequest{}, resp: TeamResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPut, path: "/api/teams/{teamID}/members", summary: "Set member role",
		params: teamPath{}, req: SetMemberRequest{}, resp: audiotour.Membership{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/teams/{teamID}/events", summary: "Event stream",
		description: "Server-Sent Events with the team's tour and version lifecycle events.",
		params:      teamPath{}, status: http.StatusOK, contentType: "text/event-stream"},
	{method: http.MethodGet, path: "/api/teams/{teamID}/ws", summary: "Event websocket",
		description: "Upgrades to a websocket delivering one JSON message per lifecycle event.",
		params:      teamPath{}, status: http.StatusSwitchingProtocols, contentType: "text/plain"},

	{method: http.MethodGet, path: "/api/teams/{teamID}/tours", summary: "List tours",
		params: listQuery{}, resp: []audiotour.TourJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/teams/{teamID}/tours", summary: "Create tour",
		params: teamPath{}, req: CreateTourRequest{}, resp: audiotour.TourJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/tours/{tourID}", summary: "Get tour",
		description: "The full tour document with stops, resources and files.",
		params:      tourPath{}, resp: audiotour.TourJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/tours/{tourID}", summary: "Update tour",
		description: "Changing variants, cover or intro propagates the tour's variants to every reachable stop, resource and file.",
		params:      tourPath{}, req: UpdateTourRequest{}, resp: UpdateTourResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodDelete, path: "/api/tours/{tourID}", summary: "Delete tour",
		description: "Archives the tour with the stops and resources only it uses. Shared ones are kept.",
		params:      deleteTourQuery{}, resp: DeleteTourResponse{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/tours/{tourID}/restore", summary: "Restore tour",
		description: "Restores the tour and the nodes archived together with it.",
		params:      tourPath{}, resp: RestoreTourResponse{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},

	{method: http.MethodGet, path: "/api/tours/{tourID}/stops", summary: "List tour stops",
		params: tourPath{}, resp: []audiotour.TourStopJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/tours/{tourID}/stops", summary: "Add tour stop",
		params: tourPath{}, req: CreateTourStopRequest{}, resp: audiotour.TourStopJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodPatch, path: "/api/tours/{tourID}/stops/{tourStopID}", summary: "Update tour stop",
		params: tourStopPath{}, req: UpdateTourStopRequest{}, resp: audiotour.TourStopJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodDelete, path: "/api/tours/{tourID}/stops/{tourStopID}", summary: "Remove tour stop",
		params: tourStopPath{}, status: http.StatusNoContent,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},

	{method: http.MethodGet, path: "/api/teams/{teamID}/stops", summary: "List stops",
		params: listQuery{}, resp: []audiotour.StopJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/teams/{teamID}/stops", summary: "Create stop",
		params: teamPath{}, req: CreateStopRequest{}, resp: audiotour.StopJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/stops/{stopID}", summary: "Get stop",
		description: "The stop with its timeline.",
		params:      stopPath{}, resp: audiotour.StopJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/stops/{stopID}", summary: "Update stop",
		params: stopPath{}, req: UpdateStopRequest{}, resp: audiotour.StopJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodDelete, path: "/api/stops/{stopID}", summary: "Delete stop",
		description: "Fails with 409 while any tour uses the stop.",
		params:      deleteStopQuery{}, status: http.StatusNoContent,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodPost, path: "/api/stops/{stopID}/restore", summary: "Restore stop",
		params: stopPath{}, status: http.StatusNoContent, errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/stops/{stopID}/resources", summary: "Add stop resource",
		params: stopPath{}, req: CreateStopResourceRequest{}, resp: audiotour.StopResourceJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/stops/{stopID}/resources/{stopResourceID}", summary: "Update stop resource",
		params: stopResourcePath{}, req: UpdateStopResourceRequest{}, resp: audiotour.StopResourceJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodDelete, path: "/api/stops/{stopID}/resources/{stopResourceID}", summary: "Remove stop resource",
		params: stopResourcePath{}, status: http.StatusNoContent, errors: []int{http.StatusForbidden, http.StatusNotFound}},

	{method: http.MethodGet, path: "/api/teams/{teamID}/resources", summary: "List resources",
		params: listQuery{}, resp: []audiotour.ResourceJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/teams/{teamID}/resources", summary: "Create resource",
		description: "Creates the resource with one file per variant.",
		params:      teamPath{}, req: CreateResourceRequest{}, resp: audiotour.ResourceJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/resources/{resourceID}", summary: "Get resource",
		params: resourcePath{}, resp: audiotour.ResourceJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/resources/{resourceID}", summary: "Update resource",
		params: resourcePath{}, req: UpdateResourceRequest{}, resp: audiotour.ResourceJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodDelete, path: "/api/resources/{resourceID}", summary: "Delete resource",
		description: "Fails with 409 while any tour or stop uses the resource.",
		params:      deleteResourceQuery{}, status: http.StatusNoContent,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodPost, path: "/api/resources/{resourceID}/restore", summary: "Restore resource",
		params: resourcePath{}, status: http.StatusNoContent, errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/resources/{resourceID}/files/{fileID}", summary: "Update file",
		params: filePath{}, req: UpdateFileRequest{}, resp: audiotour.FileJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPut, path: "/api/resources/{resourceID}/files/{fileID}/upload", summary: "Upload file",
		description: "Multipart upload replacing the file's object.",
		params:      filePath{}, req: uploadRequest{}, resp: audiotour.FileJSON{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound}},

	{method: http.MethodGet, path: "/api/tours/{tourID}/versions", summary: "List versions",
		params: tourPath{}, resp: []audiotour.VersionJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPost, path: "/api/tours/{tourID}/versions", summary: "Publish version",
		description: "Snapshots the tour and copies its assets. A live version replaces the previous live one of the same environment.",
		params:      tourPath{}, req: CreateVersionRequest{}, resp: audiotour.VersionJSON{}, status: http.StatusCreated,
		errors: []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict}},
	{method: http.MethodGet, path: "/api/versions/{versionID}", summary: "Get version",
		params: versionPath{}, resp: audiotour.VersionJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodPatch, path: "/api/versions/{versionID}", summary: "Update version",
		params: versionPath{}, req: UpdateVersionRequest{}, resp: audiotour.VersionJSON{}, status: http.StatusOK,
		errors: []int{http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodDelete, path: "/api/versions/{versionID}", summary: "Delete version",
		params: versionPath{}, status: http.StatusNoContent, errors: []int{http.StatusForbidden, http.StatusNotFound}},

	{method: http.MethodGet, path: "/api/viewer/tours/{tourID}", summary: "Live tour",
		description: "The live snapshot for viewers. Password protected versions need X-Tour-Password.",
		params:      viewerQuery{}, resp: audiotour.TourJSON{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/assets/{key}", summary: "Asset",
		description: "Redirects to a short-lived signed URL of the stored object.",
		params:      assetPath{}, status: http.StatusFound, errors: []int{http.StatusNotFound}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Tourcast API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Authoring, publishing and viewing of audio tours.")

	for _, o := range operations {
		oc, err := r.NewOperationContext(o.method, o.path)
		if err != nil {
			continue
		}
		oc.SetSummary(o.summary)
		if o.description != "" {
			oc.SetDescription(o.description)
		}
		if o.params != nil {
			oc.AddReqStructure(o.params)
		}
		if o.req != nil {
			oc.AddReqStructure(o.req)
		}
		if o.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(o.status), openapi.WithContentType(o.contentType))
		} else {
			oc.AddRespStructure(o.resp, openapi.WithHTTPStatus(o.status))
		}
		for _, status := range o.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
