package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/playperu/tourcast/internal/assets"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/database"
	"github.com/playperu/tourcast/internal/handler/health"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/migrations"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

const testPassword = "correct horse"

type serverEnv struct {
	handler http.Handler
	svc     *lifecycle.Service
	assets  *assets.MemoryStore
	team    audiotour.Team

	admin, editor, outsider []*http.Cookie
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &serverEnv{assets: assets.NewMemoryStore()}
	e.svc = lifecycle.New(store.New(db, logger), e.assets, lifecycle.Options{
		URLs:   audiotour.AssetURLs{BaseURL: "https://api.example.com"},
		Events: notify.NewBroker(),
		Logger: logger,
	})
	e.handler = NewHandler(logger, Deps{
		Service: e.svc,
		Assets:  e.assets,
		Broker:  notify.NewBroker(),
		Checks:  map[string]health.Checker{"sqlite": health.CheckerFunc(func(ctx context.Context) error { return db.PingContext(ctx) })},
	})

	e.team, err = e.svc.CreateTeam(ctx, lifecycle.TeamInput{
		Name:     "Museum",
		Link:     "museum",
		Variants: []audiotour.Variant{{Code: "en-us", Name: "English", DisplayName: "English"}},
	}, "")
	if err != nil {
		t.Fatalf("creating team: %v", err)
	}

	e.admin = e.user(t, "admin@example.com", true, "")
	e.editor = e.user(t, "editor@example.com", false, audiotour.RoleEditor)
	e.outsider = e.user(t, "outsider@example.com", false, "")
	return e
}

// user creates an account, optionally joins it to the team and logs in.
func (e *serverEnv) user(t *testing.T, email string, isAdmin bool, role audiotour.Role) []*http.Cookie {
	t.Helper()
	ctx := context.Background()
	u, err := e.svc.CreateUser(ctx, lifecycle.UserInput{Email: email, Password: testPassword, IsAdmin: isAdmin})
	if err != nil {
		t.Fatalf("creating user %s: %v", email, err)
	}
	if role != "" {
		if err := e.svc.SetMember(ctx, e.team.ID, u.ID, role); err != nil {
			t.Fatalf("adding member: %v", err)
		}
	}

	rec := e.do(t, http.MethodPost, "/api/auth/login", nil, LoginRequest{Email: email, Password: testPassword})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func (e *serverEnv) do(t *testing.T, method, path string, cookies []*http.Cookie, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return e.serve(req)
}

func (e *serverEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestLogin(t *testing.T) {
	e := newServerEnv(t)

	rec := e.do(t, http.MethodPost, "/api/auth/login", nil, LoginRequest{Email: "editor@example.com", Password: "wrong password"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = e.do(t, http.MethodPost, "/api/auth/login", nil, map[string]string{"email": "not-an-email"})
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decodeBody[ErrorResponse](t, rec)
	if len(resp.Fields) != 2 || resp.Fields[0].Path != "email" || resp.Fields[1].Path != "password" {
		t.Errorf("unexpected field errors: %+v", resp.Fields)
	}

	found := false
	for _, c := range e.editor {
		if c.Name == sessionCookieName && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s cookie", sessionCookieName)
	}

	rec = e.do(t, http.MethodGet, "/api/auth/me", e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	if me := decodeBody[UserResponse](t, rec); me.Email != "editor@example.com" || me.IsAdmin {
		t.Errorf("unexpected user: %+v", me)
	}

	rec = e.do(t, http.MethodPost, "/api/auth/logout", e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	rec = e.do(t, http.MethodGet, "/api/auth/me", e.editor, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestAccessStatuses(t *testing.T) {
	e := newServerEnv(t)
	teamPath := "/api/teams/" + e.team.ID

	tests := []struct {
		name    string
		method  string
		path    string
		cookies []*http.Cookie
		body    any
		want    int
	}{
		{"no session", http.MethodGet, "/api/teams", nil, nil, http.StatusUnauthorized},
		{"member", http.MethodGet, teamPath, e.editor, nil, http.StatusOK},
		{"outsider", http.MethodGet, teamPath, e.outsider, nil, http.StatusForbidden},
		{"platform admin", http.MethodGet, teamPath, e.admin, nil, http.StatusOK},
		{"missing team", http.MethodGet, "/api/teams/nope", e.admin, nil, http.StatusNotFound},
		{"missing tour", http.MethodGet, "/api/tours/nope", e.editor, nil, http.StatusNotFound},
		{"editor cannot change team", http.MethodPatch, teamPath, e.editor, map[string]any{"name": "Other"}, http.StatusForbidden},
		{"editor cannot create team", http.MethodPost, "/api/teams", e.editor, CreateTeamRequest{Name: "X", Link: "x"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.cookies, tt.body)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestListTeams(t *testing.T) {
	e := newServerEnv(t)

	rec := e.do(t, http.MethodGet, "/api/teams", e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	teams := decodeBody[[]TeamResponse](t, rec)
	if len(teams) != 1 || teams[0].ID != e.team.ID || teams[0].Role != audiotour.RoleEditor {
		t.Errorf("unexpected teams for editor: %+v", teams)
	}

	rec = e.do(t, http.MethodGet, "/api/teams", e.outsider, nil)
	expectStatus(t, rec, http.StatusOK)
	if teams := decodeBody[[]TeamResponse](t, rec); len(teams) != 0 {
		t.Errorf("outsider should see no teams, got %+v", teams)
	}
}

func TestValidationErrorBody(t *testing.T) {
	e := newServerEnv(t)

	rec := e.do(t, http.MethodPost, "/api/teams/"+e.team.ID+"/stops", e.editor, CreateStopRequest{Link: "Not A Link"})
	expectStatus(t, rec, http.StatusBadRequest)
	resp := decodeBody[ErrorResponse](t, rec)
	if len(resp.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", resp.Fields)
	}
	if got := resp.Fields[0]; got.Path != "link" || got.Value != "Not A Link" {
		t.Errorf("unexpected field error: %+v", got)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/teams/"+e.team.ID+"/tours", strings.NewReader("{"))
	for _, c := range e.editor {
		req.AddCookie(c)
	}
	expectStatus(t, e.serve(req), http.StatusBadRequest)
}

// authorTour builds a tour with one stop carrying an uploaded audio
// resource, all through the API.
func authorTour(t *testing.T, e *serverEnv) (tour audiotour.TourJSON, stop audiotour.StopJSON) {
	t.Helper()
	teamPath := "/api/teams/" + e.team.ID

	rec := e.do(t, http.MethodPost, teamPath+"/tours", e.editor, CreateTourRequest{Name: "Old Town"})
	expectStatus(t, rec, http.StatusCreated)
	tour = decodeBody[audiotour.TourJSON](t, rec)

	rec = e.do(t, http.MethodPost, teamPath+"/stops", e.editor, CreateStopRequest{Link: "plaza-mayor", Address: "Plaza Mayor"})
	expectStatus(t, rec, http.StatusCreated)
	stop = decodeBody[audiotour.StopJSON](t, rec)

	rec = e.do(t, http.MethodPost, teamPath+"/resources", e.editor, CreateResourceRequest{Name: "Narration", Type: audiotour.ResourceTypeAudio})
	expectStatus(t, rec, http.StatusCreated)
	res := decodeBody[audiotour.ResourceJSON](t, rec)
	if len(res.Files) != 1 {
		t.Fatalf("expected one file per variant, got %d", len(res.Files))
	}

	upload(t, e, res.ID, res.Files[0].ID, "narration en.mp3", "audio bytes")

	rec = e.do(t, http.MethodPost, "/api/stops/"+stop.ID+"/resources", e.editor, CreateStopResourceRequest{ResourceID: res.ID})
	expectStatus(t, rec, http.StatusCreated)

	rec = e.do(t, http.MethodPost, "/api/tours/"+tour.ID+"/stops", e.editor, CreateTourStopRequest{StopID: stop.ID})
	expectStatus(t, rec, http.StatusCreated)
	return tour, stop
}

func upload(t *testing.T, e *serverEnv, resourceID, fileID, name, content string) audiotour.FileJSON {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/resources/"+resourceID+"/files/"+fileID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range e.editor {
		req.AddCookie(c)
	}
	rec := e.serve(req)
	expectStatus(t, rec, http.StatusOK)
	return decodeBody[audiotour.FileJSON](t, rec)
}

func TestPublishAndView(t *testing.T) {
	e := newServerEnv(t)
	tour, _ := authorTour(t, e)
	versionsPath := "/api/tours/" + tour.ID + "/versions"

	rec := e.do(t, http.MethodGet, "/api/tours/"+tour.ID, e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	doc := decodeBody[audiotour.TourJSON](t, rec)
	if len(doc.TourStops) != 1 || doc.TourStops[0].Stop == nil || len(doc.TourStops[0].Stop.Resources) != 1 {
		t.Fatalf("unexpected tour document: %+v", doc)
	}
	liveURL := doc.TourStops[0].Stop.Resources[0].Files[0].URL
	if liveURL == nil || !strings.Contains(*liveURL, "/api/assets/files/") {
		t.Fatalf("expected live asset URL, got %v", liveURL)
	}

	rec = e.do(t, http.MethodPost, versionsPath, e.editor, CreateVersionRequest{IsLive: true})
	expectStatus(t, rec, http.StatusForbidden)

	rec = e.do(t, http.MethodPost, versionsPath, e.admin, CreateVersionRequest{IsLive: true, Password: "secret"})
	expectStatus(t, rec, http.StatusCreated)
	v := decodeBody[audiotour.VersionJSON](t, rec)
	if !v.IsLive || v.IsStaging || !v.HasPassword {
		t.Errorf("unexpected version flags: %+v", v)
	}

	viewer := "/api/viewer/tours/" + tour.ID
	expectStatus(t, e.do(t, http.MethodGet, viewer, nil, nil), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, viewer, nil)
	req.Header.Set(passwordHeader, "guess")
	expectStatus(t, e.serve(req), http.StatusForbidden)

	req = httptest.NewRequest(http.MethodGet, viewer, nil)
	req.Header.Set(passwordHeader, "secret")
	rec = e.serve(req)
	expectStatus(t, rec, http.StatusOK)
	body := rec.Body.String()
	prefix := "https://api.example.com/api/assets/versions/" + v.ID + "/files/"
	if !strings.Contains(body, prefix) {
		t.Fatalf("viewer document should link version assets %s, got %s", prefix, body)
	}

	expectStatus(t, e.do(t, http.MethodGet, viewer+"?staging=true", nil, nil), http.StatusNotFound)

	// The rewritten URL resolves through the asset route.
	start := strings.Index(body, prefix)
	end := strings.Index(body[start:], `"`)
	assetPath := strings.TrimPrefix(body[start:start+end], "https://api.example.com")
	rec = e.do(t, http.MethodGet, assetPath, nil, nil)
	expectStatus(t, rec, http.StatusFound)
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "memory://versions/"+v.ID+"/") {
		t.Errorf("unexpected redirect %q", loc)
	}

	expectStatus(t, e.do(t, http.MethodGet, "/api/assets/files/nope/key/x.mp3", nil, nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, "/api/assets/other/x", nil, nil), http.StatusNotFound)

	rec = e.do(t, http.MethodPatch, "/api/versions/"+v.ID, e.admin, map[string]any{"password": ""})
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, viewer, nil, nil), http.StatusOK)

	expectStatus(t, e.do(t, http.MethodDelete, "/api/versions/"+v.ID, e.admin, nil), http.StatusNoContent)
	expectStatus(t, e.do(t, http.MethodGet, viewer, nil, nil), http.StatusNotFound)
}

func TestDeleteAndRestore(t *testing.T) {
	e := newServerEnv(t)
	tour, stop := authorTour(t, e)

	rec := e.do(t, http.MethodDelete, "/api/stops/"+stop.ID, e.editor, nil)
	expectStatus(t, rec, http.StatusConflict)
	conflict := decodeBody[ErrorResponse](t, rec)
	if len(conflict.Tours) != 1 || conflict.Tours[0].ID != tour.ID {
		t.Errorf("conflict should list the tour, got %+v", conflict)
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/api/tours/"+tour.ID+"?permanent=true", e.editor, nil), http.StatusForbidden)

	rec = e.do(t, http.MethodDelete, "/api/tours/"+tour.ID, e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	del := decodeBody[DeleteTourResponse](t, rec)
	if del.Permanent || len(del.Stops) != 1 || len(del.Resources) != 1 {
		t.Errorf("unexpected delete result: %+v", del)
	}

	rec = e.do(t, http.MethodGet, "/api/teams/"+e.team.ID+"/tours?archived=true", e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	if archived := decodeBody[[]audiotour.TourJSON](t, rec); len(archived) != 1 {
		t.Errorf("expected one archived tour, got %d", len(archived))
	}

	expectStatus(t, e.do(t, http.MethodPost, "/api/tours/"+tour.ID+"/restore", e.editor, nil), http.StatusForbidden)
	rec = e.do(t, http.MethodPost, "/api/tours/"+tour.ID+"/restore", e.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	if res := decodeBody[RestoreTourResponse](t, rec); res.Stops != 1 || res.Resources != 1 {
		t.Errorf("unexpected restore result: %+v", res)
	}

	rec = e.do(t, http.MethodDelete, "/api/tours/"+tour.ID+"?permanent=true", e.admin, nil)
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, e.do(t, http.MethodGet, "/api/tours/"+tour.ID, e.admin, nil), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodGet, "/api/stops/"+stop.ID, e.admin, nil), http.StatusNotFound)
	if keys := e.assets.Keys(); len(keys) != 0 {
		t.Errorf("expected every object removed, got %v", keys)
	}
}

func TestUpdateTourPropagatesVariants(t *testing.T) {
	e := newServerEnv(t)
	tour, stop := authorTour(t, e)

	variants := []audiotour.Variant{
		{Code: "en-us", Name: "English", DisplayName: "English"},
		{Code: "es", Name: "Spanish", DisplayName: "Español"},
	}
	expectStatus(t, e.do(t, http.MethodPatch, "/api/tours/"+tour.ID, e.editor, UpdateTourRequest{Variants: variants}), http.StatusForbidden)

	rec := e.do(t, http.MethodPatch, "/api/tours/"+tour.ID, e.admin, UpdateTourRequest{Variants: variants})
	expectStatus(t, rec, http.StatusOK)
	resp := decodeBody[UpdateTourResponse](t, rec)
	if resp.Propagation != (PropagationJSON{Stops: 1, Resources: 1, Files: 1}) {
		t.Errorf("unexpected propagation: %+v", resp.Propagation)
	}

	rec = e.do(t, http.MethodGet, "/api/stops/"+stop.ID, e.editor, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[audiotour.StopJSON](t, rec)
	if len(got.Variants) != 2 || len(got.Resources) != 1 || len(got.Resources[0].Files) != 2 {
		t.Errorf("stop did not receive the new variant: %+v", got)
	}
}

func TestHealthz(t *testing.T) {
	e := newServerEnv(t)
	rec := e.do(t, http.MethodGet, "/healthz", nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"sqlite"`) {
		t.Errorf("expected sqlite check in %s", rec.Body.String())
	}
}
