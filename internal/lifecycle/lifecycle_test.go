package lifecycle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tourcast/internal/assets"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/database"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/migrations"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

var enUS = audiotour.Variant{Code: "en-us", Name: "English", DisplayName: "English"}
var es = audiotour.Variant{Code: "es", Name: "Spanish", DisplayName: "Español"}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type env struct {
	svc    *lifecycle.Service
	store  *store.Store
	assets *assets.MemoryStore
	events *recorder
	team   audiotour.Team
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil, nil)
}

// newEnvWith builds an env whose service reaches the memory store through
// wrap and caches live versions in cache, when set.
func newEnvWith(t *testing.T, wrap func(assets.Store) assets.Store, cache lifecycle.LiveCache) *env {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &env{
		store:  store.New(db, logger),
		assets: assets.NewMemoryStore(),
		events: &recorder{},
	}
	var as assets.Store = e.assets
	if wrap != nil {
		as = wrap(e.assets)
	}
	e.svc = lifecycle.New(e.store, as, lifecycle.Options{
		URLs:   audiotour.AssetURLs{BaseURL: "https://api.example.com"},
		Events: e.events,
		Cache:  cache,
		Logger: logger,
	})
	e.team, err = e.svc.CreateTeam(ctx, lifecycle.TeamInput{
		Name:     "Museum",
		Link:     "museum",
		Variants: []audiotour.Variant{enUS},
	}, "")
	require.NoError(t, err)
	return e
}

func (e *env) tour(t *testing.T, name string) audiotour.Tour {
	t.Helper()
	tr, err := e.svc.CreateTour(context.Background(), e.team.ID, lifecycle.TourInput{Name: name})
	require.NoError(t, err)
	return tr
}

func (e *env) stop(t *testing.T, link string) audiotour.Stop {
	t.Helper()
	st, err := e.svc.CreateStop(context.Background(), e.team.ID, lifecycle.StopInput{Link: link, Address: link + " street"})
	require.NoError(t, err)
	return st
}

// resource creates an AUDIO resource and uploads one object per variant.
func (e *env) resource(t *testing.T, name string) (audiotour.Resource, []audiotour.File) {
	t.Helper()
	ctx := context.Background()
	r, files, err := e.svc.CreateResource(ctx, e.team.ID, lifecycle.ResourceInput{Name: name, Type: audiotour.ResourceTypeAudio})
	require.NoError(t, err)
	for i, f := range files {
		files[i], err = e.svc.UploadFile(ctx, r.ID, f.ID, lifecycle.Upload{
			Name:        name + " " + f.Variant + ".mp3",
			ContentType: "audio/mpeg",
			Size:        5,
			Body:        strings.NewReader("audio"),
		})
		require.NoError(t, err)
	}
	return r, files
}

func (e *env) attach(t *testing.T, stopID, resourceID string) {
	t.Helper()
	_, err := e.svc.AddStopResource(context.Background(), stopID, lifecycle.StopResourceInput{ResourceID: resourceID})
	require.NoError(t, err)
}

func (e *env) addStop(t *testing.T, tourID, stopID string) audiotour.TourStop {
	t.Helper()
	ts, err := e.svc.AddTourStop(context.Background(), tourID, lifecycle.TourStopInput{StopID: stopID})
	require.NoError(t, err)
	return ts
}

func (e *env) inTx(t *testing.T, fn func(ctx context.Context, tx *store.Tx)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.InTx(ctx, func(tx *store.Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

func TestPropagateVariantsIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.tour(t, "Old town")
	st := e.stop(t, "plaza")
	r, files := e.resource(t, "Welcome")
	require.Len(t, files, 1)
	e.attach(t, st.ID, r.ID)
	e.addStop(t, tr.ID, st.ID)

	_, p, err := e.svc.UpdateTour(ctx, tr.ID, lifecycle.TourPatch{Variants: []audiotour.Variant{enUS, es}})
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Propagation{Stops: 1, Resources: 1, Files: 1}, p)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		again, err := lifecycle.PropagateVariants(ctx, tx, tr.ID)
		require.NoError(t, err)
		assert.False(t, again.Changed())

		stop, err := tx.Stop(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"en-us", "es"}, audiotour.VariantCodes(stop.Variants))
		assert.Contains(t, stop.Names, "es")
		assert.Contains(t, stop.Descriptions, "es")

		got, err := tx.Files(ctx, r.ID)
		require.NoError(t, err)
		var variants []string
		for _, f := range got {
			variants = append(variants, f.Variant)
		}
		assert.ElementsMatch(t, []string{"en-us", "es"}, variants)
	})
}

func TestAddStopResourceAppliesStopVariants(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	st, err := e.svc.CreateStop(ctx, e.team.ID, lifecycle.StopInput{
		Link:     "bridge",
		Variants: []audiotour.Variant{enUS, es},
	})
	require.NoError(t, err)
	r, _ := e.resource(t, "Narration")
	e.attach(t, st.ID, r.ID)

	_, files, err := e.svc.Files(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestArchiveKeepsSharedNodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t1 := e.tour(t, "First")
	t2 := e.tour(t, "Second")
	shared := e.stop(t, "shared")
	own := e.stop(t, "own")
	sharedRes, _ := e.resource(t, "Shared clip")
	ownRes, _ := e.resource(t, "Own clip")
	e.attach(t, shared.ID, sharedRes.ID)
	e.attach(t, own.ID, ownRes.ID)
	e.addStop(t, t1.ID, shared.ID)
	e.addStop(t, t1.ID, own.ID)
	e.addStop(t, t2.ID, shared.ID)

	res, err := e.svc.DeleteTour(ctx, t1.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{own.ID}, res.StopIDs)
	assert.Equal(t, []string{ownRes.ID}, res.ResourceIDs)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		tour, err := tx.Tour(ctx, t1.ID)
		require.NoError(t, err)
		require.NotNil(t, tour.ArchivedAt)

		s, err := tx.Stop(ctx, shared.ID)
		require.NoError(t, err)
		assert.Nil(t, s.ArchivedAt)
		s, err = tx.Stop(ctx, own.ID)
		require.NoError(t, err)
		assert.Equal(t, tour.ArchivedAt, s.ArchivedAt)

		r, err := tx.Resource(ctx, sharedRes.ID)
		require.NoError(t, err)
		assert.Nil(t, r.ArchivedAt)
		r, err = tx.Resource(ctx, ownRes.ID)
		require.NoError(t, err)
		assert.Equal(t, tour.ArchivedAt, r.ArchivedAt)
	})

	// Archiving again is a no-op.
	res, err = e.svc.DeleteTour(ctx, t1.ID, false)
	require.NoError(t, err)
	assert.Empty(t, res.StopIDs)
	assert.Equal(t, []string{notify.TourUpdated, notify.TourUpdated, notify.TourUpdated, notify.TourUpdated, notify.TourUpdated, notify.TourArchived}, e.events.types())
}

func TestArchivedTourStillHoldsSharedNodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t1 := e.tour(t, "First")
	t2 := e.tour(t, "Second")
	shared := e.stop(t, "shared")
	e.addStop(t, t1.ID, shared.ID)
	e.addStop(t, t2.ID, shared.ID)

	_, err := e.svc.DeleteTour(ctx, t1.ID, false)
	require.NoError(t, err)
	res, err := e.svc.DeleteTour(ctx, t2.ID, false)
	require.NoError(t, err)
	assert.Empty(t, res.StopIDs)
}

func TestRestoreOnlyRestoresTheSamePass(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.tour(t, "Walk")
	restored := e.stop(t, "restored")
	earlier := e.stop(t, "earlier")
	e.addStop(t, tr.ID, restored.ID)
	e.addStop(t, tr.ID, earlier.ID)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		require.NoError(t, tx.ArchiveStops(ctx, []string{earlier.ID}, store.Now().Add(-time.Hour)))
	})

	_, err := e.svc.DeleteTour(ctx, tr.ID, false)
	require.NoError(t, err)
	res, err := e.svc.RestoreTour(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.RestoreResult{Stops: 1}, res)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		tour, err := tx.Tour(ctx, tr.ID)
		require.NoError(t, err)
		assert.Nil(t, tour.ArchivedAt)

		s, err := tx.Stop(ctx, restored.ID)
		require.NoError(t, err)
		assert.Nil(t, s.ArchivedAt)
		s, err = tx.Stop(ctx, earlier.ID)
		require.NoError(t, err)
		assert.NotNil(t, s.ArchivedAt)
	})

	// Restoring an active tour does nothing.
	res, err = e.svc.RestoreTour(ctx, tr.ID)
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestPermanentDeleteRemovesVersionsAndObjects(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.tour(t, "Gone")
	st := e.stop(t, "gone")
	r, files := e.resource(t, "Gone clip")
	e.attach(t, st.ID, r.ID)
	e.addStop(t, tr.ID, st.ID)

	v, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true})
	require.NoError(t, err)
	require.NotEmpty(t, e.assets.Keys())

	res, err := e.svc.DeleteTour(ctx, tr.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Permanent)
	assert.Equal(t, 1, res.Versions)

	for _, key := range e.assets.Keys() {
		assert.False(t, strings.HasPrefix(key, audiotour.VersionPrefix(v.ID)), key)
		assert.False(t, strings.HasPrefix(key, audiotour.FilePrefix(files[0].ID)), key)
	}

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		_, err := tx.Tour(ctx, tr.ID)
		assert.ErrorIs(t, err, audiotour.ErrNotFound)
		_, err = tx.Version(ctx, v.ID)
		assert.ErrorIs(t, err, audiotour.ErrNotFound)
		_, err = tx.Stop(ctx, st.ID)
		assert.ErrorIs(t, err, audiotour.ErrNotFound)
		_, err = tx.Resource(ctx, r.ID)
		assert.ErrorIs(t, err, audiotour.ErrNotFound)
	})
}

func TestPermanentDeleteOfArchivedTour(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.tour(t, "Twice")
	st := e.stop(t, "twice")
	e.addStop(t, tr.ID, st.ID)

	_, err := e.svc.DeleteTour(ctx, tr.ID, false)
	require.NoError(t, err)
	res, err := e.svc.DeleteTour(ctx, tr.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{st.ID}, res.StopIDs)
}

func TestDeleteStopInUseIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.tour(t, "Harbour")
	st := e.stop(t, "pier")
	r, _ := e.resource(t, "Waves")
	e.attach(t, st.ID, r.ID)
	ts := e.addStop(t, tr.ID, st.ID)

	err := e.svc.DeleteStop(ctx, st.ID, false)
	require.ErrorIs(t, err, audiotour.ErrConflict)
	var cerr *audiotour.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []audiotour.Ref{{ID: tr.ID, Name: "Harbour"}}, cerr.Tours)

	err = e.svc.DeleteResource(ctx, r.ID, true)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []audiotour.Ref{{ID: tr.ID, Name: "Harbour"}}, cerr.Tours)
	assert.Equal(t, []audiotour.Ref{{ID: st.ID, Name: "pier"}}, cerr.Stops)

	require.NoError(t, e.svc.RemoveTourStop(ctx, tr.ID, ts.ID))
	require.NoError(t, e.svc.DeleteStop(ctx, st.ID, false))
	require.NoError(t, e.svc.RestoreStop(ctx, st.ID))
	require.NoError(t, e.svc.DeleteStop(ctx, st.ID, true))
	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		_, err := tx.Stop(ctx, st.ID)
		assert.ErrorIs(t, err, audiotour.ErrNotFound)
	})
}


func publishable(t *testing.T, e *env) (audiotour.Tour, []audiotour.File) {
	t.Helper()
	tr := e.tour(t, "Gallery")
	st := e.stop(t, "hall")
	r, files := e.resource(t, "Guide")
	e.attach(t, st.ID, r.ID)
	e.addStop(t, tr.ID, st.ID)
	return tr, files
}

func TestPublishCopiesAndRewritesAssets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, files := publishable(t, e)

	v, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true})
	require.NoError(t, err)

	doc := string(v.Data)
	assert.NotContains(t, doc, "/assets/files/")
	assert.Contains(t, doc, "/assets/versions/"+v.ID+"/files/"+files[0].ID+"/key/")

	copied := audiotour.VersionPrefix(v.ID) + audiotour.FileStorageKey(files[0].ID, files[0].Key)
	assert.Contains(t, e.assets.Keys(), copied)
	assert.Contains(t, e.events.types(), notify.VersionPublished)
}

func TestPublishIsDeterministic(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, _ := publishable(t, e)

	v1, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{})
	require.NoError(t, err)
	v2, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{})
	require.NoError(t, err)

	assert.Equal(t, string(v1.Data), strings.ReplaceAll(string(v2.Data), v2.ID, v1.ID))
}

func TestPublishFailsWhenAssetIsMissing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, files := publishable(t, e)
	require.NoError(t, e.assets.Delete(ctx, audiotour.FileStorageKey(files[0].ID, files[0].Key)))

	_, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true})
	require.ErrorIs(t, err, assets.ErrNotExist)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		versions, err := tx.ListVersions(ctx, tr.ID)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestLiveVersionIsUniquePerEnvironment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, _ := publishable(t, e)

	first, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true})
	require.NoError(t, err)
	staging, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true, IsStaging: true})
	require.NoError(t, err)
	second, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true})
	require.NoError(t, err)

	live, err := e.svc.LiveVersion(ctx, tr.ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, live.ID)
	live, err = e.svc.LiveVersion(ctx, tr.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, staging.ID, live.ID)

	// Making the first version live again takes over production.
	isLive := true
	_, err = e.svc.UpdateVersion(ctx, first.ID, lifecycle.VersionPatch{IsLive: &isLive})
	require.NoError(t, err)
	live, err = e.svc.LiveVersion(ctx, tr.ID, false, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, live.ID)

	e.inTx(t, func(ctx context.Context, tx *store.Tx) {
		v, err := tx.Version(ctx, second.ID)
		require.NoError(t, err)
		assert.False(t, v.IsLive)
	})
}

func TestLiveVersionPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, _ := publishable(t, e)

	_, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{IsLive: true, Password: "open sesame"})
	require.NoError(t, err)

	_, err = e.svc.LiveVersion(ctx, tr.ID, false, "")
	assert.ErrorIs(t, err, audiotour.ErrUnauthenticated)
	_, err = e.svc.LiveVersion(ctx, tr.ID, false, "wrong")
	assert.ErrorIs(t, err, audiotour.ErrForbidden)
	_, err = e.svc.LiveVersion(ctx, tr.ID, false, "open sesame")
	assert.NoError(t, err)
}

func TestPublishArchivedTourIsConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, _ := publishable(t, e)

	_, err := e.svc.DeleteTour(ctx, tr.ID, false)
	require.NoError(t, err)
	_, err = e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{})
	assert.ErrorIs(t, err, audiotour.ErrConflict)
	_, _, err = e.svc.UpdateTour(ctx, tr.ID, lifecycle.TourPatch{})
	assert.ErrorIs(t, err, audiotour.ErrConflict)
}

func TestDeleteVersionRemovesCopies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr, files := publishable(t, e)

	v, err := e.svc.PublishVersion(ctx, tr.ID, lifecycle.PublishOptions{})
	require.NoError(t, err)
	require.NoError(t, e.svc.DeleteVersion(ctx, v.ID))

	assert.Equal(t, []string{audiotour.FileStorageKey(files[0].ID, files[0].Key)}, e.assets.Keys())
	assert.ErrorIs(t, e.svc.DeleteVersion(ctx, v.ID), audiotour.ErrNotFound)
}

func TestUploadReplacesPreviousObject(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	r, files := e.resource(t, "Clip")

	f, err := e.svc.UploadFile(ctx, r.ID, files[0].ID, lifecycle.Upload{Name: `C:\media\take2.mp3`, Body: strings.NewReader("two")})
	require.NoError(t, err)
	assert.Equal(t, "take2.mp3", f.Key)
	assert.Equal(t, []string{audiotour.FileStorageKey(f.ID, "take2.mp3")}, e.assets.Keys())

	_, err = e.svc.UploadFile(ctx, "other", files[0].ID, lifecycle.Upload{Name: "x.mp3", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, audiotour.ErrNotFound)
}

func TestValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.stop(t, "taken")

	_, err := e.svc.CreateStop(ctx, e.team.ID, lifecycle.StopInput{Link: "taken"})
	var verr *audiotour.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "link", verr.Fields[0].Path)

	_, _, err = e.svc.CreateResource(ctx, e.team.ID, lifecycle.ResourceInput{Name: "Bad", Type: "GIF"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "type", verr.Fields[0].Path)

	_, err = e.svc.CreateTour(ctx, e.team.ID, lifecycle.TourInput{
		Name:     "Dupes",
		Variants: []audiotour.Variant{enUS, enUS},
	})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "variants[1].code", verr.Fields[0].Path)
}

func TestLoginAndAuthorize(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.svc.CreateUser(ctx, lifecycle.UserInput{Email: " Ada@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	_, _, err = e.svc.Login(ctx, "ada@example.com", "wrong password")
	assert.ErrorIs(t, err, audiotour.ErrUnauthenticated)

	session, got, err := e.svc.Login(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	me, err := e.svc.Authenticate(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)

	_, err = e.svc.Authorize(ctx, me, e.team.ID, audiotour.RoleViewer)
	assert.ErrorIs(t, err, audiotour.ErrForbidden)
	require.NoError(t, e.svc.SetMember(ctx, e.team.ID, u.ID, audiotour.RoleEditor))
	role, err := e.svc.Authorize(ctx, me, e.team.ID, audiotour.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, audiotour.RoleEditor, role)
	_, err = e.svc.Authorize(ctx, me, e.team.ID, audiotour.RoleAdmin)
	assert.ErrorIs(t, err, audiotour.ErrForbidden)

	require.NoError(t, e.svc.Logout(ctx, session))
	_, err = e.svc.Authenticate(ctx, session)
	assert.ErrorIs(t, err, audiotour.ErrUnauthenticated)
}
