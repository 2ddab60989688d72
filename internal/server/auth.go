package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

const sessionCookieName = "tourcast_session"

type ctxKey int

const ctxKeyUser ctxKey = iota

// authMiddleware resolves the session cookie to a user and rejects the
// request with 401 when there is none.
func authMiddleware(svc *lifecycle.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			u, err := svc.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func currentUser(r *http.Request) audiotour.User {
	return r.Context().Value(ctxKeyUser).(audiotour.User)
}

// access loads the entity a request targets and checks the caller's role
// in the owning team. A missing entity is 404, an insufficient role 403.
// Each method writes the error response itself and reports false.
type access struct {
	svc    *lifecycle.Service
	logger *slog.Logger
}

func (a access) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, a.logger, err)
}

func (a access) view(r *http.Request, fn func(ctx context.Context, tx *store.Tx) error) error {
	ctx := r.Context()
	return a.svc.Store().InTx(ctx, func(tx *store.Tx) error {
		return fn(ctx, tx)
	})
}

func (a access) team(w http.ResponseWriter, r *http.Request, teamID string, min audiotour.Role) (audiotour.Team, bool) {
	var tm audiotour.Team
	err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
		var err error
		tm, err = tx.Team(ctx, teamID)
		return err
	})
	return tm, a.check(w, r, err, teamID, min)
}

func (a access) tour(w http.ResponseWriter, r *http.Request, tourID string, min audiotour.Role) (audiotour.Tour, bool) {
	var tr audiotour.Tour
	err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
		var err error
		tr, err = tx.Tour(ctx, tourID)
		return err
	})
	return tr, a.check(w, r, err, tr.TeamID, min)
}

func (a access) stop(w http.ResponseWriter, r *http.Request, stopID string, min audiotour.Role) (audiotour.Stop, bool) {
	var st audiotour.Stop
	err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
		var err error
		st, err = tx.Stop(ctx, stopID)
		return err
	})
	return st, a.check(w, r, err, st.TeamID, min)
}

func (a access) resource(w http.ResponseWriter, r *http.Request, resourceID string, min audiotour.Role) (audiotour.Resource, bool) {
	var res audiotour.Resource
	err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
		var err error
		res, err = tx.Resource(ctx, resourceID)
		return err
	})
	return res, a.check(w, r, err, res.TeamID, min)
}

func (a access) version(w http.ResponseWriter, r *http.Request, versionID string, min audiotour.Role) (audiotour.Version, bool) {
	var v audiotour.Version
	var teamID string
	err := a.view(r, func(ctx context.Context, tx *store.Tx) error {
		var err error
		if v, err = tx.Version(ctx, versionID); err != nil {
			return err
		}
		tr, err := tx.Tour(ctx, v.TourID)
		teamID = tr.TeamID
		return err
	})
	return v, a.check(w, r, err, teamID, min)
}

func (a access) check(w http.ResponseWriter, r *http.Request, err error, teamID string, min audiotour.Role) bool {
	if err == nil {
		_, err = a.svc.Authorize(r.Context(), currentUser(r), teamID, min)
	}
	if err != nil {
		a.fail(w, r, err)
		return false
	}
	return true
}
