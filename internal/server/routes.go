package server

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/tourcast/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	svc := deps.Service
	a := access{svc: svc, logger: logger}
	ttl := deps.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Tourcast API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	if deps.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticDir))))
	}

	// Public: viewers fetch live snapshots and the assets they link to.
	r.Get("/api/viewer/tours/{tourID}", handleViewerTour(a))
	r.Get(assetsRoute+"*", handleAsset(deps.Assets, ttl, logger))

	r.Post("/api/auth/login", handleLogin(svc, logger))
	r.Post("/api/auth/logout", handleLogout(svc, logger))

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(svc, logger))

		r.Get("/api/auth/me", handleMe())

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/", handleListTeams(a))
			r.Post("/", handleCreateTeam(a))

			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", handleGetTeam(a))
				r.Patch("/", handleUpdateTeam(a))
				r.Put("/members", handleSetMember(a))
				r.Get("/events", handleEvents(a, deps.Broker))
				r.Get("/ws", handleEventsWS(a, deps.Broker))

				r.Get("/tours", handleListTours(a))
				r.Post("/tours", handleCreateTour(a))
				r.Get("/stops", handleListStops(a))
				r.Post("/stops", handleCreateStop(a))
				r.Get("/resources", handleListResources(a))
				r.Post("/resources", handleCreateResource(a))
			})
		})

		r.Route("/api/tours/{tourID}", func(r chi.Router) {
			r.Get("/", handleGetTour(a))
			r.Patch("/", handleUpdateTour(a))
			r.Delete("/", handleDeleteTour(a))
			r.Post("/restore", handleRestoreTour(a))

			r.Get("/stops", handleListTourStops(a))
			r.Post("/stops", handleCreateTourStop(a))
			r.Patch("/stops/{tourStopID}", handleUpdateTourStop(a))
			r.Delete("/stops/{tourStopID}", handleDeleteTourStop(a))

			r.Get("/versions", handleListVersions(a))
			r.Post("/versions", handleCreateVersion(a))
		})

		r.Route("/api/stops/{stopID}", func(r chi.Router) {
			r.Get("/", handleGetStop(a))
			r.Patch("/", handleUpdateStop(a))
			r.Delete("/", handleDeleteStop(a))
			r.Post("/restore", handleRestoreStop(a))

			r.Post("/resources", handleCreateStopResource(a))
			r.Patch("/resources/{stopResourceID}", handleUpdateStopResource(a))
			r.Delete("/resources/{stopResourceID}", handleDeleteStopResource(a))
		})

		r.Route("/api/resources/{resourceID}", func(r chi.Router) {
			r.Get("/", handleGetResource(a))
			r.Patch("/", handleUpdateResource(a))
			r.Delete("/", handleDeleteResource(a))
			r.Post("/restore", handleRestoreResource(a))

			r.Patch("/files/{fileID}", handleUpdateFile(a))
			r.Put("/files/{fileID}/upload", handleUploadFile(a))
		})

		r.Route("/api/versions/{versionID}", func(r chi.Router) {
			r.Get("/", handleGetVersion(a))
			r.Patch("/", handleUpdateVersion(a))
			r.Delete("/", handleDeleteVersion(a))
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
