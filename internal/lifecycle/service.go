// Package lifecycle implements every mutation of the tour graph: authoring,
// variant propagation, reference-counted archival and restore, and version
// publishing. Each operation runs in one store transaction; storage
// deletes are deferred until it commits, and events are emitted after.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/playperu/tourcast/internal/assets"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/notify"
	"github.com/playperu/tourcast/internal/store"
)

// LiveCache caches the live version of each tour and environment.
type LiveCache interface {
	LiveVersion(ctx context.Context, tourID string, staging bool) (audiotour.Version, bool)
	SetLiveVersion(ctx context.Context, v audiotour.Version)
	Invalidate(ctx context.Context, tourID string)
}

type Options struct {
	URLs   audiotour.AssetURLs
	Events notify.Publisher
	Cache  LiveCache
	Logger *slog.Logger

	// PublishConcurrency bounds parallel asset copies during publish.
	PublishConcurrency int
	SessionTTL         time.Duration
}

type Service struct {
	store       *store.Store
	assets      assets.Store
	urls        audiotour.AssetURLs
	events      notify.Publisher
	cache       LiveCache
	logger      *slog.Logger
	concurrency int
	sessionTTL  time.Duration
}

func New(st *store.Store, as assets.Store, opts Options) *Service {
	s := &Service{
		store:       st,
		assets:      as,
		urls:        opts.URLs,
		events:      opts.Events,
		cache:       opts.Cache,
		logger:      opts.Logger,
		concurrency: opts.PublishConcurrency,
		sessionTTL:  opts.SessionTTL,
	}
	if s.events == nil {
		s.events = notify.Discard{}
	}
	if s.cache == nil {
		s.cache = nopCache{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.concurrency <= 0 {
		s.concurrency = 4
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 7 * 24 * time.Hour
	}
	return s
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() *store.Store { return s.store }

// URLs is the asset URL builder used for documents and responses.
func (s *Service) URLs() audiotour.AssetURLs { return s.urls }

func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

func (s *Service) emit(ctx context.Context, typ, teamID, tourID, versionID string) {
	// Publish failures are logged by the publisher.
	_ = s.events.Publish(context.WithoutCancel(ctx), notify.Event{
		Type:      typ,
		TeamID:    teamID,
		TourID:    tourID,
		VersionID: versionID,
		At:        time.Now().UTC(),
	})
}

// deleteAfterCommit removes a storage prefix once tx commits.
func (s *Service) deleteAfterCommit(tx *store.Tx, prefix string) {
	tx.AfterCommit("delete "+prefix, func(ctx context.Context) error {
		return s.assets.DeletePrefix(ctx, prefix)
	})
}

type nopCache struct{}

func (nopCache) LiveVersion(context.Context, string, bool) (audiotour.Version, bool) {
	return audiotour.Version{}, false
}
func (nopCache) SetLiveVersion(context.Context, audiotour.Version) {}
func (nopCache) Invalidate(context.Context, string)                {}
