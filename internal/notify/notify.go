// Package notify delivers tour lifecycle events to in-process subscribers
// and, when configured, to a RabbitMQ queue.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	TourUpdated      = "tour.updated"
	TourArchived     = "tour.archived"
	TourRestored     = "tour.restored"
	TourDeleted      = "tour.deleted"
	VersionPublished = "version.published"
	VersionUpdated   = "version.updated"
	VersionDeleted   = "version.deleted"
)

// Event is emitted after a lifecycle mutation has committed.
type Event struct {
	Type      string    `json:"type"`
	TeamID    string    `json:"teamId"`
	TourID    string    `json:"tourId,omitempty"`
	VersionID string    `json:"versionId,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes every event to all of its publishers. Failures are
// logged and combined; one failing publisher does not stop the others.
type Multi struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewMulti(logger *slog.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, logger: logger}
}

func (m *Multi) Publish(ctx context.Context, e Event) error {
	var result *multierror.Error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, e); err != nil {
			m.logger.Error("publishing event failed", "type", e.Type, "tour_id", e.TourID, "error", err)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
