package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tourcast/internal/notify"
)

func TestBrokerDeliversPerTeam(t *testing.T) {
	b := notify.NewBroker()
	mine := b.Subscribe("team-a")
	defer b.Unsubscribe("team-a", mine)
	other := b.Subscribe("team-b")
	defer b.Unsubscribe("team-b", other)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, b.Publish(context.Background(), notify.Event{Type: notify.TourArchived, TeamID: "team-a", TourID: "t1", At: at}))

	select {
	case data := <-mine:
		var e notify.Event
		require.NoError(t, json.Unmarshal(data, &e))
		assert.Equal(t, notify.TourArchived, e.Type)
		assert.Equal(t, "t1", e.TourID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-other:
		t.Fatal("event leaked to another team")
	default:
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := notify.NewBroker()
	ch := b.Subscribe("team")
	defer b.Unsubscribe("team", ch)

	for range 32 {
		require.NoError(t, b.Publish(context.Background(), notify.Event{Type: notify.TourUpdated, TeamID: "team"}))
	}
	assert.Len(t, ch, cap(ch))
}

type recorder struct {
	events []notify.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e notify.Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiPublishesToAll(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}
	m := notify.NewMulti(slog.New(slog.NewTextHandler(io.Discard, nil)), failing, ok)

	err := m.Publish(context.Background(), notify.Event{Type: notify.VersionPublished, TeamID: "team"})
	assert.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}
