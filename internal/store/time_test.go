package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/database"
	"github.com/playperu/tourcast/internal/migrations"
)

func TestParseTimeAcceptsTrimmedFractions(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 90*int(time.Millisecond), time.UTC)
	for _, s := range []string{
		"2026-01-02T03:04:05.090Z",
		"2026-01-02T03:04:05.09Z",
	} {
		got, err := parseTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s parsed as %s", s, got)
	}

	got, err := parseTime("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got)
}

func TestTimestampsRoundTripForEveryMillisecond(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(context.Background(), db))
	s := New(db, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, ms := range []int{123, 90, 100, 0} {
		at := time.Date(2026, 1, 2, 3, 4, 5, ms*int(time.Millisecond), time.UTC)
		err := s.InTx(ctx, func(tx *Tx) error {
			teamID := newID()
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO teams (id, name, link, variants, created_at, updated_at)
				VALUES (?, ?, ?, '[]', ?, ?)
			`, teamID, "Museum", "museum-"+teamID[:8], formatTime(at), formatTime(at))
			if err != nil {
				return err
			}
			tm, err := tx.Team(ctx, teamID)
			require.NoError(t, err, "ms=%d", ms)
			assert.True(t, at.Equal(tm.CreatedAt), "ms=%d: created_at = %s", ms, tm.CreatedAt)

			stop := audiotour.Stop{TeamID: teamID, Type: audiotour.StopTypeStop, Link: "plaza"}
			if err := tx.CreateStop(ctx, &stop); err != nil {
				return err
			}
			if err := tx.ArchiveStops(ctx, []string{stop.ID}, at); err != nil {
				return err
			}
			archived, err := tx.Stop(ctx, stop.ID)
			require.NoError(t, err, "ms=%d", ms)
			require.NotNil(t, archived.ArchivedAt)

			n, err := tx.RestoreStops(ctx, []string{stop.ID}, *archived.ArchivedAt)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "ms=%d: restore must match the stamp read back", ms)
			return nil
		})
		require.NoError(t, err)
	}
}
