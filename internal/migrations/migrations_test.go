package migrations_test

import (
	"context"
	"testing"

	"github.com/playperu/tourcast/internal/database"
	"github.com/playperu/tourcast/internal/migrations"
)

func TestMigrations(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	// Verify all tables exist by querying sqlite_master.
	want := []string{
		"users", "sessions", "teams", "memberships", "resources", "files",
		"stops", "stop_resources", "tours", "tour_stops", "versions",
	}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestLiveVersionIndex(t *testing.T) {
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	seed := []string{
		`INSERT INTO teams (id, name, link, created_at, updated_at) VALUES ('team', 'Team', 'team', 'now', 'now')`,
		`INSERT INTO tours (id, team_id, name, created_at, updated_at) VALUES ('tour', 'team', 'Tour', 'now', 'now')`,
		`INSERT INTO versions (id, tour_id, is_staging, is_live, data, created_at, updated_at) VALUES ('v1', 'tour', 0, 1, '{}', 'now', 'now')`,
		`INSERT INTO versions (id, tour_id, is_staging, is_live, data, created_at, updated_at) VALUES ('v2', 'tour', 1, 1, '{}', 'now', 'now')`,
		`INSERT INTO versions (id, tour_id, is_staging, is_live, data, created_at, updated_at) VALUES ('v3', 'tour', 0, 0, '{}', 'now', 'now')`,
	}
	for _, q := range seed {
		if _, err := db.Exec(q); err != nil {
			t.Fatalf("seeding %q: %v", q, err)
		}
	}

	_, err = db.Exec(`INSERT INTO versions (id, tour_id, is_staging, is_live, data, created_at, updated_at) VALUES ('v4', 'tour', 0, 1, '{}', 'now', 'now')`)
	if err == nil {
		t.Fatal("expected second live production version to violate the unique index")
	}
}
