package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/tourcast/internal/app"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/config"
	"github.com/playperu/tourcast/internal/lifecycle"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "tourcast.db"))
	t.Setenv("ASSET_DIR", filepath.Join(dir, "assets"))
	t.Setenv("ASSET_DRIVER", "local")
	t.Setenv("LOG_LEVEL", "ERROR")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

var idPattern = regexp.MustCompile(`(?:team|user|version) (\S+) `)

func createdID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "no id in %q", out)
	return m[1]
}

// withTour opens the configured app directly to author a tour for teamID.
func withTour(t *testing.T, teamID string) string {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer a.Close()

	tr, err := a.Service.CreateTour(ctx, teamID, lifecycle.TourInput{
		Name:       "Old Town",
		Visibility: audiotour.VisibilityPublic,
	})
	require.NoError(t, err)
	return tr.ID
}

func TestMigrate(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date")
}

func TestUserAndTeamCreate(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "user", "create", "--email", "Ana@Example.com", "--password", "correct horse", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com")

	out, err = execute(t, "team", "create",
		"--name", "Museum", "--link", "museum",
		"--variant", "en-us:English", "--variant", "es-pe:Spanish:Español",
		"--owner", "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "(museum)")

	_, err = execute(t, "team", "create", "--name", "Other", "--link", "other", "--owner", "nobody@example.com")
	require.ErrorIs(t, err, audiotour.ErrNotFound)

	_, err = execute(t, "user", "create", "--email", "ana@example.com", "--password", "correct horse")
	require.Error(t, err)
}

func TestTourLifecycle(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "team", "create", "--name", "Museum", "--link", "museum", "--variant", "en-us")
	require.NoError(t, err)
	tourID := withTour(t, createdID(t, out))

	out, err = execute(t, "version", "publish", tourID, "--live", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "live=true staging=false")
	versionID := createdID(t, out)

	out, err = execute(t, "tour", "archive", tourID)
	require.NoError(t, err)
	assert.Contains(t, out, "archived tour "+tourID)

	out, err = execute(t, "tour", "restore", tourID)
	require.NoError(t, err)
	assert.Contains(t, out, "restored tour "+tourID)

	out, err = execute(t, "version", "delete", versionID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted version "+versionID)

	out, err = execute(t, "tour", "delete", tourID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted tour "+tourID)

	_, err = execute(t, "tour", "restore", tourID)
	require.ErrorIs(t, err, audiotour.ErrNotFound)
}

func TestParseVariants(t *testing.T) {
	got := parseVariants([]string{"en-us", "es-pe:Spanish", "fr-fr:French:Français"})
	assert.Equal(t, []audiotour.Variant{
		{Code: "en-us", Name: "en-us", DisplayName: "en-us"},
		{Code: "es-pe", Name: "Spanish", DisplayName: "Spanish"},
		{Code: "fr-fr", Name: "French", DisplayName: "Français"},
	}, got)
}

func TestArgsValidation(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "tour", "archive")
	require.Error(t, err)

	_, err = execute(t, "user", "create", "--email", "x@example.com")
	require.Error(t, err)
}
