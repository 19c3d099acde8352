package systemtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arthrod/briefer/internal/config"
	"github.com/arthrod/briefer/internal/db"
	"github.com/arthrod/briefer/internal/migrate"
	"github.com/arthrod/briefer/internal/ownership"
	"github.com/arthrod/briefer/internal/setup"
)

// chmodApplier applies modes but skips chown: the test does not run as
// root and all paths already belong to the test user.
type chmodApplier struct{}

func (chmodApplier) Apply(path string, id ownership.Identity, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (chmodApplier) ApplyRecursive(root string, id ownership.Identity, mode os.FileMode) error {
	return filepath.WalkDir(root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Chmod(path, mode)
	})
}

func startPostgres(t *testing.T, ctx context.Context) (host, port string) {
	t.Helper()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithUsername("briefer"),
		postgres.WithPassword("briefer"),
		postgres.WithDatabase("briefer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err = container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return host, mapped.Port()
}

func TestProvisioningSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()
	host, port := startPostgres(t, ctx)

	t.Setenv(config.KeyPostgresHostname, host)
	t.Setenv(config.KeyPostgresPort, port)
	t.Setenv(config.KeyPostgresPassword, "hunter2")

	root := t.TempDir()
	opts := setup.Options{
		AppDir:        setup.ConsumerDir{Path: filepath.Join(root, "app"), Owner: "briefer"},
		JupyterDir:    setup.ConsumerDir{Path: filepath.Join(root, "jupyter", ".config"), Owner: "jupyteruser"},
		JupyterHome:   filepath.Join(root, "jupyter"),
		AdminUser:     "briefer",
		AdminPassword: "briefer",
	}

	applier := chmodApplier{}
	store := config.NewStore(applier)
	lookup := func(username string) (ownership.Identity, error) {
		return ownership.Identity{UID: os.Getuid(), GID: os.Getgid()}, nil
	}

	orch := setup.NewOrchestrator(
		opts,
		store,
		db.NewWaiter(db.DefaultPollInterval),
		db.RotatePassword,
		migrate.NewMigrator(migrate.ExecRunner{}, []string{"true"}, root),
		applier,
		lookup,
	)

	require.NoError(t, orch.Run(ctx))

	// The env override was persisted as the primary document's password.
	doc, err := store.LoadMerged(opts.AppDir.Path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", doc[config.KeyPostgresPassword])

	// The rotation actually took effect on the server: the rotated
	// credential authenticates.
	rotated := db.ConnParams{
		User:     "briefer",
		Password: "hunter2",
		Host:     host,
		Port:     port,
		Database: "briefer",
	}
	conn, err := pgx.Connect(ctx, rotated.URL())
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	// Secondary document holds exactly the shared token.
	secondary, err := os.ReadFile(filepath.Join(opts.JupyterDir.Path, config.FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"JUPYTER_TOKEN": "`+doc[config.KeyJupyterToken]+`"}`, string(secondary))

	// Both markers are gone.
	assert.NoFileExists(t, filepath.Join(opts.AppDir.Path, setup.MarkerFileName))
	assert.NoFileExists(t, filepath.Join(opts.JupyterDir.Path, setup.MarkerFileName))
}

// TestProvisioningRestart re-runs the sequence against an already
// provisioned tree. No password override here: rotating to the value
// the document already holds keeps the admin credential valid, which
// is what lets the restart path reach the server at all.
func TestProvisioningRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()
	host, port := startPostgres(t, ctx)

	t.Setenv(config.KeyPostgresHostname, host)
	t.Setenv(config.KeyPostgresPort, port)

	root := t.TempDir()
	opts := setup.Options{
		AppDir:        setup.ConsumerDir{Path: filepath.Join(root, "app"), Owner: "briefer"},
		JupyterDir:    setup.ConsumerDir{Path: filepath.Join(root, "jupyter", ".config"), Owner: "jupyteruser"},
		JupyterHome:   filepath.Join(root, "jupyter"),
		AdminUser:     "briefer",
		AdminPassword: "briefer",
	}

	applier := chmodApplier{}
	store := config.NewStore(applier)
	lookup := func(username string) (ownership.Identity, error) {
		return ownership.Identity{UID: os.Getuid(), GID: os.Getgid()}, nil
	}

	orch := setup.NewOrchestrator(
		opts,
		store,
		db.NewWaiter(db.DefaultPollInterval),
		db.RotatePassword,
		migrate.NewMigrator(migrate.ExecRunner{}, []string{"true"}, root),
		applier,
		lookup,
	)

	require.NoError(t, orch.Run(ctx))
	first, err := store.LoadMerged(opts.AppDir.Path)
	require.NoError(t, err)

	require.NoError(t, orch.Run(ctx))
	second, err := store.LoadMerged(opts.AppDir.Path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
