package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/arthrod/briefer/internal/config"
	"github.com/arthrod/briefer/internal/db"
	"github.com/arthrod/briefer/internal/ownership"
)

// MarkerFileName is the zero-byte sentinel signalling "provisioning in
// progress" to the other processes in the container. It exists from the
// moment setup starts until the whole sequence has succeeded; external
// supervisors treat its presence as "not ready yet".
const MarkerFileName = "setup"

// ConsumerDir is one config directory and the Unix user that owns it.
type ConsumerDir struct {
	Path  string
	Owner string
}

// Options fixes the layout and identities the sequence operates on.
type Options struct {
	AppDir     ConsumerDir
	JupyterDir ConsumerDir

	// JupyterHome is the root of the recursive ownership fix-up after
	// the derived config is written.
	JupyterHome string

	// AdminUser and AdminPassword are the install-time postgres
	// identity used to reach the server before rotation.
	AdminUser     string
	AdminPassword string
}

// Waiter blocks until the database accepts connections.
type Waiter interface {
	WaitUntilReady(ctx context.Context, params db.ConnParams)
}

// Migrator applies schema migrations for a merged config document.
type Migrator interface {
	Apply(ctx context.Context, doc config.Document) error
}

// RotateFunc changes role's password via the admin connection.
type RotateFunc func(ctx context.Context, admin db.ConnParams, role, newPassword string) error

// LookupFunc resolves a username to a filesystem identity.
type LookupFunc func(username string) (ownership.Identity, error)

// Orchestrator runs the one-shot provisioning sequence: markers up,
// primary config, database wait, credential rotation, migrations,
// derived secondary config, markers down. Every step before the marker
// removal is safe to re-run from scratch; a failure simply leaves the
// markers in place for the supervisor to see.
type Orchestrator struct {
	opts     Options
	store    *config.Store
	waiter   Waiter
	rotate   RotateFunc
	migrator Migrator
	applier  ownership.Applier
	lookup   LookupFunc
}

func NewOrchestrator(opts Options, store *config.Store, waiter Waiter, rotate RotateFunc, migrator Migrator, applier ownership.Applier, lookup LookupFunc) *Orchestrator {
	return &Orchestrator{
		opts:     opts,
		store:    store,
		waiter:   waiter,
		rotate:   rotate,
		migrator: migrator,
		applier:  applier,
		lookup:   lookup,
	}
}

// Run executes the full sequence. Any error aborts immediately with the
// markers still present; there is no rollback.
func (o *Orchestrator) Run(ctx context.Context) error {
	runID := uuid.NewString()
	slog.Info("Starting setup", "run_id", runID)

	dirs := []ConsumerDir{o.opts.AppDir, o.opts.JupyterDir}
	for _, dir := range dirs {
		if err := o.createMarker(dir); err != nil {
			return err
		}
	}

	doc, err := o.setupApps(ctx)
	if err != nil {
		return err
	}

	if err := o.setupJupyter(doc); err != nil {
		return err
	}

	for _, dir := range dirs {
		if err := os.Remove(filepath.Join(dir.Path, MarkerFileName)); err != nil {
			return fmt.Errorf("remove setup marker in %s: %w", dir.Path, err)
		}
	}

	slog.Info("Setup finished", "run_id", runID)
	return nil
}

func (o *Orchestrator) createMarker(dir ConsumerDir) error {
	if err := os.MkdirAll(dir.Path, 0755); err != nil {
		return fmt.Errorf("create consumer dir %s: %w", dir.Path, err)
	}

	id, err := o.lookup(dir.Owner)
	if err != nil {
		return err
	}

	path := filepath.Join(dir.Path, MarkerFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("create setup marker %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close setup marker %s: %w", path, err)
	}
	return o.applier.Apply(path, id, 0644)
}

func (o *Orchestrator) setupApps(ctx context.Context) (config.Document, error) {
	id, err := o.lookup(o.opts.AppDir.Owner)
	if err != nil {
		return nil, err
	}

	var doc config.Document
	if !o.store.Exists(o.opts.AppDir.Path) {
		slog.Info("First run, generating apps config")
		doc, err = o.store.CreateAndPersist(o.opts.AppDir.Path, id)
	} else {
		slog.Info("Apps config exists, loading")
		doc, err = o.store.LoadMerged(o.opts.AppDir.Path)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Setting up postgres")
	admin := db.ConnParams{
		User:     o.opts.AdminUser,
		Password: o.opts.AdminPassword,
		Host:     doc[config.KeyPostgresHostname],
		Port:     doc[config.KeyPostgresPort],
	}
	o.waiter.WaitUntilReady(ctx, admin)

	// Rotation runs every invocation, not just on first run: on a
	// restart it re-asserts the password the document already holds.
	slog.Info("Changing default user password")
	if err := o.rotate(ctx, admin, o.opts.AdminUser, doc[config.KeyPostgresPassword]); err != nil {
		return nil, err
	}

	if err := o.migrator.Apply(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

// setupJupyter writes the secondary consumer's document, a strict
// subset of the primary one, fresh on every run, then fixes ownership
// over the whole home tree.
func (o *Orchestrator) setupJupyter(doc config.Document) error {
	id, err := o.lookup(o.opts.JupyterDir.Owner)
	if err != nil {
		return err
	}

	derived := config.Document{
		config.KeyJupyterToken: doc[config.KeyJupyterToken],
	}
	if err := o.store.WriteDerived(o.opts.JupyterDir.Path, derived, id); err != nil {
		return err
	}

	return o.applier.ApplyRecursive(o.opts.JupyterHome, id, 0700)
}
