package main

import (
	"context"
	"log/slog"
	"os"

	appconfig "github.com/arthrod/briefer/internal/config"
	"github.com/arthrod/briefer/internal/db"
	"github.com/arthrod/briefer/internal/migrate"
	"github.com/arthrod/briefer/internal/ownership"
	"github.com/arthrod/briefer/internal/setup"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Briefer Setup", "version", AppVersion)

	applier := ownership.UnixApplier{}
	orch := setup.NewOrchestrator(
		setup.Options{
			AppDir: setup.ConsumerDir{
				Path:  config.Setup.AppConfigDir,
				Owner: config.Setup.AppOwner,
			},
			JupyterDir: setup.ConsumerDir{
				Path:  config.Setup.JupyterConfigDir,
				Owner: config.Setup.JupyterOwner,
			},
			JupyterHome:   config.Setup.JupyterHome,
			AdminUser:     config.Postgres.AdminUser,
			AdminPassword: config.Postgres.AdminPassword,
		},
		appconfig.NewStore(applier),
		db.NewWaiter(config.Setup.PollInterval),
		db.RotatePassword,
		migrate.NewMigrator(migrate.ExecRunner{}, config.Migrations.Command, config.Migrations.WorkingDir),
		applier,
		ownership.Lookup,
	)

	if err := orch.Run(context.Background()); err != nil {
		slog.Error("Setup failed", "error", err)
		os.Exit(1)
	}
}
