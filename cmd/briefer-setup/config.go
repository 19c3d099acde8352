package main

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig
	Setup      SetupConfig
	Postgres   PostgresConfig
	Migrations MigrationsConfig
}

type SetupConfig struct {
	AppConfigDir     string        `mapstructure:"app_config_dir"`
	AppOwner         string        `mapstructure:"app_owner"`
	JupyterConfigDir string        `mapstructure:"jupyter_config_dir"`
	JupyterOwner     string        `mapstructure:"jupyter_owner"`
	JupyterHome      string        `mapstructure:"jupyter_home"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

type PostgresConfig struct {
	AdminUser     string `mapstructure:"admin_user"`
	AdminPassword string `mapstructure:"admin_password"`
}

type MigrationsConfig struct {
	Command    []string `mapstructure:"command"`
	WorkingDir string   `mapstructure:"working_dir"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/briefer-setup")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log.level", "info")
	viper.SetDefault("setup.app_config_dir", "/home/briefer/.config/briefer")
	viper.SetDefault("setup.app_owner", "briefer")
	viper.SetDefault("setup.jupyter_config_dir", "/home/jupyteruser/.config/briefer")
	viper.SetDefault("setup.jupyter_owner", "jupyteruser")
	viper.SetDefault("setup.jupyter_home", "/home/jupyteruser")
	viper.SetDefault("setup.poll_interval", "300ms")
	viper.SetDefault("postgres.admin_user", "briefer")
	viper.SetDefault("postgres.admin_password", "briefer")
	viper.SetDefault("migrations.command", []string{
		"npx", "prisma", "migrate", "deploy",
		"--schema", "packages/database/prisma/schema.prisma",
	})
	viper.SetDefault("migrations.working_dir", "/app/api")

	// The yaml file is optional: every setting has a default matching
	// the container image layout.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)
}
