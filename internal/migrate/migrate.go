package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/arthrod/briefer/internal/config"
)

// ErrMigrationFailed wraps a nonzero exit from the migration tool.
var ErrMigrationFailed = errors.New("migrations failed")

// Command is one child-process invocation: argv, working directory and
// full environment.
type Command struct {
	Args []string
	Dir  string
	Env  []string
}

// Runner executes migration commands. The exec-based implementation is
// the production one; tests inject fakes to observe the invocation.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs the command as a child process, inheriting stdout and
// stderr so the tool's own output lands in the container log.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 {
		return errors.New("empty migration command")
	}
	c := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// Migrator triggers the external schema-migration tool against the
// database described by a merged config document.
type Migrator struct {
	runner Runner
	args   []string
	dir    string
}

func NewMigrator(runner Runner, args []string, dir string) *Migrator {
	return &Migrator{runner: runner, args: args, dir: dir}
}

// Apply runs the migration tool synchronously. The tool reads its
// database target from POSTGRES_PRISMA_URL; that variable and NODE_ENV
// are derived from the document but never override values already set
// in the process environment. A nonzero exit is fatal.
func (m *Migrator) Apply(ctx context.Context, doc config.Document) error {
	slog.Info("Running migrations")

	derived := map[string]string{
		"NODE_ENV":            "production",
		"POSTGRES_PRISMA_URL": prismaURL(doc),
	}

	err := m.runner.Run(ctx, Command{
		Args: m.args,
		Dir:  m.dir,
		Env:  mergeEnv(os.Environ(), derived),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	slog.Info("Migrations done")
	return nil
}

// prismaURL builds the connection URL the migration tool expects, with
// credentials URL-escaped.
func prismaURL(doc config.Document) string {
	userinfo := url.UserPassword(
		doc[config.KeyPostgresUsername],
		doc[config.KeyPostgresPassword],
	)
	return fmt.Sprintf("postgresql://%s@%s:%s/%s?schema=public",
		userinfo.String(),
		doc[config.KeyPostgresHostname],
		doc[config.KeyPostgresPort],
		doc[config.KeyPostgresDatabase],
	)
}

// mergeEnv appends each derived variable to base unless base already
// sets it.
func mergeEnv(base []string, derived map[string]string) []string {
	present := make(map[string]bool, len(base))
	for _, entry := range base {
		if i := strings.IndexByte(entry, '='); i >= 0 {
			present[entry[:i]] = true
		}
	}

	env := append([]string(nil), base...)
	for name, value := range derived {
		if present[name] {
			continue
		}
		env = append(env, name+"="+value)
	}
	return env
}
