package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// RotatePassword connects with the install-time admin identity and sets
// role's password to newPassword. The statement is re-issued on every
// provisioning run with whatever password the config document currently
// holds; if the document and the server ever diverge (manual
// intervention), the connect fails and the run aborts.
func RotatePassword(ctx context.Context, admin ConnParams, role, newPassword string) error {
	conn, err := pgx.Connect(ctx, admin.URL())
	if err != nil {
		return fmt.Errorf("connect as %s: %w", admin.User, err)
	}
	defer conn.Close(ctx)

	// ALTER USER does not take bind parameters; sanitize the identifier
	// and escape the literal instead.
	escaped, err := conn.PgConn().EscapeString(newPassword)
	if err != nil {
		return fmt.Errorf("escape password: %w", err)
	}
	stmt := fmt.Sprintf("ALTER USER %s WITH PASSWORD '%s'", pgx.Identifier{role}.Sanitize(), escaped)
	if _, err := conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("rotate password for role %s: %w", role, err)
	}

	slog.Info("Password changed", "role", role)
	return nil
}
