package db

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

// ConnParams identifies one postgres endpoint and identity.
type ConnParams struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// URL renders the params as a postgres connection URL with credentials
// properly escaped.
func (p ConnParams) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
	}
	if p.Database != "" {
		u.Path = "/" + p.Database
	}
	return u.String()
}

// DefaultPollInterval is the pause between reachability probes.
const DefaultPollInterval = 300 * time.Millisecond

// Waiter blocks until postgres accepts connections. Connect and Clock
// are swappable so tests can simulate failed attempts without
// wall-clock delay.
type Waiter struct {
	Interval time.Duration
	Connect  func(ctx context.Context, url string) error
	Clock    retry.Clock
}

func NewWaiter(interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{
		Interval: interval,
		Connect:  probe,
		Clock:    clock.WallClock,
	}
}

// WaitUntilReady retries until a probe connection succeeds. There is no
// attempt cap and no timeout: if postgres never comes up the process
// stalls here and the container supervisor decides what to do. A probe
// only proves reachability; the connection is closed immediately.
func (w *Waiter) WaitUntilReady(ctx context.Context, params ConnParams) {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return w.Connect(ctx, params.URL())
		},
		NotifyFunc: func(err error, attempt int) {
			slog.Info("Waiting for postgres to be ready", "host", params.Host, "port", params.Port, "attempt", attempt)
		},
		Attempts: retry.UnlimitedAttempts,
		Delay:    w.Interval,
		Clock:    w.Clock,
	})
	if err != nil {
		// Unreachable with unlimited attempts and no stop channel;
		// only malformed call args end up here.
		slog.Error("Postgres wait aborted", "error", err)
		return
	}
	slog.Info("Postgres is ready")
}

func probe(ctx context.Context, url string) error {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}
