// Package database provides connection setup for MariaDB and Redis. Both
// connections are created once at startup and handed to the rest of the
// application via dependency injection; this package owns the connection
// lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver, imported for the side effect of registering itself.
	_ "github.com/go-sql-driver/mysql"

	"github.com/pmarinho/gatehouse/internal/config"
)

// NewMariaDB opens a MariaDB connection pool with the given settings and
// verifies connectivity before returning.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// MariaDB may still be starting when the app container launches, so
	// ping with exponential backoff instead of crash-looping.
	const maxRetries = 10
	backoff := 1 * time.Second
	var pingErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()

		if pingErr == nil {
			return db, nil
		}

		if attempt == maxRetries {
			break
		}

		slog.Warn("mariadb not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, 30*time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("pinging mariadb after %d attempts: %w", maxRetries, pingErr)
}
