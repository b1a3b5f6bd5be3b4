package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func connection(ctx context.Context, database string) (*sql.DB, error) {
	// Enable foreign keys and WAL mode
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", database))
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1)            // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)            // Keep one connection in the pool
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	// The file may be locked by a concurrent migrate run, retry for a short while
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 50 * time.Millisecond
	retry.MaxInterval = 2 * time.Second
	if err := backoff.Retry(func() error {
		if err := db.PingContext(ctx); err != nil {
			log.WithFields(log.Fields{
				"database": database,
				"error":    err,
			}).Warn("Database not ready, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(retry, 5), ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return db, nil
}
