// Package store persists staged artifacts to PostgreSQL.
//
// Each artifact is written in one transaction: a row in ingested_files
// keyed by the raw file checksum, then every record through the COPY
// protocol into processed_data. Either all of a file's records become
// visible or none do.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/txtingest/internal/config"
	"github.com/JonMunkholm/txtingest/internal/core"
)

// Result describes one BulkInsert.
type Result struct {
	Inserted int64
	// Duplicate is set when the file was already ingested and nothing was written.
	Duplicate bool
}

// Postgres is the PostgreSQL store.
type Postgres struct {
	pool   *pgxpool.Pool
	dedupe bool
	logger *slog.Logger
}

// Connect opens a pool and pings it, retrying up to cfg.ConnectRetries
// times with cfg.ConnectDelay between attempts. Exhausting the attempts is
// a persistence error.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, core.NewError(core.KindPersistence, "", fmt.Errorf("parse database url: %w", err))
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	var pool *pgxpool.Pool
	err = Retry(ctx, cfg.ConnectRetries, cfg.ConnectDelay, logger, func(ctx context.Context) error {
		p, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, core.NewError(core.KindPersistence, "", fmt.Errorf("connect to database: %w", err))
	}

	logger.Info("connected to database",
		"database", poolConfig.ConnConfig.Database,
		"host", poolConfig.ConnConfig.Host,
		"dedupe", cfg.Dedupe,
	)
	return &Postgres{pool: pool, dedupe: cfg.Dedupe, logger: logger}, nil
}

// Retry calls fn until it succeeds or attempts are used up, pausing delay
// between attempts. It returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, logger *slog.Logger, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Warn("database connection failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return core.NewError(core.KindPersistence, "", fmt.Errorf("ensure schema: %w", err))
	}
	return nil
}

// BulkInsert writes every record of art with processed_at = at.
func (p *Postgres) BulkInsert(ctx context.Context, art *core.StagedArtifact, at time.Time) (Result, error) {
	rows, err := copyRows(art, at)
	if err != nil {
		return Result{}, core.NewError(core.KindPersistence, art.Source, err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Result{}, core.NewError(core.KindPersistence, art.Source, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx) // No-op if already committed

	logSQL := upsertIngestedSQL
	if p.dedupe {
		logSQL = insertIngestedSQL
	}
	tag, err := tx.Exec(ctx, logSQL, art.Checksum, art.Source, art.Layout, len(art.Records), at)
	if err != nil {
		return Result{}, core.NewError(core.KindPersistence, art.Source, fmt.Errorf("record ingestion: %w", err))
	}
	if p.dedupe && tag.RowsAffected() == 0 {
		p.logger.Info("file already ingested, skipping insert",
			"file", art.Source,
			"checksum", art.Checksum,
		)
		return Result{Duplicate: true}, nil
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"processed_data"}, processedColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return Result{}, core.NewError(core.KindPersistence, art.Source, fmt.Errorf("copy records: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, core.NewError(core.KindPersistence, art.Source, fmt.Errorf("commit: %w", err))
	}
	return Result{Inserted: n}, nil
}

// copyRows builds the COPY input for processed_data. Record data is the
// JSON object of its fields in layout order.
func copyRows(art *core.StagedArtifact, at time.Time) ([][]any, error) {
	rows := make([][]any, 0, len(art.Records))
	for _, rec := range art.Records {
		data, err := json.Marshal(rec.Fields)
		if err != nil {
			return nil, fmt.Errorf("encode line %d: %w", rec.Line, err)
		}
		rows = append(rows, []any{art.Source, art.Layout, int32(rec.Line), data, at})
	}
	return rows, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
