package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DB is the minimal pgx-backed connection the optional Postgres trace sink
// (internal/tracing) persists pipeline traces through, kept independent of
// any particular schema so it can be reused by other optional Postgres sinks
// later.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Pool() *pgxpool.Pool
	Close()
}

// PostgresDB implements DB using pgx's connection pool.
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// Connect dials Postgres using dsn (a postgres:// connection string), per the
// teacher's pgxpool-based connection pattern.
func Connect(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresDB, error) {
	if logger == nil {
		logger = logrus.New()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: failed to connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.WithError(err).Warn("database: initial ping failed, continuing with lazy reconnect")
	}

	return &PostgresDB{pool: pool, logger: logger}, nil
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := p.pool.Exec(ctx, query, args...)
	return err
}

// Pool returns the underlying connection pool for callers that need direct
// access (e.g. to run a transaction or a bulk COPY).
func (p *PostgresDB) Pool() *pgxpool.Pool { return p.pool }

func (p *PostgresDB) Close() { p.pool.Close() }
