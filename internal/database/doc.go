// Package database provides the optional PostgreSQL connection this core
// falls back to when the tracing package is configured with a Postgres trace
// sink instead of (or alongside) Kafka/MinIO fan-out.
//
// # Connection
//
//	db, err := database.Connect(ctx, dsn, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// Connect dials lazily: a failed initial ping only logs a warning, since
// pgx's pool reconnects on first real use. Callers that need the connection
// up front should call Ping explicitly and treat failure as fatal.
//
// # Pool tuning and query planning
//
// PoolConfigOptions (pool_config.go) and the query optimizer
// (query_optimizer.go) are general-purpose pgxpool helpers, independent of
// any particular schema. Connect does not use them: it builds its pool with
// pgxpool.New from the DSN alone.
package database
