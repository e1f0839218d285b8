// Package graphstore implements the Graph Retriever & Enricher (spec §4.4):
// bounded-depth entity traversal over Neo4j, path_uid-addressable evidence,
// and the graph risk-scan detector suite (spec §4.13) reimplemented as
// pure-Go algorithms over an in-memory adjacency snapshot pulled from the
// store, since the Neo4j Graph Data Science plugin the original Python
// service called out to has no Go client.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
)

// DriverConfig configures the Neo4j driver connection.
type DriverConfig struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Store wraps a neo4j.DriverWithContext with the query helpers the retriever
// and the risk-scan detectors share.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *logrus.Logger
}

// NewStore opens a Neo4j driver and verifies connectivity.
func NewStore(ctx context.Context, cfg DriverConfig, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: failed to create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("graphstore: connectivity check failed: %w", err)
	}
	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	return &Store{driver: driver, database: database, logger: logger}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
}

// run executes a read query and collects every record, closing the session
// when done.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("graphstore: query failed: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphstore: collecting results failed: %w", err)
	}
	return records, nil
}
