// Package qdrant adapts the real github.com/qdrant/go-client driver into
// the small Point/ScoredPoint/SearchOptions shape the rest of this module's
// vector store code expects, the same wrapping pattern the teacher used for
// its (now retired) internal vector-db module.
package qdrant

import (
	"context"
	"fmt"
	"sync"
	"time"

	extqdrant "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

// ScoredPoint represents a search result from Qdrant.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Vector  []float32              `json:"vector,omitempty"`
}

// Point represents a vector point in Qdrant.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SearchOptions configures vector search parameters.
type SearchOptions struct {
	Limit          int
	ScoreThreshold float32
	WithPayload    bool
	WithVectors    bool
	Filter         map[string]interface{}
}

// DefaultSearchOptions returns search options with sensible defaults.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{
		Limit:       10,
		WithPayload: true,
		WithVectors: false,
	}
}

// WithLimit sets the limit and returns the options for chaining.
func (o *SearchOptions) WithLimit(limit int) *SearchOptions {
	o.Limit = limit
	return o
}

// CollectionConfig configures a Qdrant collection.
type CollectionConfig struct {
	Name       string
	VectorSize int
	Distance   DistanceMetric
}

// DistanceMetric represents the distance metric for vector similarity.
type DistanceMetric string

const (
	DistanceCosine    DistanceMetric = "Cosine"
	DistanceDot       DistanceMetric = "Dot"
	DistanceEuclidean DistanceMetric = "Euclid"
)

// CollectionInfo holds information about a collection.
type CollectionInfo struct {
	Name         string `json:"name"`
	VectorSize   int    `json:"vector_size"`
	PointsCount  int64  `json:"points_count"`
	Distance     string `json:"distance"`
	OptimizersOk bool   `json:"optimizers_ok"`
}

// Config holds Qdrant client configuration.
type Config struct {
	Host    string
	Port    int
	APIKey  string
	Timeout time.Duration
	UseTLS  bool
}

// DefaultConfig returns a default Qdrant configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:    "localhost",
		Port:    6334,
		Timeout: 30 * time.Second,
		UseTLS:  false,
	}
}

// DefaultCollectionConfig creates a default collection configuration.
func DefaultCollectionConfig(name string, vectorSize int) *CollectionConfig {
	return &CollectionConfig{
		Name:       name,
		VectorSize: vectorSize,
		Distance:   DistanceCosine,
	}
}

// Client wraps the real Qdrant gRPC client and translates between this
// module's chunk-shaped payloads and Qdrant's point/value wire types.
type Client struct {
	ext    *extqdrant.Client
	logger *logrus.Logger
	mu     sync.RWMutex
	config *Config
}

// NewClient dials Qdrant over gRPC. The connection is established eagerly by
// the underlying driver, so a misconfigured host surfaces here rather than on
// first use.
func NewClient(config *Config, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	ext, err := extqdrant.NewClient(&extqdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &Client{ext: ext, logger: logger, config: config}, nil
}

// Connect verifies the connection is live by listing collections.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, err := c.ext.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant: connect failed: %w", err)
	}
	c.logger.Info("connected to qdrant")
	return nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ext.Close()
}

// HealthCheck reuses Connect as a liveness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Connect(ctx)
}

// CreateCollection creates a new collection with the given vector size and
// distance metric.
func (c *Client) CreateCollection(ctx context.Context, config *CollectionConfig) error {
	metric := extqdrant.Distance_Cosine
	switch config.Distance {
	case DistanceDot:
		metric = extqdrant.Distance_Dot
	case DistanceEuclidean:
		metric = extqdrant.Distance_Euclid
	}

	return c.ext.CreateCollection(ctx, &extqdrant.CreateCollection{
		CollectionName: config.Name,
		VectorsConfig: extqdrant.NewVectorsConfig(&extqdrant.VectorParams{
			Size:     uint64(config.VectorSize),
			Distance: metric,
		}),
	})
}

// DeleteCollection deletes a collection.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.ext.DeleteCollection(ctx, name)
}

// CollectionExists checks if a collection exists.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	return c.ext.CollectionExists(ctx, name)
}

// ListCollections lists all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	return c.ext.ListCollections(ctx)
}

// GetCollectionInfo returns information about a collection.
func (c *Client) GetCollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	info, err := c.ext.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant: collection %s not found: %w", name, err)
	}
	result := &CollectionInfo{Name: name, OptimizersOk: true}
	if info.GetPointsCount() != nil {
		result.PointsCount = int64(info.GetPointsCount())
	}
	return result, nil
}

func valueMap(payload map[string]interface{}) (map[string]*extqdrant.Value, error) {
	out := make(map[string]*extqdrant.Value, len(payload))
	for k, v := range payload {
		val, err := extqdrant.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("qdrant: payload key %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// UpsertPoints upserts points into a collection.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	wirePoints := make([]*extqdrant.PointStruct, len(points))
	for i, p := range points {
		payload, err := valueMap(p.Payload)
		if err != nil {
			return err
		}
		wirePoints[i] = &extqdrant.PointStruct{
			Id:      extqdrant.NewID(p.ID),
			Vectors: extqdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}
	_, err := c.ext.Upsert(ctx, &extqdrant.UpsertPoints{
		CollectionName: collection,
		Points:         wirePoints,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %s failed: %w", collection, err)
	}
	return nil
}

// DeletePoints deletes points from a collection by id.
func (c *Client) DeletePoints(ctx context.Context, collection string, ids []string) error {
	wireIDs := make([]*extqdrant.PointId, len(ids))
	for i, id := range ids {
		wireIDs[i] = extqdrant.NewID(id)
	}
	_, err := c.ext.Delete(ctx, &extqdrant.DeletePoints{
		CollectionName: collection,
		Points:         extqdrant.NewPointsSelectorIDs(wireIDs),
	})
	return err
}

// Search performs vector similarity search against collection.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, opts *SearchOptions) ([]ScoredPoint, error) {
	if opts == nil {
		opts = DefaultSearchOptions()
	}

	query := &extqdrant.QueryPoints{
		CollectionName: collection,
		Query:          extqdrant.NewQuery(vector...),
		Limit:          uint64Ptr(uint64(opts.Limit)),
		WithPayload:    extqdrant.NewWithPayload(opts.WithPayload),
	}
	if opts.ScoreThreshold > 0 {
		query.ScoreThreshold = float32Ptr(opts.ScoreThreshold)
	}
	if opts.Filter != nil {
		filter, err := toFilter(opts.Filter)
		if err != nil {
			return nil, err
		}
		query.Filter = filter
	}

	points, err := c.ext.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query on %s failed: %w", collection, err)
	}

	results := make([]ScoredPoint, len(points))
	for i, p := range points {
		results[i] = ScoredPoint{
			ID:      pointIDString(p.GetId()),
			Score:   p.GetScore(),
			Payload: payloadToMap(p.GetPayload()),
		}
	}
	return results, nil
}

// SearchRaw is Search with a caller-built Qdrant filter, for callers (the
// vector store's visibility pushdown) that need boolean combinations the
// simple equality-map Filter in SearchOptions cannot express.
func (c *Client) SearchRaw(ctx context.Context, collection string, vector []float32, limit int, filter *extqdrant.Filter) ([]ScoredPoint, error) {
	query := &extqdrant.QueryPoints{
		CollectionName: collection,
		Query:          extqdrant.NewQuery(vector...),
		Limit:          uint64Ptr(uint64(limit)),
		WithPayload:    extqdrant.NewWithPayload(true),
		Filter:         filter,
	}
	points, err := c.ext.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: scoped query on %s failed: %w", collection, err)
	}
	results := make([]ScoredPoint, len(points))
	for i, p := range points {
		results[i] = ScoredPoint{
			ID:      pointIDString(p.GetId()),
			Score:   p.GetScore(),
			Payload: payloadToMap(p.GetPayload()),
		}
	}
	return results, nil
}

// SearchBatch runs Search once per query vector; Qdrant's batch RPC offers no
// advantage here since every call in this module's hot path already shares a
// collection and filter.
func (c *Client) SearchBatch(ctx context.Context, collection string, vectors [][]float32, opts *SearchOptions) ([][]ScoredPoint, error) {
	out := make([][]ScoredPoint, len(vectors))
	for i, v := range vectors {
		r, err := c.Search(ctx, collection, v, opts)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func pointIDString(id *extqdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uid := id.GetUuid(); uid != "" {
		return uid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToMap(payload map[string]*extqdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}

func toFilter(filter map[string]interface{}) (*extqdrant.Filter, error) {
	conditions := make([]*extqdrant.Condition, 0, len(filter))
	for key, val := range filter {
		switch v := val.(type) {
		case string:
			conditions = append(conditions, extqdrant.NewMatch(key, v))
		case bool:
			conditions = append(conditions, extqdrant.NewMatchBool(key, v))
		default:
			return nil, fmt.Errorf("qdrant: unsupported filter value type for key %q", key)
		}
	}
	return &extqdrant.Filter{Must: conditions}, nil
}

func uint64Ptr(v uint64) *uint64   { return &v }
func float32Ptr(v float32) *float32 { return &v }
