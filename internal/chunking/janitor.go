package chunking

import (
	"context"
	"time"

	"legalrag/internal/concurrency"

	"github.com/sirupsen/logrus"
)

// ExpiryStore is implemented by any local-document backing store (lexical
// index, vector collection) that can report and remove chunks past their
// TTL. Grounded on ttl_cleanup.py's cleanup_local_opensearch/
// cleanup_local_qdrant pair, generalized to one interface per store so the
// janitor doesn't need to know which backend it's sweeping.
type ExpiryStore interface {
	// Name identifies the store for logging (e.g. "opensearch:rag-local",
	// "qdrant:local_chunks").
	Name() string
	// ExpiredIDs returns the IDs of chunks whose TTL has elapsed as of now.
	ExpiredIDs(ctx context.Context, now time.Time) ([]string, error)
	// Delete removes the given chunk IDs from the store.
	Delete(ctx context.Context, ids []string) error
}

// JanitorConfig controls the periodic TTL sweep.
type JanitorConfig struct {
	// TTL is the default retention window for locally ingested chunks
	// (ttl_cleanup.py's 7-day default).
	TTL time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
	// SweepWorkers bounds how many stores are swept concurrently per run.
	SweepWorkers int
}

// DefaultJanitorConfig mirrors ttl_cleanup.py's defaults: 7-day retention,
// swept once a day.
func DefaultJanitorConfig() JanitorConfig {
	return JanitorConfig{TTL: 7 * 24 * time.Hour, Interval: 24 * time.Hour, SweepWorkers: 4}
}

// Janitor periodically sweeps a set of ExpiryStores for chunks past their
// TTL, following the teacher's cleanupLoop(ticker + select) idiom from
// internal/cache/expiration.go.
type Janitor struct {
	cfg    JanitorConfig
	stores []ExpiryStore
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	runs    int
	removed int
}

// NewJanitor builds a Janitor over the given stores; Start must be called to
// begin sweeping.
func NewJanitor(cfg JanitorConfig, stores []ExpiryStore, logger *logrus.Logger) *Janitor {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{cfg: cfg, stores: stores, logger: logger, ctx: ctx, cancel: cancel}
}

// Start launches the background sweep loop.
func (j *Janitor) Start() {
	go j.loop()
}

// Stop ends the sweep loop.
func (j *Janitor) Stop() {
	j.cancel()
}

// sweepResult carries one store's sweep outcome back from the worker pool.
type sweepResult struct {
	store   string
	removed int
}

// RunOnce performs a single sweep across every configured store, bounding
// concurrency with a internal/concurrency.WorkerPool so a slow store
// (e.g. a Neo4j sweep competing with live traffic) doesn't serialize behind
// every other store the way a plain for-loop would.
func (j *Janitor) RunOnce(ctx context.Context, now time.Time) {
	j.runs++
	if len(j.stores) == 0 {
		return
	}

	workers := j.cfg.SweepWorkers
	if workers <= 0 || workers > len(j.stores) {
		workers = len(j.stores)
	}
	pool := concurrency.NewWorkerPool(&concurrency.PoolConfig{
		Workers:   workers,
		QueueSize: len(j.stores),
	})
	defer pool.Stop()

	tasks := make([]concurrency.Task, 0, len(j.stores))
	for _, store := range j.stores {
		store := store
		tasks = append(tasks, concurrency.NewTaskFunc(store.Name(), func(taskCtx context.Context) (interface{}, error) {
			ids, err := store.ExpiredIDs(taskCtx, now)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				return sweepResult{store: store.Name()}, nil
			}
			if err := store.Delete(taskCtx, ids); err != nil {
				return nil, err
			}
			return sweepResult{store: store.Name(), removed: len(ids)}, nil
		}))
	}

	results, err := pool.SubmitBatchWait(ctx, tasks)
	if err != nil {
		j.logger.WithError(err).Warn("ttl janitor: sweep did not complete")
	}
	for _, res := range results {
		if res.Error != nil {
			j.logger.WithError(res.Error).WithField("store", res.TaskID).Warn("ttl janitor: sweep failed")
			continue
		}
		sr, ok := res.Value.(sweepResult)
		if !ok || sr.removed == 0 {
			continue
		}
		j.removed += sr.removed
		j.logger.WithFields(logrus.Fields{"store": sr.store, "count": sr.removed}).Info("ttl janitor: removed expired chunks")
	}
}

func (j *Janitor) loop() {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(j.ctx, time.Now())
		}
	}
}

// Stats reports how many sweeps have run and how many chunks were removed in
// total, for health/metrics endpoints.
func (j *Janitor) Stats() (runs, removed int) {
	return j.runs, j.removed
}
