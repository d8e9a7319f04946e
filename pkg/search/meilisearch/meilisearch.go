// Package meilisearch implements search.Index on Meilisearch.
package meilisearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/gofeatured/pkg/search"
)

const primaryKey = "id"

// Config holds Meilisearch connection settings
type Config struct {
	Host   string
	APIKey string

	// IndexUID is the index documents are written to (default "jobs").
	IndexUID string

	// BatchSize bounds the documents sent per request during ReplaceAll (default 1000).
	BatchSize int

	// Concurrency bounds the batches in flight during ReplaceAll (default 4).
	Concurrency int

	// WaitForTasks makes every write wait until Meilisearch processed it,
	// so task failures surface as errors.
	WaitForTasks bool

	// TaskPollInterval is used with WaitForTasks (default 50ms).
	TaskPollInterval time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		IndexUID:         "jobs",
		BatchSize:        1000,
		Concurrency:      4,
		TaskPollInterval: 50 * time.Millisecond,
	}
}

// documentIndex is the part of meilisearch.IndexManager used here.
type documentIndex interface {
	AddDocumentsWithContext(ctx context.Context, documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
	DeleteDocumentsWithContext(ctx context.Context, identifiers []string) (*meilisearch.TaskInfo, error)
	DeleteAllDocumentsWithContext(ctx context.Context) (*meilisearch.TaskInfo, error)
	WaitForTaskWithContext(ctx context.Context, taskUID int64, interval time.Duration) (*meilisearch.Task, error)
}

// Index implements search.Index
type Index struct {
	client meilisearch.ServiceManager
	index  documentIndex
	config Config
}

var _ search.Index = (*Index)(nil)

// New connects to Meilisearch. No request is made until the first write.
func New(config Config) (*Index, error) {
	config.Host = strings.TrimSpace(config.Host)
	if config.Host == "" {
		return nil, errors.New("meilisearch: host is required")
	}
	config = withDefaults(config)

	var opts []meilisearch.Option
	if config.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(config.APIKey))
	}
	client := meilisearch.New(config.Host, opts...)

	return &Index{
		client: client,
		index:  client.Index(config.IndexUID),
		config: config,
	}, nil
}

func newWithIndex(index documentIndex, config Config) *Index {
	return &Index{index: index, config: withDefaults(config)}
}

func withDefaults(config Config) Config {
	def := DefaultConfig()
	if config.IndexUID == "" {
		config.IndexUID = def.IndexUID
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.TaskPollInterval <= 0 {
		config.TaskPollInterval = def.TaskPollInterval
	}
	return config
}

// Ping checks that Meilisearch is reachable.
func (i *Index) Ping(ctx context.Context) error {
	if i.client == nil {
		return nil
	}
	_, err := i.client.HealthWithContext(ctx)
	return err
}

// UpsertDocuments implements search.Index
func (i *Index) UpsertDocuments(ctx context.Context, docs []search.Document) error {
	if len(docs) == 0 {
		return nil
	}
	task, err := i.index.AddDocumentsWithContext(ctx, docs, primaryKey)
	if err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return i.wait(ctx, task)
}

// DeleteDocuments implements search.Index
func (i *Index) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	task, err := i.index.DeleteDocumentsWithContext(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return i.wait(ctx, task)
}

// ReplaceAll implements search.Index. Meilisearch processes the tasks of one
// index in enqueue order, so the batches land after the delete.
func (i *Index) ReplaceAll(ctx context.Context, docs []search.Document) error {
	task, err := i.index.DeleteAllDocumentsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if err := i.wait(ctx, task); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Concurrency)
	for start := 0; start < len(docs); start += i.config.BatchSize {
		end := start + i.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		g.Go(func() error {
			return i.UpsertDocuments(gctx, batch)
		})
	}
	return g.Wait()
}

func (i *Index) wait(ctx context.Context, task *meilisearch.TaskInfo) error {
	if !i.config.WaitForTasks || task == nil {
		return nil
	}
	done, err := i.index.WaitForTaskWithContext(ctx, task.TaskUID, i.config.TaskPollInterval)
	if err != nil {
		return fmt.Errorf("failed to wait for task %d: %w", task.TaskUID, err)
	}
	if done.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("task %d failed", task.TaskUID)
	}
	return nil
}
