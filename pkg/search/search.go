// Package search keeps a search index eventually consistent with the store
// of record. Every operation is best-effort and no-ops when no index is
// configured.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

const defaultPageSize = 500

// Index is a search backend holding Documents keyed by id.
type Index interface {
	// UpsertDocuments adds or replaces documents.
	UpsertDocuments(ctx context.Context, docs []Document) error

	// DeleteDocuments removes documents by id. Unknown ids are not an error.
	DeleteDocuments(ctx context.Context, ids []string) error

	// ReplaceAll makes docs the complete content of the index.
	ReplaceAll(ctx context.Context, docs []Document) error
}

// Synchronizer projects jobs with their featured state into an Index.
type Synchronizer struct {
	index    Index
	jobs     featured.JobReader
	resolver *featured.Resolver
	pageSize int
	logger   featured.Logger
	metrics  featured.Metrics
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithPageSize sets how many jobs ReindexAll reads per page.
func WithPageSize(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l featured.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m featured.Metrics) Option {
	return func(s *Synchronizer) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSynchronizer creates a Synchronizer. A nil index disables synchronization.
func NewSynchronizer(index Index, jobs featured.JobReader, resolver *featured.Resolver, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		index:    index,
		jobs:     jobs,
		resolver: resolver,
		pageSize: defaultPageSize,
		logger:   &featured.NoopLogger{},
		metrics:  &featured.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether an index is configured.
func (s *Synchronizer) Enabled() bool {
	return s.index != nil
}

// Upsert attaches the current featured state to jobs and writes them.
func (s *Synchronizer) Upsert(ctx context.Context, jobs []featured.Job) error {
	if s.index == nil || len(jobs) == 0 {
		return nil
	}
	annotated, err := s.resolver.Attach(ctx, jobs)
	if err != nil {
		return err
	}
	docs := make([]Document, 0, len(annotated))
	for _, job := range annotated {
		docs = append(docs, NewDocument(job))
	}

	start := time.Now()
	err = s.index.UpsertDocuments(ctx, docs)
	s.metrics.RecordSearchOperation("upsert", len(docs), time.Since(start), err)
	if err != nil {
		return featured.ErrSearchUnavailable.WithCause(err)
	}
	return nil
}

// Remove deletes documents by job id.
func (s *Synchronizer) Remove(ctx context.Context, jobIDs []string) error {
	if s.index == nil || len(jobIDs) == 0 {
		return nil
	}
	start := time.Now()
	err := s.index.DeleteDocuments(ctx, jobIDs)
	s.metrics.RecordSearchOperation("remove", len(jobIDs), time.Since(start), err)
	if err != nil {
		return featured.ErrSearchUnavailable.WithCause(err)
	}
	return nil
}

// SyncJob brings the document of one job in line with the store: active jobs
// are upserted, inactive or deleted ones removed.
func (s *Synchronizer) SyncJob(ctx context.Context, jobID string) error {
	if s.index == nil {
		return nil
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if errors.Is(err, featured.ErrJobNotFound) {
		return s.Remove(ctx, []string{jobID})
	}
	if err != nil {
		return featured.ErrStorage.WithCause(err)
	}
	if !job.IsActive {
		return s.Remove(ctx, []string{jobID})
	}
	return s.Upsert(ctx, []featured.Job{*job})
}

// ReindexAll rebuilds the index from every active job and returns how many
// documents it now holds. It is the recovery path after failed syncs and is
// safe to repeat.
func (s *Synchronizer) ReindexAll(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}

	var (
		docs    []Document
		afterID string
	)
	for {
		page, err := s.jobs.ListActiveJobs(ctx, afterID, s.pageSize)
		if err != nil {
			return 0, featured.ErrStorage.WithCause(err)
		}
		if len(page) == 0 {
			break
		}
		annotated, err := s.resolver.Attach(ctx, page)
		if err != nil {
			return 0, err
		}
		for _, job := range annotated {
			docs = append(docs, NewDocument(job))
		}
		afterID = page[len(page)-1].ID
		if len(page) < s.pageSize {
			break
		}
	}

	start := time.Now()
	err := s.index.ReplaceAll(ctx, docs)
	s.metrics.RecordSearchOperation("reindex", len(docs), time.Since(start), err)
	if err != nil {
		return 0, featured.ErrSearchUnavailable.WithCause(err)
	}

	s.logger.Info("search index rebuilt", featured.Field{Key: "documents", Value: len(docs)})
	return len(docs), nil
}
