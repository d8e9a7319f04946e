// Package memory provides an in-memory implementation of featured.Store.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mihaimyh/gofeatured/pkg/featured"
)

// Storage implements featured.Store using in-memory maps
type Storage struct {
	mu        sync.RWMutex
	jobs      map[string]*featured.Job
	purchases map[string]*featured.Purchase // keyed by external session id
	records   map[string]*featured.FeaturedRecord
	outbox    []*outboxEntry

	// counts bulk featured lookups, used by tests to assert there is no N+1
	featuredLookups int
}

type outboxEntry struct {
	event       featured.StateChanged
	deliveredAt *time.Time
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		jobs:      make(map[string]*featured.Job),
		purchases: make(map[string]*featured.Purchase),
		records:   make(map[string]*featured.FeaturedRecord),
	}
}

// PutJob inserts or replaces a job.
func (s *Storage) PutJob(job featured.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobCopy := job
	s.jobs[job.ID] = &jobCopy
}

// GetJob implements featured.JobReader
func (s *Storage) GetJob(_ context.Context, jobID string) (*featured.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, featured.ErrJobNotFound
	}
	jobCopy := *job
	return &jobCopy, nil
}

// ListActiveJobs implements featured.JobReader
func (s *Storage) ListActiveJobs(_ context.Context, afterID string, limit int) ([]featured.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job.IsActive && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]featured.Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.jobs[id])
	}
	return out, nil
}

// ActiveFeatured implements featured.FeaturedReader
func (s *Storage) ActiveFeatured(_ context.Context, jobIDs []string, now time.Time) (map[string]featured.FeaturedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.featuredLookups++
	out := make(map[string]featured.FeaturedRecord)
	for _, id := range jobIDs {
		if rec, ok := s.records[id]; ok && rec.FeaturedUntil.After(now) {
			out[id] = *rec
		}
	}
	return out, nil
}

// FeaturedLookups returns how many bulk featured lookups were served.
func (s *Storage) FeaturedLookups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.featuredLookups
}

// GetFeaturedRecord returns the stored record for a job regardless of expiry.
func (s *Storage) GetFeaturedRecord(_ context.Context, jobID string) (*featured.FeaturedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, false
	}
	recCopy := *rec
	return &recCopy, true
}

// CreatePurchase implements featured.PurchaseStore
func (s *Storage) CreatePurchase(_ context.Context, p *featured.Purchase) error {
	if p == nil || p.ExternalSessionID == "" {
		return fmt.Errorf("invalid purchase")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.purchases[p.ExternalSessionID]; exists {
		return fmt.Errorf("purchase for session %s already exists", p.ExternalSessionID)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	pCopy := *p
	s.purchases[p.ExternalSessionID] = &pCopy
	return nil
}

// GetPurchaseBySession implements featured.PurchaseStore
func (s *Storage) GetPurchaseBySession(_ context.Context, externalSessionID string) (*featured.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.purchases[externalSessionID]
	if !ok {
		return nil, featured.ErrPurchaseNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

// MarkPurchaseFailed implements featured.FulfillmentStore
func (s *Storage) MarkPurchaseFailed(_ context.Context, externalSessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[externalSessionID]
	if !ok || p.Status != featured.PurchaseStatusPending {
		return false, nil
	}
	p.Status = featured.PurchaseStatusFailed
	return true, nil
}

// ApplyFulfillment implements featured.FulfillmentStore. The write lock plays
// the role of the database transaction.
func (s *Storage) ApplyFulfillment(_ context.Context, req featured.FulfillmentRequest) (*featured.FulfillmentResult, error) {
	if req.ExternalSessionID == "" || req.JobID == "" {
		return nil, fmt.Errorf("session id and job id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[req.ExternalSessionID]
	if !ok {
		p = &featured.Purchase{
			ID:                uuid.NewString(),
			EmployerID:        req.EmployerID,
			JobID:             req.JobID,
			Type:              featured.PurchaseTypeFeatured,
			ExternalSessionID: req.ExternalSessionID,
			Status:            featured.PurchaseStatusPending,
			CreatedAt:         req.Now,
		}
		s.purchases[req.ExternalSessionID] = p
	}

	if p.Status == featured.PurchaseStatusPaid {
		res := &featured.FulfillmentResult{Purchase: *p}
		if rec, ok := s.records[p.JobID]; ok {
			res.Record = *rec
		}
		return res, nil
	}

	rec, ok := s.records[p.JobID]
	var current *time.Time
	if ok {
		current = &rec.FeaturedUntil
	} else {
		rec = &featured.FeaturedRecord{JobID: p.JobID}
	}
	rec.FeaturedUntil = featured.ExtendUntil(current, req.Now, req.Duration)
	if req.Tier > 0 {
		rec.Tier = req.Tier
	}
	rec.UpdatedAt = req.Now
	s.records[p.JobID] = rec

	paidAt := req.Now
	p.Status = featured.PurchaseStatusPaid
	p.PaidAt = &paidAt

	event := featured.StateChanged{
		ID:            uuid.NewString(),
		JobID:         p.JobID,
		Reason:        featured.ReasonFulfilled,
		FeaturedUntil: rec.FeaturedUntil,
		CreatedAt:     req.Now,
	}
	s.outbox = append(s.outbox, &outboxEntry{event: event})

	return &featured.FulfillmentResult{
		Purchase: *p,
		Record:   *rec,
		Applied:  true,
		Event:    &event,
	}, nil
}

// PendingEvents implements featured.OutboxStore
func (s *Storage) PendingEvents(_ context.Context, limit, maxAttempts int) ([]featured.StateChanged, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []featured.StateChanged{}
	for _, e := range s.outbox {
		if e.deliveredAt != nil || (maxAttempts > 0 && e.event.Attempts >= maxAttempts) {
			continue
		}
		out = append(out, e.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkEventDelivered implements featured.OutboxStore
func (s *Storage) MarkEventDelivered(_ context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.event.ID == eventID {
			t := at
			e.deliveredAt = &t
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", eventID)
}

// MarkEventFailed implements featured.OutboxStore
func (s *Storage) MarkEventFailed(_ context.Context, eventID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.outbox {
		if e.event.ID == eventID {
			e.event.Attempts++
			e.event.LastError = reason
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", eventID)
}
