package featured

import (
	"context"
	"sort"
	"time"
)

// Resolver derives featured state for jobs from a single bulk lookup.
type Resolver struct {
	featured FeaturedReader
	now      func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver reading active records from reader.
func NewResolver(reader FeaturedReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{featured: reader, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach returns copies of jobs annotated with IsFeatured and FeaturedUntil.
// It issues exactly one store query regardless of len(jobs).
func (r *Resolver) Attach(ctx context.Context, jobs []Job) ([]Job, error) {
	if len(jobs) == 0 {
		return []Job{}, nil
	}

	now := r.now()
	ids := make([]string, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))
	for i := range jobs {
		if _, ok := seen[jobs[i].ID]; ok {
			continue
		}
		seen[jobs[i].ID] = struct{}{}
		ids = append(ids, jobs[i].ID)
	}

	records, err := r.featured.ActiveFeatured(ctx, ids, now)
	if err != nil {
		return nil, ErrStorage.WithCause(err)
	}

	out := make([]Job, len(jobs))
	for i, job := range jobs {
		job.FeaturedUntil = nil
		if rec, ok := records[job.ID]; ok {
			until := rec.FeaturedUntil
			job.FeaturedUntil = &until
		}
		job.IsFeatured = IsFeatured(job, now)
		out[i] = job
	}
	return out, nil
}

// IsFeatured reports whether job is featured at now. An explicit override wins.
func IsFeatured(job Job, now time.Time) bool {
	if job.FeaturedOverride != nil {
		return *job.FeaturedOverride
	}
	return job.FeaturedUntil != nil && job.FeaturedUntil.After(now)
}

// Sort orders jobs in place: featured first, then newest first. Ties on
// CreatedAt fall back to ID so the order is total for a fixed snapshot.
func Sort(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.IsFeatured != b.IsFeatured {
			return a.IsFeatured
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ExtendUntil returns the new end of a featured window: max(current, now+d).
// A purchase grants d from the moment it is fulfilled and never shortens a
// window that already reaches further. A nil current is treated as expired.
func ExtendUntil(current *time.Time, now time.Time, d time.Duration) time.Time {
	until := now.Add(d)
	if current != nil && current.After(until) {
		return *current
	}
	return until
}
