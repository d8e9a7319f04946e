package meilisearch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gofeatured/pkg/search"
)

type fakeIndex struct {
	mu       sync.Mutex
	docs     map[string]search.Document
	batches  int
	ops      []string
	addErr   error
	taskUID  int64
	failTask bool
	waited   []int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]search.Document)}
}

func (f *fakeIndex) task(op string) *meilisearch.TaskInfo {
	f.taskUID++
	f.ops = append(f.ops, op)
	return &meilisearch.TaskInfo{TaskUID: f.taskUID}
}

func (f *fakeIndex) AddDocumentsWithContext(_ context.Context, documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	if len(primaryKey) != 1 || primaryKey[0] != "id" {
		return nil, fmt.Errorf("unexpected primary key %v", primaryKey)
	}
	docs, ok := documentsPtr.([]search.Document)
	if !ok {
		return nil, fmt.Errorf("unexpected documents type %T", documentsPtr)
	}
	f.batches++
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f.task("add"), nil
}

func (f *fakeIndex) DeleteDocumentsWithContext(_ context.Context, identifiers []string) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range identifiers {
		delete(f.docs, id)
	}
	return f.task("delete"), nil
}

func (f *fakeIndex) DeleteAllDocumentsWithContext(context.Context) (*meilisearch.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = make(map[string]search.Document)
	return f.task("delete_all"), nil
}

func (f *fakeIndex) WaitForTaskWithContext(_ context.Context, taskUID int64, _ time.Duration) (*meilisearch.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = append(f.waited, taskUID)
	status := meilisearch.TaskStatusSucceeded
	if f.failTask {
		status = meilisearch.TaskStatusFailed
	}
	return &meilisearch.Task{Status: status}, nil
}

func docs(n int) []search.Document {
	out := make([]search.Document, n)
	for i := range out {
		out[i] = search.Document{ID: fmt.Sprintf("job-%03d", i), IsActive: true}
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	idx, err := New(Config{Host: "http://localhost:7700", APIKey: "masterKey"})
	require.NoError(t, err)
	assert.Equal(t, "jobs", idx.config.IndexUID)
	assert.Equal(t, 1000, idx.config.BatchSize)
}

func TestUpsertAndDelete(t *testing.T) {
	fake := newFakeIndex()
	idx := newWithIndex(fake, Config{})

	require.NoError(t, idx.UpsertDocuments(context.Background(), docs(3)))
	assert.Len(t, fake.docs, 3)

	require.NoError(t, idx.DeleteDocuments(context.Background(), []string{"job-000", "unknown"}))
	assert.Len(t, fake.docs, 2)

	// empty inputs make no request
	require.NoError(t, idx.UpsertDocuments(context.Background(), nil))
	require.NoError(t, idx.DeleteDocuments(context.Background(), nil))
	assert.Len(t, fake.ops, 2)
}

func TestReplaceAll_Batches(t *testing.T) {
	fake := newFakeIndex()
	idx := newWithIndex(fake, Config{BatchSize: 10, Concurrency: 3})
	fake.docs["stale"] = search.Document{ID: "stale"}

	require.NoError(t, idx.ReplaceAll(context.Background(), docs(25)))

	assert.Len(t, fake.docs, 25)
	assert.NotContains(t, fake.docs, "stale")
	assert.Equal(t, 3, fake.batches)
	assert.Equal(t, "delete_all", fake.ops[0])
}

func TestReplaceAll_Empty(t *testing.T) {
	fake := newFakeIndex()
	fake.docs["stale"] = search.Document{ID: "stale"}
	idx := newWithIndex(fake, Config{})

	require.NoError(t, idx.ReplaceAll(context.Background(), nil))
	assert.Empty(t, fake.docs)
}

func TestReplaceAll_BatchError(t *testing.T) {
	fake := newFakeIndex()
	fake.addErr = errors.New("503 service unavailable")
	idx := newWithIndex(fake, Config{BatchSize: 5})

	err := idx.ReplaceAll(context.Background(), docs(12))
	assert.Error(t, err)
}

func TestWaitForTasks(t *testing.T) {
	fake := newFakeIndex()
	idx := newWithIndex(fake, Config{WaitForTasks: true})

	require.NoError(t, idx.UpsertDocuments(context.Background(), docs(1)))
	assert.Equal(t, []int64{1}, fake.waited)

	fake.failTask = true
	assert.Error(t, idx.DeleteDocuments(context.Background(), []string{"job-000"}))
}
