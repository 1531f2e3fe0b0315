package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsearch/internal/storage"
	"github.com/bull/docsearch/internal/storage/memory"
)

type recordingProcessor struct {
	mu   sync.Mutex
	ids  []int64
	fail map[int64]bool
}

func (p *recordingProcessor) Process(_ context.Context, id int64) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	if p.fail[id] {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func (p *recordingProcessor) processed() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]int64(nil), p.ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestWorker_CloseDrainsQueue(t *testing.T) {
	proc := &recordingProcessor{fail: map[int64]bool{3: true}}
	w := NewWorker(context.Background(), proc, 3, 16, quietLogger())

	for id := int64(1); id <= 10; id++ {
		require.NoError(t, w.Enqueue(id))
	}
	w.Close()

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, proc.processed())
}

func TestWorker_EnqueueAfterClose(t *testing.T) {
	w := NewWorker(context.Background(), &recordingProcessor{}, 1, 1, quietLogger())
	w.Close()
	w.Close()

	assert.ErrorIs(t, w.Enqueue(1), ErrQueueClosed)
}

func TestWorker_UnbufferedQueue(t *testing.T) {
	proc := &recordingProcessor{}
	w := NewWorker(context.Background(), proc, 0, 0, quietLogger())

	require.NoError(t, w.Enqueue(7))
	require.NoError(t, w.Enqueue(8))
	w.Close()

	assert.Equal(t, []int64{7, 8}, proc.processed())
}

func TestWorker_ProcessesDocuments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New(), 15, 5)
	ok := f.createFile(t, "hello.txt", "Hello world. This is a test.")
	missing := f.createFile(t, "missing.txt", "x")
	require.NoError(t, os.Remove(missing.FilePath))

	w := NewWorker(ctx, f.orch, 2, 4, quietLogger())
	require.NoError(t, w.Enqueue(ok.ID))
	require.NoError(t, w.Enqueue(missing.ID))
	w.Close()

	got, err := f.store.GetDocument(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, got.Status())

	got, err = f.store.GetDocument(ctx, missing.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, got.Status())
	assert.Equal(t, "missing.txt", filepath.Base(got.FilePath))
}
