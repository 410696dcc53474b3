package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowdev/devserver/internal/fileindex"
	"github.com/nowdev/devserver/internal/logging"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches int
	changed []string
	removed []string
}

func (r *batchRecorder) handle(ctx context.Context, changed, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches++
	r.changed = append([]string(nil), changed...)
	r.removed = append([]string(nil), removed...)
	sort.Strings(r.changed)
	sort.Strings(r.removed)
}

func (r *batchRecorder) snapshot() (int, []string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.batches, r.changed, r.removed
}

func newTestAggregator(t *testing.T, dir string, dist func() []string) (*Aggregator, *fileindex.Index, *batchRecorder) {
	t.Helper()

	idx := fileindex.NewIndex(dir)
	require.NoError(t, idx.Scan(fileindex.NewIgnoreFilter()))

	rec := &batchRecorder{}

	agg, err := New(Options{
		Root:      dir,
		Window:    200 * time.Millisecond,
		Index:     idx,
		Ignore:    fileindex.NewIgnoreFilter(),
		DistPaths: dist,
		Handler:   rec.handle,
		Logger:    logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { agg.Close() })

	require.NoError(t, agg.Start(ctx))
	<-agg.Ready()

	return agg, idx, rec
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventAdd, "add"},
		{EventChange, "change"},
		{EventUnlink, "unlink"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	_, idx, rec := newTestAggregator(t, dir, nil)

	// A burst of writes inside one window must produce one processing
	// pass.
	for i := 0; i < 20; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "page.html"), []byte("v"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		batches, _, _ := rec.snapshot()
		return batches >= 1
	}, 2*time.Second, 20*time.Millisecond)

	// Allow a straggler window to land, then check the count stayed low.
	time.Sleep(400 * time.Millisecond)
	batches, changed, _ := rec.snapshot()
	assert.LessOrEqual(t, batches, 2, "a burst must coalesce into very few passes")
	assert.Contains(t, changed, "page.html")
	assert.True(t, idx.Has("page.html"))
}

func TestAddAndRemoveAreNetEffect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0644))

	_, idx, rec := newTestAggregator(t, dir, nil)
	require.True(t, idx.Has("old.txt"))

	// Within one window: a new file appears and an old one goes away.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("y"), 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, "old.txt")))

	require.Eventually(t, func() bool {
		batches, _, _ := rec.snapshot()
		return batches >= 1
	}, 2*time.Second, 20*time.Millisecond)

	_, changed, removed := rec.snapshot()
	assert.Contains(t, changed, "new.txt")
	assert.Contains(t, removed, "old.txt")

	for _, p := range changed {
		assert.NotContains(t, removed, p, "changed and removed must be disjoint")
	}

	assert.True(t, idx.Has("new.txt"))
	assert.False(t, idx.Has("old.txt"))
}

func TestIndexMatchesDiskAfterBatch(t *testing.T) {
	dir := t.TempDir()
	_, idx, rec := newTestAggregator(t, dir, nil)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644))

	require.Eventually(t, func() bool {
		batches, _, _ := rec.snapshot()
		return batches >= 1 && idx.Len() == 2
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"a.txt", "b.txt"}, idx.Paths())
}

func TestDistPathEventsAreDropped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0755))

	_, _, rec := newTestAggregator(t, dir, func() []string { return []string{"dist"} })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "bundle.js"), []byte("out"), 0644))

	time.Sleep(500 * time.Millisecond)

	batches, _, _ := rec.snapshot()
	assert.Zero(t, batches, "build outputs must not trigger processing")
}

func TestIgnoredPathsAreFiltered(t *testing.T) {
	dir := t.TempDir()
	_, idx, rec := newTestAggregator(t, dir, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "i.js"), []byte("x"), 0644))

	time.Sleep(500 * time.Millisecond)

	batches, _, _ := rec.snapshot()
	assert.Zero(t, batches)
	assert.False(t, idx.Has("node_modules/pkg/i.js"))
}

func TestNewDirectoryIsWatchedRecursively(t *testing.T) {
	dir := t.TempDir()
	_, idx, rec := newTestAggregator(t, dir, nil)

	sub := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "about.html"), []byte("hi"), 0644))

	require.Eventually(t, func() bool {
		return idx.Has("pages/about.html")
	}, 2*time.Second, 20*time.Millisecond)

	batches, _, _ := rec.snapshot()
	assert.GreaterOrEqual(t, batches, 1)
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	agg, _, _ := newTestAggregator(t, dir, nil)

	require.NoError(t, agg.Close())
	require.NoError(t, agg.Close())
}
