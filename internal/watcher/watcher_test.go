package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// startWatcher creates and starts a watcher tracking the given files.
func startWatcher(t *testing.T, rec *recorder, paths ...string) *Watcher {
	t.Helper()

	w, err := New(nil, Options{Debounce: 50 * time.Millisecond}, rec.handle)
	require.NoError(t, err)

	for _, p := range paths {
		require.NoError(t, w.Track(p))
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		_ = w.Start(ctx)
	}()
	<-started

	t.Cleanup(func() {
		cancel()
		require.NoError(t, w.Stop())
	})
	return w
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(nil, Options{}, nil)
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(nil, Options{}, func(context.Context, Event) {})
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	assert.ErrorIs(t, w.Start(context.Background()), ErrStopped)
	assert.ErrorIs(t, w.Track(filepath.Join(t.TempDir(), "x.csv")), ErrStopped)
}

func TestWatcher_TrackSharesDirectoryWatch(t *testing.T) {
	dir := t.TempDir()
	w, err := New(nil, Options{}, func(context.Context, Event) {})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	require.NoError(t, w.Track(filepath.Join(dir, "a.csv")))
	require.NoError(t, w.Track(filepath.Join(dir, "b.csv")))
	require.NoError(t, w.Track(filepath.Join(dir, "a.csv")))

	assert.Equal(t, 2, w.Tracked())
	assert.Len(t, w.dirs, 1)

	assert.Error(t, w.Track(filepath.Join(dir, "missing", "c.csv")))
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "conifers.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("name\n"), 0o644))

	rec := &recorder{}
	startWatcher(t, rec, sheet)

	for i := range 5 {
		content := []byte("name\nPinus strobus\n" + string(rune('a'+i)) + "\n")
		require.NoError(t, os.WriteFile(sheet, content, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	// Give any stray timers a chance to fire before counting.
	time.Sleep(200 * time.Millisecond)

	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, EventChanged, events[0].Type)
	assert.Equal(t, sheet, events[0].Path)
	assert.Positive(t, events[0].Size)
}

func TestWatcher_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "conifers.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("name\n"), 0o644))

	rec := &recorder{}
	startWatcher(t, rec, sheet)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".~lock.conifers.csv#"), []byte("lock"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcher_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "herbs.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("name\n"), 0o644))

	rec := &recorder{}
	startWatcher(t, rec, sheet)

	tmp := filepath.Join(dir, "herbs.csv.new")
	require.NoError(t, os.WriteFile(tmp, []byte("name\nAsclepias syriaca\n"), 0o644))
	require.NoError(t, os.Rename(tmp, sheet))

	require.Eventually(t, func() bool {
		for _, ev := range rec.snapshot() {
			if ev.Type == EventChanged && ev.Path == sheet {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWatcher_Removal(t *testing.T) {
	dir := t.TempDir()
	sheet := filepath.Join(dir, "trees.csv")
	require.NoError(t, os.WriteFile(sheet, []byte("name\n"), 0o644))

	rec := &recorder{}
	startWatcher(t, rec, sheet)

	require.NoError(t, os.Remove(sheet))

	require.Eventually(t, func() bool {
		events := rec.snapshot()
		return len(events) == 1 && events[0].Type == EventRemoved
	}, 2*time.Second, 20*time.Millisecond)
}
