// Package watcher turns raw fsnotify events into coalesced batches of
// net-effect changes against the file index.
//
// Events are collected into a pending list; the first event of an empty
// window arms a debounce timer and later events only append, so a burst of
// changes is processed in one pass when the timer fires. Build-output
// paths (declared distPaths) are filtered out so outputs never feed back
// as sources.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nowdev/devserver/internal/fileindex"
	"github.com/nowdev/devserver/internal/logging"
)

// DefaultWindow is the debounce window for coalescing raw events.
const DefaultWindow = 500 * time.Millisecond

// EventType classifies a raw filesystem event.
type EventType int

const (
	EventAdd EventType = iota
	EventChange
	EventUnlink
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventAdd:
		return "add"
	case EventChange:
		return "change"
	case EventUnlink:
		return "unlink"
	default:
		return "unknown"
	}
}

// Event is one raw change, project-root-relative.
type Event struct {
	Type EventType
	Path string
}

// BatchHandler receives the net-effect change sets of one debounce window.
// The two sets are disjoint.
type BatchHandler func(ctx context.Context, changed, removed []string)

// Aggregator owns the fsnotify watcher and the debounce window.
type Aggregator struct {
	root   string
	window time.Duration

	fs        *fsnotify.Watcher
	index     *fileindex.Index
	ignore    *fileindex.IgnoreFilter
	distPaths func() []string
	handler   BatchHandler
	logger    logging.Logger

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer

	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// Options configures an Aggregator.
type Options struct {
	Root      string
	Window    time.Duration
	Index     *fileindex.Index
	Ignore    *fileindex.IgnoreFilter
	DistPaths func() []string
	Handler   BatchHandler
	Logger    logging.Logger
}

// New creates an Aggregator. Window zero means DefaultWindow.
func New(opts Options) (*Aggregator, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	window := opts.Window
	if window == 0 {
		window = DefaultWindow
	}

	return &Aggregator{
		root:      opts.Root,
		window:    window,
		fs:        fsw,
		index:     opts.Index,
		ignore:    opts.Ignore,
		distPaths: opts.DistPaths,
		handler:   opts.Handler,
		logger:    opts.Logger.WithComponent("watcher"),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start walks the project registering directory watches, then begins
// consuming events. Ready is closed once the initial walk completes.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.addRecursive(a.root); err != nil {
		return err
	}

	go a.loop(ctx)

	a.readyOnce.Do(func() { close(a.ready) })

	return nil
}

// Ready is closed once the watcher is watching the full tree.
func (a *Aggregator) Ready() <-chan struct{} {
	return a.ready
}

// Close stops the watcher. Idempotent.
func (a *Aggregator) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		a.mu.Lock()
		if a.timer != nil {
			a.timer.Stop()
			a.timer = nil
		}
		a.mu.Unlock()
		err = a.fs.Close()
	})

	return err
}

func (a *Aggregator) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(a.root, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)

		if rel != "." && a.ignore != nil && a.ignore.Ignores(rel) {
			return filepath.SkipDir
		}

		return a.fs.Add(path)
	})
}

func (a *Aggregator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case ev, ok := <-a.fs.Events:
			if !ok {
				return
			}
			a.handleRaw(ctx, ev)
		case err, ok := <-a.fs.Errors:
			if !ok {
				return
			}
			a.logger.Warn(ctx, err, "watch error")
		}
	}
}

func (a *Aggregator) handleRaw(ctx context.Context, ev fsnotify.Event) {
	rel, err := filepath.Rel(a.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return
	}

	if a.ignore != nil && a.ignore.Ignores(rel) {
		return
	}

	var events []Event

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, serr := os.Stat(ev.Name); serr == nil && info.IsDir() {
			// A new directory needs its own watches, and files created
			// inside it before the watch landed need synthetic adds.
			if werr := a.addRecursive(ev.Name); werr != nil {
				a.logger.Warn(ctx, werr, "watching new directory failed", "path", rel)
			}
			for _, sub := range a.filesUnder(ev.Name) {
				events = append(events, Event{Type: EventAdd, Path: sub})
			}
		} else {
			events = append(events, Event{Type: EventAdd, Path: rel})
		}
	case ev.Op.Has(fsnotify.Write):
		events = append(events, Event{Type: EventChange, Path: rel})
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		events = append(events, Event{Type: EventUnlink, Path: rel})
	default:
		return
	}

	a.enqueue(ctx, events)
}

func (a *Aggregator) filesUnder(dir string) []string {
	var out []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(a.root, path)
		if rerr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if a.ignore == nil || !a.ignore.Ignores(rel) {
			out = append(out, rel)
		}

		return nil
	})

	return out
}

// enqueue appends to the pending window. Only the first event of an empty
// window arms the timer; the window closes on schedule no matter how many
// events keep arriving.
func (a *Aggregator) enqueue(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, events...)

	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, func() {
			a.flush(ctx)
		})
	}
}

// flush atomically takes the pending list, resets the window, and
// processes the batch.
func (a *Aggregator) flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	select {
	case <-a.done:
		return
	default:
	}

	a.process(ctx, batch)
}

// process applies a batch: drop build-output paths, refresh the index with
// net-effect semantics, and hand the disjoint changed/removed sets to the
// handler.
func (a *Aggregator) process(ctx context.Context, batch []Event) {
	dist := []string(nil)
	if a.distPaths != nil {
		dist = a.distPaths()
	}

	changed := make(map[string]bool)
	removed := make(map[string]bool)

	for _, ev := range batch {
		if underAny(dist, ev.Path) {
			continue
		}

		switch ev.Type {
		case EventAdd, EventChange:
			ref, err := a.index.Stat(ev.Path)
			if err != nil {
				if os.IsNotExist(err) {
					a.index.Remove(ev.Path)
					removed[ev.Path] = true
					delete(changed, ev.Path)
				} else {
					a.logger.Warn(ctx, err, "stat failed", "path", ev.Path)
				}
				continue
			}
			if ref.Mode.IsDir() {
				continue
			}
			a.index.Set(ref)
			changed[ev.Path] = true
			delete(removed, ev.Path)
		case EventUnlink:
			a.index.Remove(ev.Path)
			removed[ev.Path] = true
			delete(changed, ev.Path)
		}
	}

	if len(changed) == 0 && len(removed) == 0 {
		return
	}

	a.logger.Debug(ctx, "file change batch", "changed", len(changed), "removed", len(removed))

	if a.handler != nil {
		a.handler(ctx, keys(changed), keys(removed))
	}
}

func underAny(dirs []string, rel string) bool {
	for _, d := range dirs {
		d = strings.Trim(filepath.ToSlash(d), "/")
		if d == "" {
			continue
		}
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}

	return false
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}

	return out
}
