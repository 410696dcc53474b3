// Package server implements the dev server: the HTTP request dispatcher
// that routes requests through the configured rule set to static files,
// blobs, functions, or upstream proxies, and the lifecycle controller that
// ties the file index, watcher, build matches, and scheduler together.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nowdev/devserver/internal/builder"
	"github.com/nowdev/devserver/internal/config"
	"github.com/nowdev/devserver/internal/fileindex"
	"github.com/nowdev/devserver/internal/logging"
	"github.com/nowdev/devserver/internal/match"
	"github.com/nowdev/devserver/internal/watcher"
)

// Options configures a DevServer.
type Options struct {
	CWD    string
	Listen string
	Logger logging.Logger

	// Cooldown and Window override the scheduler cooldown and the FS
	// debounce window. Zero keeps the defaults.
	Cooldown time.Duration
	Window   time.Duration

	// UpdateCheck, when set, powers the background builder-update task.
	UpdateCheck builder.UpdateChecker

	// YarnPath is handed through to node-ecosystem builders.
	YarnPath string
}

// DevServer owns the file index, build-match registry, watcher, HTTP
// listener, and in-progress-build table for one project.
type DevServer struct {
	cwd    string
	listen string
	logger logging.Logger

	cfg *config.Config
	env *config.Env

	files     *fileindex.Index
	ignore    *fileindex.IgnoreFilter
	builders  *builder.Registry
	scheduler *match.Scheduler
	matches   *match.Registry
	agg       *watcher.Aggregator
	notifier  *builder.PollingNotifier

	httpServer *http.Server
	address    string

	podID       string
	updateCheck builder.UpdateChecker
	updateDone  chan struct{}
	window      time.Duration
	yarnPath    string

	mu       sync.Mutex
	stopping bool
}

// New creates a DevServer for the project at opts.CWD. Start does the
// heavy lifting; New only wires the subsystems.
func New(opts Options) *DevServer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	builders := builder.NewRegistry(logger)
	scheduler := match.NewScheduler(opts.Cooldown, logger)

	return &DevServer{
		cwd:         opts.CWD,
		listen:      opts.Listen,
		logger:      logger.WithComponent("server"),
		builders:    builders,
		scheduler:   scheduler,
		matches:     match.NewRegistry(builders, scheduler, logger),
		podID:       newPodID(),
		updateCheck: opts.UpdateCheck,
		updateDone:  make(chan struct{}),
		window:      opts.Window,
		yarnPath:    opts.YarnPath,
	}
}

// Builders exposes the module registry so callers can register builder
// factories before Start.
func (s *DevServer) Builders() *builder.Registry {
	return s.builders
}

// Address returns the bound listen address once Start succeeds.
func (s *DevServer) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.address
}

// newPodID derives the 5-character pod identifier baked into request ids.
func newPodID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")

	return strings.ToLower(id[:5])
}

// newRequestID generates a correlation id of the form
// dev1:{podId}-{epochMs}-{12-hex}.
func (s *DevServer) newRequestID() string {
	var buf [6]byte
	rand.Read(buf[:])

	return fmt.Sprintf("dev1:%s-%d-%s", s.podID, time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

func (s *DevServer) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopping
}

// serveInput builds the lazy-servability probe input for a match.
func (s *DevServer) serveInput(m *match.BuildMatch) *builder.ServeInput {
	return &builder.ServeInput{
		Files:    s.files.Snapshot(),
		Config:   m.Config,
		WorkPath: s.cwd,
	}
}

// buildInput snapshots everything a builder invocation sees.
func (s *DevServer) buildInput() *builder.BuildInput {
	in := &builder.BuildInput{
		Files:    s.files.Snapshot(),
		WorkPath: s.cwd,
		YarnPath: s.yarnPath,
	}
	if s.env != nil {
		in.Env = s.env.Run
		in.BuildEnv = s.env.Build
	}

	return in
}

// reconcile refreshes the build-match registry against the current config
// and file list, then runs any blocking initial builds it produced. Build
// reconciliation triggered by a request completes before that request is
// routed.
func (s *DevServer) reconcile(ctx context.Context) error {
	if err := s.matches.Reconcile(ctx, s.cfg, s.files.Paths()); err != nil {
		return err
	}

	s.runBlockingBuilds(ctx)

	return nil
}

// runBlockingBuilds drains the scheduler's pending initial builds,
// running them sequentially, then releases the request gate.
func (s *DevServer) runBlockingBuilds(ctx context.Context) {
	pending := s.scheduler.TakeBlocking()
	if len(pending) == 0 {
		s.scheduler.FinishBlocking()
		return
	}

	if len(pending) == 1 {
		s.logger.Info(ctx, "Creating initial build")
	} else {
		s.logger.Info(ctx, "Creating initial builds", "count", len(pending))
	}

	for _, m := range pending {
		if err := s.scheduler.Build(ctx, m, match.KeyAll, s.buildInput); err != nil {
			s.logger.Error(ctx, err, "initial build failed", "src", m.Src)
		}
	}

	s.scheduler.FinishBlocking()
}

// onFileBatch is the aggregator's handler: entrypoints may have appeared
// or disappeared, so re-reconcile, then rebuild every build result whose
// watch globs intersect the change set.
func (s *DevServer) onFileBatch(ctx context.Context, changed, removed []string) {
	if err := s.reconcile(ctx); err != nil {
		s.logger.Error(ctx, err, "reconcile after file change failed")
		return
	}

	for _, target := range s.matches.RebuildTargets(changed, removed, s.serveInput) {
		if err := s.scheduler.Build(ctx, target.Match, target.Key, s.buildInput); err != nil {
			s.logger.Error(ctx, err, "rebuild failed", "src", target.Match.Src, "key", target.Key)
		}
	}
}

// consumeUpdates applies builder-module updates: purge the loader cache,
// destroy matches bound to the stale modules, and reconcile so fresh
// bindings are created. Stale bindings must never be invoked after an
// update.
func (s *DevServer) consumeUpdates(ctx context.Context) {
	defer close(s.updateDone)

	for names := range s.notifier.Updates() {
		purged := s.builders.Purge(names)
		if len(purged) == 0 {
			continue
		}

		s.logger.Info(ctx, "builders updated", "modules", strings.Join(purged, ","))
		s.matches.RemoveByUse(ctx, purged)

		if err := s.reconcile(ctx); err != nil {
			s.logger.Error(ctx, err, "reconcile after builder update failed")
		}
	}
}
