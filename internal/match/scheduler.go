package match

import (
	"context"
	"sync"
	"time"

	"github.com/nowdev/devserver/internal/builder"
	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/logging"
	"github.com/nowdev/devserver/internal/pathmatch"
)

// DefaultCooldown is the refractory period between builds of a match. It
// is measured from the match's build timestamp, so it holds for every key
// of the match, including keys with no result yet. An HTML rebuild is typically followed within a second or two by
// no-cache requests for its sub-assets; the cooldown keeps those from
// re-triggering the build they came from.
const DefaultCooldown = 2 * time.Second

// Scheduler serializes builds per key, applies the rebuild cooldown, and
// tracks the blocking-build gate for initial eager builds.
type Scheduler struct {
	cooldown time.Duration
	logger   logging.Logger

	mu         sync.Mutex
	inProgress map[string]*inflight

	gateMu   sync.Mutex
	gate     chan struct{}
	blocking []*BuildMatch
}

type inflight struct {
	done chan struct{}
	err  error
}

// NewScheduler creates a scheduler with the given cooldown; zero means
// DefaultCooldown.
func NewScheduler(cooldown time.Duration, logger logging.Logger) *Scheduler {
	if cooldown == 0 {
		cooldown = DefaultCooldown
	}

	return &Scheduler{
		cooldown:   cooldown,
		logger:     logger.WithComponent("scheduler"),
		inProgress: make(map[string]*inflight),
	}
}

// buildKey derives the in-progress-table key for a (match, result-key)
// pair.
func buildKey(src, key string) string {
	if key == KeyAll {
		return src
	}

	return src + "\n" + key
}

// Build runs the builder for (m, key), deduplicating against an in-flight
// build of the same key and skipping entirely while the cooldown holds.
// input is only called when a build actually starts.
func (s *Scheduler) Build(ctx context.Context, m *BuildMatch, key string, input func() *builder.BuildInput) error {
	bkey := buildKey(m.Src, key)

	s.mu.Lock()

	if fl, ok := s.inProgress[bkey]; ok {
		s.mu.Unlock()
		select {
		case <-fl.done:
			return fl.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if ts := m.BuildTimestamp(); !ts.IsZero() && time.Since(ts) < s.cooldown {
		s.mu.Unlock()

		return nil
	}

	fl := &inflight{done: make(chan struct{})}
	s.inProgress[bkey] = fl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inProgress, bkey)
		s.mu.Unlock()
		close(fl.done)
	}()

	// Stale assets must not be served concurrently with the rebuild.
	m.Teardown(key)

	in := input()
	in.Entrypoint = m.Src
	if key != KeyAll {
		in.RequestPath = key
	}
	in.Config = m.Config

	s.logger.Debug(ctx, "build started", "src", m.Src, "key", key, "use", m.Use)
	start := time.Now()

	res, err := m.Binding.Builder.Build(ctx, in)
	if err != nil {
		fl.err = deverrors.NewBuildError(m.Src, "build failed", err)
		s.logger.Error(ctx, err, "build failed", "src", m.Src, "key", key, "use", m.Use)

		return fl.err
	}

	m.Publish(key, res)
	s.logger.Debug(ctx, "build finished", "src", m.Src, "key", key,
		"assets", len(res.Output), "duration", time.Since(start).String())

	return nil
}

// AddBlocking registers an initial build the server must finish before
// routing requests to its match. The first blocking build after an idle
// period installs a fresh shared gate; its completion clears it.
func (s *Scheduler) AddBlocking(m *BuildMatch) {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()

	if s.gate == nil {
		s.gate = make(chan struct{})
	}
	s.blocking = append(s.blocking, m)
}

// TakeBlocking returns and clears the pending blocking matches. The caller
// runs their builds and must call FinishBlocking afterwards.
func (s *Scheduler) TakeBlocking() []*BuildMatch {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()

	pending := s.blocking
	s.blocking = nil

	return pending
}

// FinishBlocking releases the gate if no new blocking builds arrived in
// the meantime.
func (s *Scheduler) FinishBlocking() {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()

	if len(s.blocking) > 0 || s.gate == nil {
		return
	}

	close(s.gate)
	s.gate = nil
}

// Wait blocks the caller while initial blocking builds are outstanding.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.gateMu.Lock()
	gate := s.gate
	s.gateMu.Unlock()

	if gate == nil {
		return nil
	}

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RebuildTarget names one (match, result key) pair invalidated by a
// change set.
type RebuildTarget struct {
	Match *BuildMatch
	Key   string
}

// RebuildTargets computes which build results a batch of changed and
// removed paths invalidates: every result whose watch globs intersect the
// change set, gated on the builder's servability for concrete keys, one
// target per result.
func (r *Registry) RebuildTargets(changed, removed []string, serveInput func(m *BuildMatch) *builder.ServeInput) []RebuildTarget {
	paths := make([]string, 0, len(changed)+len(removed))
	paths = append(paths, changed...)
	paths = append(paths, removed...)

	var targets []RebuildTarget

	for _, m := range r.Matches() {
		for key, res := range m.Results() {
			if len(res.Watch) == 0 {
				continue
			}

			hit := false
			for _, p := range paths {
				if pathmatch.MatchAny(res.Watch, p) {
					hit = true
					break
				}
			}
			if !hit {
				continue
			}

			if key != KeyAll {
				in := serveInput(m)
				in.Entrypoint = m.Src
				in.RequestPath = key
				if !m.Binding.ShouldServe(in) {
					continue
				}
			}

			targets = append(targets, RebuildTarget{Match: m, Key: key})
		}
	}

	return targets
}
