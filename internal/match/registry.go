package match

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nowdev/devserver/internal/builder"
	"github.com/nowdev/devserver/internal/config"
	"github.com/nowdev/devserver/internal/logging"
)

// Registry holds the live build matches and reconciles them against the
// config and file list.
type Registry struct {
	mu      sync.RWMutex
	matches []*BuildMatch

	builders  *builder.Registry
	scheduler *Scheduler
	logger    logging.Logger
}

// NewRegistry creates an empty match registry.
func NewRegistry(builders *builder.Registry, scheduler *Scheduler, logger logging.Logger) *Registry {
	return &Registry{
		builders:  builders,
		scheduler: scheduler,
		logger:    logger.WithComponent("matches"),
	}
}

// Reconcile diff-applies the expected binding set: new or use-changed
// entrypoints get fresh matches (enqueuing a blocking initial build when
// the builder cannot serve lazily), stale matches are shut down and
// removed, and the result is sorted with static catch-alls last.
func (r *Registry) Reconcile(ctx context.Context, cfg *config.Config, files []string) error {
	expected := Expected(cfg, files)

	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]*BuildMatch, len(r.matches))
	for _, m := range r.matches {
		current[m.Src] = m
	}

	wanted := make(map[string]bool, len(expected))
	var next []*BuildMatch

	for _, exp := range expected {
		wanted[exp.Src] = true

		if m, ok := current[exp.Src]; ok && m.Use == exp.Use {
			next = append(next, m)
			continue
		}

		if m, ok := current[exp.Src]; ok {
			// Same entrypoint, different builder: replace wholesale.
			if err := m.Shutdown(); err != nil {
				r.logger.Warn(ctx, err, "builder shutdown failed", "src", m.Src, "use", m.Use)
			}
		}

		binding, err := r.builders.Get(exp.Use)
		if err != nil {
			return err
		}

		m := NewBuildMatch(exp.Src, exp.Use, exp.Config, binding)
		next = append(next, m)

		if !binding.CanServeLazily() {
			r.scheduler.AddBlocking(m)
		}

		r.logger.Debug(ctx, "build match added", "src", exp.Src, "use", exp.Use)
	}

	for src, m := range current {
		if wanted[src] {
			continue
		}
		if err := m.Shutdown(); err != nil {
			r.logger.Warn(ctx, err, "builder shutdown failed", "src", m.Src, "use", m.Use)
		}
		r.logger.Debug(ctx, "build match removed", "src", src, "use", m.Use)
	}

	sortMatches(next)
	r.matches = next

	return nil
}

// sortMatches orders matches deterministically with static catch-alls
// last, preserving first-match-wins asset lookup.
func sortMatches(matches []*BuildMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		ci, cj := IsCatchAll(matches[i].Src, matches[i].Use), IsCatchAll(matches[j].Src, matches[j].Use)
		if ci != cj {
			return !ci
		}

		return matches[i].Src < matches[j].Src
	})
}

// Matches returns a snapshot of the live matches in lookup order.
func (r *Registry) Matches() []*BuildMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*BuildMatch, len(r.matches))
	copy(out, r.matches)

	return out
}

// Lookup finds the first match responsible for a request path, plus the
// build key the path maps to. Published assets win over lazy servability
// probes.
func (r *Registry) Lookup(reqPath string, serveInput func(m *BuildMatch) *builder.ServeInput) (*BuildMatch, string, bool) {
	for _, m := range r.Matches() {
		if _, ok := m.Asset(reqPath); ok {
			return m, resultKey(m, reqPath), true
		}

		if m.Binding.CanServeLazily() {
			in := serveInput(m)
			in.RequestPath = reqPath
			in.Entrypoint = m.Src
			if m.Binding.ShouldServe(in) {
				return m, resultKey(m, reqPath), true
			}
			continue
		}

		// Eager builders claim their own entrypoint even before the first
		// publish, so a missing-asset request can trigger the build.
		if m.Src == reqPath {
			return m, KeyAll, true
		}
	}

	return nil, "", false
}

// resultKey picks the per-request build-result key: lazily-serving
// builders key results by request path, eager ones use the sentinel.
func resultKey(m *BuildMatch, reqPath string) string {
	if m.Binding.CanServeLazily() {
		return reqPath
	}

	return KeyAll
}

// HasAsset reports whether any match has published an asset for path.
// This is the probe the router's check rules use.
func (r *Registry) HasAsset(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, m := range r.Matches() {
		if _, ok := m.Asset(path); ok {
			return true
		}
	}

	return false
}

// Entrypoints returns the routable entrypoints with the given prefix,
// sourced from the match registry so listings reflect what routes, not
// raw files.
func (r *Registry) Entrypoints(prefix string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(p string) {
		if strings.HasPrefix(p, prefix) && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, m := range r.Matches() {
		for _, p := range m.AssetPaths() {
			add(p)
		}
		if !IsCatchAll(m.Src, m.Use) {
			add(m.Src)
		}
	}

	sort.Strings(out)

	return out
}

// DistPaths returns every declared build-output directory across all
// matches. The aggregator drops events under these.
func (r *Registry) DistPaths() []string {
	var out []string
	for _, m := range r.Matches() {
		out = append(out, m.DistPaths()...)
	}

	return out
}

// RemoveByUse destroys all matches whose builder module is in names,
// shutting their builders down. The static builder's matches survive.
// Used by the builder-update path before re-reconciling.
func (r *Registry) RemoveByUse(ctx context.Context, names []string) {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if n != builder.StaticUse {
			set[n] = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*BuildMatch
	for _, m := range r.matches {
		if !set[m.Use] {
			kept = append(kept, m)
			continue
		}
		if err := m.Shutdown(); err != nil {
			r.logger.Warn(ctx, err, "builder shutdown failed", "src", m.Src, "use", m.Use)
		}
	}

	r.matches = kept
}

// ShutdownAll shuts down every live match's builder.
func (r *Registry) ShutdownAll(ctx context.Context) {
	for _, m := range r.Matches() {
		if err := m.Shutdown(); err != nil {
			r.logger.Warn(ctx, err, "builder shutdown failed", "src", m.Src, "use", m.Use)
		}
	}
}
