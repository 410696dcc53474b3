// Package match maintains the build-match registry (entrypoint to builder
// bindings plus their accumulated outputs) and the build scheduler that
// deduplicates concurrent builds, enforces the rebuild cooldown, and gates
// requests on initial blocking builds.
package match

import (
	"sync"
	"time"

	"github.com/nowdev/devserver/internal/builder"
)

// KeyAll is the sentinel request-path key for builders whose assets are not
// keyed by request path.
const KeyAll = "all"

// BuildMatch binds an entrypoint to a builder and accumulates its build
// outputs. Use never changes for a live match; a changed use replaces the
// match entirely.
type BuildMatch struct {
	Src     string
	Use     string
	Config  map[string]interface{}
	Binding *builder.Binding

	mu             sync.RWMutex
	buildTimestamp time.Time
	results        map[string]*builder.BuildResult
	output         map[string]builder.Asset
}

// NewBuildMatch creates an empty match for the given binding.
func NewBuildMatch(src, use string, cfg map[string]interface{}, binding *builder.Binding) *BuildMatch {
	return &BuildMatch{
		Src:     src,
		Use:     use,
		Config:  cfg,
		Binding: binding,
		results: make(map[string]*builder.BuildResult),
		output:  make(map[string]builder.Asset),
	}
}

// BuildTimestamp returns the time the last outputs were published.
// Monotonic non-decreasing per match.
func (m *BuildMatch) BuildTimestamp() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.buildTimestamp
}

// Result returns the build result stored under key.
func (m *BuildMatch) Result(key string) (*builder.BuildResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.results[key]

	return res, ok
}

// Results returns a snapshot of the per-key build results.
func (m *BuildMatch) Results() map[string]*builder.BuildResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*builder.BuildResult, len(m.results))
	for k, v := range m.results {
		out[k] = v
	}

	return out
}

// Asset looks up an asset by path in the union of all build-result
// outputs.
func (m *BuildMatch) Asset(path string) (builder.Asset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.output[path]

	return a, ok
}

// AssetPaths returns the paths of all published assets.
func (m *BuildMatch) AssetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.output))
	for p := range m.output {
		paths = append(paths, p)
	}

	return paths
}

// Teardown removes the outputs of the result under key ahead of a rebuild,
// so stale assets are never served alongside the build that replaces them.
func (m *BuildMatch) Teardown(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.results[key]
	if !ok {
		return
	}

	for path := range prev.Output {
		delete(m.output, path)
	}
	delete(m.results, key)
}

// Publish stores a build result under key. Outputs land in the shared
// output union before the build timestamp moves, so readers observe either
// the old state or the new, never a half-published build.
func (m *BuildMatch) Publish(key string, res *builder.BuildResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[key] = res
	for path, asset := range res.Output {
		m.output[path] = asset
	}

	now := time.Now()
	if now.After(m.buildTimestamp) {
		m.buildTimestamp = now
	}
}

// DistPaths returns the declared output directories of all results.
func (m *BuildMatch) DistPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var paths []string
	for _, res := range m.results {
		if res.DistPath != "" {
			paths = append(paths, res.DistPath)
		}
	}

	return paths
}

// Shutdown releases the match's builder resources.
func (m *BuildMatch) Shutdown() error {
	return m.Binding.Shutdown()
}
