// Package builder defines the capability interfaces the core consumes
// builders through, the asset variants builds produce, and the module
// registry that owns builder instances.
//
// Builders are opaque to the rest of the server: a required Build method
// plus optional capabilities discovered by interface assertion, mirroring
// how the manifest's "use" field binds entrypoints to builder modules.
package builder

import (
	"context"

	"github.com/nowdev/devserver/internal/fileindex"
	"github.com/nowdev/devserver/internal/router"
)

// Builder turns an entrypoint into build outputs.
type Builder interface {
	Build(ctx context.Context, input *BuildInput) (*BuildResult, error)
}

// ServeChecker is an optional capability: builders that can decide lazily
// whether they serve a request path skip the eager initial build.
type ServeChecker interface {
	ShouldServe(input *ServeInput) bool
}

// Shutdowner is an optional capability for builders holding resources.
type Shutdowner interface {
	Shutdown() error
}

// BuildInput is everything a builder sees for one invocation. YarnPath
// points node-ecosystem builders at the package-manager install the
// server provisioned; builders that do not shell out ignore it.
type BuildInput struct {
	Files       map[string]fileindex.FileRef
	Entrypoint  string
	RequestPath string
	WorkPath    string
	YarnPath    string
	Config      map[string]interface{}
	Env         map[string]string
	BuildEnv    map[string]string
}

// ServeInput is the lazy servability probe input.
type ServeInput struct {
	Entrypoint  string
	Files       map[string]fileindex.FileRef
	Config      map[string]interface{}
	RequestPath string
	WorkPath    string
}

// BuildResult is one build invocation's outputs.
//
// Watch globs tell the event aggregator which source changes invalidate
// this result. DistPath, when set, marks an output directory whose changes
// must never feed back as sources.
type BuildResult struct {
	Output   map[string]Asset
	Routes   []router.Rule
	Watch    []string
	DistPath string
}

// Binding is an instantiated builder module. Identity is Use.
type Binding struct {
	Use     string
	Package string
	Builder Builder
}

// ShouldServe probes the binding's lazy-serve capability. Bindings without
// the capability report false, which forces eager builds.
func (b *Binding) ShouldServe(input *ServeInput) bool {
	checker, ok := b.Builder.(ServeChecker)
	if !ok {
		return false
	}

	return checker.ShouldServe(input)
}

// CanServeLazily reports whether the binding has the ShouldServe
// capability at all.
func (b *Binding) CanServeLazily() bool {
	_, ok := b.Builder.(ServeChecker)

	return ok
}

// Shutdown releases the binding's resources if it holds any.
func (b *Binding) Shutdown() error {
	if s, ok := b.Builder.(Shutdowner); ok {
		return s.Shutdown()
	}

	return nil
}
