package builder

import (
	"context"
	"fmt"
	"sync"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/logging"
)

// Factory instantiates a builder module.
type Factory func() (Builder, error)

// Registry owns builder module instances. The update path purges cached
// bindings so stale instances are never invoked after a module update.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]*Binding
	logger    logging.Logger
}

// NewRegistry creates a module registry with the static builder
// pre-registered.
func NewRegistry(logger logging.Logger) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]*Binding),
		logger:    logger.WithComponent("builders"),
	}

	r.RegisterFactory(StaticUse, func() (Builder, error) {
		return &StaticBuilder{}, nil
	})

	return r
}

// RegisterFactory makes a builder module available under use.
func (r *Registry) RegisterFactory(use string, factory Factory) {
	r.mu.Lock()
	r.factories[use] = factory
	r.mu.Unlock()
}

// Get returns the cached binding for use, instantiating it on first
// access.
func (r *Registry) Get(use string) (*Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if binding, ok := r.cache[use]; ok {
		return binding, nil
	}

	factory, ok := r.factories[use]
	if !ok {
		return nil, deverrors.NewStartupError(deverrors.CodeUnknownBuilder,
			fmt.Sprintf("builder %q is not installed", use))
	}

	b, err := factory()
	if err != nil {
		return nil, deverrors.NewStartupError(deverrors.CodeUnknownBuilder,
			fmt.Sprintf("instantiating builder %q", use)).WithCause(err)
	}

	binding := &Binding{Use: use, Package: use, Builder: b}
	r.cache[use] = binding

	return binding, nil
}

// Install warms the cache for every module the manifest declares,
// surfacing unknown builders as a startup failure.
func (r *Registry) Install(ctx context.Context, uses []string) error {
	for _, use := range uses {
		if _, err := r.Get(use); err != nil {
			return err
		}
		r.logger.Debug(ctx, "builder installed", "use", use)
	}

	return nil
}

// Purge evicts cached bindings for the named modules so the next Get
// re-instantiates from the (updated) factory. The static builder is never
// purged.
func (r *Registry) Purge(names []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []string
	for _, name := range names {
		if name == StaticUse {
			continue
		}
		if _, ok := r.cache[name]; ok {
			delete(r.cache, name)
			purged = append(purged, name)
		}
	}

	return purged
}
