package builder

import (
	"context"

	"github.com/nowdev/devserver/internal/pathmatch"
)

// StaticUse is the identity static builder's module name. It is always
// registered and never purged by the update path.
const StaticUse = "@now/static"

// StaticBuilder serves project files as-is. It decides servability lazily
// (the file either exists in the index or it does not), so it never forces
// a blocking initial build.
type StaticBuilder struct{}

// Build emits a FileFsRef for the request path, or for the entrypoint when
// the entrypoint names a concrete file.
func (s *StaticBuilder) Build(ctx context.Context, input *BuildInput) (*BuildResult, error) {
	// A concrete entrypoint builds itself; a glob entrypoint builds the
	// requested path.
	target := input.Entrypoint
	if !pathmatch.IsStatic(target) {
		target = input.RequestPath
	}
	if target == "" {
		return &BuildResult{Output: map[string]Asset{}}, nil
	}

	ref, ok := input.Files[target]
	if !ok {
		return &BuildResult{Output: map[string]Asset{}}, nil
	}

	return &BuildResult{
		Output: map[string]Asset{
			target: FileFsRef{FsPath: ref.FsPath, Mode: ref.Mode},
		},
	}, nil
}

// ShouldServe reports whether the request path is a project file covered
// by the entrypoint pattern.
func (s *StaticBuilder) ShouldServe(input *ServeInput) bool {
	if !pathmatch.Match(input.Entrypoint, input.RequestPath) {
		return false
	}

	_, ok := input.Files[input.RequestPath]

	return ok
}
