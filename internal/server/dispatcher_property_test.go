//go:build property

package server

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCollapseSlashesProperties validates the URL normalization law: the
// collapse is idempotent and never leaves a repeated slash behind.
func TestCollapseSlashesProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1337)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	pathGen := gen.SliceOf(gen.OneConstOf("/", "//", "a", "b", "c", "x.html", "api")).
		Map(func(parts []string) string {
			return "/" + strings.Join(parts, "")
		})

	properties.Property("collapse is idempotent", prop.ForAll(
		func(path string) bool {
			once := CollapseSlashes(path)

			return CollapseSlashes(once) == once
		},
		pathGen,
	))

	properties.Property("no repeated slashes survive", prop.ForAll(
		func(path string) bool {
			return !strings.Contains(CollapseSlashes(path), "//")
		},
		pathGen,
	))

	properties.Property("non-slash characters are preserved", prop.ForAll(
		func(path string) bool {
			stripped := strings.ReplaceAll(path, "/", "")

			return strings.ReplaceAll(CollapseSlashes(path), "/", "") == stripped
		},
		pathGen,
	))

	properties.TestingRun(t)
}
