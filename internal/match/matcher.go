package match

import (
	"github.com/nowdev/devserver/internal/builder"
	"github.com/nowdev/devserver/internal/config"
	"github.com/nowdev/devserver/internal/pathmatch"
)

// Expectation is one (entrypoint, builder) binding the config says should
// exist given the current file list.
type Expectation struct {
	Src    string
	Use    string
	Config map[string]interface{}
}

// Expected computes the set of matches the registry should converge to.
//
// A glob src for a non-static builder expands to one expectation per
// matching file; the static builder keeps its glob as a single catch-all
// expectation since it decides servability per request. Zero config means
// a single static catch-all over the whole project.
func Expected(cfg *config.Config, files []string) []Expectation {
	if cfg.ZeroConfig() {
		return []Expectation{{Src: "**", Use: builder.StaticUse}}
	}

	var out []Expectation
	seen := make(map[string]bool)

	for _, def := range cfg.Builds {
		if def.Use == builder.StaticUse {
			if !seen[def.Src] {
				seen[def.Src] = true
				out = append(out, Expectation{Src: def.Src, Use: def.Use, Config: def.Config})
			}
			continue
		}

		if pathmatch.IsStatic(def.Src) {
			if !seen[def.Src] {
				seen[def.Src] = true
				out = append(out, Expectation{Src: def.Src, Use: def.Use, Config: def.Config})
			}
			continue
		}

		for _, file := range files {
			if pathmatch.Match(def.Src, file) && !seen[file] {
				seen[file] = true
				out = append(out, Expectation{Src: file, Use: def.Use, Config: def.Config})
			}
		}
	}

	return out
}

// IsCatchAll reports whether an expectation (or match) is a static
// catch-all, which sorts last so concrete builders win asset lookups.
func IsCatchAll(src, use string) bool {
	return use == builder.StaticUse && !pathmatch.IsStatic(src)
}
