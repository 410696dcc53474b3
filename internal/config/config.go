// Package config loads and validates the deployment manifest and local
// environment files the dev server runs against.
//
// The manifest is now.json (or vercel.json) at the project root. It is
// decoded with encoding/json rather than through the viper instance the
// CLI uses, because env names and header names are case-sensitive and
// viper lowercases map keys. Absent a manifest the server runs
// zero-config. Environment files are dotenv-format (.env and .env.build)
// parsed with gotenv and merged over the manifest's env maps.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/router"
)

// SupportedVersion is the only accepted manifest version.
const SupportedVersion = 2

// Manifest file names probed at the project root, in order.
var manifestNames = []string{"now.json", "vercel.json"}

// Config is the normalized deployment configuration.
type Config struct {
	Version int               `json:"version"`
	Name    string            `json:"name,omitempty"`
	Builds  []BuildDef        `json:"builds,omitempty"`
	Routes  []router.Rule     `json:"routes,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Build   BuildSettings     `json:"build,omitempty"`
}

// BuildDef binds an entrypoint pattern to a builder module.
type BuildDef struct {
	Src    string                 `json:"src"`
	Use    string                 `json:"use"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// BuildSettings holds build-time settings from the manifest.
type BuildSettings struct {
	Env map[string]string `json:"env,omitempty"`
}

// Load reads the manifest from dir. A missing manifest yields a zero-config
// Config. Any validation failure is config-fatal.
func Load(dir string) (*Config, error) {
	file := ""
	for _, name := range manifestNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			file = candidate
			break
		}
	}

	if file == "" {
		return &Config{Version: SupportedVersion}, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, deverrors.NewConfigError(deverrors.CodeInvalidBuild,
			fmt.Sprintf("reading %s", filepath.Base(file))).WithCause(err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, deverrors.NewConfigError(deverrors.CodeInvalidBuild,
			fmt.Sprintf("parsing %s", filepath.Base(file))).WithCause(err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err == nil {
		if _, ok := fields["version"]; !ok {
			cfg.Version = SupportedVersion
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the manifest invariants: version 2 only, routes compile
// as anchored regexes with sane statuses, builds name src and use.
func (c *Config) Validate() error {
	if c.Version != SupportedVersion {
		msg := fmt.Sprintf("config version %d is not supported, please upgrade to version %d", c.Version, SupportedVersion)
		if c.Version == 1 {
			msg = "config version 1 is no longer supported, please upgrade to version 2"
		}

		return deverrors.NewConfigError(deverrors.CodeUnsupportedVersion, msg)
	}

	for i, rule := range c.Routes {
		if rule.Src == "" {
			return deverrors.NewConfigError(deverrors.CodeInvalidRoute,
				fmt.Sprintf("route %d is missing src", i))
		}
		if _, err := router.Compile(rule.Src); err != nil {
			return deverrors.NewConfigError(deverrors.CodeInvalidRoute,
				fmt.Sprintf("route %d has invalid src %q", i, rule.Src)).WithCause(err)
		}
		if rule.Status != 0 && (rule.Status < 100 || rule.Status > 599) {
			return deverrors.NewConfigError(deverrors.CodeInvalidRoute,
				fmt.Sprintf("route %d has invalid status %d", i, rule.Status))
		}
	}

	for i, build := range c.Builds {
		if build.Src == "" || build.Use == "" {
			return deverrors.NewConfigError(deverrors.CodeInvalidBuild,
				fmt.Sprintf("build %d must name both src and use", i))
		}
	}

	return nil
}

// ZeroConfig reports whether the manifest declares no builds, which
// triggers static autodetection.
func (c *Config) ZeroConfig() bool {
	return len(c.Builds) == 0
}

// BuilderModules returns the distinct builder module identifiers the
// manifest declares.
func (c *Config) BuilderModules() []string {
	seen := make(map[string]bool)
	var uses []string
	for _, b := range c.Builds {
		if !seen[b.Use] {
			seen[b.Use] = true
			uses = append(uses, b.Use)
		}
	}

	return uses
}
