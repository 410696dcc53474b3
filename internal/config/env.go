package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/subosito/gotenv"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/logging"
)

// Dotenv file names at the project root.
const (
	EnvFile      = ".env"
	BuildEnvFile = ".env.build"
)

var envNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Env holds the merged runtime and build environments.
type Env struct {
	Run   map[string]string
	Build map[string]string
}

// LoadEnv merges the local dotenv files over the manifest's env maps,
// right-biased. Secret references in the manifest must resolve from the
// dotenv files or loading fails. The build environment is also copied into
// the process environment so builders inherit it.
func LoadEnv(dir string, cfg *Config, logger logging.Logger) (*Env, error) {
	localRun, err := readDotenv(filepath.Join(dir, EnvFile))
	if err != nil {
		return nil, err
	}

	localBuild, err := readDotenv(filepath.Join(dir, BuildEnvFile))
	if err != nil {
		return nil, err
	}

	run, err := mergeEnv(cfg.Env, localRun, logger)
	if err != nil {
		return nil, err
	}

	build, err := mergeEnv(cfg.Build.Env, localBuild, logger)
	if err != nil {
		return nil, err
	}

	for name, value := range build {
		os.Setenv(name, value)
	}

	return &Env{Run: run, Build: build}, nil
}

func readDotenv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			fmt.Sprintf("reading %s", filepath.Base(path))).WithCause(err)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, deverrors.NewConfigError(deverrors.CodeInvalidBuild,
			fmt.Sprintf("parsing %s", filepath.Base(path))).WithCause(err)
	}

	return env, nil
}

// mergeEnv applies local over base. Secret references (values of the form
// "@name") in base must resolve from local. Names failing the env-var
// pattern are dropped with a warning, never merged.
func mergeEnv(base, local map[string]string, logger logging.Logger) (map[string]string, error) {
	merged := make(map[string]string, len(base)+len(local))

	for name, value := range base {
		if !validEnvName(name, logger) {
			continue
		}

		if strings.HasPrefix(value, "@") {
			ref := strings.TrimPrefix(value, "@")
			resolved, ok := local[ref]
			if !ok {
				return nil, deverrors.NewConfigError(deverrors.CodeMissingSecret,
					fmt.Sprintf("env %s references secret %q which is not defined in a local env file", name, value))
			}
			merged[name] = resolved
			continue
		}

		merged[name] = value
	}

	for name, value := range local {
		if !validEnvName(name, logger) {
			continue
		}
		merged[name] = value
	}

	return merged, nil
}

func validEnvName(name string, logger logging.Logger) bool {
	if envNameRe.MatchString(name) {
		return true
	}

	if logger != nil {
		logger.Warn(context.Background(), nil, "ignoring env variable with invalid name", "name", name)
	}

	return false
}
