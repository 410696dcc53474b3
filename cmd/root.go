// Package cmd provides the command-line interface for the dev server.
//
// Tool configuration (not the project's deployment manifest) is resolved
// through viper with the usual precedence: command-line flags, then
// DEVSERVER_* environment variables, then a .devserver.yml in the working
// directory. The deployment manifest itself is owned by internal/config.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devserver",
	Short: "A local development server emulating the serverless request pipeline",
	Long: `devserver replicates the production serverless platform's request
pipeline on your machine: it watches the project directory, runs builders
over your entrypoints, and routes incoming HTTP requests to static files,
in-memory assets, functions, or upstream proxies.

Quick Start:
  devserver dev              Serve the current directory
  devserver dev ./site -l 8080
`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	bindLogFlags(rootCmd.PersistentFlags())
}

// bindLogFlags registers the logging flags and exposes them through viper.
func bindLogFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log-level", fs.Lookup("log-level"))
	viper.BindPFlag("log-format", fs.Lookup("log-format"))
}

// initConfig loads the optional tool config file and wires environment
// variable overrides (DEVSERVER_LOG_LEVEL and friends).
func initConfig() {
	viper.SetConfigName(".devserver")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("DEVSERVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config file: %v\n", err)
		}
	}
}
