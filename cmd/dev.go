package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/logging"
	"github.com/nowdev/devserver/internal/server"
)

var devListen string

// devCmd represents the dev command
var devCmd = &cobra.Command{
	Use:   "dev [dir]",
	Short: "Start the development server for a project directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)

	devCmd.Flags().StringVarP(&devListen, "listen", "l", "3000", "listen spec: port, host:port, or unix:/path")
}

func runDev(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  parseLevel(viper.GetString("log-level")),
		Format: viper.GetString("log-format"),
		Output: os.Stderr,
	})

	srv := server.New(server.Options{
		CWD:    abs,
		Listen: devListen,
		Logger: logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Error(ctx, err, "startup failed")
		if deverrors.IsFatal(err) {
			os.Exit(1)
		}

		return err
	}

	<-ctx.Done()

	return srv.Stop(context.Background())
}

func parseLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
