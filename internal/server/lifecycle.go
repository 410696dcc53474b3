package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nowdev/devserver/internal/builder"
	"github.com/nowdev/devserver/internal/config"
	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/fileindex"
	"github.com/nowdev/devserver/internal/watcher"
)

// maxPortRetries bounds the increment-and-retry loop on port collision.
const maxPortRetries = 100

// Start brings the server up: config and environment, file index, builder
// install, initial blocking builds, the update task, the watcher, and
// finally the listener.
func (s *DevServer) Start(ctx context.Context) error {
	info, err := os.Stat(s.cwd)
	if err != nil || !info.IsDir() {
		return deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			fmt.Sprintf("%q is not a directory", s.cwd)).WithCause(err)
	}

	cfg, err := config.Load(s.cwd)
	if err != nil {
		return err
	}
	s.cfg = cfg

	env, err := config.LoadEnv(s.cwd, cfg, s.logger)
	if err != nil {
		return err
	}
	s.env = env

	ignore, err := fileindex.LoadIgnoreFilter(s.cwd)
	if err != nil {
		return deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			"reading ignore file").WithCause(err)
	}
	s.ignore = ignore

	s.files = fileindex.NewIndex(s.cwd)
	if err := s.files.Scan(ignore); err != nil {
		return deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			"scanning project").WithCause(err)
	}

	if err := s.builders.Install(ctx, cfg.BuilderModules()); err != nil {
		return err
	}

	if err := s.reconcile(ctx); err != nil {
		return err
	}

	s.notifier = builder.NewPollingNotifier(cfg.BuilderModules(), s.updateCheck, time.Second, s.logger)
	s.notifier.Start(ctx)
	go s.consumeUpdates(ctx)

	agg, err := watcher.New(watcher.Options{
		Root:      s.cwd,
		Window:    s.window,
		Index:     s.files,
		Ignore:    ignore,
		DistPaths: s.matches.DistPaths,
		Handler:   s.onFileBatch,
		Logger:    s.logger,
	})
	if err != nil {
		return deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			"creating file watcher").WithCause(err)
	}
	s.agg = agg

	if err := agg.Start(ctx); err != nil {
		return deverrors.NewStartupError(deverrors.CodeWorkingDirectoryGone,
			"starting file watcher").WithCause(err)
	}
	<-agg.Ready()

	listener, address, err := bind(s.listen)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.address = address
	s.httpServer = &http.Server{Handler: s}
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		if serr := httpServer.Serve(listener); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			s.logger.Error(ctx, serr, "http server stopped")
		}
	}()

	s.logger.Info(ctx, "ready", "address", "http://"+address)

	return nil
}

// bind resolves the listen spec to a listener. A numeric port increments
// past collisions; a named socket collision is fatal.
func bind(listen string) (net.Listener, string, error) {
	if listen == "" {
		listen = "3000"
	}

	if strings.HasPrefix(listen, "unix:") || strings.Contains(listen, "/") {
		path := strings.TrimPrefix(listen, "unix:")
		ln, err := net.Listen("unix", path)
		if err != nil {
			return nil, "", deverrors.NewStartupError(deverrors.CodeListenerUnavailable,
				fmt.Sprintf("binding socket %q", path)).WithCause(err)
		}

		return ln, path, nil
	}

	host := "localhost"
	portStr := listen
	if h, p, err := net.SplitHostPort(listen); err == nil {
		if h != "" {
			host = h
		}
		portStr = p
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, "", deverrors.NewStartupError(deverrors.CodeListenerUnavailable,
			fmt.Sprintf("invalid listen spec %q", listen))
	}

	for i := 0; i < maxPortRetries; i++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, lerr := net.Listen("tcp", addr)
		if lerr == nil {
			return ln, ln.Addr().String(), nil
		}
		if !errors.Is(lerr, syscall.EADDRINUSE) {
			return nil, "", deverrors.NewStartupError(deverrors.CodeListenerUnavailable,
				fmt.Sprintf("binding %s", addr)).WithCause(lerr)
		}
		port++
	}

	return nil, "", deverrors.NewStartupError(deverrors.CodeListenerUnavailable,
		fmt.Sprintf("no free port found after %d attempts", maxPortRetries))
}

// Stop tears the server down. Idempotent; in-flight builds are awaited by
// their builders, not cancelled.
func (s *DevServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	httpServer := s.httpServer
	s.mu.Unlock()

	s.matches.ShutdownAll(ctx)

	if httpServer != nil {
		if err := httpServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn(ctx, err, "closing http server")
		}
	}

	if s.agg != nil {
		if err := s.agg.Close(); err != nil {
			s.logger.Warn(ctx, err, "closing watcher")
		}
	}

	if s.notifier != nil {
		s.notifier.Close()
		<-s.updateDone
	}

	return nil
}
