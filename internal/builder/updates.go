package builder

import (
	"context"
	"time"

	"github.com/nowdev/devserver/internal/logging"
)

// UpdateNotifier reports builder modules that were updated in the
// background so the server can purge stale bindings and rebuild matches.
type UpdateNotifier interface {
	// Updates yields batches of updated module names. The channel closes
	// when the notifier finishes.
	Updates() <-chan []string

	// Close stops the notifier and waits for its goroutine to exit.
	Close() error
}

// UpdateChecker answers which of the given modules have newer versions
// available. No implementation ships with the server; tests inject stubs,
// and a nil checker reports nothing.
type UpdateChecker func(ctx context.Context, uses []string) ([]string, error)

// PollingNotifier checks for module updates once, shortly after startup,
// the way a deploy tool refreshes its builder modules in the background.
type PollingNotifier struct {
	uses    []string
	check   UpdateChecker
	delay   time.Duration
	updates chan []string
	cancel  context.CancelFunc
	done    chan struct{}
	logger  logging.Logger
}

// NewPollingNotifier creates a notifier for the given modules. A nil
// checker yields a notifier that reports nothing.
func NewPollingNotifier(uses []string, check UpdateChecker, delay time.Duration, logger logging.Logger) *PollingNotifier {
	return &PollingNotifier{
		uses:    uses,
		check:   check,
		delay:   delay,
		updates: make(chan []string, 1),
		done:    make(chan struct{}),
		logger:  logger.WithComponent("updates"),
	}
}

// Start launches the background check.
func (n *PollingNotifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	go func() {
		defer close(n.done)
		defer close(n.updates)

		if n.check == nil || len(n.uses) == 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(n.delay):
		}

		updated, err := n.check(ctx, n.uses)
		if err != nil {
			n.logger.Warn(ctx, err, "builder update check failed")
			return
		}

		if len(updated) > 0 {
			select {
			case n.updates <- updated:
			case <-ctx.Done():
			}
		}
	}()
}

// Updates implements UpdateNotifier.
func (n *PollingNotifier) Updates() <-chan []string {
	return n.updates
}

// Close implements UpdateNotifier.
func (n *PollingNotifier) Close() error {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.done

	return nil
}
