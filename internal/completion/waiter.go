package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/screen"
)

// ErrPromptTimeout is returned when the shell prompt never appears.
var ErrPromptTimeout = errors.New("timeout while waiting for shell prompt")

// CaptureFunc returns the pane's current screen.
type CaptureFunc func(ctx context.Context) (screen.Snapshot, error)

// Waiter turns asynchronous pane rendering into synchronous checkpoints.
type Waiter struct {
	Prompt          string
	PollInterval    time.Duration
	MaxAttempts     int
	SettleMode      string
	SettleDelay     time.Duration
	StableSnapshots int

	Logger *log.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewWaiter builds a Waiter from cfg.
func NewWaiter(cfg *config.Config, logger *log.Logger) *Waiter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Waiter{
		Prompt:          cfg.Prompt,
		PollInterval:    cfg.PromptPollInterval,
		MaxAttempts:     cfg.PromptMaxAttempts,
		SettleMode:      cfg.SettleMode,
		SettleDelay:     cfg.SettleDelay,
		StableSnapshots: cfg.SettleStableSnapshots,
		Logger:          logger,
		sleep:           sleepContext,
		now:             time.Now,
	}
}

// WaitForPrompt captures until the last non-empty line ends with the prompt
// terminator. It gives up once more than MaxAttempts waits have passed, so a
// prompt that never shows is captured MaxAttempts+1 times.
func (w *Waiter) WaitForPrompt(ctx context.Context, capture CaptureFunc) (screen.Snapshot, error) {
	waited := 0
	for {
		snap, err := capture(ctx)
		if err != nil {
			return screen.Snapshot{}, err
		}
		if snap.EndsWithPrompt(w.Prompt) {
			w.Logger.Debug("prompt ready", "waits", waited)
			return snap, nil
		}

		if err := w.sleep(ctx, w.PollInterval); err != nil {
			return snap, err
		}
		waited++
		if waited > w.MaxAttempts {
			return snap, fmt.Errorf("%w after %d attempts (last line %q)", ErrPromptTimeout, waited, snap.LastNonEmpty())
		}
	}
}

// WaitForSettle blocks until completion output has finished rendering. The
// fixed mode sleeps SettleDelay. The stable mode returns once StableSnapshots
// consecutive captures match, or when SettleDelay runs out.
func (w *Waiter) WaitForSettle(ctx context.Context, capture CaptureFunc) error {
	if w.SettleMode != config.SettleStable {
		return w.sleep(ctx, w.SettleDelay)
	}

	deadline := w.now().Add(w.SettleDelay)
	var previous screen.Snapshot
	matches := 0
	for {
		snap, err := capture(ctx)
		if err != nil {
			return err
		}
		if matches > 0 && snap.Equal(previous) {
			matches++
		} else {
			matches = 1
		}
		previous = snap

		if matches >= w.StableSnapshots {
			w.Logger.Debug("screen settled", "matches", matches)
			return nil
		}
		if !w.now().Before(deadline) {
			w.Logger.Debug("settle delay elapsed before screen stabilised", "matches", matches)
			return nil
		}
		if err := w.sleep(ctx, w.PollInterval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
