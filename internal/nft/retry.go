package nft

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"grimm.is/nftctl/internal/logging"
)

// RetryConfig bounds the restart-and-resubmit policy.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	Jitter          bool
	RetryableErrors []error
	// FatalErrors are never retried, even when they also match
	// RetryableErrors.
	FatalErrors []error
}

// DefaultRetryConfig retries a hung or dead session twice after the first try.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    250 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffFactor:   2.0,
		Jitter:          true,
		RetryableErrors: []error{ErrTimeout, ErrSessionDead},
		FatalErrors:     []error{ErrSessionClosed},
	}
}

// RetryWithResult calls fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. fn receives the zero-based attempt number.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var result T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return result, lastErr
			}
			return result, ctx.Err()
		default:
		}

		var err error
		result, err = fn(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err, cfg) || ctx.Err() != nil {
			return result, err
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return result, lastErr
		case <-time.After(calculateDelay(attempt, cfg)):
		}
	}

	return result, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt))

	if cfg.Jitter {
		// Up to 25% jitter
		delay += delay * 0.25 * rand.Float64()
	}

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	return time.Duration(delay)
}

func isRetryable(err error, cfg RetryConfig) bool {
	for _, f := range cfg.FatalErrors {
		if errors.Is(err, f) {
			return false
		}
	}
	if len(cfg.RetryableErrors) == 0 {
		return true
	}
	for _, r := range cfg.RetryableErrors {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// Restarter is a session that can replace its process.
type Restarter interface {
	Executor
	Restart(ctx context.Context) error
}

// RestartingExecutor resubmits a command on a fresh process when the
// session hung or died. Other failures are returned on the first attempt.
//
// A command that timed out may already have taken effect, so a resubmitted
// create can come back as ErrAlreadyExists.
type RestartingExecutor struct {
	session Restarter
	cfg     RetryConfig
	log     *logging.Logger
}

// NewRestartingExecutor wraps session with cfg. A nil logger uses the default.
func NewRestartingExecutor(session Restarter, cfg RetryConfig, logger *logging.Logger) *RestartingExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.RetryableErrors) == 0 {
		cfg.RetryableErrors = []error{ErrTimeout, ErrSessionDead}
	}
	if len(cfg.FatalErrors) == 0 {
		cfg.FatalErrors = []error{ErrSessionClosed}
	}
	return &RestartingExecutor{
		session: session,
		cfg:     cfg,
		log:     logger.WithComponent("nft"),
	}
}

func (r *RestartingExecutor) Execute(ctx context.Context, cmd Command) (string, error) {
	var prev error
	return RetryWithResult(ctx, r.cfg, func(attempt int) (string, error) {
		if attempt > 0 {
			r.log.Warn("resubmitting after session failure",
				"command", cmd.String(),
				"attempt", attempt+1,
				"max_attempts", r.cfg.MaxAttempts,
				"error", prev,
			)
			if err := r.session.Restart(ctx); err != nil {
				prev = err
				return "", err
			}
		}
		out, err := r.session.Execute(ctx, cmd)
		prev = err
		return out, err
	})
}
