package segmentation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nexasales/nexasales/internal/extract"
	"github.com/nexasales/nexasales/internal/reasoning"
)

// RunnerConfig bounds one stage execution. Zero values take defaults.
type RunnerConfig struct {
	PollInterval time.Duration
	StageTimeout time.Duration
	RetryBudget  int
	Backoff      time.Duration
}

const (
	defaultPollInterval = 2 * time.Second
	defaultStageTimeout = 3 * time.Minute
	defaultRetryBudget  = 2
	defaultBackoff      = time.Second
)

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaultStageTimeout
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = defaultRetryBudget
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	return c
}

// Runner executes one named stage against the reasoning collaborator:
// submit, bounded poll loop, extraction. Transient and terminal
// failures carry separate retry budgets; either class resubmits the
// stage from scratch. Extraction failures never error; they surface as
// degraded results.
type Runner struct {
	client reasoning.Client
	clock  reasoning.Clock
	cfg    RunnerConfig
}

func NewRunner(client reasoning.Client, cfg RunnerConfig) *Runner {
	return &Runner{client: client, clock: reasoning.SystemClock(), cfg: cfg.withDefaults()}
}

func (r *Runner) Run(ctx context.Context, stage, prompt string, schema extract.Schema) (extract.Result, StageMetrics, error) {
	var metrics StageMetrics
	transient, terminal := 0, 0
	for {
		metrics.Attempts++
		log.Printf("segmentation stage_submit stage=%s attempt=%d", stage, metrics.Attempts)
		text, err := r.runOnce(ctx, stage, prompt, &metrics)
		if err == nil {
			res := extract.Extract(text, schema)
			if res.Degraded {
				log.Printf("segmentation stage_fallback stage=%s reason=%q", stage, res.Failure)
			} else {
				log.Printf("segmentation stage_success stage=%s attempts=%d polls=%d", stage, metrics.Attempts, metrics.Polls)
			}
			return res, metrics, nil
		}

		var terminalErr *reasoning.TerminalServiceError
		var transientErr *reasoning.TransientServiceError
		switch {
		case errors.As(err, &terminalErr):
			if terminal >= r.cfg.RetryBudget {
				log.Printf("segmentation stage_exhausted stage=%s class=terminal err=%q", stage, err.Error())
				return extract.Result{}, metrics, fmt.Errorf("%s: %w", stage, err)
			}
			terminal++
			metrics.TerminalRetries = terminal
		case errors.As(err, &transientErr):
			if transient >= r.cfg.RetryBudget {
				log.Printf("segmentation stage_exhausted stage=%s class=transient err=%q", stage, err.Error())
				return extract.Result{}, metrics, fmt.Errorf("%s: %w", stage, err)
			}
			transient++
			metrics.TransientRetries = transient
		default:
			return extract.Result{}, metrics, fmt.Errorf("%s: %w", stage, err)
		}
		log.Printf("segmentation stage_retry stage=%s transient=%d terminal=%d err=%q", stage, transient, terminal, err.Error())

		select {
		case <-ctx.Done():
			return extract.Result{}, metrics, fmt.Errorf("%s: %w", stage, ctx.Err())
		case <-r.clock.After(r.cfg.Backoff * time.Duration(transient+terminal)):
		}
	}
}

// runOnce drives a single submitted session to a terminal status. On
// any exit that leaves the session live (caller cancellation, poll
// transport failure, stage timeout) the session is cancelled so the
// collaborator does not keep working on an abandoned prompt.
func (r *Runner) runOnce(ctx context.Context, stage, prompt string, metrics *StageMetrics) (string, error) {
	h, err := r.client.Submit(ctx, prompt)
	if err != nil {
		return "", &reasoning.TransientServiceError{Op: "submit", Err: err}
	}
	deadline := r.clock.Now().Add(r.cfg.StageTimeout)
	for {
		select {
		case <-ctx.Done():
			r.cancelSession(h)
			return "", ctx.Err()
		case <-r.clock.After(r.cfg.PollInterval):
		}

		metrics.Polls++
		res, err := r.client.Poll(ctx, h)
		if err != nil {
			r.cancelSession(h)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var transientErr *reasoning.TransientServiceError
			if errors.As(err, &transientErr) {
				return "", err
			}
			return "", &reasoning.TransientServiceError{Op: "poll", Err: err}
		}

		switch res.Status {
		case reasoning.StatusCompleted:
			return res.ResultText, nil
		case reasoning.StatusFailed, reasoning.StatusCancelled, reasoning.StatusExpired:
			return "", &reasoning.TerminalServiceError{Status: res.Status, Reason: res.FailureReason}
		}

		if r.clock.Now().After(deadline) {
			r.cancelSession(h)
			return "", &reasoning.TransientServiceError{Op: "await", Err: fmt.Errorf("stage %s exceeded %s", stage, r.cfg.StageTimeout)}
		}
	}
}

func (r *Runner) cancelSession(h reasoning.Handle) {
	cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Cancel(cancelCtx, h); err != nil {
		log.Printf("segmentation session_cancel_failed handle=%s err=%q", h, err.Error())
	}
}
