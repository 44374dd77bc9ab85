package segmentation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nexasales/nexasales/internal/extract"
	"github.com/nexasales/nexasales/internal/reasoning"
)

// fastClock fires every timer immediately and advances virtual time by
// the waited duration, so poll loops and timeouts run instantly.
type fastClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fastClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fastClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// scriptedClient serves one scripted session per Submit call. Each
// session is a sequence of poll results; the last entry repeats.
type scriptedClient struct {
	mu        sync.Mutex
	sessions  [][]reasoning.PollResult
	submitErr []error
	submits   int
	polls     map[reasoning.Handle]int
	cancelled map[reasoning.Handle]bool
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		polls:     make(map[reasoning.Handle]int),
		cancelled: make(map[reasoning.Handle]bool),
	}
}

func (c *scriptedClient) addSession(results ...reasoning.PollResult) {
	c.sessions = append(c.sessions, results)
}

func completed(text string) reasoning.PollResult {
	return reasoning.PollResult{Status: reasoning.StatusCompleted, ResultText: text}
}

func running() reasoning.PollResult {
	return reasoning.PollResult{Status: reasoning.StatusRunning}
}

func (c *scriptedClient) Submit(_ context.Context, _ string) (reasoning.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.submits
	c.submits++
	if idx < len(c.submitErr) && c.submitErr[idx] != nil {
		return "", c.submitErr[idx]
	}
	return reasoning.Handle(fmt.Sprintf("session-%d", idx)), nil
}

func (c *scriptedClient) Poll(_ context.Context, h reasoning.Handle) (reasoning.PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var idx int
	fmt.Sscanf(string(h), "session-%d", &idx)
	if idx >= len(c.sessions) {
		return reasoning.PollResult{}, fmt.Errorf("no script for %s", h)
	}
	script := c.sessions[idx]
	n := c.polls[h]
	c.polls[h] = n + 1
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n], nil
}

func (c *scriptedClient) Cancel(_ context.Context, h reasoning.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled[h] = true
	return nil
}

func testRunner(client reasoning.Client) *Runner {
	r := NewRunner(client, RunnerConfig{
		PollInterval: 10 * time.Millisecond,
		StageTimeout: time.Second,
		RetryBudget:  2,
		Backoff:      time.Millisecond,
	})
	r.clock = &fastClock{now: time.Unix(1700000000, 0)}
	return r
}

var testSchema = extract.Schema{Fields: []extract.Field{{Name: "name", Required: true}}}

func TestRunnerHappyPath(t *testing.T) {
	client := newScriptedClient()
	client.addSession(running(), running(), completed(`{"name": "acme"}`))

	res, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Degraded {
		t.Fatalf("degraded: %s", res.Failure)
	}
	if res.Record["name"] != "acme" {
		t.Errorf("record=%v", res.Record)
	}
	if metrics.Attempts != 1 {
		t.Errorf("attempts=%d want=1", metrics.Attempts)
	}
	if metrics.Polls != 3 {
		t.Errorf("polls=%d want=3", metrics.Polls)
	}
}

func TestRunnerRetriesTerminalFailureThenSucceeds(t *testing.T) {
	client := newScriptedClient()
	client.addSession(reasoning.PollResult{Status: reasoning.StatusFailed, FailureReason: "overloaded"})
	client.addSession(completed(`{"name": "acme"}`))

	res, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Degraded {
		t.Fatalf("degraded: %s", res.Failure)
	}
	if metrics.Attempts != 2 || metrics.TerminalRetries != 1 {
		t.Errorf("attempts=%d terminal_retries=%d want 2/1", metrics.Attempts, metrics.TerminalRetries)
	}
}

func TestRunnerExhaustsTerminalBudget(t *testing.T) {
	client := newScriptedClient()
	for i := 0; i < 3; i++ {
		client.addSession(reasoning.PollResult{Status: reasoning.StatusFailed, FailureReason: "overloaded"})
	}

	_, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err == nil {
		t.Fatal("expected error after exhausting the terminal budget")
	}
	var terr *reasoning.TerminalServiceError
	if !errors.As(err, &terr) {
		t.Fatalf("error %v does not wrap TerminalServiceError", err)
	}
	if metrics.Attempts != 3 {
		t.Errorf("attempts=%d want=3 (1 + budget)", metrics.Attempts)
	}
}

func TestRunnerRetriesSubmitFailureAsTransient(t *testing.T) {
	client := newScriptedClient()
	client.submitErr = []error{fmt.Errorf("connection refused"), nil}
	client.addSession(completed(`{"name": "acme"}`))
	client.addSession(completed(`{"name": "acme"}`))

	res, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Degraded {
		t.Fatalf("degraded: %s", res.Failure)
	}
	if metrics.TransientRetries != 1 {
		t.Errorf("transient_retries=%d want=1", metrics.TransientRetries)
	}
}

func TestRunnerStageTimeoutCancelsSessionAndRetries(t *testing.T) {
	client := newScriptedClient()
	client.addSession(running())
	client.addSession(completed(`{"name": "acme"}`))

	res, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Degraded {
		t.Fatalf("degraded: %s", res.Failure)
	}
	if metrics.TransientRetries != 1 {
		t.Errorf("transient_retries=%d want=1 (timeout resubmission)", metrics.TransientRetries)
	}
	client.mu.Lock()
	cancelled := client.cancelled["session-0"]
	client.mu.Unlock()
	if !cancelled {
		t.Error("timed out session was not cancelled")
	}
}

func TestRunnerCancellationCancelsSession(t *testing.T) {
	client := newScriptedClient()
	client.addSession(running())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := testRunner(client).Run(ctx, "stage_x", "prompt", testSchema)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	client.mu.Lock()
	cancelled := client.cancelled["session-0"]
	client.mu.Unlock()
	if !cancelled {
		t.Error("abandoned session was not cancelled")
	}
}

func TestRunnerUnparseableResponseDegradesWithoutError(t *testing.T) {
	client := newScriptedClient()
	client.addSession(completed("I am sorry, I cannot produce JSON today."))

	res, metrics, err := testRunner(client).Run(context.Background(), "stage_x", "prompt", testSchema)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Degraded {
		t.Fatal("expected degraded result for unparseable text")
	}
	if metrics.Attempts != 1 {
		t.Errorf("attempts=%d want=1 (extraction failure is not retried)", metrics.Attempts)
	}
}
