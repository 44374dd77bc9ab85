package reasoning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// mockMessager implements AnthropicMessager for testing. When block is
// non-nil, New waits for the channel to close or the context to cancel.
type mockMessager struct {
	response *anthropic.Message
	err      error
	block    chan struct{}

	mu    sync.Mutex
	calls int
}

func (m *mockMessager) New(ctx context.Context, _ anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.block:
		}
	}
	return m.response, m.err
}

func newMockMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: text},
		},
	}
}

// manualClock advances only when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func awaitTerminal(t *testing.T, c *SessionClient, h Handle) PollResult {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, err := c.Poll(context.Background(), h)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if res.Status.Terminal() {
			return res
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal status")
	return PollResult{}
}

func TestSessionClientCompletes(t *testing.T) {
	c := NewSessionClient(&mockMessager{response: newMockMessage("the result text")}, DefaultModel)

	h, err := c.Submit(context.Background(), "analyze this service")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := awaitTerminal(t, c, h)
	if res.Status != StatusCompleted {
		t.Fatalf("status=%s want=%s", res.Status, StatusCompleted)
	}
	if res.ResultText != "the result text" {
		t.Errorf("result=%q want=%q", res.ResultText, "the result text")
	}
}

func TestSessionClientReportsFailure(t *testing.T) {
	c := NewSessionClient(&mockMessager{err: fmt.Errorf("400 invalid_request_error: prompt too long")}, DefaultModel)

	h, err := c.Submit(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := awaitTerminal(t, c, h)
	if res.Status != StatusFailed {
		t.Fatalf("status=%s want=%s", res.Status, StatusFailed)
	}
	if res.FailureReason == "" {
		t.Error("expected a failure reason")
	}
}

// awaitPollError polls until Poll itself returns an error. Reaching a
// terminal status first means the failure was misclassified.
func awaitPollError(t *testing.T, c *SessionClient, h Handle) error {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		res, err := c.Poll(context.Background(), h)
		if err != nil {
			return err
		}
		if res.Status.Terminal() {
			t.Fatalf("session reached %s instead of surfacing a retryable error", res.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("poll never surfaced an error")
	return nil
}

func TestSessionClientRateLimitSurfacesAsTransient(t *testing.T) {
	c := NewSessionClient(&mockMessager{err: fmt.Errorf("429 Too Many Requests: rate_limit_error")}, DefaultModel)

	h, err := c.Submit(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	perr := awaitPollError(t, c, h)
	var terr *TransientServiceError
	if !errors.As(perr, &terr) {
		t.Fatalf("error %v is not a TransientServiceError", perr)
	}
}

func TestSessionClientServerErrorSurfacesAsTransient(t *testing.T) {
	c := NewSessionClient(&mockMessager{err: fmt.Errorf("received status code 529: overloaded_error")}, DefaultModel)

	h, err := c.Submit(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	perr := awaitPollError(t, c, h)
	var terr *TransientServiceError
	if !errors.As(perr, &terr) {
		t.Fatalf("error %v is not a TransientServiceError", perr)
	}
}

func TestClassifyTransportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want transportFailureClass
	}{
		{"deadline", context.DeadlineExceeded, failureTimeout},
		{"rate_limit_status", errors.New("request failed with status 429"), failureRateLimit},
		{"rate_limit_message", errors.New("429 Too Many Requests: rate_limit_error"), failureRateLimit},
		{"server_status", errors.New("unexpected status code: 503"), failureServer},
		{"overloaded", errors.New("overloaded_error: try again"), failureServer},
		{"client_status", errors.New("request failed with status 400"), failureClient},
		{"invalid_request", errors.New("400 invalid_request_error: bad schema"), failureClient},
		{"authentication", errors.New("authentication_error: invalid x-api-key"), failureClient},
		{"connection_reset", errors.New("read tcp 10.0.0.2:443: connection reset by peer"), failureServer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyTransportError(tc.err); got != tc.want {
				t.Errorf("class=%d want=%d", got, tc.want)
			}
		})
	}
}

func TestSessionClientCancelAbortsInFlightCall(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := NewSessionClient(&mockMessager{block: block, response: newMockMessage("late")}, DefaultModel)

	h, err := c.Submit(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := c.Cancel(context.Background(), h); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res := awaitTerminal(t, c, h)
	if res.Status != StatusCancelled {
		t.Fatalf("status=%s want=%s", res.Status, StatusCancelled)
	}
	if res.ResultText != "" {
		t.Errorf("cancelled session must not carry a result, got %q", res.ResultText)
	}
}

func TestSessionClientCancelUnknownHandleIsNoOp(t *testing.T) {
	c := NewSessionClient(&mockMessager{response: newMockMessage("x")}, DefaultModel)
	if err := c.Cancel(context.Background(), Handle("nope")); err != nil {
		t.Fatalf("cancel of unknown handle: %v", err)
	}
}

func TestSessionClientExpiresAfterTTL(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	clock := &manualClock{now: time.Unix(1700000000, 0)}
	c := NewSessionClient(&mockMessager{block: block, response: newMockMessage("late")}, DefaultModel)
	c.clock = clock

	h, err := c.Submit(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(defaultSessionTTL + time.Minute)
	res, err := c.Poll(context.Background(), h)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if res.Status != StatusExpired {
		t.Fatalf("status=%s want=%s", res.Status, StatusExpired)
	}
}

func TestSessionClientPollUnknownHandleIsTransient(t *testing.T) {
	c := NewSessionClient(&mockMessager{response: newMockMessage("x")}, DefaultModel)
	_, err := c.Poll(context.Background(), Handle("missing"))
	if err == nil {
		t.Fatal("expected an error for an unknown session")
	}
	var terr *TransientServiceError
	if !errors.As(err, &terr) {
		t.Fatalf("error %v is not a TransientServiceError", err)
	}
}

func TestNewSessionClientFromEnvRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewSessionClientFromEnv(); err == nil {
		t.Fatal("expected error when ANTHROPIC_API_KEY is not set")
	}
}

func TestNewSessionClientFromEnvUsesModelOverride(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("NEXASALES_LLM_MODEL", "claude-opus-4-20250514")

	old := newAnthropicClient
	newAnthropicClient = func(_ string) AnthropicMessager { return &mockMessager{} }
	defer func() { newAnthropicClient = old }()

	c, err := NewSessionClientFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ModelName() != "claude-opus-4-20250514" {
		t.Errorf("model=%s want override", c.ModelName())
	}
}
