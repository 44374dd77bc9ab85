package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

const systemPrompt = "You are a go-to-market analyst for B2B services. You produce conservative, structured outputs grounded in the material you are given and do not invent facts. Return strict JSON only."

// DefaultModel is used when NEXASALES_LLM_MODEL is unset.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultSessionTTL = time.Hour

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// SessionClient adapts the synchronous Anthropic Messages API to the
// submit/poll protocol. Submit records a session and starts the remote
// call on its own goroutine; Poll reads the session table; Cancel aborts
// the in-flight call. Sessions expire a fixed TTL after submission.
type SessionClient struct {
	messages AnthropicMessager
	model    string
	clock    Clock
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[Handle]*session
}

type session struct {
	status    Status
	result    string
	reason    string
	transient error
	cancel    context.CancelFunc
	expires   time.Time
}

// NewSessionClientFromEnv builds a SessionClient from ANTHROPIC_API_KEY
// and NEXASALES_LLM_MODEL. The key is read once here and scoped to the
// returned client.
func NewSessionClientFromEnv() (*SessionClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("NEXASALES_LLM_MODEL"))
	if model == "" {
		model = DefaultModel
	}
	return NewSessionClient(newAnthropicClient(apiKey), model), nil
}

func NewSessionClient(m AnthropicMessager, model string) *SessionClient {
	return &SessionClient{
		messages: m,
		model:    model,
		clock:    SystemClock(),
		ttl:      defaultSessionTTL,
		sessions: make(map[Handle]*session),
	}
}

// ModelName reports the configured model identifier.
func (c *SessionClient) ModelName() string { return c.model }

func (c *SessionClient) Submit(_ context.Context, prompt string) (Handle, error) {
	h := Handle(uuid.NewString())
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.sessions[h] = &session{
		status:  StatusPending,
		cancel:  cancel,
		expires: c.clock.Now().Add(c.ttl),
	}
	c.mu.Unlock()
	log.Printf("reasoning session_submit handle=%s prompt_chars=%d", h, len(prompt))
	go c.run(runCtx, h, prompt)
	return h, nil
}

func (c *SessionClient) run(ctx context.Context, h Handle, prompt string) {
	c.mu.Lock()
	if s, ok := c.sessions[h]; ok && s.status == StatusPending {
		s.status = StatusRunning
	}
	c.mu.Unlock()

	start := time.Now()
	resp, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   4096,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(0),
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[h]
	if !ok || s.status.Terminal() {
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.status = StatusCancelled
			s.reason = "cancelled by caller"
			return
		}
		s.status = StatusFailed
		s.reason = err.Error()
		if retryableTransport(err) {
			log.Printf("reasoning session_transport_error handle=%s elapsed_ms=%d err=%q", h, time.Since(start).Milliseconds(), err.Error())
			s.transient = err
			return
		}
		log.Printf("reasoning session_failed handle=%s elapsed_ms=%d err=%q", h, time.Since(start).Milliseconds(), err.Error())
		return
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	log.Printf("reasoning session_completed handle=%s elapsed_ms=%d response_chars=%d", h, time.Since(start).Milliseconds(), sb.Len())
	s.status = StatusCompleted
	s.result = sb.String()
}

func (c *SessionClient) Poll(_ context.Context, h Handle) (PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[h]
	if !ok {
		return PollResult{}, &TransientServiceError{Op: "poll", Err: fmt.Errorf("unknown session %s", h)}
	}
	if s.transient != nil {
		// Rate limits, timeouts, and 5xx responses are retryable; they
		// surface as transient failures, never as a failed session.
		return PollResult{}, &TransientServiceError{Op: "await", Err: s.transient}
	}
	if !s.status.Terminal() && c.clock.Now().After(s.expires) {
		s.status = StatusExpired
		s.reason = "session ttl elapsed"
		s.cancel()
	}
	return PollResult{Status: s.status, ResultText: s.result, FailureReason: s.reason}, nil
}

type transportFailureClass int

const (
	failureTimeout transportFailureClass = iota
	failureRateLimit
	failureServer
	failureClient
)

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

// classifyTransportError buckets a Messages call failure. The SDK error
// surface is stringly typed, so classification falls back to matching
// the status code embedded in the message.
func classifyTransportError(err error) transportFailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return failureRateLimit
	case strings.Contains(msg, "server error") || strings.Contains(msg, "overloaded"):
		return failureServer
	case strings.Contains(msg, "invalid_request") || strings.Contains(msg, "authentication") || strings.Contains(msg, "permission"):
		return failureClient
	}
	// Unknown transport failures (connection resets, DNS) are worth a retry.
	return failureServer
}

func retryableTransport(err error) bool {
	switch classifyTransportError(err) {
	case failureTimeout, failureRateLimit, failureServer:
		return true
	}
	return false
}

func (c *SessionClient) Cancel(_ context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[h]
	if !ok {
		return nil
	}
	if !s.status.Terminal() {
		s.status = StatusCancelled
		s.reason = "cancelled by caller"
	}
	s.cancel()
	return nil
}
