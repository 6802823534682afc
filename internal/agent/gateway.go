package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DefaultCompletionTimeout bounds a single completion call.
const DefaultCompletionTimeout = 60 * time.Second

// ErrEmptyCompletion is wrapped in a GatewayError when the backend answers
// with no content.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer is the completion gateway: it turns a system/user prompt pair
// into generated text. Failures are returned as *GatewayError.
// Implementations must be safe to call from multiple goroutines.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GatewayError reports a failed completion call.
type GatewayError struct {
	// Backend names the provider that failed (e.g. "ollama").
	Backend string
	// Err is the underlying transport, provider, or timeout error.
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("completion gateway %s: %v", e.Backend, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ChatCompleter adapts an Eino chat model to Completer.
type ChatCompleter struct {
	// model is the chat model constructed by the provider factory.
	model model.BaseChatModel

	// backend labels errors and logs with the provider name.
	backend string

	// timeout bounds each Complete call.
	timeout time.Duration
}

// NewChatCompleter wraps m. A non-positive timeout uses DefaultCompletionTimeout.
func NewChatCompleter(m model.BaseChatModel, backend string, timeout time.Duration) (*ChatCompleter, error) {
	if m == nil {
		return nil, fmt.Errorf("agent: chat model must not be nil")
	}
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return &ChatCompleter{model: m, backend: backend, timeout: timeout}, nil
}

// Complete sends the prompt pair as a single-turn conversation.
func (c *ChatCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", &GatewayError{Backend: c.backend, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &GatewayError{Backend: c.backend, Err: ErrEmptyCompletion}
	}
	return resp.Content, nil
}
