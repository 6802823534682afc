package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// stubModel is a minimal model.BaseChatModel for gateway tests.
type stubModel struct {
	reply *schema.Message
	err   error
	block bool
	got   []*schema.Message
}

func (m *stubModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.got = in
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.reply, m.err
}

func (m *stubModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestChatCompleter_Success(t *testing.T) {
	t.Parallel()
	m := &stubModel{reply: schema.AssistantMessage("the answer", nil)}
	c, err := NewChatCompleter(m, "ollama", 0)
	if err != nil {
		t.Fatalf("NewChatCompleter: %v", err)
	}
	got, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "the answer" {
		t.Errorf("got %q", got)
	}
	if len(m.got) != 2 || m.got[0].Role != schema.System || m.got[1].Role != schema.User || m.got[1].Content != "user" {
		t.Errorf("unexpected messages %+v", m.got)
	}
	if c.timeout != DefaultCompletionTimeout {
		t.Errorf("timeout = %v, want default", c.timeout)
	}
}

func TestChatCompleter_Errors(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	cases := []struct {
		name  string
		model *stubModel
		want  error
	}{
		{"transport", &stubModel{err: cause}, cause},
		{"nil reply", &stubModel{}, ErrEmptyCompletion},
		{"blank reply", &stubModel{reply: schema.AssistantMessage("  ", nil)}, ErrEmptyCompletion},
		{"timeout", &stubModel{block: true}, context.DeadlineExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _ := NewChatCompleter(tc.model, "openai", 20*time.Millisecond)
			_, err := c.Complete(context.Background(), "s", "u")
			var gw *GatewayError
			if !errors.As(err, &gw) || gw.Backend != "openai" {
				t.Fatalf("err = %v, want *GatewayError from openai", err)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want wrapping %v", err, tc.want)
			}
		})
	}
}

func TestNewChatCompleter_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := NewChatCompleter(nil, "x", 0); err == nil {
		t.Error("want error for nil model")
	}
}
