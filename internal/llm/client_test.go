package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/internal/registry"
	"tadaa_concierge/pkg"
)

// scriptedModel replays a fixed sequence of replies and errors
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	inputs  [][]*schema.Message
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++
	m.inputs = append(m.inputs, input)

	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.replies) {
		return schema.AssistantMessage(m.replies[idx], nil), nil
	}
	return nil, errors.New("script exhausted")
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func newTestClient(t *testing.T, m *scriptedModel, retries int) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), m, retries)
	require.NoError(t, err)
	c.retryInterval = time.Millisecond
	return c
}

func TestClientCompleteSendsSystemAndHistory(t *testing.T) {
	m := &scriptedModel{replies: []string{`{"message": "hi"}`}}
	c := newTestClient(t, m, 0)

	history := []pkg.Message{
		{Role: pkg.RoleUser, Content: "hello"},
		{Role: pkg.RoleAssistant, Content: "hi, how can I help?"},
		{Role: pkg.RoleUser, Content: "remind me to call mum"},
	}

	reply, err := c.Complete(context.Background(), `Answer with {"message": "..."}`, history)
	require.NoError(t, err)
	assert.Equal(t, `{"message": "hi"}`, reply)

	require.Len(t, m.inputs, 1)
	sent := m.inputs[0]
	require.Len(t, sent, 4)
	assert.Equal(t, schema.System, sent[0].Role)
	assert.Equal(t, `Answer with {"message": "..."}`, sent[0].Content)
	assert.Equal(t, schema.User, sent[1].Role)
	assert.Equal(t, schema.Assistant, sent[2].Role)
	assert.Equal(t, "remind me to call mum", sent[3].Content)
}

func TestClientCompleteRetriesTransientFailure(t *testing.T) {
	m := &scriptedModel{
		errs:    []error{errors.New("502 bad gateway"), nil},
		replies: []string{"", `{"message": "ok"}`},
	}
	c := newTestClient(t, m, 2)

	reply, err := c.Complete(context.Background(), "system", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"message": "ok"}`, reply)
	assert.Equal(t, 2, m.calls)
}

func TestClientCompleteReportsModelUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	m := &scriptedModel{errs: []error{boom, boom, boom}}
	c := newTestClient(t, m, 1)

	_, err := c.Complete(context.Background(), "system", nil)
	assert.ErrorIs(t, err, pkg.ErrModelUnavailable)
	assert.True(t, pkg.IsRetryable(err))
	assert.Equal(t, 2, m.calls)
}

func TestClientCompleteStopsOnCancelledContext(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("timeout")}}
	c := newTestClient(t, m, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, "system", nil)
	assert.ErrorIs(t, err, pkg.ErrModelUnavailable)
	assert.LessOrEqual(t, m.calls, 1)
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.ModelConfig{Provider: "bard", Model: "x"})
	assert.Error(t, err)
}

func TestNewChatModelOllama(t *testing.T) {
	cfg := config.Default().Model
	cfg.Provider = "ollama"
	cfg.BaseURL = ""
	cfg.Model = "llama3.1"

	m, err := NewChatModel(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestSystemPromptRendersSchemasAndDates(t *testing.T) {
	ins := NewInstructions(registry.New())
	now := time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC) // a Wednesday

	prompt := ins.SystemPrompt(now)

	assert.Contains(t, prompt, "Today is Wednesday, 6 March 2024.")
	assert.Contains(t, prompt, "2024 or 2025?")
	assert.Contains(t, prompt, "### BILL\nRequired fields: name, amount, dueDate, category (utilities|telco-internet|insurance|subscriptions|credit-loans|general)")
	assert.Contains(t, prompt, "For paynow: payNowMobile")
	assert.Contains(t, prompt, "For card: cardBrand, cardLast4, cardExpiryMonth, cardExpiryYear, cardHolderName")
	assert.Contains(t, prompt, `"dueDate": "2024-03-15"`)
	assert.NotContains(t, prompt, "{ITEM_SCHEMAS}")
	assert.NotContains(t, prompt, "{CURRENT_YEAR}")

	for _, spec := range registry.New().Specs() {
		assert.True(t, strings.Contains(prompt, "### "+spec.Label), "missing section %s", spec.Label)
	}
}
