package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"tadaa_concierge/internal/logger"
	"tadaa_concierge/pkg"
)

const defaultRetryInterval = 500 * time.Millisecond

// Client sends a system instruction plus transcript to a chat model
type Client struct {
	chain         compose.Runnable[map[string]any, *schema.Message]
	maxRetries    int
	retryInterval time.Duration
}

// NewClient compiles the Template -> ChatModel chain around chatModel
func NewClient(ctx context.Context, chatModel model.BaseChatModel, maxRetries int) (*Client, error) {
	template := createChatTemplate()

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating Eino chain: %w", err)
	}

	return &Client{
		chain:         chain,
		maxRetries:    maxRetries,
		retryInterval: defaultRetryInterval,
	}, nil
}

// createChatTemplate uses GoTemplate so the JSON braces in the instruction
// text pass through untouched.
func createChatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage("{{.system}}"),
		schema.MessagesPlaceholder("history", false),
	)
}

// Complete returns the raw text of the model reply. Failures after the
// configured retries are reported as pkg.ErrModelUnavailable.
func (c *Client) Complete(ctx context.Context, system string, history []pkg.Message) (string, error) {
	input := map[string]any{
		"system":  system,
		"history": toSchemaMessages(history),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval

	var (
		reply   *schema.Message
		attempt int
	)
	operation := func() error {
		attempt++
		out, err := c.chain.Invoke(ctx, input)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(ctxErr)
			}
			logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("Model call failed")
			return err
		}
		reply = out
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return "", fmt.Errorf("%w: %v", pkg.ErrModelUnavailable, err)
	}
	if reply == nil {
		return "", nil
	}

	logger.Debug().
		Int("attempts", attempt).
		Int("reply_length", len(reply.Content)).
		Msg("Model reply received")

	return reply.Content, nil
}

func toSchemaMessages(history []pkg.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case pkg.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(msg.Content))
		}
	}
	return messages
}
