package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tadaa_concierge/internal/llm"
	"tadaa_concierge/internal/logger"
	"tadaa_concierge/internal/metrics"
	"tadaa_concierge/internal/registry"
	"tadaa_concierge/pkg"
)

const defaultUserID = "anonymous"

// Processor runs conversation turns and the commit and delete operations
// that act on their results
type Processor struct {
	model      ModelClient
	prompt     PromptBuilder
	registry   *registry.Registry
	store      Store
	locker     Locker
	merger     *Merger
	negotiator *Negotiator
	options    Options
	now        func() time.Time
}

// NewProcessor wires a processor
func NewProcessor(model ModelClient, prompt PromptBuilder, reg *registry.Registry, store Store, locker Locker, options Options) *Processor {
	if options.DefaultUserID == "" {
		options.DefaultUserID = defaultUserID
	}
	p := &Processor{
		model:    model,
		prompt:   prompt,
		registry: reg,
		store:    store,
		locker:   locker,
		options:  options,
		now:      time.Now,
	}
	clock := func() time.Time { return p.now() }
	p.merger = NewMerger(reg, clock)
	p.negotiator = NewNegotiator(clock)
	return p
}

// ProcessTurn appends the user's message, asks the model for a reply and
// applies any extraction or deletion it reports.
//
// A model failure aborts the turn with pkg.ErrModelUnavailable and nothing
// persisted. A failed final write returns the unpersisted result together
// with pkg.ErrPersistenceFailure so the caller may retry.
func (p *Processor) ProcessTurn(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, pkg.ErrEmptyMessage
	}
	userID := p.userID(req.UserID)

	var conv *pkg.Conversation
	if req.ConversationID == "" {
		conv = pkg.NewConversation(userID, p.now())
		conv.ID = uuid.NewString()
	} else {
		unlock, err := p.lock(ctx, req.ConversationID)
		if err != nil {
			metrics.RecordTurn("lock_failed")
			return nil, err
		}
		defer unlock()

		conv, err = p.loadConversation(ctx, userID, req.ConversationID)
		if err != nil {
			metrics.RecordTurn("not_found")
			return nil, err
		}
	}

	conv.Messages = append(conv.Messages, pkg.Message{
		Role:      pkg.RoleUser,
		Content:   req.Message,
		Timestamp: p.now(),
	})

	raw, err := p.callModel(ctx, conv)
	if err != nil {
		metrics.RecordTurn("model_unavailable")
		logger.Error().
			Err(err).
			Str("conversation_id", conv.ID).
			Msg("Model call failed")
		return nil, err
	}

	envelope, parseErr := llm.ParseReply(raw)
	metrics.RecordEnvelope(string(envelope.Variant), parseErr != nil)
	if parseErr != nil {
		logger.Warn().
			Err(parseErr).
			Str("conversation_id", conv.ID).
			Int("reply_length", len(raw)).
			Msg("Model reply degraded")
	}

	conv.Messages = append(conv.Messages, pkg.Message{
		Role:      pkg.RoleAssistant,
		Content:   envelope.Message,
		Timestamp: p.now(),
	})

	result := &pkg.TurnResult{
		Message:        envelope.Message,
		ConversationID: conv.ID,
	}

	negotiating := pkg.KindNone
	switch envelope.Variant {
	case pkg.VariantExtraction:
		item, err := p.merger.Merge(conv, envelope.Extraction)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("conversation_id", conv.ID).
				Msg("Extraction dropped")
			break
		}
		result.Extraction = extractionResult(item, envelope.Extraction.Confidence)
	case pkg.VariantDeletion:
		state := p.negotiator.Observe(conv, envelope.Deletion)
		negotiating = state.ItemType
		result.Deletion = &pkg.DeletionReport{
			Detected:       true,
			ItemType:       state.ItemType,
			ItemIdentifier: state.ItemIdentifier,
			Status:         state.Status,
			Confidence:     state.Confidence,
		}
	}
	p.negotiator.Lapse(conv, negotiating)

	conv.UpdatedAt = p.now()
	if err := p.store.PutConversation(ctx, conv); err != nil {
		metrics.RecordTurn("persistence_failure")
		logger.Error().
			Err(err).
			Str("conversation_id", conv.ID).
			Msg("Failed to persist conversation")
		return result, fmt.Errorf("%w: %v", pkg.ErrPersistenceFailure, err)
	}

	metrics.RecordTurn("ok")
	logger.Info().
		Str("conversation_id", conv.ID).
		Str("variant", string(envelope.Variant)).
		Int("messages", len(conv.Messages)).
		Msg("Turn processed")

	return result, nil
}

// GetConversation returns the conversation if userID owns it
func (p *Processor) GetConversation(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error) {
	return p.loadConversation(ctx, p.userID(userID), conversationID)
}

// ListConversations returns the user's conversations, most recent first
func (p *Processor) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	convs, err := p.store.ListConversations(ctx, p.userID(userID), p.options.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", pkg.ErrPersistenceFailure, err)
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, Summarize(conv))
	}
	return summaries, nil
}

// Ping checks the document store
func (p *Processor) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}

func (p *Processor) callModel(ctx context.Context, conv *pkg.Conversation) (string, error) {
	if p.options.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.options.ModelTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := p.model.Complete(ctx, p.prompt.SystemPrompt(p.now()), trimTail(conv.Messages, p.options.HistoryWindow))
	metrics.RecordModelCall(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, pkg.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %v", pkg.ErrModelUnavailable, err)
		}
		return "", err
	}

	logger.Debug().
		Str("conversation_id", conv.ID).
		Dur("latency", time.Since(start)).
		Msg("Model replied")
	return raw, nil
}

// loadConversation reads a conversation; one owned by another user reads as
// not found
func (p *Processor) loadConversation(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error) {
	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pkg.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", pkg.ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("%w: load conversation: %v", pkg.ErrPersistenceFailure, err)
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("%w: %s", pkg.ErrConversationNotFound, conversationID)
	}
	return conv, nil
}

func (p *Processor) lock(ctx context.Context, conversationID string) (func(), error) {
	unlock, err := p.locker.Lock(ctx, "conversation:"+conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock conversation %s: %v", pkg.ErrPersistenceFailure, conversationID, err)
	}
	return unlock, nil
}

func (p *Processor) userID(userID string) string {
	if userID = strings.TrimSpace(userID); userID != "" {
		return userID
	}
	return p.options.DefaultUserID
}

// trimTail keeps the last n messages, dropping leading assistant turns so the
// window opens on a user message.
func trimTail(messages []pkg.Message, n int) []pkg.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	tail := messages[len(messages)-n:]
	for len(tail) > 1 && tail[0].Role == pkg.RoleAssistant {
		tail = tail[1:]
	}
	return tail
}
