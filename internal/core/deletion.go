package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tadaa_concierge/internal/logger"
	"tadaa_concierge/internal/metrics"
	"tadaa_concierge/pkg"
)

// identifierFields are matched against a deletion identifier in this order
var identifierFields = []string{"name", "title", "description", "nickname"}

// Negotiator tracks the confirm-before-delete state per item kind.
//
//	none       -> clarifying, confirming
//	clarifying -> clarifying, confirming
//	confirming -> clarifying, confirming, confirmed
//	confirmed  -> clarifying, confirming, confirmed
//
// "confirmed" is accepted only when the previous state names the same item.
// Pending (clarifying or confirming) negotiations lapse on the first turn
// that carries no deletion report for their kind.
type Negotiator struct {
	now func() time.Time
}

// NewNegotiator creates a negotiator using now as its clock
func NewNegotiator(now func() time.Time) *Negotiator {
	if now == nil {
		now = time.Now
	}
	return &Negotiator{now: now}
}

// Observe records report against conv and returns the accepted state
func (n *Negotiator) Observe(conv *pkg.Conversation, report *pkg.DeletionReport) pkg.DeletionState {
	identifier := strings.TrimSpace(report.ItemIdentifier)
	prev := conv.DeletionFor(report.ItemType)

	next := pkg.DeletionState{
		ItemType:       report.ItemType,
		ItemIdentifier: identifier,
		Status:         nextDeletionStatus(prev, report.Status, identifier),
		Confidence:     report.Confidence,
		UpdatedAt:      n.now(),
	}
	if prev != nil && next.Status == pkg.DeletionConfirmed && prev.Status == pkg.DeletionConfirmed {
		next.Consumed = prev.Consumed
		next.TargetID = prev.TargetID
	}

	if prev != nil {
		*prev = next
	} else {
		conv.Deletions = append(conv.Deletions, next)
	}
	return next
}

// Lapse drops pending negotiations for every kind except keep
func (n *Negotiator) Lapse(conv *pkg.Conversation, keep pkg.ItemKind) {
	kept := conv.Deletions[:0]
	for _, state := range conv.Deletions {
		if state.ItemType != keep && state.Status != pkg.DeletionConfirmed {
			continue
		}
		kept = append(kept, state)
	}
	conv.Deletions = kept
}

func nextDeletionStatus(prev *pkg.DeletionState, reported pkg.DeletionStatus, identifier string) pkg.DeletionStatus {
	if identifier == "" {
		return pkg.DeletionClarifying
	}
	switch reported {
	case pkg.DeletionConfirming:
		return pkg.DeletionConfirming
	case pkg.DeletionConfirmed:
		if prev != nil &&
			(prev.Status == pkg.DeletionConfirming || prev.Status == pkg.DeletionConfirmed) &&
			strings.EqualFold(prev.ItemIdentifier, identifier) {
			return pkg.DeletionConfirmed
		}
		return pkg.DeletionConfirming
	default:
		return pkg.DeletionClarifying
	}
}

// DeleteConfirmed removes the one record matching a confirmed negotiation.
// The negotiation is consumed on success, so repeating the call reports
// pkg.ErrItemNotFound.
func (p *Processor) DeleteConfirmed(ctx context.Context, req pkg.DeleteRequest) (*pkg.DeleteResult, error) {
	userID := p.userID(req.UserID)
	identifier := strings.TrimSpace(req.ItemIdentifier)

	collection, err := p.registry.DestinationCollection(req.ItemType)
	if err != nil {
		return nil, err
	}
	if req.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", pkg.ErrDeletionNotConfirmed)
	}

	unlock, err := p.lock(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conv, err := p.loadConversation(ctx, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	state := conv.DeletionFor(req.ItemType)
	switch {
	case state == nil || state.Status != pkg.DeletionConfirmed:
		metrics.RecordDeletion(string(req.ItemType), "not_confirmed")
		return nil, fmt.Errorf("%w: no confirmed deletion for %s", pkg.ErrDeletionNotConfirmed, req.ItemType)
	case identifier != "" && !strings.EqualFold(state.ItemIdentifier, identifier):
		metrics.RecordDeletion(string(req.ItemType), "not_confirmed")
		return nil, fmt.Errorf("%w: confirmed item is %q", pkg.ErrDeletionNotConfirmed, state.ItemIdentifier)
	case state.Consumed:
		metrics.RecordDeletion(string(req.ItemType), "not_found")
		return nil, fmt.Errorf("%w: %q was already deleted", pkg.ErrItemNotFound, state.ItemIdentifier)
	}

	target, err := p.resolveTarget(ctx, conv, state, collection, userID)
	if err != nil {
		metrics.RecordDeletion(string(req.ItemType), outcomeLabel(err))
		return nil, err
	}

	if err := p.store.Delete(ctx, collection, target.ID()); err != nil {
		if !errors.Is(err, pkg.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: delete from %s: %v", pkg.ErrPersistenceFailure, collection, err)
		}
		// an earlier attempt removed the pinned record but could not record it
		_ = p.consume(ctx, conv, state)
		metrics.RecordDeletion(string(req.ItemType), "not_found")
		return nil, fmt.Errorf("%w: %q was already deleted", pkg.ErrItemNotFound, state.ItemIdentifier)
	}

	result := &pkg.DeleteResult{
		Success:    true,
		ItemType:   req.ItemType,
		ItemID:     target.ID(),
		Collection: collection,
		Message:    fmt.Sprintf("Successfully deleted %s", deletedLabel(target, state.ItemIdentifier)),
	}
	if err := p.consume(ctx, conv, state); err != nil {
		metrics.RecordDeletion(string(req.ItemType), "deleted")
		return result, fmt.Errorf("%w: record consumed deletion: %v", pkg.ErrPersistenceFailure, err)
	}

	metrics.RecordDeletion(string(req.ItemType), "deleted")
	logger.Info().
		Str("conversation_id", conv.ID).
		Str("collection", collection).
		Str("item_id", target.ID()).
		Msg("Item deleted")

	return result, nil
}

// resolveTarget returns the record a confirmed negotiation deletes. The first
// resolution is pinned on the negotiation and persisted before anything is
// removed; later attempts reuse the pinned id.
func (p *Processor) resolveTarget(ctx context.Context, conv *pkg.Conversation, state *pkg.DeletionState, collection, userID string) (pkg.Document, error) {
	if state.TargetID != "" {
		return pkg.Document{pkg.DocumentIDField: state.TargetID}, nil
	}

	candidates, err := p.store.Find(ctx, collection, func(doc pkg.Document) bool {
		owner, _ := doc["user_id"].(string)
		return owner == userID
	})
	if err != nil {
		return nil, fmt.Errorf("%w: find in %s: %v", pkg.ErrPersistenceFailure, collection, err)
	}

	doc, err := matchDocument(candidates, state.ItemIdentifier)
	if err != nil {
		return nil, err
	}

	now := p.now()
	state.TargetID = doc.ID()
	state.UpdatedAt = now
	conv.UpdatedAt = now
	if err := p.store.PutConversation(ctx, conv); err != nil {
		state.TargetID = ""
		return nil, fmt.Errorf("%w: pin deletion target: %v", pkg.ErrPersistenceFailure, err)
	}
	return doc, nil
}

// consume marks the negotiation as acted upon and persists it
func (p *Processor) consume(ctx context.Context, conv *pkg.Conversation, state *pkg.DeletionState) error {
	now := p.now()
	state.Consumed = true
	state.UpdatedAt = now
	conv.UpdatedAt = now
	if err := p.store.PutConversation(ctx, conv); err != nil {
		logger.Error().
			Err(err).
			Str("conversation_id", conv.ID).
			Str("target_id", state.TargetID).
			Msg("Failed to record consumed deletion")
		return err
	}
	return nil
}

func deletedLabel(doc pkg.Document, fallback string) string {
	if name := displayName(doc); name != "" {
		return name
	}
	return fallback
}

// matchDocument finds the single record whose identifier field contains
// identifier, trying fields in priority order. A field with several hits is
// ambiguous; a field with none defers to the next one.
func matchDocument(docs []pkg.Document, identifier string) (pkg.Document, error) {
	needle := strings.ToLower(strings.TrimSpace(identifier))
	if needle == "" {
		return nil, fmt.Errorf("%w: empty identifier", pkg.ErrItemNotFound)
	}

	for _, field := range identifierFields {
		var hits []pkg.Document
		for _, doc := range docs {
			value, ok := doc[field].(string)
			if ok && strings.Contains(strings.ToLower(value), needle) {
				hits = append(hits, doc)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], nil
		default:
			return nil, fmt.Errorf("%w: %d records match %q on %s", pkg.ErrAmbiguousMatch, len(hits), identifier, field)
		}
	}
	return nil, fmt.Errorf("%w: no record matches %q", pkg.ErrItemNotFound, identifier)
}

func displayName(doc pkg.Document) string {
	for _, field := range identifierFields {
		if value, ok := doc[field].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, pkg.ErrAmbiguousMatch):
		return "ambiguous"
	case errors.Is(err, pkg.ErrItemNotFound):
		return "not_found"
	default:
		return "error"
	}
}
