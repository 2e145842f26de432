package core

import (
	"context"
	"fmt"

	"tadaa_concierge/internal/logger"
	"tadaa_concierge/internal/metrics"
	"tadaa_concierge/pkg"
)

// Commit copies a complete item into its destination collection and marks
// it saved. The record is inserted before the item is flipped, so a failure
// in between leaves a saved record next to a still-complete item rather than
// a saved item with no record.
func (p *Processor) Commit(ctx context.Context, userID, conversationID, itemID string) (*pkg.CommitResult, error) {
	userID = p.userID(userID)

	unlock, err := p.lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conv, err := p.loadConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	item := conv.FindItem(itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrItemNotFound, itemID)
	}
	if item.Status != pkg.StatusComplete {
		return nil, fmt.Errorf("%w: item %s is %s", pkg.ErrItemIncomplete, itemID, item.Status)
	}

	collection, err := p.registry.DestinationCollection(item.ItemType)
	if err != nil {
		return nil, err
	}

	now := p.now()
	doc := make(pkg.Document, len(item.ExtractedData)+3)
	for k, v := range item.ExtractedData {
		doc[k] = v
	}
	doc["user_id"] = userID
	doc["created_at"] = now
	doc["updated_at"] = now

	externalID, err := p.store.Insert(ctx, collection, doc)
	if err != nil {
		metrics.RecordCommit(collection, "insert_failed")
		return nil, fmt.Errorf("%w: insert into %s: %v", pkg.ErrPersistenceFailure, collection, err)
	}

	item.Status = pkg.StatusSaved
	item.SavedAt = &now
	item.UpdatedAt = now
	conv.UpdatedAt = now

	result := &pkg.CommitResult{
		Success:    true,
		ItemID:     externalID,
		Collection: collection,
	}

	if err := p.store.PutConversation(ctx, conv); err != nil {
		metrics.RecordCommit(collection, "flip_failed")
		logger.Error().
			Err(err).
			Str("conversation_id", conv.ID).
			Str("item_id", itemID).
			Str("record_id", externalID).
			Msg("Record inserted but item not marked saved")
		return result, fmt.Errorf("%w: mark item saved: %v", pkg.ErrPersistenceFailure, err)
	}

	metrics.RecordCommit(collection, "saved")
	logger.Info().
		Str("conversation_id", conv.ID).
		Str("item_id", itemID).
		Str("collection", collection).
		Str("record_id", externalID).
		Msg("Item committed")

	return result, nil
}
