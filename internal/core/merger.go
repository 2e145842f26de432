package core

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"tadaa_concierge/internal/registry"
	"tadaa_concierge/pkg"
)

// Merger folds extraction reports into a conversation's items. A kind has
// at most one open item per conversation; a report for a kind that already
// has one continues it, even when the user meant a different item.
type Merger struct {
	registry *registry.Registry
	now      func() time.Time
}

// NewMerger creates a merger backed by reg
func NewMerger(reg *registry.Registry, now func() time.Time) *Merger {
	if now == nil {
		now = time.Now
	}
	return &Merger{registry: reg, now: now}
}

// Merge applies report to conv and returns a copy of the resulting item
func (m *Merger) Merge(conv *pkg.Conversation, report *pkg.ExtractionReport) (pkg.ExtractedItem, error) {
	if report == nil {
		return pkg.ExtractedItem{}, fmt.Errorf("nil extraction report")
	}

	data := maps.Clone(report.ExtractedData)
	if data == nil {
		data = map[string]any{}
	}

	missing, err := m.registry.MissingFields(report.ItemType, data)
	if err != nil {
		return pkg.ExtractedItem{}, err
	}

	status := resolveStatus(report.Status, missing)
	now := m.now()

	for i := range conv.ExtractedItems {
		item := &conv.ExtractedItems[i]
		if item.ItemType != report.ItemType || !item.IsOpen() {
			continue
		}
		item.ExtractedData = data
		item.MissingFields = missing
		item.Status = status
		item.UpdatedAt = now
		return *item, nil
	}

	item := pkg.ExtractedItem{
		ID:            "item_" + uuid.NewString(),
		ItemType:      report.ItemType,
		Status:        status,
		ExtractedData: data,
		MissingFields: missing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	conv.ExtractedItems = append(conv.ExtractedItems, item)
	return item, nil
}

// resolveStatus never lets "complete" stand while fields are missing
func resolveStatus(reported pkg.ExtractionStatus, missing []string) pkg.ExtractionStatus {
	switch reported {
	case pkg.StatusIncomplete:
		return pkg.StatusIncomplete
	case pkg.StatusComplete:
		if len(missing) > 0 {
			return pkg.StatusIncomplete
		}
		return pkg.StatusComplete
	default:
		return pkg.StatusExtracting
	}
}

// extractionResult is the caller-facing view of a merged item
func extractionResult(item pkg.ExtractedItem, confidence float64) *pkg.ExtractionReport {
	return &pkg.ExtractionReport{
		Detected:      true,
		ItemID:        item.ID,
		ItemType:      item.ItemType,
		ExtractedData: maps.Clone(item.ExtractedData),
		MissingFields: append([]string{}, item.MissingFields...),
		Status:        item.Status,
		Confidence:    confidence,
	}
}
