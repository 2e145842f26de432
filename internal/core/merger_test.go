package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tadaa_concierge/internal/registry"
	"tadaa_concierge/pkg"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func billReport(data map[string]any, missing []string, status pkg.ExtractionStatus) *pkg.ExtractionReport {
	return &pkg.ExtractionReport{
		Detected:      true,
		ItemType:      pkg.KindBill,
		ExtractedData: data,
		MissingFields: missing,
		Status:        status,
		Confidence:    0.9,
	}
}

func TestMergeContinuesOpenItemOfSameKind(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	first, err := m.Merge(conv, billReport(map[string]any{
		"name": "Electricity Bill", "amount": 150, "dueDate": "2024-01-19",
	}, []string{"category"}, pkg.StatusIncomplete))
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusIncomplete, first.Status)
	assert.Equal(t, []string{"category"}, first.MissingFields)

	second, err := m.Merge(conv, billReport(map[string]any{
		"name": "Electricity Bill", "amount": 150, "dueDate": "2024-01-19", "category": "utilities",
	}, []string{}, pkg.StatusComplete))
	require.NoError(t, err)

	require.Len(t, conv.ExtractedItems, 1)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, pkg.StatusComplete, conv.ExtractedItems[0].Status)
	assert.Empty(t, conv.ExtractedItems[0].MissingFields)
	assert.Equal(t, "utilities", conv.ExtractedItems[0].ExtractedData["category"])
}

func TestMergeReplacesDataWholesale(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	_, err := m.Merge(conv, billReport(map[string]any{"name": "Gas", "amount": 40}, nil, pkg.StatusExtracting))
	require.NoError(t, err)
	_, err = m.Merge(conv, billReport(map[string]any{"name": "Gas"}, nil, pkg.StatusExtracting))
	require.NoError(t, err)

	_, hasAmount := conv.ExtractedItems[0].ExtractedData["amount"]
	assert.False(t, hasAmount)
}

func TestMergeRecomputesMissingFields(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	item, err := m.Merge(conv, billReport(map[string]any{"name": "Gas"}, []string{"bogus"}, pkg.StatusExtracting))
	require.NoError(t, err)
	assert.Equal(t, []string{"amount", "dueDate", "category"}, item.MissingFields)
}

func TestMergeDowngradesInconsistentComplete(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	item, err := m.Merge(conv, billReport(map[string]any{"name": "Gas"}, []string{}, pkg.StatusComplete))
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusIncomplete, item.Status)
}

func TestMergeDefaultsStatusToExtracting(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	item, err := m.Merge(conv, billReport(map[string]any{}, nil, ""))
	require.NoError(t, err)
	assert.Equal(t, pkg.StatusExtracting, item.Status)
	assert.Contains(t, item.ID, "item_")
	assert.Nil(t, item.SavedAt)
}

func TestMergeStartsNewItemAfterSave(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	first, err := m.Merge(conv, billReport(map[string]any{"name": "Gas"}, nil, pkg.StatusExtracting))
	require.NoError(t, err)
	conv.ExtractedItems[0].Status = pkg.StatusSaved

	second, err := m.Merge(conv, billReport(map[string]any{"name": "Water"}, nil, pkg.StatusExtracting))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	require.Len(t, conv.ExtractedItems, 2)
	assert.Equal(t, "Gas", conv.ExtractedItems[0].ExtractedData["name"])
}

func TestMergeUnknownKind(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	_, err := m.Merge(conv, &pkg.ExtractionReport{ItemType: "groceries", ExtractedData: map[string]any{}})
	assert.ErrorIs(t, err, pkg.ErrUnknownKind)
	assert.Empty(t, conv.ExtractedItems)
}

func TestMergeIsIdempotent(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())
	report := billReport(map[string]any{"name": "Gas", "amount": 40}, nil, pkg.StatusIncomplete)

	once, err := m.Merge(conv, report)
	require.NoError(t, err)
	twice, err := m.Merge(conv, report)
	require.NoError(t, err)

	assert.Equal(t, once.ID, twice.ID)
	assert.Equal(t, once.ExtractedData, twice.ExtractedData)
	assert.Equal(t, once.MissingFields, twice.MissingFields)
	assert.Equal(t, once.Status, twice.Status)
	assert.Len(t, conv.ExtractedItems, 1)
}

func TestMergeAtMostOneOpenItemPerKind(t *testing.T) {
	m := NewMerger(registry.New(), fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	kinds := []pkg.ItemKind{pkg.KindBill, pkg.KindTask, pkg.KindBill, pkg.KindPayment, pkg.KindTask, pkg.KindBill, pkg.KindReminder}
	for i, kind := range kinds {
		_, err := m.Merge(conv, &pkg.ExtractionReport{
			Detected:      true,
			ItemType:      kind,
			ExtractedData: map[string]any{"n": i},
			Status:        pkg.StatusIncomplete,
		})
		require.NoError(t, err)

		// save every third item to mix saved and open ones
		if i%3 == 2 {
			for j := range conv.ExtractedItems {
				if conv.ExtractedItems[j].ItemType == kind && conv.ExtractedItems[j].IsOpen() {
					conv.ExtractedItems[j].Status = pkg.StatusSaved
				}
			}
		}

		open := map[pkg.ItemKind]int{}
		for _, item := range conv.ExtractedItems {
			if item.IsOpen() {
				open[item.ItemType]++
			}
		}
		for k, n := range open {
			assert.LessOrEqual(t, n, 1, "kind %s after report %d", k, i)
		}
	}
}

func TestNegotiatorTransitions(t *testing.T) {
	tests := []struct {
		name       string
		prev       *pkg.DeletionState
		reported   pkg.DeletionStatus
		identifier string
		want       pkg.DeletionStatus
	}{
		{"fresh clarifying", nil, pkg.DeletionClarifying, "", pkg.DeletionClarifying},
		{"fresh confirming", nil, pkg.DeletionConfirming, "Gas", pkg.DeletionConfirming},
		{"no skip to confirmed", nil, pkg.DeletionConfirmed, "Gas", pkg.DeletionConfirming},
		{"clarifying to confirmed refused", &pkg.DeletionState{Status: pkg.DeletionClarifying}, pkg.DeletionConfirmed, "Gas", pkg.DeletionConfirming},
		{"confirming to confirmed", &pkg.DeletionState{Status: pkg.DeletionConfirming, ItemIdentifier: "Gas"}, pkg.DeletionConfirmed, "gas", pkg.DeletionConfirmed},
		{"confirmed on another item", &pkg.DeletionState{Status: pkg.DeletionConfirming, ItemIdentifier: "Gas"}, pkg.DeletionConfirmed, "Water", pkg.DeletionConfirming},
		{"empty identifier clarifies", &pkg.DeletionState{Status: pkg.DeletionConfirming, ItemIdentifier: "Gas"}, pkg.DeletionConfirmed, "", pkg.DeletionClarifying},
		{"back to clarifying", &pkg.DeletionState{Status: pkg.DeletionConfirming, ItemIdentifier: "Gas"}, pkg.DeletionClarifying, "Gas", pkg.DeletionClarifying},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextDeletionStatus(tt.prev, tt.reported, tt.identifier))
		})
	}
}

func TestNegotiatorObserveAndLapse(t *testing.T) {
	n := NewNegotiator(fixedClock())
	conv := pkg.NewConversation("u-1", time.Now())

	state := n.Observe(conv, &pkg.DeletionReport{ItemType: pkg.KindBill, ItemIdentifier: "Gas", Status: pkg.DeletionConfirming})
	assert.Equal(t, pkg.DeletionConfirming, state.Status)
	n.Observe(conv, &pkg.DeletionReport{ItemType: pkg.KindTask, ItemIdentifier: "", Status: pkg.DeletionClarifying})
	require.Len(t, conv.Deletions, 2)

	n.Lapse(conv, pkg.KindBill)
	require.Len(t, conv.Deletions, 1)
	assert.Equal(t, pkg.KindBill, conv.Deletions[0].ItemType)

	state = n.Observe(conv, &pkg.DeletionReport{ItemType: pkg.KindBill, ItemIdentifier: "Gas", Status: pkg.DeletionConfirmed})
	assert.Equal(t, pkg.DeletionConfirmed, state.Status)

	// confirmed negotiations survive unrelated turns
	n.Lapse(conv, pkg.KindNone)
	require.Len(t, conv.Deletions, 1)
	assert.Equal(t, pkg.DeletionConfirmed, conv.Deletions[0].Status)
}

func TestMatchDocumentPriorityAndAmbiguity(t *testing.T) {
	docs := []pkg.Document{
		{"_id": "1", "name": "Electricity Bill", "description": "monthly power"},
		{"_id": "2", "name": "Water Bill", "description": "electricity backup generator"},
		{"_id": "3", "title": "Dentist"},
		{"_id": "4", "nickname": "My Visa"},
	}

	doc, err := matchDocument(docs, "ELECTRICITY")
	require.NoError(t, err)
	assert.Equal(t, "1", doc.ID())

	doc, err = matchDocument(docs, "dent")
	require.NoError(t, err)
	assert.Equal(t, "3", doc.ID())

	doc, err = matchDocument(docs, "visa")
	require.NoError(t, err)
	assert.Equal(t, "4", doc.ID())

	_, err = matchDocument(docs, "bill")
	assert.ErrorIs(t, err, pkg.ErrAmbiguousMatch)

	_, err = matchDocument(docs, "gym")
	assert.ErrorIs(t, err, pkg.ErrItemNotFound)
}
