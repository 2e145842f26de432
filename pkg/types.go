package pkg

import (
	"strings"
	"time"
)

// Core types shared by the turn processor, the stores and the HTTP layer

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ItemKind is one of the five extractable item kinds
type ItemKind string

const (
	KindNone     ItemKind = ""
	KindTask     ItemKind = "task"
	KindReminder ItemKind = "reminder"
	KindBill     ItemKind = "bill"
	KindSchedule ItemKind = "schedule"
	KindPayment  ItemKind = "payment"
)

// AllKinds lists the extractable kinds in declaration order
var AllKinds = []ItemKind{KindTask, KindReminder, KindBill, KindSchedule, KindPayment}

// ParseItemKind normalises a model-reported kind. "null" and "none" map to KindNone.
func ParseItemKind(s string) (ItemKind, bool) {
	switch k := ItemKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTask, KindReminder, KindBill, KindSchedule, KindPayment:
		return k, true
	case "", "null", "none":
		return KindNone, true
	default:
		return KindNone, false
	}
}

// ExtractionStatus is the progression extracting -> incomplete -> complete -> saved
type ExtractionStatus string

const (
	StatusExtracting ExtractionStatus = "extracting"
	StatusIncomplete ExtractionStatus = "incomplete"
	StatusComplete   ExtractionStatus = "complete"
	StatusSaved      ExtractionStatus = "saved"
)

// DeletionStatus is the state of a confirm-before-delete negotiation
type DeletionStatus string

const (
	DeletionNone       DeletionStatus = ""
	DeletionClarifying DeletionStatus = "clarifying"
	DeletionConfirming DeletionStatus = "confirming"
	DeletionConfirmed  DeletionStatus = "confirmed"
)

// ----------------------------------------------------
// ================ Conversation documents ================

// Message is a single transcript entry. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractedItem is an item being collected across turns
type ExtractedItem struct {
	ID            string           `json:"id"`
	ItemType      ItemKind         `json:"item_type"`
	Status        ExtractionStatus `json:"status"`
	ExtractedData map[string]any   `json:"extracted_data"`
	MissingFields []string         `json:"missing_fields"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	SavedAt       *time.Time       `json:"saved_at,omitempty"`
}

// IsOpen reports whether the item can still be merged into
func (i *ExtractedItem) IsOpen() bool {
	return i.Status != StatusSaved
}

// DeletionState is the latest negotiation observed for one item kind
type DeletionState struct {
	ItemType       ItemKind       `json:"item_type"`
	ItemIdentifier string         `json:"item_identifier"`
	Status         DeletionStatus `json:"status"`
	Confidence     float64        `json:"confidence"`
	Consumed       bool           `json:"consumed"`
	// TargetID pins the record a confirmed negotiation resolved to, so a
	// retried delete never rematches a different record.
	TargetID       string         `json:"target_id,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Conversation is the persisted record for one dialogue
type Conversation struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Messages       []Message       `json:"messages"`
	ExtractedItems []ExtractedItem `json:"extracted_items"`
	Deletions      []DeletionState `json:"deletions,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewConversation creates an empty conversation owned by userID
func NewConversation(userID string, now time.Time) *Conversation {
	return &Conversation{
		UserID:         userID,
		Messages:       []Message{},
		ExtractedItems: []ExtractedItem{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FindItem returns the item with the given id, or nil
func (c *Conversation) FindItem(id string) *ExtractedItem {
	for i := range c.ExtractedItems {
		if c.ExtractedItems[i].ID == id {
			return &c.ExtractedItems[i]
		}
	}
	return nil
}

// DeletionFor returns the negotiation state for kind, or nil
func (c *Conversation) DeletionFor(kind ItemKind) *DeletionState {
	for i := range c.Deletions {
		if c.Deletions[i].ItemType == kind {
			return &c.Deletions[i]
		}
	}
	return nil
}

// Document is a record in a destination collection
type Document map[string]any

// DocumentIDField holds the store-assigned id of a Document
const DocumentIDField = "_id"

// ID returns the store-assigned id
func (d Document) ID() string {
	id, _ := d[DocumentIDField].(string)
	return id
}

// ----------------------------------------------------
// ================ Model reply envelope ================

// EnvelopeVariant tags which effect a model reply carries
type EnvelopeVariant string

const (
	VariantNone       EnvelopeVariant = "none"
	VariantExtraction EnvelopeVariant = "extraction"
	VariantDeletion   EnvelopeVariant = "deletion"
)

// ExtractionReport is the extraction object of a model reply, and the
// extraction part of a turn result once merged
type ExtractionReport struct {
	Detected      bool             `json:"detected"`
	ItemID        string           `json:"item_id,omitempty"`
	ItemType      ItemKind         `json:"item_type"`
	ExtractedData map[string]any   `json:"extracted_data"`
	MissingFields []string         `json:"missing_fields"`
	Status        ExtractionStatus `json:"status"`
	Confidence    float64          `json:"confidence"`
}

// DeletionReport is the deletion object of a model reply
type DeletionReport struct {
	Detected       bool           `json:"detected"`
	ItemType       ItemKind       `json:"item_type"`
	ItemIdentifier string         `json:"item_identifier"`
	Status         DeletionStatus `json:"status"`
	Confidence     float64        `json:"confidence"`
}

// ReplyEnvelope is a validated model reply. At most one of Extraction and
// Deletion is set, matching Variant.
type ReplyEnvelope struct {
	Message    string
	Variant    EnvelopeVariant
	Extraction *ExtractionReport
	Deletion   *DeletionReport
}

// ----------------------------------------------------
// ================ Requests / Results ================

// TurnRequest is one user utterance. An empty ConversationID starts a new conversation.
type TurnRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
}

// TurnResult is returned for every completed turn
type TurnResult struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversation_id"`
	Extraction     *ExtractionReport `json:"extraction,omitempty"`
	Deletion       *DeletionReport   `json:"deletion,omitempty"`
}

// CommitResult reports where a completed item was written
type CommitResult struct {
	Success    bool   `json:"success"`
	ItemID     string `json:"item_id"`
	Collection string `json:"collection"`
}

// DeleteRequest asks for removal of a confirmed item
type DeleteRequest struct {
	ConversationID string   `json:"conversation_id"`
	UserID         string   `json:"user_id,omitempty"`
	ItemType       ItemKind `json:"item_type"`
	ItemIdentifier string   `json:"item_identifier"`
}

// DeleteResult reports the removed record
type DeleteResult struct {
	Success    bool     `json:"success"`
	ItemType   ItemKind `json:"item_type"`
	ItemID     string   `json:"item_id"`
	Collection string   `json:"collection"`
	Message    string   `json:"message"`
}
