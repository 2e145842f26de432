package httpserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"tadaa_concierge/internal/core"
	"tadaa_concierge/internal/logger"
	"tadaa_concierge/pkg"
)

// Service is the conversation core exposed over HTTP
type Service interface {
	ProcessTurn(ctx context.Context, req pkg.TurnRequest) (*pkg.TurnResult, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*pkg.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]core.ConversationSummary, error)
	Commit(ctx context.Context, userID, conversationID, itemID string) (*pkg.CommitResult, error)
	DeleteConfirmed(ctx context.Context, req pkg.DeleteRequest) (*pkg.DeleteResult, error)
	Ping(ctx context.Context) error
}

// ConciergeHandler serves the extraction endpoints
type ConciergeHandler struct {
	service Service
}

// NewConciergeHandler creates the handler
func NewConciergeHandler(service Service) *ConciergeHandler {
	return &ConciergeHandler{service: service}
}

type chatRequest struct {
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
}

type deleteRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	ItemType       string `json:"item_type" binding:"required"`
	ItemIdentifier string `json:"item_identifier"`
}

type conversationListResponse struct {
	Conversations []core.ConversationSummary `json:"conversations"`
}

// Chat handles POST /api/ai/extract/chat
func (h *ConciergeHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBadRequest(c, err)
		return
	}

	result, err := h.service.ProcessTurn(c.Request.Context(), pkg.TurnRequest{
		ConversationID: req.ConversationID,
		UserID:         GetUserID(c),
		Message:        req.Message,
	})
	if err != nil {
		logger.Error().
			Err(err).
			Str("request_id", GetRequestID(c)).
			Str("conversation_id", req.ConversationID).
			Msg("Chat turn failed")
		HandleError(c, err, "failed to process message")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListConversations handles GET /api/ai/extract/conversations
func (h *ConciergeHandler) ListConversations(c *gin.Context) {
	summaries, err := h.service.ListConversations(c.Request.Context(), GetUserID(c))
	if err != nil {
		HandleError(c, err, "failed to list conversations")
		return
	}

	c.JSON(http.StatusOK, conversationListResponse{Conversations: summaries})
}

// GetConversation handles GET /api/ai/extract/conversations/:conversation_id
func (h *ConciergeHandler) GetConversation(c *gin.Context) {
	conv, err := h.service.GetConversation(c.Request.Context(), GetUserID(c), c.Param("conversation_id"))
	if err != nil {
		HandleError(c, err, "failed to get conversation")
		return
	}

	c.JSON(http.StatusOK, conv)
}

// SaveItem handles POST /api/ai/extract/conversations/:conversation_id/save-item/:item_id
func (h *ConciergeHandler) SaveItem(c *gin.Context) {
	result, err := h.service.Commit(c.Request.Context(), GetUserID(c), c.Param("conversation_id"), c.Param("item_id"))
	if err != nil {
		logger.Error().
			Err(err).
			Str("request_id", GetRequestID(c)).
			Str("conversation_id", c.Param("conversation_id")).
			Str("item_id", c.Param("item_id")).
			Msg("Save item failed")
		HandleError(c, err, "failed to save item")
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeleteItem handles POST /api/ai/extract/delete-item
func (h *ConciergeHandler) DeleteItem(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBadRequest(c, err)
		return
	}

	kind, ok := pkg.ParseItemKind(req.ItemType)
	if !ok || kind == pkg.KindNone {
		HandleError(c, fmt.Errorf("%w: %q", pkg.ErrUnknownKind, req.ItemType), "invalid item type")
		return
	}

	result, err := h.service.DeleteConfirmed(c.Request.Context(), pkg.DeleteRequest{
		ConversationID: req.ConversationID,
		UserID:         GetUserID(c),
		ItemType:       kind,
		ItemIdentifier: req.ItemIdentifier,
	})
	if err != nil {
		HandleError(c, err, "failed to delete item")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Health handles GET /health
func (h *ConciergeHandler) Health(c *gin.Context) {
	if err := h.service.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "store": "ok"})
}
