package api

import (
	"net/http"
	"strconv"

	"whatsapp-admin/internal/models"
	"whatsapp-admin/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const messagesPerPage = 20

type ConversationHandler struct {
	db  *gorm.DB
	svc *service.WhatsAppService
	log *logrus.Logger
}

func NewConversationHandler(db *gorm.DB, svc *service.WhatsAppService, log *logrus.Logger) *ConversationHandler {
	return &ConversationHandler{db: db, svc: svc, log: log}
}

// Messages returns a page of a conversation's messages in chronological
// order. The cursor is a message id: pass before_id to page backwards through
// history. A full page signals has_more, and oldest_id seeds the next cursor.
func (h *ConversationHandler) Messages(c *gin.Context) {
	var conversation models.Conversation
	if err := h.db.First(&conversation, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	query := h.db.Where("conversation_id = ?", conversation.ID)
	if beforeParam := c.Query("before_id"); beforeParam != "" {
		beforeID, err := strconv.ParseUint(beforeParam, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before_id"})
			return
		}
		query = query.Where("id < ?", beforeID)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(messagesPerPage).Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load messages"})
		return
	}

	// Fetched newest-first; serve oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	var oldestID *uint
	if len(messages) > 0 {
		oldestID = &messages[0].ID
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":  messages,
		"has_more":  len(messages) == messagesPerPage,
		"oldest_id": oldestID,
	})
}

type SendMessageRequest struct {
	Message string `json:"message" binding:"required,max=4096"`
}

// SendMessage sends an operator text message into the conversation.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversation, user, ok := h.loadConversationWithUser(c)
	if !ok {
		return
	}

	message, err := h.svc.SendTextMessage(c.Request.Context(), user, req.Message, conversation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

type SendTemplateRequest struct {
	TemplateName string   `json:"template_name" binding:"required"`
	LanguageCode string   `json:"language_code"`
	Parameters   []string `json:"parameters"`
}

// SendTemplate sends a pre-approved template message into the conversation.
func (h *ConversationHandler) SendTemplate(c *gin.Context) {
	var req SendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.LanguageCode == "" {
		req.LanguageCode = "en_US"
	}

	conversation, user, ok := h.loadConversationWithUser(c)
	if !ok {
		return
	}

	message, err := h.svc.SendTemplateMessage(c.Request.Context(), user, req.TemplateName, req.LanguageCode, req.Parameters, conversation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send template"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}

// GetOrCreate resolves the user's active conversation, creating one when
// none exists.
func (h *ConversationHandler) GetOrCreate(c *gin.Context) {
	var user models.WhatsappUser
	if err := h.db.First(&user, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	conversation, err := h.svc.GetOrCreateActiveConversation(&user)
	if err != nil {
		h.log.WithError(err).WithField("user_id", user.ID).Error("Failed to resolve conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": gin.H{
			"id":              conversation.ID,
			"status":          conversation.Status,
			"last_message_at": conversation.LastMessageAt,
		},
	})
}

// Close ends a conversation. Conversations never auto-close; this is the
// only transition out of active.
func (h *ConversationHandler) Close(c *gin.Context) {
	var conversation models.Conversation
	if err := h.db.First(&conversation, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}

	if err := h.db.Model(&conversation).Update("status", models.ConversationStatusClosed).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"conversation": gin.H{
			"id":     conversation.ID,
			"status": models.ConversationStatusClosed,
		},
	})
}

func (h *ConversationHandler) loadConversationWithUser(c *gin.Context) (*models.Conversation, *models.WhatsappUser, bool) {
	var conversation models.Conversation
	if err := h.db.First(&conversation, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return nil, nil, false
	}

	var user models.WhatsappUser
	if err := h.db.First(&user, conversation.WhatsappUserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, nil, false
	}

	return &conversation, &user, true
}
