package api

import (
	"net/http"
	"strconv"

	"whatsapp-admin/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const usersPerPage = 20

type UserHandler struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewUserHandler(db *gorm.DB, log *logrus.Logger) *UserHandler {
	return &UserHandler{db: db, log: log}
}

func roleNames(roles []models.Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

// ListUsers returns a paginated user listing with optional phone/name search.
func (h *UserHandler) ListUsers(c *gin.Context) {
	search := c.Query("search")
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	query := h.db.Model(&models.WhatsappUser{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("phone_number LIKE ? OR name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	var users []models.WhatsappUser
	err = query.Preload("Roles").
		Order("last_interaction_at DESC").
		Limit(usersPerPage).
		Offset((page - 1) * usersPerPage).
		Find(&users).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}

	items := make([]gin.H, 0, len(users))
	for i := range users {
		user := &users[i]

		var conversationsCount int64
		h.db.Model(&models.Conversation{}).Where("whatsapp_user_id = ?", user.ID).Count(&conversationsCount)

		var lastConversation gin.H
		var conversation models.Conversation
		err := h.db.Where("whatsapp_user_id = ?", user.ID).
			Order("last_message_at DESC").
			First(&conversation).Error
		if err == nil {
			lastConversation = gin.H{
				"id":              conversation.ID,
				"status":          conversation.Status,
				"last_message_at": conversation.LastMessageAt,
			}
		}

		items = append(items, gin.H{
			"id":                  user.ID,
			"phone_number":        user.PhoneNumber,
			"name":                user.Name,
			"profile_picture":     user.ProfilePicture,
			"is_active":           user.IsActive,
			"last_interaction_at": user.LastInteractionAt,
			"conversations_count": conversationsCount,
			"roles":               roleNames(user.Roles),
			"last_conversation":   lastConversation,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"users":    items,
		"total":    total,
		"page":     page,
		"per_page": usersPerPage,
		"filters":  gin.H{"search": search},
	})
}

// GetUser returns one user with roles and the active conversation, if any.
func (h *UserHandler) GetUser(c *gin.Context) {
	var user models.WhatsappUser
	if err := h.db.Preload("Roles").First(&user, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var activeConversation gin.H
	var conversation models.Conversation
	err := h.db.Where("whatsapp_user_id = ? AND status = ?", user.ID, models.ConversationStatusActive).
		Order("last_message_at DESC").
		First(&conversation).Error
	if err == nil {
		activeConversation = gin.H{
			"id":              conversation.ID,
			"status":          conversation.Status,
			"last_message_at": conversation.LastMessageAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":                  user.ID,
			"phone_number":        user.PhoneNumber,
			"name":                user.Name,
			"profile_picture":     user.ProfilePicture,
			"is_active":           user.IsActive,
			"last_interaction_at": user.LastInteractionAt,
			"created_at":          user.CreatedAt,
			"roles":               roleNames(user.Roles),
		},
		"conversation": activeConversation,
	})
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// UpdateRole replaces the user's roles with the single named role.
func (h *UserHandler) UpdateRole(c *gin.Context) {
	var user models.WhatsappUser
	if err := h.db.First(&user, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var role models.Role
	if err := h.db.Where("name = ?", req.Role).First(&role).Error; err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Role not found"})
		return
	}

	if err := h.db.Model(&user).Association("Roles").Replace(&role); err != nil {
		h.log.WithError(err).WithField("user_id", user.ID).Error("Failed to update role")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Role updated", "role": role.Name})
}

// ToggleActive flips the user's active flag.
func (h *UserHandler) ToggleActive(c *gin.Context) {
	var user models.WhatsappUser
	if err := h.db.First(&user, c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := h.db.Model(&user).Update("is_active", !user.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "User status updated", "is_active": !user.IsActive})
}
