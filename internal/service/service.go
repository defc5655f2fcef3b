package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"whatsapp-admin/internal/models"
	pkgmodels "whatsapp-admin/pkg/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Gateway sends messages through the WhatsApp Cloud API. The service only
// depends on its accept/id-returned contract; retries and rate limits are the
// implementation's concern.
type Gateway interface {
	// SendText dispatches a text message and returns the provider-assigned
	// message id, which may be empty if the provider did not return one.
	SendText(ctx context.Context, to, body string) (string, error)
	SendTemplate(ctx context.Context, to, name, languageCode string, parameters []string) (string, error)
	MarkAsRead(ctx context.Context, messageID string) error
}

// statusRank orders delivery statuses for forward-only reconciliation.
var statusRank = map[string]int{
	models.MessageStatusPending:   0,
	models.MessageStatusSent:      1,
	models.MessageStatusDelivered: 2,
	models.MessageStatusRead:      3,
}

// WhatsAppService owns the conversation lifecycle and the message ledger:
// users are created on first contact, every user has at most one active
// conversation, and all inbound/outbound traffic is appended to it.
type WhatsAppService struct {
	db          *gorm.DB
	gateway     Gateway
	log         *logrus.Logger
	defaultRole string

	// Serializes get-or-create of the active conversation per user. The
	// read-then-write sequence would otherwise race under concurrent webhook
	// deliveries and create two active conversations.
	userLocks sync.Map
}

func NewWhatsAppService(db *gorm.DB, gateway Gateway, log *logrus.Logger, defaultRole string) *WhatsAppService {
	return &WhatsAppService{
		db:          db,
		gateway:     gateway,
		log:         log,
		defaultRole: defaultRole,
	}
}

func (s *WhatsAppService) lockUser(userID uint) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// GetOrCreateUser looks a user up by phone number, creating it on first
// contact. The configured default role is assigned to newly created users
// only; existing users keep whatever roles they have.
func (s *WhatsAppService) GetOrCreateUser(phoneNumber string, name *string) (*models.WhatsappUser, error) {
	var user models.WhatsappUser
	err := s.db.Where("phone_number = ?", phoneNumber).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", phoneNumber, err)
	}

	now := time.Now()
	user = models.WhatsappUser{
		PhoneNumber:       phoneNumber,
		Name:              name,
		IsActive:          true,
		LastInteractionAt: &now,
	}
	if err := s.db.Create(&user).Error; err != nil {
		// A concurrent delivery may have just created the same phone number;
		// the unique index rejects the second insert.
		var existing models.WhatsappUser
		if lookupErr := s.db.Where("phone_number = ?", phoneNumber).First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to create user %s: %w", phoneNumber, err)
	}

	if err := s.assignDefaultRole(&user); err != nil {
		s.log.WithError(err).WithField("phone", phoneNumber).Warn("Failed to assign default role")
	}

	return &user, nil
}

func (s *WhatsAppService) assignDefaultRole(user *models.WhatsappUser) error {
	if s.defaultRole == "" {
		return nil
	}
	var role models.Role
	if err := s.db.Where("name = ?", s.defaultRole).First(&role).Error; err != nil {
		return fmt.Errorf("default role %q not found: %w", s.defaultRole, err)
	}
	return s.db.Model(user).Association("Roles").Append(&role)
}

// GetOrCreateActiveConversation returns the user's most recently updated
// active conversation, creating one if none exists. Creation is serialized
// per user so concurrent deliveries cannot produce two active conversations.
func (s *WhatsAppService) GetOrCreateActiveConversation(user *models.WhatsappUser) (*models.Conversation, error) {
	mu := s.lockUser(user.ID)
	mu.Lock()
	defer mu.Unlock()

	var conversation models.Conversation
	err := s.db.
		Where("whatsapp_user_id = ? AND status = ?", user.ID, models.ConversationStatusActive).
		Order("last_message_at DESC").
		First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up active conversation for user %d: %w", user.ID, err)
	}

	now := time.Now()
	conversation = models.Conversation{
		WhatsappUserID: user.ID,
		Status:         models.ConversationStatusActive,
		LastMessageAt:  &now,
	}
	if err := s.db.Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation for user %d: %w", user.ID, err)
	}

	return &conversation, nil
}

// RecordInboundMessage persists one message from a webhook delivery: the user
// is created or refreshed, the active conversation resolved, the content
// extracted by type, and the message appended with its provider timestamp.
// Inbound messages are stored with status sent; the provider already
// delivered them to us.
func (s *WhatsAppService) RecordInboundMessage(msg *pkgmodels.InboundMessage) (*models.Message, error) {
	var name *string
	if msg.ProfileName != "" {
		name = &msg.ProfileName
	}

	user, err := s.GetOrCreateUser(msg.From, name)
	if err != nil {
		return nil, err
	}

	conversation, err := s.GetOrCreateActiveConversation(user)
	if err != nil {
		return nil, err
	}

	msgType := models.MessageType(msg.Type)
	content := ExtractContent(msg, msgType)

	sentAt := time.Now()
	if epoch, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		sentAt = time.Unix(epoch, 0)
	}

	record := models.Message{
		ConversationID:    conversation.ID,
		WhatsappMessageID: strPtr(msg.ID),
		Direction:         models.DirectionInbound,
		Type:              msgType,
		Content:           content.Text,
		MediaURL:          content.MediaURL,
		MediaMimeType:     content.MediaMimeType,
		Caption:           content.Caption,
		Status:            models.MessageStatusSent,
		Metadata:          models.JSON(content.Metadata),
		SentAt:            &sentAt,
	}

	now := time.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to store inbound message: %w", err)
		}
		if err := tx.Model(&models.WhatsappUser{}).Where("id = ?", user.ID).
			Update("last_interaction_at", now).Error; err != nil {
			return fmt.Errorf("failed to refresh user interaction time: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversation.ID).
			Update("last_message_at", now).Error; err != nil {
			return fmt.Errorf("failed to refresh conversation time: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// SendTextMessage dispatches a text through the gateway and records the
// outbound message. No row is written when the gateway call fails; the error
// surfaces to the operator instead.
func (s *WhatsAppService) SendTextMessage(ctx context.Context, user *models.WhatsappUser, body string, conversation *models.Conversation) (*models.Message, error) {
	providerID, err := s.gateway.SendText(ctx, user.PhoneNumber, body)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": user.ID,
			"phone":   user.PhoneNumber,
		}).Error("Failed to send text message")
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	return s.recordOutbound(user, conversation, models.Message{
		WhatsappMessageID: strPtr(providerID),
		Type:              models.MessageTypeText,
		Content:           strPtr(body),
	})
}

// SendTemplateMessage dispatches a pre-approved template through the gateway
// and records the outbound message with the template details as metadata.
func (s *WhatsAppService) SendTemplateMessage(ctx context.Context, user *models.WhatsappUser, templateName, languageCode string, parameters []string, conversation *models.Conversation) (*models.Message, error) {
	providerID, err := s.gateway.SendTemplate(ctx, user.PhoneNumber, templateName, languageCode, parameters)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":  user.ID,
			"template": templateName,
		}).Error("Failed to send template message")
		return nil, fmt.Errorf("failed to send template: %w", err)
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"template_name": templateName,
		"language_code": languageCode,
		"parameters":    parameters,
	})

	return s.recordOutbound(user, conversation, models.Message{
		WhatsappMessageID: strPtr(providerID),
		Type:              models.MessageTypeTemplate,
		Content:           strPtr("Template: " + templateName),
		Metadata:          metadata,
	})
}

func (s *WhatsAppService) recordOutbound(user *models.WhatsappUser, conversation *models.Conversation, record models.Message) (*models.Message, error) {
	if conversation == nil {
		var err error
		conversation, err = s.GetOrCreateActiveConversation(user)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	record.ConversationID = conversation.ID
	record.Direction = models.DirectionOutbound
	record.Status = models.MessageStatusSent
	record.SentAt = &now

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to store outbound message: %w", err)
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conversation.ID).
			Update("last_message_at", now).Error; err != nil {
			return fmt.Errorf("failed to refresh conversation time: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// ApplyStatusUpdate reconciles a delivery status callback against the ledger.
// Unknown provider ids are a no-op: the callback may reference a send this
// system never recorded, or arrive before the send is persisted. Transitions
// only move forward (pending, sent, delivered, read); a stale callback cannot
// overwrite a later status. Failed is terminal and reachable from any state
// except read.
func (s *WhatsAppService) ApplyStatusUpdate(providerID, status string) error {
	var message models.Message
	err := s.db.Where("whatsapp_message_id = ?", providerID).First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.WithField("wa_message_id", providerID).Debug("Status update for unknown message, ignoring")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up message %s: %w", providerID, err)
	}

	if !s.allowTransition(message.Status, status) {
		s.log.WithFields(logrus.Fields{
			"wa_message_id": providerID,
			"current":       message.Status,
			"incoming":      status,
		}).Debug("Ignoring stale or unknown status update")
		return nil
	}

	now := time.Now()
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.MessageStatusDelivered:
		updates["delivered_at"] = now
	case models.MessageStatusRead:
		updates["read_at"] = now
	}

	if err := s.db.Model(&message).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update status of message %s: %w", providerID, err)
	}

	return nil
}

func (s *WhatsAppService) allowTransition(current, incoming string) bool {
	if incoming == models.MessageStatusFailed {
		return current != models.MessageStatusRead && current != models.MessageStatusFailed
	}
	incomingRank, ok := statusRank[incoming]
	if !ok {
		return false
	}
	currentRank, ok := statusRank[current]
	if !ok {
		// current is failed: terminal
		return false
	}
	return incomingRank > currentRank
}

// MarkAsRead tells the provider an inbound message was read. Best-effort
// only: failures are logged and never propagated.
func (s *WhatsAppService) MarkAsRead(ctx context.Context, providerID string) {
	if err := s.gateway.MarkAsRead(ctx, providerID); err != nil {
		s.log.WithError(err).WithField("wa_message_id", providerID).Error("Failed to mark message as read")
	}
}
