package models

import (
	"time"
)

// Conversation statuses
const (
	ConversationStatusActive   = "active"
	ConversationStatusClosed   = "closed"
	ConversationStatusArchived = "archived"
)

// Message directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageType enumerates the WhatsApp message types this system understands.
// Payloads of any other type are still persisted with their raw body captured
// in metadata.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeImage       MessageType = "image"
	MessageTypeVideo       MessageType = "video"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeDocument    MessageType = "document"
	MessageTypeLocation    MessageType = "location"
	MessageTypeContact     MessageType = "contact"
	MessageTypeSticker     MessageType = "sticker"
	MessageTypeTemplate    MessageType = "template"
	MessageTypeInteractive MessageType = "interactive"
	MessageTypeReaction    MessageType = "reaction"
	MessageTypeSystem      MessageType = "system"
)

// Message delivery statuses, in lifecycle order. Failed is reachable from any
// non-terminal state.
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Role is a role assignable to WhatsApp users (guest, basic, premium, vip).
type Role struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// WhatsappUser represents an external messaging counterpart, identified by
// phone number. Created on first inbound message or admin lookup.
type WhatsappUser struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	PhoneNumber       string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"phone_number"`
	Name              *string        `gorm:"type:varchar(255)" json:"name"`
	ProfilePicture    *string        `gorm:"type:varchar(255)" json:"profile_picture"`
	IsActive          bool           `gorm:"default:true" json:"is_active"`
	LastInteractionAt *time.Time     `json:"last_interaction_at"`
	Metadata          JSON           `gorm:"type:text" json:"metadata"`
	Roles             []Role         `gorm:"many2many:whatsapp_user_roles;" json:"roles,omitempty"`
	Conversations     []Conversation `gorm:"foreignKey:WhatsappUserID;constraint:OnDelete:CASCADE;" json:"conversations,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WhatsappUser) TableName() string {
	return "whatsapp_users"
}

// Conversation is a bounded messaging session between one user and the
// operator. At most one active conversation exists per user; it only closes
// via explicit admin action.
type Conversation struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	WhatsappUserID uint       `gorm:"index;not null" json:"whatsapp_user_id"`
	Status         string     `gorm:"type:varchar(20);default:'active';index" json:"status"`
	LastMessageAt  *time.Time `gorm:"index" json:"last_message_at"`
	Metadata       JSON       `gorm:"type:text" json:"metadata"`
	Messages       []Message  `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE;" json:"messages,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is one inbound or outbound unit of communication. Immutable after
// creation except for status and the delivery timestamps.
type Message struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	ConversationID    uint        `gorm:"index;not null" json:"conversation_id"`
	WhatsappMessageID *string     `gorm:"type:varchar(255);uniqueIndex" json:"whatsapp_message_id"`
	Direction         string      `gorm:"type:varchar(10);not null;index" json:"direction"`
	Type              MessageType `gorm:"type:varchar(20);not null;index" json:"type"`
	Content           *string     `gorm:"type:text" json:"content"`
	MediaURL          *string     `gorm:"type:varchar(255)" json:"media_url"`
	MediaMimeType     *string     `gorm:"type:varchar(100)" json:"media_mime_type"`
	Caption           *string     `gorm:"type:varchar(255)" json:"caption"`
	Status            string      `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	Metadata          JSON        `gorm:"type:text" json:"metadata"`
	SentAt            *time.Time  `json:"sent_at"`
	DeliveredAt       *time.Time  `json:"delivered_at"`
	ReadAt            *time.Time  `json:"read_at"`
	CreatedAt         time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) IsInbound() bool {
	return m.Direction == DirectionInbound
}

func (m *Message) IsOutbound() bool {
	return m.Direction == DirectionOutbound
}
