package service

import (
	"encoding/json"
	"fmt"

	"whatsapp-admin/internal/models"
	pkgmodels "whatsapp-admin/pkg/models"
)

// MessageContent is the normalized form a raw inbound message is reduced to
// before persistence. Every field is optional: types without text carry no
// text, non-media types carry no media reference, and so on.
type MessageContent struct {
	Text          *string
	MediaURL      *string
	MediaMimeType *string
	Caption       *string
	Metadata      json.RawMessage
}

// ExtractContent maps a raw inbound message to its normalized content based
// on the message type. It is a pure function: missing nested fields resolve
// to absent values, never to an error. Types outside the known enumeration
// fall back to capturing the whole raw message as metadata.
func ExtractContent(msg *pkgmodels.InboundMessage, msgType models.MessageType) MessageContent {
	var content MessageContent

	switch msgType {
	case models.MessageTypeText:
		if msg.Text != nil {
			content.Text = strPtr(msg.Text.Body)
		}

	case models.MessageTypeImage:
		content.applyMedia(msg.Image)
	case models.MessageTypeVideo:
		content.applyMedia(msg.Video)
	case models.MessageTypeAudio:
		content.applyMedia(msg.Audio)
	case models.MessageTypeDocument:
		content.applyMedia(msg.Document)
	case models.MessageTypeSticker:
		content.applyMedia(msg.Sticker)

	case models.MessageTypeLocation:
		var loc pkgmodels.LocationBody
		if msg.Location != nil {
			loc = *msg.Location
		}
		content.Text = strPtr(fmt.Sprintf("%s - %s", loc.Name, loc.Address))
		content.Metadata = mustMarshal(map[string]interface{}{
			"latitude":  loc.Latitude,
			"longitude": loc.Longitude,
			"name":      loc.Name,
			"address":   loc.Address,
		})

	case models.MessageTypeContact:
		content.Text = strPtr("Contact shared")
		content.Metadata = msg.Contacts

	case models.MessageTypeInteractive:
		var reply struct {
			ButtonReply *struct {
				Title string `json:"title"`
			} `json:"button_reply"`
			ListReply *struct {
				Title string `json:"title"`
			} `json:"list_reply"`
		}
		if len(msg.Interactive) > 0 {
			_ = json.Unmarshal(msg.Interactive, &reply)
		}
		switch {
		case reply.ButtonReply != nil:
			content.Text = strPtr(reply.ButtonReply.Title)
		case reply.ListReply != nil:
			content.Text = strPtr(reply.ListReply.Title)
		}
		content.Metadata = msg.Interactive

	case models.MessageTypeReaction:
		var reaction struct {
			Emoji string `json:"emoji"`
		}
		if len(msg.Reaction) > 0 {
			_ = json.Unmarshal(msg.Reaction, &reaction)
		}
		if reaction.Emoji != "" {
			content.Text = strPtr(reaction.Emoji)
		}
		content.Metadata = msg.Reaction

	default:
		content.Metadata = msg.Raw()
	}

	return content
}

func (c *MessageContent) applyMedia(media *pkgmodels.MediaAttachment) {
	if media == nil {
		return
	}
	c.MediaURL = strPtr(media.ID)
	c.MediaMimeType = strPtr(media.MimeType)
	c.Caption = strPtr(media.Caption)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
