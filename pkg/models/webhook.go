package models

import "encoding/json"

// WebhookPayload is the envelope WhatsApp posts to the webhook endpoint:
// entries, each carrying changes, each wrapping a value with messages and/or
// status updates. Fields the provider omits simply stay zero; traversal never
// depends on any of them being present.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         ValueMetadata    `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusUpdate   `json:"statuses,omitempty"`
}

type ValueMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact carries the sender's profile as reported alongside messages.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// InboundMessage is a single message within a webhook delivery. Interactive,
// reaction and contact bodies are kept as raw JSON: their full shape is
// stored as message metadata, and only a couple of fields are ever read from
// them. The complete message body is retained for unrecognized types.
type InboundMessage struct {
	From        string           `json:"from"`
	ID          string           `json:"id"`
	Timestamp   string           `json:"timestamp"`
	Type        string           `json:"type"`
	Text        *TextBody        `json:"text,omitempty"`
	Image       *MediaAttachment `json:"image,omitempty"`
	Video       *MediaAttachment `json:"video,omitempty"`
	Audio       *MediaAttachment `json:"audio,omitempty"`
	Document    *MediaAttachment `json:"document,omitempty"`
	Sticker     *MediaAttachment `json:"sticker,omitempty"`
	Location    *LocationBody    `json:"location,omitempty"`
	Contacts    json.RawMessage  `json:"contacts,omitempty"`
	Interactive json.RawMessage  `json:"interactive,omitempty"`
	Reaction    json.RawMessage  `json:"reaction,omitempty"`

	// ProfileName is filled by the webhook handler from the change value's
	// contacts array; it is not part of the message object itself.
	ProfileName string `json:"-"`

	raw json.RawMessage
}

func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	type alias InboundMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = InboundMessage(a)
	m.raw = append(json.RawMessage{}, data...)
	return nil
}

// Raw returns the message object exactly as it arrived on the wire.
func (m *InboundMessage) Raw() json.RawMessage {
	return m.raw
}

type TextBody struct {
	Body string `json:"body"`
}

// MediaAttachment is the nested object for image, video, audio, document and
// sticker messages.
type MediaAttachment struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// StatusUpdate is a delivery status callback for a previously sent message,
// correlated by the provider-assigned message id.
type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}
