package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsapp-admin/internal/config"
)

const defaultBaseURL = "https://graph.facebook.com"

// Client talks to the WhatsApp Business Cloud API. It implements
// service.Gateway.
type Client struct {
	cfg        *config.Config
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Message structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to,omitempty"`
	Type             string       `json:"type,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
	Status           string       `json:"status,omitempty"`
	MessageID        string       `json:"message_id,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// --- Helpers ---

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

func (c *Client) dispatch(ctx context.Context, msg GenericMessage) (string, error) {
	respBody, err := c.sendRequest(ctx, http.MethodPost, c.messagesURL(), msg)
	if err != nil {
		return "", err
	}

	// The provider normally echoes back the assigned message id; its absence
	// is tolerated and surfaces as an empty id.
	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", nil
	}
	if len(resp.Messages) == 0 {
		return "", nil
	}
	return resp.Messages[0].ID, nil
}

// --- Gateway methods ---

// SendText sends a plain text message and returns the provider-assigned
// message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.dispatch(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text: &TextObj{
			Body: body,
		},
	})
}

// SendTemplate sends a pre-approved template message with positional text
// parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name, languageCode string, parameters []string) (string, error) {
	template := &TemplateObj{
		Name: name,
		Language: LanguageObj{
			Code: languageCode,
		},
	}
	if len(parameters) > 0 {
		component := ComponentObj{Type: "body"}
		for _, p := range parameters {
			component.Parameters = append(component.Parameters, ParameterObj{Type: "text", Text: p})
		}
		template.Components = []ComponentObj{component}
	}

	return c.dispatch(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         template,
	})
}

// MarkAsRead reports an inbound message as read to the provider.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	_, err := c.sendRequest(ctx, http.MethodPost, c.messagesURL(), GenericMessage{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
	})
	return err
}
