package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatsapp-crm/internal/config"
	"whatsapp-crm/pkg/models"
)

// Provider names reported alongside a send result
const (
	ProviderMock = "mock"
	ProviderMeta = "meta-whatsapp-cloud"
)

type Client struct {
	BaseURL  string
	Fallback Credentials
	HTTP     *http.Client
}

// Credentials authorize sends against one Cloud API phone number
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

func (c Credentials) Complete() bool {
	return c.PhoneNumberID != "" && c.AccessToken != ""
}

// SendResult is the provider outcome of a successful send
type SendResult struct {
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	ExternalID string `json:"externalId,omitempty"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.WhatsAppAPIBase, "/"),
		Fallback: Credentials{
			PhoneNumberID: cfg.PhoneNumberID,
			AccessToken:   cfg.WhatsAppToken,
		},
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type,omitempty"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             *TextObj `json:"text,omitempty"`
}

type TextObj struct {
	PreviewUrl bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Resolve picks the workspace's own credentials when both are set and the
// server-wide ones otherwise.
func (c *Client) Resolve(cfg models.WhatsAppConfig) Credentials {
	own := Credentials{
		PhoneNumberID: strings.TrimSpace(cfg.PhoneNumberID),
		AccessToken:   strings.TrimSpace(cfg.AccessToken),
	}
	if own.Complete() {
		return own
	}
	return c.Fallback
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url, token string, body interface{}) ([]byte, error) {
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
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("WhatsApp API error %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// --- Messaging Methods ---

// SendText delivers a plain text message. Without complete credentials the
// send is mocked and no request is made.
func (c *Client) SendText(ctx context.Context, cfg models.WhatsAppConfig, to, text string) (*SendResult, error) {
	creds := c.Resolve(cfg)
	if !creds.Complete() {
		return &SendResult{Provider: ProviderMock, Status: models.StatusMocked}, nil
	}

	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: text},
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.BaseURL, url.PathEscape(creds.PhoneNumberID))
	respBody, err := c.sendRequest(ctx, http.MethodPost, endpoint, creds.AccessToken, msg)
	if err != nil {
		return nil, err
	}

	result := &SendResult{Provider: ProviderMeta, Status: models.StatusSent}
	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err == nil && len(parsed.Messages) > 0 {
		result.ExternalID = parsed.Messages[0].ID
	}
	return result, nil
}

// ChatLink builds a wa.me click-to-chat link for phone with an optional
// prefilled message.
func ChatLink(phone, text string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	link := "https://wa.me/" + digits
	if text != "" {
		link += "?text=" + url.QueryEscape(text)
	}
	return link
}
