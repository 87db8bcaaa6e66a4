// Package extraction turns order documents into structured order data
// using an OpenAI-compatible chat completions API.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gardner-Chu/order-automation-system/pkg/models"
)

// ErrEmptyResponse is returned when the model produced no content
var ErrEmptyResponse = errors.New("no response from extraction model")

// Client is an extraction API client
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Config for extraction client
type Config struct {
	BaseURL string // e.g., https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
}

type chatRequest struct {
	Model          string         `json:"model,omitempty"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type       string     `json:"type"`
	JSONSchema jsonSchema `json:"json_schema"`
}

type jsonSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new extraction API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ExtractFromDocument extracts an order from spreadsheet data
func (c *Client) ExtractFromDocument(ctx context.Context, data string) (*models.ExtractionResult, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt("spreadsheet data")},
		{Role: "user", Content: "Extract the order from this spreadsheet data:\n\n```\n" + data + "\n```\n\n" + answerFormat},
	}

	result, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	result.RawData = json.RawMessage(`{"source":"document"}`)
	return result, nil
}

// ExtractFromImage extracts an order from an image reachable at url
func (c *Client) ExtractFromImage(ctx context.Context, url string) (*models.ExtractionResult, error) {
	messages := []chatMessage{
		{Role: "system", Content: systemPrompt("an image")},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: "Extract the order shown in this image.\n\n" + answerFormat},
			{Type: "image_url", ImageURL: &imageURL{URL: url}},
		}},
	}

	result, err := c.complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(map[string]string{"imageUrl": url})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw data: %w", err)
	}
	result.RawData = raw
	return result, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (*models.ExtractionResult, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchema{
				Name:   "order_extraction",
				Strict: true,
				Schema: orderSchema,
			},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}

	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content, err := messageContent(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}

	return &result, nil
}

// messageContent returns the JSON document of a message. Content is usually
// a JSON string, some providers return the object directly.
func messageContent(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyResponse
	}

	if trimmed[0] != '"' {
		return trimmed, nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil, fmt.Errorf("failed to parse message content: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}
	return []byte(text), nil
}
