package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/wbhoster/wbhoster/internal/config"
)

// Client talks to the WhatsApp Cloud API. Every send returns a
// *SendResult rather than an error so batch loops and the alert
// evaluator can continue past individual failures.
type Client struct {
	Config     *config.Config
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendResult is the uniform outcome of a message dispatch.
type SendResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	MessageID   string `json:"message_id,omitempty"`
	Provider    string `json:"provider,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BulkRecipient is one entry of a bulk send.
type BulkRecipient struct {
	ClientID    uint   `json:"clientId"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

// --- Message structures (WhatsApp Cloud API payload) ---

type GenericMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *TextObj  `json:"text,omitempty"`
	Image            *MediaObj `json:"image,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

var nonDigitRe = regexp.MustCompile(`[\s+\-()]`)

// NormalizeNumber strips the punctuation the provider rejects:
// spaces, plus signs, dashes and parentheses.
func NormalizeNumber(phone string) string {
	return nonDigitRe.ReplaceAllString(phone, "")
}

// SendText dispatches a single text message.
func (c *Client) SendText(phoneNumber, body string) *SendResult {
	to := NormalizeNumber(phoneNumber)

	if c.Config.WhatsAppToken == "" || c.Config.PhoneNumberID == "" {
		return &SendResult{
			Success:     false,
			Message:     "Failed to send message",
			PhoneNumber: to,
			Error:       "WhatsApp API credentials not configured",
		}
	}

	msg := GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	}

	url := fmt.Sprintf("%s/%s/messages", c.Config.WhatsAppAPIURL, c.Config.PhoneNumberID)
	respBody, err := c.sendRequest(http.MethodPost, url, msg)
	if err != nil {
		return &SendResult{
			Success:     false,
			Message:     "Failed to send message",
			PhoneNumber: to,
			Error:       err.Error(),
		}
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil || len(resp.Messages) == 0 {
		return &SendResult{
			Success:     false,
			Message:     "Failed to send message",
			PhoneNumber: to,
			Error:       "unexpected response from provider: " + string(respBody),
		}
	}

	return &SendResult{
		Success:     true,
		Message:     "Message sent successfully",
		MessageID:   resp.Messages[0].ID,
		Provider:    "meta",
		PhoneNumber: to,
	}
}

// SendBulk sends to each recipient in order with a fixed delay between
// dispatches to stay under the provider's rate limits. A failed send
// never aborts the remainder of the batch.
func (c *Client) SendBulk(recipients []BulkRecipient) []*SendResult {
	delay := time.Duration(c.Config.BulkMessageDelayMs) * time.Millisecond

	results := make([]*SendResult, 0, len(recipients))
	for i, r := range recipients {
		if i > 0 && delay > 0 {
			time.Sleep(delay)
		}
		results = append(results, c.SendText(r.PhoneNumber, r.Message))
	}
	return results
}

func (c *Client) sendRequest(method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
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
		var errResp sendResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return respBody, fmt.Errorf("API error: %s - %s", resp.Status, errResp.Error.Message)
		}
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}
