/**
 * @description
 * Client for the SMS gateway used to deliver sign-in codes.
 */
package smsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client posts one-time codes to an HTTP SMS gateway.
type Client struct {
	baseURL    string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

type sendRequest struct {
	To      string `json:"to"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// NewClient creates a new gateway client.
func NewClient(baseURL, apiKey, senderID string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		senderID:   senderID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Message is the text delivered for code.
func Message(code string) string {
	return fmt.Sprintf("%s is your Zense verification code. It expires in 5 minutes.", code)
}

// SendOTP delivers code to phone.
func (c *Client) SendOTP(ctx context.Context, phone, code string) error {
	if c.baseURL == "" {
		return fmt.Errorf("sms gateway base URL is not configured")
	}

	payload, err := json.Marshal(sendRequest{To: phone, Sender: c.senderID, Message: Message(code)})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("SMS gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender prints codes instead of sending them. It stands in for the
// gateway in local development.
type LogSender struct{}

func (LogSender) SendOTP(ctx context.Context, phone, code string) error {
	log.Printf("[SMS-FALLBACK] Would send code to %s: %s", maskPhone(phone), code)
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
