/**
 * @description
 * This file provides a client for the staff portal HTTP API. It is used by
 * staffctl and by anything else that needs to drive a staff session from Go:
 * signing in with a one-time code, reading the navigation guard, and reading
 * and autosaving daily care logs.
 */
package portalclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the portal.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal returned status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// User is the subset of the status record clients care about.
type User struct {
	ID            string `json:"id"`
	Phone         string `json:"phone"`
	Name          string `json:"name,omitempty"`
	Status        string `json:"status"`
	LastStep      string `json:"lastStep,omitempty"`
	HasOngoingJob bool   `json:"hasOngoingJob"`
}

// VerifyResponse is returned by a successful code verification.
type VerifyResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
	IsNewUser bool      `json:"isNewUser"`
}

// Identity names the signed-in caller.
type Identity struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
}

// Session is the caller's resolved session.
type Session struct {
	Identity      *Identity `json:"identity"`
	Authenticated bool      `json:"authenticated"`
	Loading       bool      `json:"loading"`
	IsNewUser     bool      `json:"isNewUser"`
	Status        *User     `json:"status"`
}

// RouteDecision is the navigation guard's verdict for a path.
type RouteDecision struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// Record is a daily log document keyed by field name.
type Record map[string]json.RawMessage

// RangeEntry is one day of a range query; Data is nil when nothing was logged.
type RangeEntry struct {
	Date string `json:"date"`
	Data Record `json:"data"`
}

// Job is a job posting as listed by the browser.
type Job struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CustomerName string `json:"customerName"`
	Description  string `json:"description"`
	District     string `json:"district"`
	SubDistrict  string `json:"subDistrict"`
	Pincode      int    `json:"pincode"`
	JobType      string `json:"JobType"`
}

// Client provides methods to interact with the staff portal.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new portal client. token may be empty until sign-in.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	copied := *c
	copied.token = token
	return &copied
}

// Token is the bearer token the client sends.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call portal: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		apiErr.RetryAfter, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		if resp.StatusCode >= 500 {
			log.Printf("Portal returned status %d for %s %s: %s", resp.StatusCode, method, path, apiErr.Message)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SendOTP requests a sign-in code for phone and returns the verification id.
func (c *Client) SendOTP(ctx context.Context, phone string) (string, error) {
	var resp struct {
		VerificationID string `json:"verificationId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/send-otp", map[string]string{"phoneNumber": phone}, &resp); err != nil {
		return "", err
	}
	return resp.VerificationID, nil
}

// VerifyOTP exchanges a code for a session token.
func (c *Client) VerifyOTP(ctx context.Context, verificationID, otp string) (*VerifyResponse, error) {
	var resp VerifyResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/verify-otp", map[string]string{
		"verificationId": verificationID,
		"otp":            otp,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignOut revokes the client's token.
func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/sign-out", nil, nil)
}

// Session returns the caller's resolved session.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Route asks the navigation guard where path should lead.
func (c *Client) Route(ctx context.Context, path string) (*RouteDecision, error) {
	var d RouteDecision
	if err := c.do(ctx, http.MethodGet, "/api/session/route?path="+url.QueryEscape(path), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DailyTask returns userID's record for date, creating it server-side if absent.
func (c *Client) DailyTask(ctx context.Context, userID, date string) (Record, error) {
	q := url.Values{"userId": {userID}, "date": {date}}
	var rec Record
	if err := c.do(ctx, http.MethodGet, "/api/daily-tasks?"+q.Encode(), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateField autosaves one field of the caller's record for date.
func (c *Client) UpdateField(ctx context.Context, date, field string, value json.RawMessage) error {
	path := fmt.Sprintf("/api/daily-tasks/%s/%s", url.PathEscape(date), url.PathEscape(field))
	return c.do(ctx, http.MethodPatch, path, map[string]json.RawMessage{"value": value}, nil)
}

func (c *Client) postDailyAction(ctx context.Context, date, action string, payload interface{}) (Record, error) {
	var resp struct {
		Data Record `json:"data"`
	}
	path := fmt.Sprintf("/api/daily-tasks/%s/%s", url.PathEscape(date), action)
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ClockIn stamps the current time as a clock-in for date.
func (c *Client) ClockIn(ctx context.Context, date string) (Record, error) {
	return c.postDailyAction(ctx, date, "clock-in", nil)
}

// ClockOut stamps the current time as a clock-out for date.
func (c *Client) ClockOut(ctx context.Context, date string) (Record, error) {
	return c.postDailyAction(ctx, date, "clock-out", nil)
}

// RecordMood appends a mood entry for date.
func (c *Client) RecordMood(ctx context.Context, date, mood string) (Record, error) {
	return c.postDailyAction(ctx, date, "mood", map[string]string{"mood": mood})
}

// AddTask appends a task to userID's record for date.
func (c *Client) AddTask(ctx context.Context, userID, date, title, timeLabel string) (Record, error) {
	var resp struct {
		Data Record `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/add/"+url.PathEscape(userID), map[string]string{
		"date":  date,
		"title": title,
		"time":  timeLabel,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// TaskRange returns one entry per day between start and end inclusive.
func (c *Client) TaskRange(ctx context.Context, userID, start, end string) ([]RangeEntry, error) {
	q := url.Values{"userId": {userID}, "startDate": {start}, "endDate": {end}}
	var resp struct {
		Data []RangeEntry `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tasks/range?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Jobs lists open postings filtered by status ("" means all).
func (c *Client) Jobs(ctx context.Context, userID, status string) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	err := c.do(ctx, http.MethodPost, "/api/job", map[string]string{"userId": userID, "status": status}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}
