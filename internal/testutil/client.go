package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// Client sends JSON requests to a test server and checks every response
// against the OpenAPI document when a validator is attached.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Validator  *OpenAPIValidator
	t          *testing.T
}

// NewClient creates a client without response validation.
func NewClient(t *testing.T, baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		t:          t,
	}
}

// NewClientWithValidation creates a client that validates responses against
// the OpenAPI document at specPath.
func NewClientWithValidation(t *testing.T, baseURL, specPath string) *Client {
	t.Helper()
	c := NewClient(t, baseURL)
	c.Validator = NewOpenAPIValidator(t, specPath)
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.Token = token
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request. A nil body sends no payload.
func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

// PATCH performs a PATCH request.
func (c *Client) PATCH(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

// DELETE performs a DELETE request.
func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.Validator != nil && c.t != nil {
		c.Validator.ValidateResponse(c.t, req, resp)
	}
	return resp, nil
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
