package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultRateLimit = 10.0
)

// HTTPConfig holds aircraft registry service configuration.
type HTTPConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 means default
	Token     string  // optional bearer token
}

// HTTPClient queries a remote aircraft registry service.
type HTTPClient struct {
	config     HTTPConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient creates a registry client.
// Returns error if the base URL is missing or malformed.
func NewHTTPClient(config HTTPConfig) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("registry client: base url is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("registry client: invalid base url: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	slog.Info("aircraft registry client configured",
		"base_url", config.BaseURL,
		"rate_limit", config.RateLimit,
	)

	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Lookup implements Registry. GET {base}/aircraft/{registration}.
func (c *HTTPClient) Lookup(ctx context.Context, registration string) (domain.AircraftInfo, error) {
	reg := NormalizeRegistration(registration)
	if reg == "" {
		return domain.AircraftInfo{}, fmt.Errorf("%w: empty registration", ErrAircraftNotFound)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.AircraftInfo{}, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.config.BaseURL + "/aircraft/" + url.PathEscape(reg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.AircraftInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AircraftInfo{}, &StatusError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return c.handleResponse(resp, reg)
}

func (c *HTTPClient) handleResponse(resp *http.Response, reg string) (domain.AircraftInfo, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.AircraftInfo{}, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var info domain.AircraftInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return domain.AircraftInfo{}, fmt.Errorf("decode response: %w", err)
		}
		if info.Registration == "" {
			info.Registration = reg
		}
		slog.Debug("aircraft registry hit", "registration", reg)
		return info, nil

	case resp.StatusCode == http.StatusNotFound:
		return domain.AircraftInfo{}, fmt.Errorf("%w: %s", ErrAircraftNotFound, reg)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.AircraftInfo{}, &StatusError{Code: resp.StatusCode, Message: string(body), Retryable: true}

	default:
		return domain.AircraftInfo{}, &StatusError{Code: resp.StatusCode, Message: string(body)}
	}
}

// StatusError is a failed registry call.
type StatusError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *StatusError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("registry error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("registry error: %s", e.Message)
}

// IsRetryable reports whether the call may succeed later.
func (e *StatusError) IsRetryable() bool { return e.Retryable || e.Code == 0 }
