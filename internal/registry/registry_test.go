package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &HTTPClient{
		config:     HTTPConfig{BaseURL: server.URL},
		httpClient: server.Client(),
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

func TestNewHTTPClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  HTTPConfig
		wantErr string
	}{
		{name: "missing base url", config: HTTPConfig{}, wantErr: "base url is required"},
		{name: "relative url", config: HTTPConfig{BaseURL: "registry.local"}, wantErr: "invalid base url"},
		{name: "valid", config: HTTPConfig{BaseURL: "http://registry.local/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewHTTPClient(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://registry.local", c.config.BaseURL)
			assert.Equal(t, defaultTimeout, c.config.Timeout)
			assert.NotNil(t, c.limiter)
		})
	}
}

func TestHTTPClient_Lookup_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/aircraft/B-1501", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.AircraftInfo{
			Registration: "B-1501",
			Type:         "A321",
			Operator:     "Air China",
		})
	})

	info, err := c.Lookup(context.Background(), " b-1501 ")
	require.NoError(t, err)
	assert.Equal(t, "A321", info.Type)
	assert.Equal(t, "Air China", info.Operator)
}

func TestHTTPClient_Lookup_SendsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(domain.AircraftInfo{Type: "B738"})
	})
	c.config.Token = "secret"

	info, err := c.Lookup(context.Background(), "B-5310")
	require.NoError(t, err)
	assert.Equal(t, "B-5310", info.Registration)
}

func TestHTTPClient_Lookup_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantNotFound  bool
		wantRetryable bool
	}{
		{name: "not found", status: http.StatusNotFound, wantNotFound: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "server error", status: http.StatusBadGateway, wantRetryable: true},
		{name: "forbidden", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.Lookup(context.Background(), "B-0000")
			require.Error(t, err)

			if tt.wantNotFound {
				assert.ErrorIs(t, err, ErrAircraftNotFound)
				return
			}
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.Code)
			assert.Equal(t, tt.wantRetryable, statusErr.IsRetryable())
		})
	}
}

func TestHTTPClient_Lookup_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c.limiter = rate.NewLimiter(rate.Limit(0.001), 1)
	_ = c.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, "B-1501")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}

func TestStaticRegistry(t *testing.T) {
	f, err := os.Open("testdata/aircraft.yaml")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	reg, err := LoadStatic(f)
	require.NoError(t, err)

	info, err := reg.Lookup(context.Background(), "B-7711")
	require.NoError(t, err)
	assert.Equal(t, "B789", info.Type)
	assert.Equal(t, 126370, info.FuelCapacity)

	_, err = reg.Lookup(context.Background(), "B-9999")
	assert.ErrorIs(t, err, ErrAircraftNotFound)
}

func TestLoadStatic_Invalid(t *testing.T) {
	_, err := LoadStatic(strings.NewReader("aircraft:\n  - registration: B-1\n"))
	assert.ErrorIs(t, err, ErrInvalidRegistry)
}

func TestChain_FallsBack(t *testing.T) {
	remote := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	static := NewStatic([]domain.AircraftInfo{{Registration: "B-1501", Type: "A321"}})

	info, err := Chain{remote, static}.Lookup(context.Background(), "B-1501")
	require.NoError(t, err)
	assert.Equal(t, "A321", info.Type)

	_, err = Chain{static}.Lookup(context.Background(), "B-0000")
	assert.ErrorIs(t, err, ErrAircraftNotFound)

	_, err = Chain{}.Lookup(context.Background(), "B-0000")
	assert.ErrorIs(t, err, ErrAircraftNotFound)
}
