package sandchest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func newTestClient(t *testing.T, server *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	config := Config{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Retries: intPtr(0),
	}
	if mutate != nil {
		mutate(&config)
	}
	client, err := NewClient(&config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestNewClientAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("SANDCHEST_API_KEY", "sk-from-env")
	t.Setenv("SANDCHEST_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	client, err := NewClient(nil)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "sk-from-env", client.config.APIKey)
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultTimeout, client.config.Timeout)
}

func TestNewClientMissingAPIKey(t *testing.T) {
	t.Setenv("SANDCHEST_API_KEY", "")
	t.Setenv("SANDCHEST_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := NewClient(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestNewClientRejectsInvalidBaseURL(t *testing.T) {
	_, err := NewClient(&Config{APIKey: "sk-test", BaseURL: "not a url"})
	require.Error(t, err)
}

func TestRequestHeaders(t *testing.T) {
	var gotAuth, gotUserAgent, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUserAgent = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		writeJSON(t, w, http.StatusOK, sandboxEnvelope{SandboxID: "sb-1", Status: StatusRunning})
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Get(context.Background(), "sb-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "SandchestGoSDK/"+Version, gotUserAgent)
	assert.Equal(t, "application/json", gotAccept)
}

func TestIdempotencyKeyOnMutations(t *testing.T) {
	keys := make(map[string][]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys[r.Method] = append(keys[r.Method], r.Header.Get("Idempotency-Key"))
		writeJSON(t, w, http.StatusOK, sandboxEnvelope{SandboxID: "sb-1", Status: StatusQueued})
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Create(context.Background(), CreateParams{Image: "python:3.12"})
	require.NoError(t, err)
	_, err = client.Create(context.Background(), CreateParams{Image: "python:3.12"})
	require.NoError(t, err)
	_, err = client.Get(context.Background(), "sb-1")
	require.NoError(t, err)

	require.Len(t, keys[http.MethodPost], 2)
	hexKey := regexp.MustCompile(`^[0-9a-f]{32}$`)
	assert.Regexp(t, hexKey, keys[http.MethodPost][0])
	assert.Regexp(t, hexKey, keys[http.MethodPost][1])
	assert.NotEqual(t, keys[http.MethodPost][0], keys[http.MethodPost][1])
	require.Len(t, keys[http.MethodGet], 1)
	assert.Empty(t, keys[http.MethodGet][0])
}

func TestErrorMapping(t *testing.T) {
	testCases := []struct {
		status   int
		body     string
		wantCode ErrorCode
	}{
		{http.StatusBadRequest, `{"error":"validation_error","message":"bad image"}`, ErrCodeValidation},
		{http.StatusUnauthorized, `{"error":"unauthorized","message":"bad key"}`, ErrCodeUnauthorized},
		{http.StatusForbidden, `{"error":"forbidden","message":"no access"}`, ErrCodeForbidden},
		{http.StatusNotFound, `{"error":"not_found","message":"no such sandbox"}`, ErrCodeNotFound},
		{http.StatusConflict, `{"error":"sandbox_not_running","message":"stopped"}`, ErrCodeSandboxNotRunning},
		{http.StatusServiceUnavailable, `{"error":"service_unavailable","message":"maintenance"}`, ErrCodeServiceUnavailable},
		{http.StatusInternalServerError, `{}`, ErrCodeInternal},
		{http.StatusTeapot, `{"error":"teapot","message":"short and stout"}`, ErrorCode("teapot")},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d", tc.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Request-Id", "req-42")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := newTestClient(t, server, nil)
			_, err := client.Get(context.Background(), "sb-1")
			require.Error(t, err)
			sdkErr, ok := AsError(err)
			require.True(t, ok, "expected *Error, got %T", err)
			assert.Equal(t, tc.wantCode, sdkErr.Code)
			assert.Equal(t, tc.status, sdkErr.Status)
			assert.Equal(t, "req-42", sdkErr.RequestID)
		})
	}
}

func TestErrorMappingNonJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-7")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html>gone</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Get(context.Background(), "sb-1")
	sdkErr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "HTTP 404", sdkErr.Message)
	assert.Equal(t, "req-7", sdkErr.RequestID)
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       "rate_limited",
			"message":     "slow down",
			"retry_after": 2.5,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Get(context.Background(), "sb-1")
	require.True(t, IsRateLimited(err))
	sdkErr, _ := AsError(err)
	assert.Equal(t, 2500*time.Millisecond, sdkErr.RetryAfter)
}

func TestRetryOn429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			writeJSON(t, w, http.StatusTooManyRequests, map[string]interface{}{
				"error":       "rate_limited",
				"retry_after": 0.01,
			})
			return
		}
		writeJSON(t, w, http.StatusOK, sandboxEnvelope{SandboxID: "sb-1", Status: StatusRunning})
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.Retries = intPtr(3) })
	sandbox, err := client.Get(context.Background(), "sb-1")
	require.NoError(t, err)
	assert.Equal(t, "sb-1", sandbox.ID())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(t, w, http.StatusTooManyRequests, map[string]interface{}{
			"error":       "rate_limited",
			"retry_after": 0.01,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.Retries = intPtr(1) })
	_, err := client.Get(context.Background(), "sb-1")
	require.True(t, IsRateLimited(err))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(t, w, http.StatusBadRequest, map[string]string{
			"error":   "validation_error",
			"message": "bad request",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.Retries = intPtr(3) })
	_, err := client.Get(context.Background(), "sb-1")
	sdkErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, sdkErr.Code)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRetryRepeatsRequestBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(raw))
		if len(bodies) == 1 {
			writeJSON(t, w, http.StatusTooManyRequests, map[string]interface{}{"retry_after": 0.01})
			return
		}
		writeJSON(t, w, http.StatusOK, sandboxEnvelope{SandboxID: "sb-1", Status: StatusQueued})
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.Retries = intPtr(2) })
	_, err := client.Create(context.Background(), CreateParams{Image: "python:3.12"})
	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.JSONEq(t, bodies[0], bodies[1])
	assert.Contains(t, bodies[1], "python:3.12")
}

func TestRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	_, err := client.Get(context.Background(), "sb-1")
	require.True(t, IsTimeout(err), "expected timeout, got %v", err)
	sdkErr, _ := AsError(err)
	assert.Equal(t, int64(50), sdkErr.TimeoutMs)
}

func TestConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Get(context.Background(), "sb-1")
	require.True(t, IsConnectionError(err), "expected connection error, got %v", err)
	sdkErr, _ := AsError(err)
	assert.Error(t, sdkErr.Cause)
}

func TestInvalidJSONInSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	_, err := client.Get(context.Background(), "sb-1")
	sdkErr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInternal, sdkErr.Code)
	assert.Equal(t, http.StatusOK, sdkErr.Status)
}

func TestListQuery(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(t, w, http.StatusOK, listSandboxesEnvelope{
			Sandboxes: []sandboxEnvelope{
				{SandboxID: "sb-1", Status: StatusRunning},
				{SandboxID: "sb-2", Status: StatusRunning},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	sandboxes, err := client.List(context.Background(), &ListParams{
		Status:     StatusRunning,
		Image:      "python:3.12",
		ForkedFrom: "sb-0",
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, sandboxes, 2)
	assert.Equal(t, "sb-1", sandboxes[0].ID())

	assert.Contains(t, gotQuery, "status=running")
	assert.Contains(t, gotQuery, "image=python%3A3.12")
	assert.Contains(t, gotQuery, "forked_from=sb-0")
	assert.Contains(t, gotQuery, "limit=10")

	_, err = client.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestClosedClientRejectsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, sandboxEnvelope{SandboxID: "sb-1", Status: StatusRunning})
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	client.Close()
	_, err := client.Get(context.Background(), "sb-1")
	require.True(t, IsConnectionError(err))
}
