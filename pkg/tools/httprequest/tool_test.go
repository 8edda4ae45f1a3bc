package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/conductor/pkg/tools/httprequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		params   map[string]any
		expected *httprequest.Request
		wantErr  error
	}{
		{
			name:   "url with defaults",
			params: map[string]any{"url": "https://api.example.com/data"},
			expected: &httprequest.Request{
				Method:  http.MethodGet,
				URL:     "https://api.example.com/data",
				Headers: map[string]string{},
				Timeout: 30 * time.Second,
			},
		},
		{
			name: "host and path with object body",
			params: map[string]any{
				"method":  "post",
				"host":    "api.example.com",
				"path":    "create",
				"body":    map[string]any{"key": "value"},
				"timeout": 5.0,
			},
			expected: &httprequest.Request{
				Method:  http.MethodPost,
				URL:     "http://api.example.com/create",
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    `{"key":"value"}`,
				Timeout: 5 * time.Second,
			},
		},
		{name: "missing url", params: map[string]any{}, wantErr: httprequest.ErrHTTPRequestURLInvalid},
		{name: "bad method", params: map[string]any{"url": "http://x", "method": "TRACE"}, wantErr: httprequest.ErrHTTPMethodInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			request, err := httprequest.ParseRequest(tt.params)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, request)
		})
	}
}

func TestTool_Execute(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		body, _ := io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":    r.Method,
			"echo":      string(body),
			"x-request": r.Header.Get("X-Request"),
		})
	}))
	defer server.Close()

	tool := httprequest.New(slog.Default(), server.Client())

	result, err := tool.Execute(context.Background(), map[string]any{
		"url":     server.URL + "/ok",
		"method":  "PUT",
		"body":    "hello",
		"headers": map[string]any{"X-Request": "abc"},
	})
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)

	var output map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Output), &output))
	assert.InDelta(t, 200, output["status_code"], 0)

	body, ok := output["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "PUT", body["method"])
	assert.Equal(t, "hello", body["echo"])
	assert.Equal(t, "abc", body["x-request"])

	result, err = tool.Execute(context.Background(), map[string]any{"url": server.URL + "/missing"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "HTTP 404: Not Found", result.Error)
}

func TestTool_ExecuteConnectionError(t *testing.T) {
	t.Parallel()

	tool := httprequest.New(slog.Default(), nil)

	result, err := tool.Execute(context.Background(), map[string]any{"url": "http://127.0.0.1:1/none", "timeout": 1.0})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "request failed")
}
