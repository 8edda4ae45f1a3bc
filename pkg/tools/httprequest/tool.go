// Package httprequest provides a tool that performs HTTP requests.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/conductor/pkg/models"
)

const (
	Name = "http_request"

	defaultTimeoutSeconds = 30
	maxResponseSize       = 50_000
)

var (
	// ErrHTTPRequestURLInvalid is returned when neither url nor host is given.
	ErrHTTPRequestURLInvalid = errors.New("invalid HTTP request url")
	// ErrHTTPMethodInvalid is returned for methods the tool does not send.
	ErrHTTPMethodInvalid = errors.New("invalid HTTP method")
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

// Tool sends a single HTTP request. The output is a JSON document with the
// status code, response headers and body (decoded when the body is JSON).
type Tool struct {
	client *http.Client
	logger *slog.Logger
}

func New(logger *slog.Logger, client *http.Client) *Tool {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeoutSeconds * time.Second}
	}

	return &Tool{client: client, logger: logger.With("module", "http_request_tool")}
}

func (t *Tool) Name() string {
	return Name
}

func (t *Tool) Description() string {
	return "Sends an HTTP request and returns the status code, headers and body."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":      map[string]any{"type": "string", "description": "Full URL. Takes precedence over protocol/host/path."},
			"protocol": map[string]any{"type": "string", "enum": []any{"http", "https"}},
			"host":     map[string]any{"type": "string"},
			"path":     map[string]any{"type": "string"},
			"method":   map[string]any{"type": "string"},
			"headers":  map[string]any{"type": "object"},
			"body":     map[string]any{},
			"timeout":  map[string]any{"type": "number", "description": "Timeout in seconds"},
		},
	}
}

// Request is the parsed form of the tool parameters.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

func ParseRequest(params map[string]any) (*Request, error) {
	url, _ := params["url"].(string)
	if url == "" {
		host, _ := params["host"].(string)
		if host == "" {
			return nil, fmt.Errorf("missing 'url' or 'host': %w", ErrHTTPRequestURLInvalid)
		}

		protocol, _ := params["protocol"].(string)
		if protocol == "" {
			protocol = "http"
		}

		path, _ := params["path"].(string)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}

		url = fmt.Sprintf("%s://%s%s", protocol, host, path)
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return nil, fmt.Errorf("%w: %s", ErrHTTPMethodInvalid, method)
	}

	headers := make(map[string]string)
	if raw, ok := params["headers"].(map[string]any); ok {
		for k, v := range raw {
			headers[k] = fmt.Sprintf("%v", v)
		}
	}

	var body string

	switch b := params["body"].(type) {
	case nil:
	case string:
		body = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}

		body = string(encoded)
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	timeout := time.Duration(defaultTimeoutSeconds) * time.Second
	if seconds, ok := params["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &Request{Method: method, URL: url, Headers: headers, Body: body, Timeout: timeout}, nil
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (*models.ToolResult, error) {
	request, err := ParseRequest(params)
	if err != nil {
		return models.NewToolError(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, request.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, request.Method, request.URL, strings.NewReader(request.Body))
	if err != nil {
		return models.NewToolError(fmt.Sprintf("failed to create http request: %v", err)), nil
	}

	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	t.logger.DebugContext(ctx, "Sending HTTP request", "method", request.Method, "url", request.URL)

	resp, err := t.client.Do(req)
	if err != nil {
		return models.NewToolError(fmt.Sprintf("request failed: %v", err)), nil
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return models.NewToolError(fmt.Sprintf("failed to read response body: %v", err)), nil
	}

	truncated := len(bodyBytes) > maxResponseSize
	if truncated {
		bodyBytes = bodyBytes[:maxResponseSize]
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	output, err := json.Marshal(map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
		"truncated":   truncated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	t.logger.InfoContext(ctx, "HTTP request completed", "status", resp.StatusCode, "bytes", len(bodyBytes))

	result := models.NewToolResult(string(output))
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		result.Success = false
		result.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return result, nil
}
