// Package apicall performs the HTTP calls behind api nodes and maps response
// fields onto contact variables.
package apicall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/template"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20 // 1 MiB
)

// Caller implements journey.APICaller with a shared HTTP client.
type Caller struct {
	client *http.Client
	logger *slog.Logger
}

func NewCaller(logger *slog.Logger) *Caller {
	return &Caller{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.With("module", "apicall"),
	}
}

// Call performs the request and resolves each mapping's dotted path against
// the decoded JSON response. A non-2xx status is an error; a response that is
// not JSON only is when mappings need values out of it.
func (c *Caller) Call(ctx context.Context, req journey.APIRequest) (map[string]any, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if req.Body != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL)
	}

	c.logger.DebugContext(ctx, "API call completed",
		"method", method, "url", req.URL, "status", resp.StatusCode)

	if len(req.Mappings) == 0 {
		return nil, nil
	}

	var decoded map[string]any

	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	vars := make(map[string]any, len(req.Mappings))

	for _, mapping := range req.Mappings {
		if mapping.Var == "" || mapping.Path == "" {
			continue
		}

		if value := template.Lookup(decoded, mapping.Path); value != nil {
			vars[mapping.Var] = value
		}
	}

	return vars, nil
}
