package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DryRunMessenger logs messages instead of delivering them. Used when
// DRY_RUN is on and in development setups without a gateway.
type DryRunMessenger struct {
	logger *slog.Logger
}

func NewDryRunMessenger(logger *slog.Logger) *DryRunMessenger {
	return &DryRunMessenger{logger: logger.With("module", "dry_run_messenger")}
}

func (m *DryRunMessenger) Send(ctx context.Context, message *Message) error {
	m.logger.InfoContext(ctx, "DRY RUN: would send message",
		"run_id", message.RunID,
		"contact_id", message.ContactID,
		"phone", message.Phone,
		"channel", message.Channel,
		"body", message.Body)

	return nil
}

// GatewayMessenger POSTs messages to an external delivery gateway (the
// service holding the WhatsApp/SMS provider credentials).
type GatewayMessenger struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func NewGatewayMessenger(url, token string, logger *slog.Logger) *GatewayMessenger {
	return &GatewayMessenger{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("module", "gateway_messenger"),
	}
}

func (m *GatewayMessenger) Send(ctx context.Context, message *Message) error {
	payload, err := json.Marshal(map[string]string{
		"to":      message.Phone,
		"body":    message.Body,
		"channel": message.Channel,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal gateway payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return nil
}
