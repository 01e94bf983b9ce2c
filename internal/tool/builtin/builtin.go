// Package builtin provides the default tool set: thin HTTP clients against
// the external ticketing, billing, knowledge-base, diagnostics, and
// notification systems. Every side effect is owned by the system behind the
// endpoint; these tools only carry the request and the audit trail.
package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

// remoteTool is a registered operation against one external endpoint.
type remoteTool struct {
	def    toolcore.Definition
	client *http.Client
	url    string
}

func (t *remoteTool) Definition() toolcore.Definition { return t.def }

func (t *remoteTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return postJSON(ctx, t.client, t.url, input)
}

// RegisterDefaults wires the full default tool catalog into the registry.
// Registration failures are configuration bugs and abort startup.
func RegisterDefaults(reg *toolcore.Registry, cfg config.ToolsConfig) error {
	groups := [][]toolcore.Tool{
		ticketingTools(cfg.Ticketing),
		billingTools(cfg.Billing),
		knowledgeTools(cfg.Knowledge),
		diagnosticsTools(cfg.Diagnostics),
		notifyTools(cfg.Notify),
	}

	for _, group := range groups {
		for _, t := range group {
			if err := reg.Register(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func endpointTimeout(cfg config.EndpointConfig, fallback string) (client *http.Client) {
	d := config.MustDuration(cfg.Timeout, fallback)
	return &http.Client{Timeout: d}
}

func postJSON(ctx context.Context, client *http.Client, url string, body json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, truncateBody(payload))
	}
	return payload, nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}
