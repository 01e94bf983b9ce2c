package builtin

import (
	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

func diagnosticsTools(cfg config.EndpointConfig) []toolcore.Tool {
	client := endpointTimeout(cfg, config.DefaultDiagnosticToolTimeout)
	timeout := config.MustDuration(cfg.Timeout, config.DefaultDiagnosticToolTimeout)

	return []toolcore.Tool{
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/diagnostics/run",
			def: toolcore.Definition{
				Name:        "run_diagnostic_test",
				Description: "Run a remote diagnostic against the customer's line or device",
				Parameters: objectSchema([]string{"customer_id", "test_type"}, map[string]interface{}{
					"customer_id": stringProp("account identifier"),
					"test_type":   stringProp("diagnostic to run, e.g. line_quality or signal_strength"),
				}),
				Roles:       []string{"tier2", "tier3"},
				Timeout:     timeout,
				MaxRetries:  1,
				Idempotency: toolcore.SafeToRetry,
			},
		},
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/logs",
			def: toolcore.Definition{
				Name:        "check_system_logs",
				Description: "Retrieve recent system log entries for the customer's equipment",
				Parameters: objectSchema([]string{"customer_id"}, map[string]interface{}{
					"customer_id": stringProp("account identifier"),
					"since":       stringProp("optional RFC 3339 lower bound"),
				}),
				Roles:       []string{"tier2", "tier3", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
	}
}
