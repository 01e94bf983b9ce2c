package builtin

import (
	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

func notifyTools(cfg config.EndpointConfig) []toolcore.Tool {
	client := endpointTimeout(cfg, config.DefaultToolTimeout)
	timeout := config.MustDuration(cfg.Timeout, config.DefaultToolTimeout)

	return []toolcore.Tool{
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/notifications",
			def: toolcore.Definition{
				Name:        "send_customer_notification",
				Description: "Send an out-of-band notification to the customer",
				Parameters: objectSchema([]string{"customer_id", "channel", "message"}, map[string]interface{}{
					"customer_id": stringProp("account identifier"),
					"channel":     stringProp("sms or email"),
					"message":     stringProp("notification body"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3", "billing", "sales", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
	}
}
