package builtin

import (
	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

func billingTools(cfg config.EndpointConfig) []toolcore.Tool {
	client := endpointTimeout(cfg, config.DefaultPaymentToolTimeout)
	timeout := config.MustDuration(cfg.Timeout, config.DefaultPaymentToolTimeout)

	return []toolcore.Tool{
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/accounts/billing",
			def: toolcore.Definition{
				Name:        "get_billing_information",
				Description: "Fetch the customer's current balance, plan, and recent charges",
				Parameters: objectSchema([]string{"customer_id"}, map[string]interface{}{
					"customer_id": stringProp("billing system customer identifier"),
				}),
				Roles:       []string{"billing", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
		// process_payment moves money. One attempt, ever; a timeout is
		// ambiguous and must be reconciled by a human, not a retry loop.
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/payments",
			def: toolcore.Definition{
				Name:        "process_payment",
				Description: "Charge a payment against the customer's account",
				Parameters: objectSchema([]string{"customer_id", "amount"}, map[string]interface{}{
					"customer_id": stringProp("billing system customer identifier"),
					"amount":      map[string]interface{}{"type": "number", "description": "charge amount in account currency"},
					"reference":   stringProp("free-form payment reference"),
				}),
				Roles:       []string{"billing", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  0,
				Idempotency: toolcore.MustNotRetry,
			},
		},
	}
}
