package builtin

import (
	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

func ticketingTools(cfg config.EndpointConfig) []toolcore.Tool {
	client := endpointTimeout(cfg, config.DefaultToolTimeout)
	timeout := config.MustDuration(cfg.Timeout, config.DefaultToolTimeout)

	return []toolcore.Tool{
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/tickets",
			def: toolcore.Definition{
				Name:        "create_ticket",
				Description: "Create a new support ticket in the external ticketing system",
				Parameters: objectSchema([]string{"subject", "description"}, map[string]interface{}{
					"subject":     stringProp("short ticket subject"),
					"description": stringProp("full problem description"),
					"priority":    stringProp("low, medium, high, or critical"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3", "billing", "sales", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  3,
				Idempotency: toolcore.SafeToRetry,
			},
		},
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/tickets/status",
			def: toolcore.Definition{
				Name:        "update_ticket_status",
				Description: "Update the status of an existing ticket",
				Parameters: objectSchema([]string{"ticket_id", "status"}, map[string]interface{}{
					"ticket_id": stringProp("ticketing system identifier"),
					"status":    stringProp("new ticket status"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/tickets/notes",
			def: toolcore.Definition{
				Name:        "add_ticket_notes",
				Description: "Append handler notes to an existing ticket",
				Parameters: objectSchema([]string{"ticket_id", "notes"}, map[string]interface{}{
					"ticket_id": stringProp("ticketing system identifier"),
					"notes":     stringProp("note text to append"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3", "billing", "sales", "supervisor"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
	}
}
