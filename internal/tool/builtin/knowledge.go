package builtin

import (
	"github.com/relaydesk/relaydesk/internal/config"
	toolcore "github.com/relaydesk/relaydesk/internal/tool"
)

func knowledgeTools(cfg config.EndpointConfig) []toolcore.Tool {
	client := endpointTimeout(cfg, config.DefaultToolTimeout)
	timeout := config.MustDuration(cfg.Timeout, config.DefaultToolTimeout)

	return []toolcore.Tool{
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/search",
			def: toolcore.Definition{
				Name:        "search_knowledge_base",
				Description: "Search support articles for the customer's issue",
				Parameters: objectSchema([]string{"query"}, map[string]interface{}{
					"query":    stringProp("search terms"),
					"category": stringProp("optional article category filter"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3", "billing", "sales", "clarification"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
		&remoteTool{
			client: client,
			url:    cfg.BaseURL + "/guides",
			def: toolcore.Definition{
				Name:        "get_troubleshooting_guide",
				Description: "Fetch the step-by-step troubleshooting guide for a product issue",
				Parameters: objectSchema([]string{"issue_type"}, map[string]interface{}{
					"issue_type": stringProp("issue category, e.g. connectivity or hardware"),
				}),
				Roles:       []string{"tier1", "tier2", "tier3"},
				Timeout:     timeout,
				MaxRetries:  2,
				Idempotency: toolcore.SafeToRetry,
			},
		},
	}
}
