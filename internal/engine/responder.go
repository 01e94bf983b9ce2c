package engine

import (
	"github.com/relaydesk/relaydesk/internal/conversation"
)

// ToolRequest names one tool call a responder wants dispatched on its behalf.
type ToolRequest struct {
	Name   string
	Params map[string]any
}

// Response is the customer-visible output of a handler for one turn.
type Response struct {
	Text  string
	Tools []ToolRequest
}

// Responder produces the response text and tool requests for a turn. Domain
// response generation is a replaceable collaborator; the defaults below are
// canned per-handler responses with each handler's usual tool habit.
type Responder interface {
	Respond(state *conversation.State, message string) Response
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(state *conversation.State, message string) Response

func (f ResponderFunc) Respond(state *conversation.State, message string) Response {
	return f(state, message)
}

// DefaultResponders returns the built-in responder per handler type.
func DefaultResponders() map[string]Responder {
	return map[string]Responder{
		"clarification": ResponderFunc(func(_ *conversation.State, _ string) Response {
			return Response{
				Text: "I want to make sure I understand your request correctly. Could you tell me a bit more about what you need help with?",
			}
		}),
		"tier1": ResponderFunc(func(state *conversation.State, message string) Response {
			return Response{
				Text: "I can help you with that. Let me look up the relevant information for you.",
				Tools: []ToolRequest{{
					Name:   "search_knowledge_base",
					Params: map[string]any{"query": message},
				}},
			}
		}),
		"tier2": ResponderFunc(func(state *conversation.State, _ string) Response {
			return Response{
				Text: "Let me run a diagnostic to identify the root cause of your issue.",
				Tools: []ToolRequest{{
					Name: "run_diagnostic_test",
					Params: map[string]any{
						"customer_id": customerID(state),
						"test_type":   "line_quality",
					},
				}},
			}
		}),
		"tier3": ResponderFunc(func(state *conversation.State, _ string) Response {
			return Response{
				Text: "This needs a deeper look. I'm pulling the system logs for your equipment now.",
				Tools: []ToolRequest{{
					Name:   "check_system_logs",
					Params: map[string]any{"customer_id": customerID(state)},
				}},
			}
		}),
		"billing": ResponderFunc(func(state *conversation.State, _ string) Response {
			return Response{
				Text: "I can help you understand your billing and account charges. Let me pull up your account information.",
				Tools: []ToolRequest{{
					Name:   "get_billing_information",
					Params: map[string]any{"customer_id": customerID(state)},
				}},
			}
		}),
		"sales": ResponderFunc(func(_ *conversation.State, _ string) Response {
			return Response{
				Text: "I'd be happy to help with information about our products and services. What are you looking for?",
			}
		}),
		"supervisor": ResponderFunc(func(state *conversation.State, message string) Response {
			return Response{
				Text: "I understand your frustration, and I want to make sure you get the best possible help. Let me connect you with a senior specialist who can address your concerns.",
				Tools: []ToolRequest{{
					Name: "create_ticket",
					Params: map[string]any{
						"subject":     "Escalated conversation " + state.ConversationID,
						"description": message,
						"priority":    "high",
					},
				}},
			}
		}),
	}
}

func customerID(state *conversation.State) string {
	if state.Customer != nil {
		return state.Customer.CustomerID
	}
	return ""
}
