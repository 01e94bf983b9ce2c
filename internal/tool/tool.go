package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Idempotency classifies whether a failed tool call may be retried
// automatically. Payment-affecting tools are never safe to retry.
type Idempotency string

const (
	SafeToRetry  Idempotency = "safe_to_retry"
	MustNotRetry Idempotency = "must_not_retry"
)

// KnownRoles is the closed set of caller roles a tool may authorize. It
// mirrors the handler types plus the system role used by background jobs.
var KnownRoles = []string{"tier1", "tier2", "tier3", "billing", "sales", "supervisor", "clarification", "system"}

// Definition declares a tool's registration tuple: name, parameter schema,
// authorized roles, timeout, retry budget, and idempotency class.
type Definition struct {
	Name        string                 `validate:"required"`
	Description string                 `validate:"required"`
	Parameters  map[string]interface{} `validate:"required"`
	Roles       []string               `validate:"min=1"`
	Timeout     time.Duration          `validate:"gt=0"`
	MaxRetries  int                    `validate:"gte=0"`
	Idempotency Idempotency            `validate:"oneof=safe_to_retry must_not_retry"`
}

// Authorized reports whether the caller role may invoke this tool.
func (d Definition) Authorized(callerRole string) bool {
	role := strings.TrimSpace(callerRole)
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Tool represents an executable capability against an external system.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Registry holds all available tools. Registration is the validation
// boundary: malformed definitions and unknown roles are rejected here, at
// startup, never at call time. The registry is read-only once serving begins.
type Registry struct {
	tools    map[string]Tool
	validate *validator.Validate
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		validate: validator.New(),
	}
}

func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return fmt.Errorf("tool: empty tool name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if err := r.validate.Struct(def); err != nil {
		return fmt.Errorf("tool %s definition invalid: %w", name, err)
	}
	for _, role := range def.Roles {
		if !knownRole(role) {
			return fmt.Errorf("tool %s authorizes unknown role %q", name, role)
		}
	}

	r.tools[name] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[strings.TrimSpace(name)]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func knownRole(role string) bool {
	for _, r := range KnownRoles {
		if r == role {
			return true
		}
	}
	return false
}
