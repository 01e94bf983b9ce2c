package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type Speaker string

const (
	SpeakerCustomer Speaker = "customer"
	SpeakerHandler  Speaker = "handler"
	SpeakerSystem   Speaker = "system"
)

type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentNegative   Sentiment = "negative"
	SentimentFrustrated Sentiment = "frustrated"
)

// Bad reports whether the sentiment should add routing pressure toward
// escalation-capable handlers.
func (s Sentiment) Bad() bool {
	return s == SentimentNegative || s == SentimentFrustrated
}

type CustomerTier string

const (
	TierBronze   CustomerTier = "bronze"
	TierSilver   CustomerTier = "silver"
	TierGold     CustomerTier = "gold"
	TierPlatinum CustomerTier = "platinum"
)

// Turn is one entry of the append-only conversation history. Once appended it
// is never edited or removed.
type Turn struct {
	Timestamp   time.Time `json:"ts"`
	Speaker     Speaker   `json:"speaker"`
	Text        string    `json:"text"`
	Intent      string    `json:"intent,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	HandlerType string    `json:"handler_type,omitempty"`
}

// CustomerSnapshot caches fields of an externally-owned customer profile.
// FetchedAt marks staleness; the profile itself is never owned here.
type CustomerSnapshot struct {
	CustomerID    string       `json:"customer_id"`
	Tier          CustomerTier `json:"tier"`
	AccountStatus string       `json:"account_status"`
	FetchedAt     time.Time    `json:"fetched_at"`
}

// Stale reports whether the snapshot is older than maxAge.
func (c *CustomerSnapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if c == nil || c.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(c.FetchedAt) > maxAge
}

type ToolOutcome string

const (
	ToolOutcomeSuccess  ToolOutcome = "success"
	ToolOutcomeFailed   ToolOutcome = "failed"
	ToolOutcomeTimedOut ToolOutcome = "timed_out"
	ToolOutcomeDenied   ToolOutcome = "denied"
)

// ToolInvocationRecord is the audit record of a single tool dispatch. It is
// owned by the resolution attempt that triggered it.
type ToolInvocationRecord struct {
	ToolName      string            `json:"tool_name"`
	RequestedBy   string            `json:"requested_by"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Outcome       ToolOutcome       `json:"outcome"`
	ResultSummary string            `json:"result_summary,omitempty"`
}

// ResolutionAttempt is one handler's effort to address the current turn.
type ResolutionAttempt struct {
	HandlerType  string                 `json:"handler_type"`
	Timestamp    time.Time              `json:"ts"`
	ToolsInvoked []ToolInvocationRecord `json:"tools_invoked,omitempty"`
	Outcome      string                 `json:"outcome"`
	Confidence   float64                `json:"confidence"`
	Success      bool                   `json:"success"`
}

// EscalationRecord captures one transition of responsibility. FromHandler and
// ToHandler are always distinct.
type EscalationRecord struct {
	FromHandler     string          `json:"from_handler"`
	ToHandler       string          `json:"to_handler"`
	Timestamp       time.Time       `json:"ts"`
	Reason          string          `json:"reason"`
	ContextSnapshot ContextSnapshot `json:"context_snapshot"`
}

// ContextSnapshot is the bounded, explicitly-enumerated subset of state
// handed across an escalation. Not an open-ended bag.
type ContextSnapshot struct {
	Intent          string    `json:"intent"`
	Sentiment       Sentiment `json:"sentiment"`
	EscalationLevel int       `json:"escalation_level"`
	FailedAttempts  int       `json:"failed_attempts"`
	LastCustomerMsg string    `json:"last_customer_msg"`
}

// State is the root aggregate for one conversation. It is mutated only by the
// engine and persisted through the store's optimistic-versioning contract.
type State struct {
	ConversationID string `json:"conversation_id"`
	SessionID      string `json:"session_id"`

	Customer *CustomerSnapshot `json:"customer,omitempty"`

	History []Turn `json:"history"`

	CurrentIntent    string    `json:"current_intent"`
	IntentConfidence float64   `json:"intent_confidence"`
	Sentiment        Sentiment `json:"sentiment"`
	SentimentScore   float64   `json:"sentiment_score"`

	CurrentHandlerType string             `json:"current_handler_type"`
	HandlerHistory     []string           `json:"handler_history"`
	EscalationLevel    int                `json:"escalation_level"`
	EscalationHistory  []EscalationRecord `json:"escalation_history"`

	ResolutionAttempts []ResolutionAttempt `json:"resolution_attempts"`

	Status Status `json:"status"`

	RequiresHuman bool `json:"requires_human"`
	SLABreachRisk bool `json:"sla_breach_risk"`

	// Version increases by one on every persisted mutation. The store checks
	// it at write time; the engine never touches it.
	Version int64 `json:"version"`

	StartedAt       time.Time `json:"started_at"`
	LastActivity    time.Time `json:"last_activity"`
	TimeoutDeadline time.Time `json:"timeout_deadline"`
}

// New creates a fresh conversation state in status "new".
func New(now time.Time, idleTimeout time.Duration) *State {
	return &State{
		ConversationID:  ulid.Make().String(),
		SessionID:       uuid.NewString(),
		Sentiment:       SentimentNeutral,
		Status:          StatusNew,
		StartedAt:       now,
		LastActivity:    now,
		TimeoutDeadline: now.Add(idleTimeout),
	}
}

// AppendTurn appends to the audit-grade history.
func (s *State) AppendTurn(t Turn) {
	s.History = append(s.History, t)
}

// AppendEscalation records a handoff and bumps the escalation level.
// EscalationLevel never decreases over the lifetime of a conversation.
func (s *State) AppendEscalation(rec EscalationRecord) {
	s.EscalationHistory = append(s.EscalationHistory, rec)
	s.EscalationLevel++
}

// FailedAttempts counts unsuccessful resolution attempts by the given handler.
func (s *State) FailedAttempts(handlerType string) int {
	n := 0
	for _, a := range s.ResolutionAttempts {
		if a.HandlerType == handlerType && !a.Success {
			n++
		}
	}
	return n
}

// LastAttempt returns the most recent resolution attempt, or nil.
func (s *State) LastAttempt() *ResolutionAttempt {
	if len(s.ResolutionAttempts) == 0 {
		return nil
	}
	return &s.ResolutionAttempts[len(s.ResolutionAttempts)-1]
}

// LastCustomerMessage returns the text of the newest customer turn.
func (s *State) LastCustomerMessage() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Speaker == SpeakerCustomer {
			return s.History[i].Text
		}
	}
	return ""
}

// Touch refreshes the idle-reclamation bookkeeping.
func (s *State) Touch(now time.Time, idleTimeout time.Duration) {
	s.LastActivity = now
	s.TimeoutDeadline = now.Add(idleTimeout)
}

// CustomerTierOrDefault degrades to the neutral bronze tier when the profile
// snapshot is missing, so a profile outage never blocks routing.
func (s *State) CustomerTierOrDefault() CustomerTier {
	if s.Customer == nil || s.Customer.Tier == "" {
		return TierBronze
	}
	return s.Customer.Tier
}
