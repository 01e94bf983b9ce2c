// Package engine drives the per-turn orchestration loop: load state, fold in
// the classification, score and select a handler, decide escalation, dispatch
// the handler's tools, and persist the new state version. All collaborator
// failures are absorbed into state; only store conflicts and invariant
// violations surface to the caller.
package engine

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/relaydesk/relaydesk/internal/classifier"
	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/metrics"
	"github.com/relaydesk/relaydesk/internal/profile"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/tool"
)

// resolvedAck matches customer confirmations that the issue is fixed. Only an
// explicit confirmation resolves a conversation; a mere thank-you does not.
var resolvedAck = regexp.MustCompile(`(?i)\b(that (fixed|solved) it|works now|working now|all set|problem (is )?solved|issue (is )?resolved)\b`)

type Engine struct {
	store      store.Store
	dispatcher *tool.Dispatcher
	classify   classifier.Classifier
	profiles   profile.Provider
	policy     *Policy
	responders map[string]Responder

	idleTimeout      time.Duration
	profileStaleness time.Duration

	now func() time.Time
}

type Options struct {
	Store            store.Store
	Dispatcher       *tool.Dispatcher
	Classifier       classifier.Classifier
	Profiles         profile.Provider
	Policy           *Policy
	Responders       map[string]Responder
	IdleTimeout      time.Duration
	ProfileStaleness time.Duration
	Now              func() time.Time
}

func New(opts Options) *Engine {
	if opts.Responders == nil {
		opts.Responders = DefaultResponders()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:            opts.Store,
		dispatcher:       opts.Dispatcher,
		classify:         opts.Classifier,
		profiles:         opts.Profiles,
		policy:           opts.Policy,
		responders:       opts.Responders,
		idleTimeout:      opts.IdleTimeout,
		profileStaleness: opts.ProfileStaleness,
		now:              opts.Now,
	}
}

// TurnInput is one inbound customer message from the transport boundary.
type TurnInput struct {
	ConversationID string
	CustomerID     string
	Message        string
}

// TurnOutput is what the transport boundary renders back to the customer.
type TurnOutput struct {
	ResponseText string
	Status       conversation.Status
	HandlerType  string
	Escalated    bool
}

// StartConversation creates and persists a fresh conversation. The profile
// snapshot is fetched eagerly but its absence never blocks the start.
func (e *Engine) StartConversation(ctx context.Context, customerID string) (*conversation.State, error) {
	state := conversation.New(e.now(), e.idleTimeout)
	profile.Refresh(ctx, e.profiles, state, customerID, 0)

	if _, err := e.store.Save(ctx, state, 0); err != nil {
		return nil, err
	}
	return state, nil
}

// HandleTurn processes one inbound message. A version conflict on save causes
// exactly one reload and recompute; a second conflict surfaces as a transient
// error for the transport layer to retry wholesale.
func (e *Engine) HandleTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	start := time.Now()
	defer func() {
		metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}()

	ctx = logger.WithConversationID(ctx, in.ConversationID)

	cls, err := e.classify.Classify(ctx, in.Message)
	if err != nil {
		// Degraded classification routes to clarification via the
		// confidence threshold. The turn proceeds.
		slog.Warn("Classification degraded",
			"conversation_id", in.ConversationID,
			"category", rderrors.Category(err),
			"error", err)
	}

	for attempt := 0; ; attempt++ {
		state, err := e.store.Load(ctx, in.ConversationID)
		if err != nil {
			return TurnOutput{}, err
		}

		out, err := e.processTurn(ctx, state, in, cls)
		if err != nil {
			return TurnOutput{}, err
		}

		if _, err := e.store.Save(ctx, state, state.Version); err != nil {
			if rderrors.IsCategory(err, rderrors.ErrVersionConflict) {
				metrics.SaveConflicts.Inc()
				if attempt == 0 {
					slog.Info("Version conflict, recomputing turn", "conversation_id", in.ConversationID)
					continue
				}
				return TurnOutput{}, rderrors.Transient("conversation " + in.ConversationID + " contended")
			}
			return TurnOutput{}, err
		}

		metrics.TurnsProcessed.WithLabelValues(out.HandlerType).Inc()
		return out, nil
	}
}

func (e *Engine) processTurn(ctx context.Context, state *conversation.State, in TurnInput, cls classifier.Result) (TurnOutput, error) {
	now := e.now()

	if state.Status == conversation.StatusClosed || state.Status == conversation.StatusResolved {
		return TurnOutput{}, rderrors.InvalidTransition("turn on " + string(state.Status) + " conversation " + state.ConversationID)
	}
	// The customer spoke; a parked conversation is active again.
	if state.Status == conversation.StatusPendingCustomer {
		if err := state.Transition(conversation.StatusInProgress); err != nil {
			return TurnOutput{}, err
		}
	}

	state.AppendTurn(conversation.Turn{
		Timestamp:  now,
		Speaker:    conversation.SpeakerCustomer,
		Text:       in.Message,
		Intent:     cls.Intent,
		Confidence: cls.Confidence,
	})
	state.CurrentIntent = cls.Intent
	state.IntentConfidence = cls.Confidence
	state.Sentiment = cls.Sentiment
	state.SentimentScore = cls.SentimentScore

	profile.Refresh(ctx, e.profiles, state, in.CustomerID, e.profileStaleness)

	prevHandler := state.CurrentHandlerType
	prevRisk := state.SLABreachRisk
	state.SLABreachRisk = e.slaRisk(state, now)

	var (
		handler   string
		escalated bool
		reason    string
	)

	if cls.Confidence < e.policy.ConfidenceThreshold {
		// Below the threshold the engine asks instead of guessing. The
		// escalation level stays where it is.
		handler = "clarification"
	} else {
		failed := map[string]int{}
		for _, h := range e.policy.Handlers() {
			failed[h] = state.FailedAttempts(h)
		}
		selected, _ := e.policy.SelectHandler(ScoreInput{
			Intent:          cls.Intent,
			CustomerTier:    state.CustomerTierOrDefault(),
			Sentiment:       cls.Sentiment,
			EscalationLevel: state.EscalationLevel,
			FailedAttempts:  failed,
		})
		handler = selected
		reason = e.escalationReason(state, in.Message, selected, prevHandler, prevRisk)
		escalated = reason != ""
	}

	if escalated {
		target := handler
		if target == prevHandler {
			target = "supervisor"
		}
		handler = target

		state.AppendEscalation(conversation.EscalationRecord{
			FromHandler: prevHandler,
			ToHandler:   target,
			Timestamp:   now,
			Reason:      reason,
			ContextSnapshot: conversation.ContextSnapshot{
				Intent:          cls.Intent,
				Sentiment:       cls.Sentiment,
				EscalationLevel: state.EscalationLevel,
				FailedAttempts:  state.FailedAttempts(prevHandler),
				LastCustomerMsg: in.Message,
			},
		})
		metrics.Escalations.WithLabelValues(reason).Inc()

		if state.Status == conversation.StatusNew {
			if err := state.Transition(conversation.StatusInProgress); err != nil {
				return TurnOutput{}, err
			}
		}
		if err := state.Transition(conversation.StatusEscalated); err != nil {
			return TurnOutput{}, err
		}
	}

	if handler != prevHandler {
		state.HandlerHistory = append(state.HandlerHistory, handler)
	}
	state.CurrentHandlerType = handler
	state.RequiresHuman = handler == "supervisor"

	responder, ok := e.responders[handler]
	if !ok {
		responder = e.responders["clarification"]
	}
	resp := responder.Respond(state, in.Message)

	attempt := conversation.ResolutionAttempt{
		HandlerType: handler,
		Timestamp:   now,
		Confidence:  cls.Confidence,
	}
	toolsOK := true
	for _, req := range resp.Tools {
		result := e.dispatcher.Execute(ctx, req.Name, req.Params, handler)
		attempt.ToolsInvoked = append(attempt.ToolsInvoked, result.Record)
		if result.Record.Outcome != conversation.ToolOutcomeSuccess {
			toolsOK = false
		}
	}

	// A conversation resolves only on the customer's explicit confirmation,
	// with every dispatched tool completed successfully.
	resolved := false
	switch {
	case escalated:
		attempt.Outcome = "escalated"
	case handler == "clarification":
		attempt.Outcome = "clarification_requested"
	case !toolsOK:
		attempt.Outcome = "tool_failure"
	case resolvedAck.MatchString(in.Message) && noToolInFlight(attempt):
		attempt.Outcome = "resolved"
		attempt.Success = true
		resolved = true
	default:
		attempt.Outcome = "in_progress"
	}
	state.ResolutionAttempts = append(state.ResolutionAttempts, attempt)

	if handler != "clarification" && !escalated {
		// From new on first routing, and back from escalated once the
		// reassigned handler is working the conversation again.
		if state.Status == conversation.StatusNew || state.Status == conversation.StatusEscalated {
			if err := state.Transition(conversation.StatusInProgress); err != nil {
				return TurnOutput{}, err
			}
		}
		if resolved {
			if err := state.Transition(conversation.StatusResolved); err != nil {
				return TurnOutput{}, err
			}
		}
	}
	if handler == "clarification" && state.Status == conversation.StatusInProgress {
		// The turn ended with a question back to the customer; park the
		// conversation until they answer. A new conversation stays new.
		if err := state.Transition(conversation.StatusPendingCustomer); err != nil {
			return TurnOutput{}, err
		}
	}

	state.AppendTurn(conversation.Turn{
		Timestamp:   now,
		Speaker:     conversation.SpeakerHandler,
		Text:        resp.Text,
		HandlerType: handler,
	})
	state.Touch(now, e.idleTimeout)

	return TurnOutput{
		ResponseText: resp.Text,
		Status:       state.Status,
		HandlerType:  handler,
		Escalated:    escalated,
	}, nil
}

// escalationReason returns the triggered escalation reason, or empty when the
// turn stays with normal routing. Escalation needs a handler to escalate
// from; on a first contact even a supervisor selection is plain routing.
func (e *Engine) escalationReason(state *conversation.State, message, selected, prevHandler string, prevRisk bool) string {
	if prevHandler == "" || prevHandler == "clarification" {
		return ""
	}
	// Nothing sits above the supervisor.
	if prevHandler == "supervisor" {
		return ""
	}
	switch {
	case selected == "supervisor" && prevHandler != "supervisor":
		return "supervisor_target"
	case state.FailedAttempts(prevHandler) >= e.policy.EscalationAttemptCap:
		return "attempt_cap_exceeded"
	case e.policy.MatchesEscalationSignal(message):
		return "customer_requested"
	case state.SLABreachRisk && !prevRisk:
		return "sla_breach_risk"
	default:
		return ""
	}
}

// slaRisk derives the breach flag: the conversation has outlived the SLA
// window, or it is deep into escalation with a customer already soured.
func (e *Engine) slaRisk(state *conversation.State, now time.Time) bool {
	if now.Sub(state.StartedAt) > e.policy.SLAWindow {
		return true
	}
	return state.EscalationLevel >= 2 && state.Sentiment.Bad()
}

func noToolInFlight(attempt conversation.ResolutionAttempt) bool {
	for _, rec := range attempt.ToolsInvoked {
		if rec.CompletedAt == nil {
			return false
		}
	}
	return true
}
