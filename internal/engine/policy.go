package engine

import (
	"regexp"
	"time"

	"github.com/relaydesk/relaydesk/internal/config"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
)

// Policy is the compiled routing configuration: weight tables, penalty
// factors, tie-break ordering, and escalation-request patterns. It is
// read-only after construction and safe for concurrent turns.
type Policy struct {
	ConfidenceThreshold  float64
	EscalationAttemptCap int
	LevelPenaltyFactor   float64
	AttemptPenaltyFactor float64
	SentimentPenalty     float64
	SLAWindow            time.Duration

	tieBreak        []string
	penaltyWeights  map[string]float64
	intentWeights   map[string]map[string]float64
	tierMultipliers map[string]map[string]float64
	signals         []*regexp.Regexp
}

func NewPolicy(cfg config.RoutingConfig) (*Policy, error) {
	slaWindow, err := config.DurationOrDefault(cfg.SLAWindow, config.DefaultSLAWindow)
	if err != nil {
		return nil, err
	}

	signals := make([]*regexp.Regexp, 0, len(cfg.EscalationSignals))
	for _, expr := range cfg.EscalationSignals {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, rderrors.InvalidInput("bad escalation signal pattern " + expr)
		}
		signals = append(signals, re)
	}

	return &Policy{
		ConfidenceThreshold:  cfg.ConfidenceThreshold,
		EscalationAttemptCap: cfg.EscalationAttemptCap,
		LevelPenaltyFactor:   cfg.LevelPenaltyFactor,
		AttemptPenaltyFactor: cfg.AttemptPenaltyFactor,
		SentimentPenalty:     cfg.SentimentPenalty,
		SLAWindow:            slaWindow,
		tieBreak:             cfg.TieBreak,
		penaltyWeights:       cfg.PenaltyWeights,
		intentWeights:        cfg.IntentWeights,
		tierMultipliers:      cfg.TierMultipliers,
		signals:              signals,
	}, nil
}

// Handlers returns the candidate handler types in tie-break order, least to
// most specialized.
func (p *Policy) Handlers() []string {
	return p.tieBreak
}

// MatchesEscalationSignal reports whether the customer message is an explicit
// request to escalate.
func (p *Policy) MatchesEscalationSignal(message string) bool {
	for _, re := range p.signals {
		if re.MatchString(message) {
			return true
		}
	}
	return false
}
