package engine

import (
	"github.com/relaydesk/relaydesk/internal/conversation"
)

// ScoreInput is everything the scoring function reads. It is plain data so
// routing decisions can be unit-tested without any collaborator.
type ScoreInput struct {
	Intent          string
	CustomerTier    conversation.CustomerTier
	Sentiment       conversation.Sentiment
	EscalationLevel int
	// FailedAttempts maps handler type to its unsuccessful attempt count.
	FailedAttempts map[string]int
}

// Score computes the routing score of one handler:
// intentWeight * tierMultiplier - complexityPenalty. The penalty grows with
// escalation level and the handler's own failed attempts, plus a flat bump
// on bad sentiment. Penalty weights scale per handler, so escalation-capable
// handlers lose less as a conversation degrades.
func (p *Policy) Score(handler string, in ScoreInput) float64 {
	base := p.intentWeights[in.Intent][handler]

	multiplier := 1.0
	if m, ok := p.tierMultipliers[string(in.CustomerTier)][handler]; ok {
		multiplier = m
	}

	penalty := float64(in.EscalationLevel)*p.LevelPenaltyFactor +
		float64(in.FailedAttempts[handler])*p.AttemptPenaltyFactor
	if in.Sentiment.Bad() {
		penalty += p.SentimentPenalty
	}
	if w, ok := p.penaltyWeights[handler]; ok {
		penalty *= w
	}

	return base*multiplier - penalty
}

// SelectHandler picks the highest-scoring handler. Candidates are walked in
// tie-break order and an equal score prefers the later, more specialized
// entry, so selection is deterministic for identical inputs.
func (p *Policy) SelectHandler(in ScoreInput) (string, float64) {
	best := ""
	bestScore := 0.0
	for _, h := range p.tieBreak {
		if h == "clarification" {
			continue
		}
		score := p.Score(h, in)
		if best == "" || score >= bestScore {
			best = h
			bestScore = score
		}
	}
	return best, bestScore
}
