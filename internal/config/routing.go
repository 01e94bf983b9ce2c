package config

import (
	"fmt"
)

// validateHandlers cross-checks the weight tables against the tie-break
// ordering so unknown handler names fail at load time, not mid-turn.
func (r *RoutingConfig) validateHandlers() error {
	known := make(map[string]struct{}, len(r.TieBreak))
	for _, h := range r.TieBreak {
		if _, dup := known[h]; dup {
			return fmt.Errorf("routing.tie_break lists handler %q twice", h)
		}
		known[h] = struct{}{}
	}

	for handler := range r.PenaltyWeights {
		if _, ok := known[handler]; !ok {
			return fmt.Errorf("routing.penalty_weights references unknown handler %q", handler)
		}
	}
	for intent, weights := range r.IntentWeights {
		for handler := range weights {
			if _, ok := known[handler]; !ok {
				return fmt.Errorf("routing.intent_weights[%s] references unknown handler %q", intent, handler)
			}
		}
	}
	for tier, multipliers := range r.TierMultipliers {
		for handler := range multipliers {
			if _, ok := known[handler]; !ok {
				return fmt.Errorf("routing.tier_multipliers[%s] references unknown handler %q", tier, handler)
			}
		}
	}
	return nil
}

// TiePriority returns the tie-break rank of a handler. Higher rank wins a
// score tie. Unknown handlers rank below everything.
func (r *RoutingConfig) TiePriority(handler string) int {
	for i, h := range r.TieBreak {
		if h == handler {
			return i
		}
	}
	return -1
}
