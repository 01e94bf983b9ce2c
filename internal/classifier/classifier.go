// Package classifier turns a raw customer message into an intent label and a
// sentiment reading. The engine treats classification as advisory: when it
// fails or times out, routing degrades to confidence zero instead of blocking
// the turn.
package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
	"github.com/relaydesk/relaydesk/internal/metrics"
)

// Result is one classification of one customer message.
type Result struct {
	Intent         string
	Confidence     float64
	Sentiment      conversation.Sentiment
	SentimentScore float64
}

// Intents is the closed label set routing knows how to score.
var Intents = []string{"technical_support", "billing", "sales", "complaint", "account", "general"}

type Classifier interface {
	Classify(ctx context.Context, message string) (Result, error)
}

// New builds the configured classifier wrapped in its timeout guard. The
// pattern classifier needs no credentials and is the default.
func New(cfg config.ClassifierConfig) (Classifier, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultClassifierTimeout)
	if err != nil {
		return nil, err
	}

	var inner Classifier
	switch cfg.Provider {
	case "openai":
		inner = NewOpenAI(cfg)
	case "pattern", "":
		inner = NewPattern()
	default:
		return nil, rderrors.InvalidInput("unknown classifier provider: " + cfg.Provider)
	}

	return &timed{inner: inner, timeout: timeout}, nil
}

// timed bounds every classification by a deadline. An answer that arrives
// after the budget is worth less than routing on time without it.
type timed struct {
	inner   Classifier
	timeout time.Duration
}

func (t *timed) Classify(ctx context.Context, message string) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.inner.Classify(cctx, message)
	if err != nil {
		metrics.ClassifierFailures.Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return neutral(), rderrors.Wrap(rderrors.ErrClassifierUnavailable, "classification timed out")
		}
		return neutral(), rderrors.Wrap(rderrors.ErrClassifierUnavailable, err.Error())
	}
	return res, nil
}

// neutral is the degraded result: unknown intent at zero confidence, so the
// engine routes to clarification instead of guessing.
func neutral() Result {
	return Result{
		Intent:    "general",
		Sentiment: conversation.SentimentNeutral,
	}
}
