package classifier

import (
	"context"
	"regexp"
	"strings"

	"github.com/relaydesk/relaydesk/internal/conversation"
)

// intentRule pairs keyword hits with compiled phrase patterns. Pattern hits
// carry a boost because phrases are stronger evidence than lone keywords.
type intentRule struct {
	intent   string
	keywords []string
	patterns []*regexp.Regexp
	boost    float64
}

// Pattern is the offline classifier: keyword and phrase matching with no
// external dependency. It is deterministic, cheap, and always available,
// which makes it both the default provider and the test double of choice.
type Pattern struct {
	rules     []intentRule
	sentiment map[conversation.Sentiment][]string
}

func NewPattern() *Pattern {
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(exprs))
		for _, e := range exprs {
			out = append(out, regexp.MustCompile(e))
		}
		return out
	}

	return &Pattern{
		rules: []intentRule{
			{
				intent: "account",
				keywords: []string{
					"login", "log in", "sign in", "password", "username",
					"account", "locked", "forgot password", "reset password",
				},
				patterns: compile(
					`can['t\s]*log\s*in`,
					`forgot\s+my\s+password`,
					`account\s+locked`,
					`reset\s+password`,
					`can['t\s]*access\s+my\s+account`,
				),
				boost: 0.2,
			},
			{
				intent: "technical_support",
				keywords: []string{
					"not working", "broken", "error", "issue", "problem", "bug",
					"slow", "loading", "connection", "network", "down", "outage",
					"technical", "fix", "repair",
				},
				patterns: compile(
					`not\s+working`,
					`getting\s+an?\s+error`,
					`technical\s+(issue|problem)`,
					`something\s+is\s+(wrong|broken)`,
					`internet\s+is\s+(down|out)`,
				),
				boost: 0.1,
			},
			{
				intent: "billing",
				keywords: []string{
					"bill", "billing", "charge", "payment", "invoice", "cost",
					"price", "fee", "refund", "paid", "owe", "balance", "statement",
				},
				patterns: compile(
					`billing\s+(question|issue|problem)`,
					`charged\s+(me|wrong|twice)`,
					`refund`,
					`payment\s+(issue|problem)`,
				),
				boost: 0.15,
			},
			{
				intent: "sales",
				keywords: []string{
					"buy", "purchase", "upgrade", "plan", "pricing", "features",
					"subscription", "package", "offer", "deal", "discount", "trial",
				},
				patterns: compile(
					`want\s+to\s+buy`,
					`upgrade\s+my\s+plan`,
					`pricing\s+information`,
					`interested\s+in`,
				),
				boost: 0.1,
			},
			{
				intent: "complaint",
				keywords: []string{
					"complaint", "complain", "unhappy", "dissatisfied", "angry",
					"terrible", "awful", "worst", "horrible", "disappointed",
					"unacceptable",
				},
				patterns: compile(
					`want\s+to\s+complain`,
					`very\s+(unhappy|disappointed)`,
					`terrible\s+service`,
					`worst.*experience`,
					`completely\s+unacceptable`,
				),
				boost: 0.3,
			},
			{
				intent: "general",
				keywords: []string{
					"question", "help", "information", "how to", "how do",
					"what is", "where", "when", "explain",
				},
				patterns: compile(
					`have\s+a\s+question`,
					`need\s+help`,
					`how\s+(do|to)`,
					`can\s+you\s+explain`,
				),
				boost: 0.05,
			},
		},
		sentiment: map[conversation.Sentiment][]string{
			conversation.SentimentPositive: {
				"great", "excellent", "amazing", "wonderful", "fantastic",
				"love", "perfect", "awesome", "satisfied", "happy", "thank you", "thanks",
			},
			conversation.SentimentNegative: {
				"terrible", "awful", "horrible", "worst", "hate", "angry",
				"disappointed", "unacceptable", "poor", "bad", "broken", "useless",
			},
			conversation.SentimentFrustrated: {
				"frustrated", "annoyed", "irritated", "fed up", "sick of",
				"ridiculous", "absurd", "waste of time", "pathetic",
			},
		},
	}
}

func (p *Pattern) Classify(_ context.Context, message string) (Result, error) {
	text := strings.ToLower(strings.TrimSpace(message))

	bestIntent := "general"
	bestScore := 0.0
	for _, rule := range p.rules {
		score := 0.0
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				score += 0.15
			}
		}
		for _, re := range rule.patterns {
			if re.MatchString(text) {
				score += 0.25 + rule.boost
			}
		}
		if score > bestScore {
			bestScore = score
			bestIntent = rule.intent
		}
	}

	confidence := bestScore
	if confidence > 1.0 {
		confidence = 1.0
	}

	sentiment, sentimentScore := p.scoreSentiment(text)

	return Result{
		Intent:         bestIntent,
		Confidence:     confidence,
		Sentiment:      sentiment,
		SentimentScore: sentimentScore,
	}, nil
}

// scoreSentiment counts keyword hits per class. Frustrated outranks negative
// on ties because it is the stronger escalation signal.
func (p *Pattern) scoreSentiment(text string) (conversation.Sentiment, float64) {
	counts := map[conversation.Sentiment]int{}
	for class, words := range p.sentiment {
		for _, w := range words {
			if strings.Contains(text, w) {
				counts[class]++
			}
		}
	}

	switch {
	case counts[conversation.SentimentFrustrated] > 0:
		return conversation.SentimentFrustrated, 0.1
	case counts[conversation.SentimentNegative] > counts[conversation.SentimentPositive]:
		return conversation.SentimentNegative, 0.25
	case counts[conversation.SentimentPositive] > 0:
		return conversation.SentimentPositive, 0.85
	default:
		return conversation.SentimentNeutral, 0.5
	}
}
