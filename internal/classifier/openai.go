package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/conversation"
)

const classifyPrompt = `You classify customer support messages for a telecom provider.
Respond with a single JSON object and nothing else:
{"intent": one of [technical_support, billing, sales, complaint, account, general],
 "confidence": 0.0-1.0,
 "sentiment": one of [positive, neutral, negative, frustrated],
 "sentiment_score": 0.0-1.0 where 0 is most negative}`

// OpenAI classifies via a chat completion constrained to a JSON object.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.ClassifierConfig) *OpenAI {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	c := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = config.DefaultClassifierModel
	}

	return &OpenAI{client: openai.NewClientWithConfig(c), model: model}
}

func (o *OpenAI) Classify(ctx context.Context, message string) (Result, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifyPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return Result{}, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("no choices returned")
	}

	var parsed struct {
		Intent         string  `json:"intent"`
		Confidence     float64 `json:"confidence"`
		Sentiment      string  `json:"sentiment"`
		SentimentScore float64 `json:"sentiment_score"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return Result{}, fmt.Errorf("unparseable classification: %w", err)
	}

	if !knownIntent(parsed.Intent) {
		parsed.Intent = "general"
		parsed.Confidence = 0
	}

	return Result{
		Intent:         parsed.Intent,
		Confidence:     clamp01(parsed.Confidence),
		Sentiment:      parseSentiment(parsed.Sentiment),
		SentimentScore: clamp01(parsed.SentimentScore),
	}, nil
}

func knownIntent(intent string) bool {
	for _, i := range Intents {
		if i == intent {
			return true
		}
	}
	return false
}

func parseSentiment(s string) conversation.Sentiment {
	switch conversation.Sentiment(s) {
	case conversation.SentimentPositive, conversation.SentimentNegative, conversation.SentimentFrustrated:
		return conversation.Sentiment(s)
	default:
		return conversation.SentimentNeutral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
