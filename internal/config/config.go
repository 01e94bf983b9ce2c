package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Tools      ToolsConfig      `koanf:"tools"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Profile    ProfileConfig    `koanf:"profile"`
	Routing    RoutingConfig    `koanf:"routing"`
	Sweeper    SweeperConfig    `koanf:"sweeper"`
}

type ServerConfig struct {
	MetricsPort     int    `koanf:"metrics_port" validate:"min=1,max=65535"`
	LogLevel        string `koanf:"log_level"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type StoreConfig struct {
	SQLitePath     string `koanf:"sqlite_path" validate:"required"`
	BadgerPath     string `koanf:"badger_path"`
	BadgerInMemory bool   `koanf:"badger_in_memory"`
	IdleTimeout    string `koanf:"idle_timeout"`
	Retention      string `koanf:"retention"`
}

type ToolsConfig struct {
	Ticketing   EndpointConfig `koanf:"ticketing"`
	Billing     EndpointConfig `koanf:"billing"`
	Knowledge   EndpointConfig `koanf:"knowledge"`
	Diagnostics EndpointConfig `koanf:"diagnostics"`
	Notify      EndpointConfig `koanf:"notify"`
	RetryBase   string         `koanf:"retry_base"`
	RetryCap    string         `koanf:"retry_cap"`
}

type EndpointConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

type ClassifierConfig struct {
	Provider string `koanf:"provider" validate:"oneof=openai pattern"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	Timeout  string `koanf:"timeout"`
}

type ProfileConfig struct {
	BaseURL   string `koanf:"base_url"`
	Timeout   string `koanf:"timeout"`
	Staleness string `koanf:"staleness"`
}

// RoutingConfig declares the scoring policy. Weights are data, not code:
// intent_weights[intent][handler] and tier_multipliers[customerTier][handler]
// feed the pure scoring function, penalty factors shape escalation pressure.
type RoutingConfig struct {
	ConfidenceThreshold  float64                       `koanf:"confidence_threshold" validate:"gte=0,lte=1"`
	EscalationAttemptCap int                           `koanf:"escalation_attempt_cap" validate:"gte=1"`
	LevelPenaltyFactor   float64                       `koanf:"level_penalty_factor"`
	AttemptPenaltyFactor float64                       `koanf:"attempt_penalty_factor"`
	SentimentPenalty     float64                       `koanf:"sentiment_penalty"`
	SLAWindow            string                        `koanf:"sla_window"`
	TieBreak             []string                      `koanf:"tie_break" validate:"min=1"`
	PenaltyWeights       map[string]float64            `koanf:"penalty_weights"`
	IntentWeights        map[string]map[string]float64 `koanf:"intent_weights"`
	TierMultipliers      map[string]map[string]float64 `koanf:"tier_multipliers"`
	EscalationSignals    []string                      `koanf:"escalation_signals"`
}

type SweeperConfig struct {
	Schedule string `koanf:"schedule"`
}

const (
	DefaultMetricsPort           = 9090
	DefaultLogLevel              = "info"
	DefaultShutdownTimeout       = "10s"
	DefaultSQLitePath            = "relaydesk.db"
	DefaultBadgerPath            = "relaydesk-cache"
	DefaultStoreIdleTimeout      = "30m"
	DefaultStoreRetention        = "720h"
	DefaultToolTimeout           = "10s"
	DefaultPaymentToolTimeout    = "20s"
	DefaultDiagnosticToolTimeout = "30s"
	DefaultToolRetryBase         = "500ms"
	DefaultToolRetryCap          = "30s"
	DefaultClassifierProvider    = "pattern"
	DefaultClassifierModel       = "gpt-4o-mini"
	DefaultClassifierTimeout     = "2s"
	DefaultProfileTimeout        = "3s"
	DefaultProfileStaleness      = "15m"
	DefaultConfidenceThreshold   = 0.85
	DefaultEscalationAttemptCap  = 3
	DefaultLevelPenaltyFactor    = 0.15
	DefaultAttemptPenaltyFactor  = 0.1
	DefaultSentimentPenalty      = 0.2
	DefaultSLAWindow             = "30m"
	DefaultSweeperSchedule       = "@every 5m"
)

// Handler names, least to most specialized. Ordering doubles as the routing
// tie-break: when two handlers score equal, the later entry wins.
func defaultTieBreak() []string {
	return []string{"clarification", "tier1", "sales", "billing", "tier2", "tier3", "supervisor"}
}

func defaultPenaltyWeights() map[string]float64 {
	return map[string]float64{
		"clarification": 0.8,
		"tier1":         1.0,
		"sales":         0.9,
		"billing":       0.9,
		"tier2":         0.6,
		"tier3":         0.3,
		"supervisor":    0.0,
	}
}

func defaultIntentWeights() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"technical_support": {"tier1": 0.8, "tier2": 0.6, "tier3": 0.4},
		"billing":           {"billing": 0.9, "tier1": 0.5},
		"sales":             {"sales": 0.9, "tier1": 0.4},
		"complaint":         {"supervisor": 0.9, "tier2": 0.5},
		"account":           {"tier1": 0.7, "billing": 0.3},
		"general":           {"tier1": 0.6},
	}
}

func defaultTierMultipliers() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"platinum": {"tier3": 1.8, "tier2": 1.6, "supervisor": 1.4},
		"gold":     {"tier2": 1.7, "tier1": 1.5},
		"silver":   {"tier1": 1.2},
	}
}

func defaultEscalationSignals() []string {
	return []string{
		`\b(speak|talk)\s+to\s+(a\s+)?(manager|supervisor|human|person)\b`,
		`\bescalate\b`,
		`\b(file|make)\s+a\s+complaint\b`,
	}
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.metrics_port":            DefaultMetricsPort,
		"server.log_level":               DefaultLogLevel,
		"server.shutdown_timeout":        DefaultShutdownTimeout,
		"store.sqlite_path":              DefaultSQLitePath,
		"store.badger_path":              DefaultBadgerPath,
		"store.badger_in_memory":         false,
		"store.idle_timeout":             DefaultStoreIdleTimeout,
		"store.retention":                DefaultStoreRetention,
		"tools.ticketing.base_url":       "http://localhost:8081",
		"tools.ticketing.timeout":        DefaultToolTimeout,
		"tools.billing.base_url":         "http://localhost:8082",
		"tools.billing.timeout":          DefaultPaymentToolTimeout,
		"tools.knowledge.base_url":       "http://localhost:8083",
		"tools.knowledge.timeout":        DefaultToolTimeout,
		"tools.diagnostics.base_url":     "http://localhost:8084",
		"tools.diagnostics.timeout":      DefaultDiagnosticToolTimeout,
		"tools.notify.base_url":          "http://localhost:8085",
		"tools.notify.timeout":           DefaultToolTimeout,
		"tools.retry_base":               DefaultToolRetryBase,
		"tools.retry_cap":                DefaultToolRetryCap,
		"classifier.provider":            DefaultClassifierProvider,
		"classifier.model":               DefaultClassifierModel,
		"classifier.timeout":             DefaultClassifierTimeout,
		"profile.base_url":               "http://localhost:8086",
		"profile.timeout":                DefaultProfileTimeout,
		"profile.staleness":              DefaultProfileStaleness,
		"routing.confidence_threshold":   DefaultConfidenceThreshold,
		"routing.escalation_attempt_cap": DefaultEscalationAttemptCap,
		"routing.level_penalty_factor":   DefaultLevelPenaltyFactor,
		"routing.attempt_penalty_factor": DefaultAttemptPenaltyFactor,
		"routing.sentiment_penalty":      DefaultSentimentPenalty,
		"routing.sla_window":             DefaultSLAWindow,
		"routing.tie_break":              defaultTieBreak(),
		"routing.penalty_weights":        defaultPenaltyWeights(),
		"routing.intent_weights":         defaultIntentWeights(),
		"routing.tier_multipliers":       defaultTierMultipliers(),
		"routing.escalation_signals":     defaultEscalationSignals(),
		"sweeper.schedule":               DefaultSweeperSchedule,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".relaydesk", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("RELAYDESK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "RELAYDESK_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Classifier.APIKey == "" {
		cfg.Classifier.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects malformed configuration at startup, before anything is
// wired: handlers referenced by the weight tables must appear in the
// tie-break ordering, and every tagged bound must hold.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	return c.Routing.validateHandlers()
}
