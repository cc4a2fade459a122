// Package config loads the turn pipeline's runtime configuration, adapted
// from the teacher's pkg/config (typed sub-configs with SetDefaults /
// Validate, YAML authoring overlaid with environment variables).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// LATSConfig holds the LATS choreography search knobs from section 6.
type LATSConfig struct {
	Rollouts                     int     `yaml:"rollouts" mapstructure:"rollouts"`
	ExpandK                      int     `yaml:"expand_k" mapstructure:"expand_k"`
	DisableEarlyExit             bool    `yaml:"disable_early_exit" mapstructure:"disable_early_exit"`
	MinRolloutsBeforeEarlyExit   int     `yaml:"min_rollouts_before_early_exit" mapstructure:"min_rollouts_before_early_exit"`
	LLMSoftTopN                  int     `yaml:"llm_soft_top_n" mapstructure:"llm_soft_top_n"`
	LLMSoftMaxConcurrency        int     `yaml:"llm_soft_max_concurrency" mapstructure:"llm_soft_max_concurrency"`
	EarlyExitRootScore           float64 `yaml:"early_exit_root_score" mapstructure:"early_exit_root_score"`
	EarlyExitPlanAlignmentMin    float64 `yaml:"early_exit_plan_alignment_min" mapstructure:"early_exit_plan_alignment_min"`
	EarlyExitAssistantinessMax   float64 `yaml:"early_exit_assistantiness_max" mapstructure:"early_exit_assistantiness_max"`
	EarlyExitModeFitMin          float64 `yaml:"early_exit_mode_fit_min" mapstructure:"early_exit_mode_fit_min"`
	PatchTTLTurns                int     `yaml:"patch_ttl_turns" mapstructure:"patch_ttl_turns"`
	SkipLowRisk                  bool    `yaml:"skip_low_risk" mapstructure:"skip_low_risk"`
}

// rolloutsByStage gives the stage-aware default rollout budget (section
// 4.13/227: "rollouts (default 2-6 by stage)"). Early relational stages get
// the largest search budget since plan quality matters most while trust is
// still being built; later stages narrow it.
var rolloutsByStage = map[model.KnappStage]int{
	model.StageInitiating:      6,
	model.StageExperimenting:   6,
	model.StageIntensifying:    4,
	model.StageIntegrating:     4,
	model.StageBonding:         3,
	model.StageDifferentiating: 3,
	model.StageCircumscribing:  2,
	model.StageStagnating:      2,
	model.StageAvoiding:        2,
	model.StageTerminating:     2,
}

// RolloutsForStage resolves the stage-aware default when LATSConfig.Rollouts
// was left at its zero value (not explicitly configured).
func RolloutsForStage(stage model.KnappStage) int {
	if n, ok := rolloutsByStage[stage]; ok {
		return n
	}
	return 2
}

// minRolloutsBeforeEarlyExitByStage backs section 6's
// "default 1 for initiating/experimenting"; other stages default to 2 since
// they have a firmer existing relationship prior and can trust an earlier
// root score.
var minRolloutsBeforeEarlyExitByStage = map[model.KnappStage]int{
	model.StageInitiating:    1,
	model.StageExperimenting: 1,
}

func minRolloutsBeforeEarlyExitForStage(stage model.KnappStage) int {
	if n, ok := minRolloutsBeforeEarlyExitByStage[stage]; ok {
		return n
	}
	return 2
}

// SetDefaults fills zero-valued fields with spec-mandated defaults. Stage
// is needed because Rollouts and MinRolloutsBeforeEarlyExit are stage-aware.
func (c *LATSConfig) SetDefaults(stage model.KnappStage) {
	if c.Rollouts == 0 {
		c.Rollouts = RolloutsForStage(stage)
	}
	if c.ExpandK == 0 {
		c.ExpandK = 2
	}
	if c.MinRolloutsBeforeEarlyExit == 0 {
		c.MinRolloutsBeforeEarlyExit = minRolloutsBeforeEarlyExitForStage(stage)
	}
	if c.LLMSoftTopN == 0 {
		c.LLMSoftTopN = 1
	}
	if c.LLMSoftMaxConcurrency == 0 {
		c.LLMSoftMaxConcurrency = 2
	}
	if c.EarlyExitRootScore == 0 {
		c.EarlyExitRootScore = 0.85
	}
	if c.EarlyExitPlanAlignmentMin == 0 {
		c.EarlyExitPlanAlignmentMin = stricterForEarlyStage(stage, 0.7, 0.6)
	}
	if c.EarlyExitAssistantinessMax == 0 {
		c.EarlyExitAssistantinessMax = stricterForEarlyStage(stage, 0.2, 0.35)
	}
	if c.EarlyExitModeFitMin == 0 {
		c.EarlyExitModeFitMin = stricterForEarlyStage(stage, 0.7, 0.55)
	}
	if c.PatchTTLTurns == 0 {
		c.PatchTTLTurns = 3
	}
}

// stricterForEarlyStage implements "initiating/experimenting have stricter
// thresholds" (section 185): early gives the tighter bound, late the looser.
func stricterForEarlyStage(stage model.KnappStage, early, late float64) float64 {
	if stage == model.StageInitiating || stage == model.StageExperimenting {
		return early
	}
	return late
}

// Validate checks invariants that SetDefaults cannot repair on its own.
func (c *LATSConfig) Validate() error {
	if c.Rollouts < 0 {
		return fmt.Errorf("config: lats.rollouts must be >= 0")
	}
	if c.ExpandK < 0 {
		return fmt.Errorf("config: lats.expand_k must be >= 0")
	}
	if c.PatchTTLTurns < 0 {
		return fmt.Errorf("config: lats.patch_ttl_turns must be >= 0")
	}
	return nil
}

// Config is the full runtime configuration surface (section 6).
type Config struct {
	LATS        LATSConfig `yaml:"lats" mapstructure:"lats"`
	TurnTimeout float64    `yaml:"turn_timeout" mapstructure:"turn_timeout"`
	AdminToken  string     `yaml:"admin_token" mapstructure:"admin_token"`

	// StorageDSN / StorageDriver select the pkg/store backend ("postgres",
	// "sqlite", or "fs" for the filesystem JSON fallback).
	StorageDriver string `yaml:"storage_driver" mapstructure:"storage_driver"`
	StorageDSN    string `yaml:"storage_dsn" mapstructure:"storage_dsn"`

	GeminiAPIKey    string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	MainModel       string `yaml:"main_model" mapstructure:"main_model"`
	FastModel       string `yaml:"fast_model" mapstructure:"fast_model"`
	JudgeModel      string `yaml:"judge_model" mapstructure:"judge_model"`

	RedisAddr  string `yaml:"redis_addr" mapstructure:"redis_addr"`
	KafkaAddr  string `yaml:"kafka_addr" mapstructure:"kafka_addr"`
	KafkaTopic string `yaml:"kafka_topic" mapstructure:"kafka_topic"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	MetricsEnabled   bool    `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
	MetricsNamespace string  `yaml:"metrics_namespace" mapstructure:"metrics_namespace"`
	TracingEnabled   bool    `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	TracingEndpoint  string  `yaml:"tracing_endpoint" mapstructure:"tracing_endpoint"`
	TracingSampling  float64 `yaml:"tracing_sampling" mapstructure:"tracing_sampling"`
}

// SetDefaults fills zero-valued top-level fields. LATS sub-config defaults
// are stage-aware and applied later, per turn, via c.LATS.SetDefaults.
func (c *Config) SetDefaults() {
	if c.TurnTimeout == 0 {
		c.TurnTimeout = 180.0
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "fs"
	}
	if c.MainModel == "" {
		c.MainModel = "gemini-2.0-flash"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = "personacore"
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = "persona.dimension_audit"
	}
	if c.TracingSampling == 0 {
		c.TracingSampling = 1.0
	}
}

// Validate checks cross-field invariants not expressible via defaults.
func (c *Config) Validate() error {
	if c.TurnTimeout <= 0 {
		return fmt.Errorf("config: turn_timeout must be > 0")
	}
	switch c.StorageDriver {
	case "fs", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown storage_driver %q", c.StorageDriver)
	}
	return c.LATS.Validate()
}

// Load reads YAML from path (if it exists), overlays a .env file (if
// present) into the process environment, then overlays PERSONA_*
// environment variables onto the decoded struct, mirroring the teacher's
// config.Load / env.go overlay order: file, then dotenv, then live env.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else {
			var doc map[string]any
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", path, err)
			}
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           cfg,
				WeaklyTypedInput: true,
			})
			if err != nil {
				return nil, fmt.Errorf("config: building decoder: %w", err)
			}
			if err := dec.Decode(doc); err != nil {
				return nil, fmt.Errorf("config: decoding %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load() // optional .env; absence is not an error

	applyEnvOverlay(cfg)

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverlay overlays PERSONA_*/LATS_* environment variables onto cfg,
// taking precedence over YAML per the teacher's env.go overlay design.
func applyEnvOverlay(cfg *Config) {
	if v, ok := os.LookupEnv("LATS_ROLLOUTS"); ok {
		cfg.LATS.Rollouts = atoiOr(v, cfg.LATS.Rollouts)
	}
	if v, ok := os.LookupEnv("LATS_EXPAND_K"); ok {
		cfg.LATS.ExpandK = atoiOr(v, cfg.LATS.ExpandK)
	}
	if v, ok := os.LookupEnv("LATS_DISABLE_EARLY_EXIT"); ok {
		cfg.LATS.DisableEarlyExit = boolOr(v, cfg.LATS.DisableEarlyExit)
	}
	if v, ok := os.LookupEnv("LATS_MIN_ROLLOUTS_BEFORE_EARLY_EXIT"); ok {
		cfg.LATS.MinRolloutsBeforeEarlyExit = atoiOr(v, cfg.LATS.MinRolloutsBeforeEarlyExit)
	}
	if v, ok := os.LookupEnv("LATS_LLM_SOFT_TOP_N"); ok {
		cfg.LATS.LLMSoftTopN = atoiOr(v, cfg.LATS.LLMSoftTopN)
	}
	if v, ok := os.LookupEnv("LATS_LLM_SOFT_MAX_CONCURRENCY"); ok {
		cfg.LATS.LLMSoftMaxConcurrency = atoiOr(v, cfg.LATS.LLMSoftMaxConcurrency)
	}
	if v, ok := os.LookupEnv("LATS_EARLY_EXIT_ROOT_SCORE"); ok {
		cfg.LATS.EarlyExitRootScore = floatOr(v, cfg.LATS.EarlyExitRootScore)
	}
	if v, ok := os.LookupEnv("LATS_EARLY_EXIT_PLAN_ALIGNMENT_MIN"); ok {
		cfg.LATS.EarlyExitPlanAlignmentMin = floatOr(v, cfg.LATS.EarlyExitPlanAlignmentMin)
	}
	if v, ok := os.LookupEnv("LATS_EARLY_EXIT_ASSISTANTINESS_MAX"); ok {
		cfg.LATS.EarlyExitAssistantinessMax = floatOr(v, cfg.LATS.EarlyExitAssistantinessMax)
	}
	if v, ok := os.LookupEnv("LATS_EARLY_EXIT_MODE_FIT_MIN"); ok {
		cfg.LATS.EarlyExitModeFitMin = floatOr(v, cfg.LATS.EarlyExitModeFitMin)
	}
	if v, ok := os.LookupEnv("LATS_PATCH_TTL_TURNS"); ok {
		cfg.LATS.PatchTTLTurns = atoiOr(v, cfg.LATS.PatchTTLTurns)
	}
	if v, ok := os.LookupEnv("LATS_SKIP_LOW_RISK"); ok {
		cfg.LATS.SkipLowRisk = boolOr(v, cfg.LATS.SkipLowRisk)
	}
	if v, ok := os.LookupEnv("TURN_TIMEOUT"); ok {
		cfg.TurnTimeout = floatOr(v, cfg.TurnTimeout)
	}
	if v, ok := os.LookupEnv("ADMIN_TOKEN"); ok {
		cfg.AdminToken = v
	}
	if v, ok := os.LookupEnv("PERSONA_ADMIN_TOKEN"); ok {
		cfg.AdminToken = v
	}
	if v, ok := os.LookupEnv("PERSONA_STORAGE_DRIVER"); ok {
		cfg.StorageDriver = v
	}
	if v, ok := os.LookupEnv("PERSONA_STORAGE_DSN"); ok {
		cfg.StorageDSN = v
	}
	if v, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
		cfg.GeminiAPIKey = v
	}
	if v, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
		cfg.AnthropicAPIKey = v
	}
	if v, ok := os.LookupEnv("PERSONA_REDIS_ADDR"); ok {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("PERSONA_KAFKA_ADDR"); ok {
		cfg.KafkaAddr = v
	}
	if v, ok := os.LookupEnv("PERSONA_KAFKA_TOPIC"); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := os.LookupEnv("PERSONA_METRICS_ENABLED"); ok {
		cfg.MetricsEnabled = boolOr(v, cfg.MetricsEnabled)
	}
	if v, ok := os.LookupEnv("PERSONA_TRACING_ENABLED"); ok {
		cfg.TracingEnabled = boolOr(v, cfg.TracingEnabled)
	}
	if v, ok := os.LookupEnv("PERSONA_TRACING_ENDPOINT"); ok {
		cfg.TracingEndpoint = v
	}
	if v, ok := os.LookupEnv("PERSONA_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("PERSONA_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func floatOr(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fallback
	}
	return f
}

func boolOr(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}
