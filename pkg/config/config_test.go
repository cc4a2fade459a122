package config

import (
	"os"
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestLATSConfig_StageAwareDefaults(t *testing.T) {
	var initiating LATSConfig
	initiating.SetDefaults(model.StageInitiating)
	if initiating.Rollouts != 6 {
		t.Fatalf("expected 6 rollouts for initiating, got %d", initiating.Rollouts)
	}
	if initiating.MinRolloutsBeforeEarlyExit != 1 {
		t.Fatalf("expected min_rollouts_before_early_exit=1 for initiating, got %d", initiating.MinRolloutsBeforeEarlyExit)
	}

	var bonding LATSConfig
	bonding.SetDefaults(model.StageBonding)
	if bonding.Rollouts != 3 {
		t.Fatalf("expected 3 rollouts for bonding, got %d", bonding.Rollouts)
	}
	if bonding.MinRolloutsBeforeEarlyExit != 2 {
		t.Fatalf("expected min_rollouts_before_early_exit=2 for bonding, got %d", bonding.MinRolloutsBeforeEarlyExit)
	}
}

func TestLATSConfig_StricterThresholdsForEarlyStages(t *testing.T) {
	var initiating LATSConfig
	initiating.SetDefaults(model.StageInitiating)

	var stagnating LATSConfig
	stagnating.SetDefaults(model.StageStagnating)

	if initiating.EarlyExitPlanAlignmentMin <= stagnating.EarlyExitPlanAlignmentMin {
		t.Fatal("expected initiating to require a higher plan alignment floor than stagnating")
	}
	if initiating.EarlyExitAssistantinessMax >= stagnating.EarlyExitAssistantinessMax {
		t.Fatal("expected initiating to tolerate less assistantiness than stagnating")
	}
}

func TestConfig_EnvOverlayTakesPrecedence(t *testing.T) {
	os.Setenv("LATS_ROLLOUTS", "9")
	os.Setenv("TURN_TIMEOUT", "4.5")
	os.Setenv("ADMIN_TOKEN", "secret-token")
	defer os.Unsetenv("LATS_ROLLOUTS")
	defer os.Unsetenv("TURN_TIMEOUT")
	defer os.Unsetenv("ADMIN_TOKEN")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LATS.Rollouts != 9 {
		t.Fatalf("expected env override rollouts=9, got %d", cfg.LATS.Rollouts)
	}
	if cfg.TurnTimeout != 4.5 {
		t.Fatalf("expected turn_timeout=4.5, got %v", cfg.TurnTimeout)
	}
	if cfg.AdminToken != "secret-token" {
		t.Fatalf("expected admin token override, got %q", cfg.AdminToken)
	}
}

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StorageDriver != "fs" {
		t.Fatalf("expected default storage driver fs, got %q", cfg.StorageDriver)
	}
	if cfg.TurnTimeout != 180.0 {
		t.Fatalf("expected default turn_timeout 180.0, got %v", cfg.TurnTimeout)
	}
}

func TestConfig_RejectsUnknownStorageDriver(t *testing.T) {
	cfg := &Config{StorageDriver: "mongo"}
	cfg.SetDefaults()
	cfg.StorageDriver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown storage driver")
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	if cfg.MetricsNamespace != "personacore" {
		t.Fatalf("expected default metrics namespace, got %q", cfg.MetricsNamespace)
	}
	if cfg.KafkaTopic != "persona.dimension_audit" {
		t.Fatalf("expected default kafka topic, got %q", cfg.KafkaTopic)
	}
	if cfg.TracingSampling != 1.0 {
		t.Fatalf("expected default tracing sampling 1.0, got %v", cfg.TracingSampling)
	}
	if cfg.MetricsEnabled || cfg.TracingEnabled {
		t.Fatal("expected metrics/tracing to default to disabled")
	}
}

func TestConfig_EnvOverlayAppliesObservabilityVars(t *testing.T) {
	os.Setenv("PERSONA_METRICS_ENABLED", "true")
	os.Setenv("PERSONA_TRACING_ENABLED", "true")
	os.Setenv("PERSONA_TRACING_ENDPOINT", "localhost:4317")
	os.Setenv("PERSONA_KAFKA_TOPIC", "custom.topic")
	defer os.Unsetenv("PERSONA_METRICS_ENABLED")
	defer os.Unsetenv("PERSONA_TRACING_ENABLED")
	defer os.Unsetenv("PERSONA_TRACING_ENDPOINT")
	defer os.Unsetenv("PERSONA_KAFKA_TOPIC")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.MetricsEnabled || !cfg.TracingEnabled {
		t.Fatal("expected env overlay to enable metrics and tracing")
	}
	if cfg.TracingEndpoint != "localhost:4317" {
		t.Fatalf("expected tracing endpoint override, got %q", cfg.TracingEndpoint)
	}
	if cfg.KafkaTopic != "custom.topic" {
		t.Fatalf("expected kafka topic override, got %q", cfg.KafkaTopic)
	}
}
