package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesProcessingDefaults(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("BATCH_CONCURRENCY", "")
	t.Setenv("CHAT_HISTORY_LIMIT", "")
	t.Setenv("CHAT_CONTEXT_TURNS", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg := Load()
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected default llm timeout 30s, got %v", cfg.LLMTimeout)
	}
	if cfg.BatchConcurrency != 4 {
		t.Fatalf("expected default batch concurrency 4, got %d", cfg.BatchConcurrency)
	}
	if cfg.ChatHistoryLimit != 20 || cfg.ChatContextTurns != 5 {
		t.Fatalf("unexpected chat defaults: %d/%d", cfg.ChatHistoryLimit, cfg.ChatContextTurns)
	}
	if !cfg.LLMEnabled() {
		t.Fatalf("expected ollama provider by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LLM_TIMEOUT", "45")
	t.Setenv("PDF_TIMEOUT", "2s")
	t.Setenv("BATCH_CONCURRENCY", "8")
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("LLM_RATE_PER_SECOND", "0.5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")

	cfg := Load()
	if cfg.LLMTimeout != 45*time.Second {
		t.Fatalf("expected bare integer seconds, got %v", cfg.LLMTimeout)
	}
	if cfg.PDFTimeout != 2*time.Second {
		t.Fatalf("expected pdf timeout 2s, got %v", cfg.PDFTimeout)
	}
	if cfg.BatchConcurrency != 8 {
		t.Fatalf("expected batch concurrency 8, got %d", cfg.BatchConcurrency)
	}
	if cfg.LLMEnabled() {
		t.Fatalf("expected llm disabled for provider none")
	}
	if cfg.LLMRatePerSecond != 0.5 {
		t.Fatalf("expected rate 0.5, got %v", cfg.LLMRatePerSecond)
	}
	if cfg.ResilienceBreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("BATCH_CONCURRENCY", "many")
	t.Setenv("LLM_TIMEOUT", "soon")

	cfg := Load()
	if cfg.BatchConcurrency != 4 {
		t.Fatalf("expected fallback concurrency, got %d", cfg.BatchConcurrency)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected fallback timeout, got %v", cfg.LLMTimeout)
	}
}

func TestLoadPolicyWithoutPathReturnsDefaults(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.Limits["meal"] != 200 || policy.Limits["cab"] != 150 || policy.Limits["travel"] != 2000 {
		t.Fatalf("unexpected default limits: %v", policy.Limits)
	}
	if policy.Fraud.MaxJourneyDays != 30 || policy.Fraud.RoundMultiple != 100 {
		t.Fatalf("unexpected fraud defaults: %+v", policy.Fraud)
	}
}

func TestLoadPolicyOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
limits:
  meal: 350
fraud:
  max_journey_days: 45
  round_categories: []
restricted_items:
  vocabulary: [toddy]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if policy.Limits["meal"] != 350 {
		t.Fatalf("expected meal override 350, got %v", policy.Limits["meal"])
	}
	if policy.Limits["travel"] != 2000 {
		t.Fatalf("expected travel default preserved, got %v", policy.Limits["travel"])
	}
	if policy.Fraud.MaxJourneyDays != 45 {
		t.Fatalf("expected journey override, got %d", policy.Fraud.MaxJourneyDays)
	}
	if len(policy.Fraud.RoundCategories) != 0 {
		t.Fatalf("expected explicit empty round categories, got %v", policy.Fraud.RoundCategories)
	}
	if len(policy.RestrictedItems.Vocabulary) != 1 || policy.RestrictedItems.Vocabulary[0] != "toddy" {
		t.Fatalf("unexpected vocabulary %v", policy.RestrictedItems.Vocabulary)
	}
}

func TestParsePolicyRejectsNegativeLimit(t *testing.T) {
	if _, err := ParsePolicy([]byte("limits:\n  cab: -5\n")); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := ParsePolicy([]byte("limits: [")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestLoadAPITrafficControls(t *testing.T) {
	t.Setenv("API_KEY", "secret")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("API_IN_FLIGHT_WAIT", "1s")
	t.Setenv("API_MAX_IN_FLIGHT", "")

	cfg := Load()
	if cfg.APIKey != "secret" || cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("unexpected api auth/rate config: %+v", cfg)
	}
	if cfg.APIInFlightWait != time.Second || cfg.APIMaxInFlight != 64 {
		t.Fatalf("unexpected backpressure config: %v/%d", cfg.APIInFlightWait, cfg.APIMaxInFlight)
	}
}
