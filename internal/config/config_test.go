package config

import (
	"testing"
	"time"

	"github.com/riskibarqy/match-digest/internal/platform/logging"
)

func TestLoad_AppEnvValidation(t *testing.T) {
	t.Setenv("APP_ENV", "invalid")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid APP_ENV")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_HTTP_ADDR", "")
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_MAX_RETRIES", "")
	t.Setenv("DIGEST_IMAGE_FAILURE_FATAL", "")
	t.Setenv("DIGEST_GENERATE_IMAGE", "")
	t.Setenv("OPENAI_CHAT_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":5000" {
		t.Fatalf("unexpected HTTPAddr: %q", cfg.HTTPAddr)
	}
	if cfg.OpenAIChatModel != "gpt-4o-mini" {
		t.Fatalf("unexpected OpenAIChatModel: %q", cfg.OpenAIChatModel)
	}
	if cfg.OpenAIMaxRetries != 0 {
		t.Fatalf("expected no completion retries by default, got=%d", cfg.OpenAIMaxRetries)
	}
	if cfg.DigestGenerateImage || cfg.DigestImageFailureFatal {
		t.Fatalf("expected image generation disabled and non-fatal by default")
	}
	if !cfg.DigestResolveNames {
		t.Fatalf("expected name resolution enabled by default")
	}
	if cfg.DigestFramesTimeout != 60*time.Second {
		t.Fatalf("unexpected DigestFramesTimeout: %s", cfg.DigestFramesTimeout)
	}
	if !cfg.OpenAICircuit.Enabled || cfg.OpenAICircuit.FailureThreshold != 5 {
		t.Fatalf("unexpected OpenAICircuit: %+v", cfg.OpenAICircuit)
	}
}

func TestLoad_PortFallback(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_HTTP_ADDR", "")
	t.Setenv("PORT", "8081")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Fatalf("unexpected HTTPAddr: %q", cfg.HTTPAddr)
	}

	t.Setenv("APP_HTTP_ADDR", "127.0.0.1:9000")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("expected APP_HTTP_ADDR to win over PORT, got=%q", cfg.HTTPAddr)
	}
}

func TestLoad_UptraceRequiresDSNWhenEnabled(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when UPTRACE_ENABLED=true without UPTRACE_DSN")
	}
}

func TestLoad_UptraceDSNFromOTLPHeaders(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", `uptrace-dsn="https://token@api.uptrace.dev?grpc=4317"`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.UptraceDSN != "https://token@api.uptrace.dev?grpc=4317" {
		t.Fatalf("unexpected UptraceDSN: %q", cfg.UptraceDSN)
	}
}

func TestLoad_ProdRequiresOpenAIKey(t *testing.T) {
	t.Setenv("APP_ENV", EnvProd)
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when OPENAI_API_KEY is missing in prod")
	}
}

func TestLoad_DigestAndCircuitParsing(t *testing.T) {
	t.Setenv("APP_ENV", EnvStage)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DIGEST_GENERATE_IMAGE", "true")
	t.Setenv("DIGEST_IMAGE_FAILURE_FATAL", "true")
	t.Setenv("DIGEST_FRAMES_TIMEOUT", "5s")
	t.Setenv("OPENAI_CIRCUIT_FAILURE_COUNT", "3")
	t.Setenv("FOOTIUM_STREAM_CIRCUIT_ENABLED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("APP_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.DigestGenerateImage || !cfg.DigestImageFailureFatal {
		t.Fatalf("expected image flags to be parsed")
	}
	if cfg.DigestFramesTimeout != 5*time.Second {
		t.Fatalf("unexpected DigestFramesTimeout: %s", cfg.DigestFramesTimeout)
	}
	if cfg.OpenAICircuit.FailureThreshold != 3 {
		t.Fatalf("unexpected OpenAI failure threshold: %d", cfg.OpenAICircuit.FailureThreshold)
	}
	if cfg.FootiumStreamCircuit.Enabled {
		t.Fatalf("expected footium stream circuit disabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORSAllowedOrigins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("unexpected LogLevel: %v", cfg.LogLevel)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DIGEST_FRAMES_TIMEOUT":        "0s",
		"OPENAI_MAX_RETRIES":           "-1",
		"IDENTITY_LOOKUP_WORKERS":      "0",
		"OPENAI_CIRCUIT_FAILURE_COUNT": "0",
		"DIGEST_RESOLVE_NAMES":         "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", EnvDev)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoad_WriteTimeoutCoversDigestWorstCase(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("APP_WRITE_TIMEOUT", "")
	t.Setenv("DIGEST_PARTIAL_TIMEOUT", "")
	t.Setenv("DIGEST_FRAMES_TIMEOUT", "")
	t.Setenv("OPENAI_TIMEOUT", "")
	t.Setenv("OPENAI_MAX_RETRIES", "")

	t.Setenv("DIGEST_GENERATE_IMAGE", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WriteTimeout != 180*time.Second {
		t.Fatalf("unexpected default WriteTimeout: %s", cfg.WriteTimeout)
	}

	t.Setenv("DIGEST_GENERATE_IMAGE", "true")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WriteTimeout < 210*time.Second {
		t.Fatalf("WriteTimeout shorter than image path: got=%s want>=%s", cfg.WriteTimeout, 210*time.Second)
	}

	t.Setenv("OPENAI_MAX_RETRIES", "2")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	// 30s + 60s + 2 * (3*60s + 3s backoff)
	if want := 456 * time.Second; cfg.WriteTimeout < want {
		t.Fatalf("WriteTimeout shorter than retry path: got=%s want>=%s", cfg.WriteTimeout, want)
	}
}

func TestLoad_RejectsWriteTimeoutBelowDigestWorstCase(t *testing.T) {
	t.Setenv("APP_ENV", EnvDev)
	t.Setenv("DIGEST_PARTIAL_TIMEOUT", "")
	t.Setenv("DIGEST_FRAMES_TIMEOUT", "")
	t.Setenv("OPENAI_TIMEOUT", "")
	t.Setenv("OPENAI_MAX_RETRIES", "")
	t.Setenv("DIGEST_GENERATE_IMAGE", "true")

	t.Setenv("APP_WRITE_TIMEOUT", "180s")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for APP_WRITE_TIMEOUT below image path")
	}

	t.Setenv("APP_WRITE_TIMEOUT", "240s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WriteTimeout != 240*time.Second {
		t.Fatalf("unexpected WriteTimeout: %s", cfg.WriteTimeout)
	}
}
