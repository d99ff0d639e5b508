package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/match-digest/internal/platform/logging"
	"github.com/riskibarqy/match-digest/internal/platform/resilience"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	MetricsEnabled     bool
	PprofEnabled       bool
	PprofAddr          string

	UptraceEnabled              bool
	UptraceDSN                  string
	PyroscopeEnabled            bool
	PyroscopeServerAddress      string
	PyroscopeAppName            string
	PyroscopeAuthToken          string
	PyroscopeBasicAuthUser      string
	PyroscopeBasicAuthPassword  string
	PyroscopeUploadRate         time.Duration
	// PyroscopeContentionProfiles adds mutex and block profiles.
	PyroscopeContentionProfiles bool

	FootiumSSEBaseURL       string
	FootiumGraphQLURL       string
	FootiumGraphQLTimeout   time.Duration
	FootiumStreamCircuit    resilience.CircuitBreakerConfig
	FootiumGraphQLCircuit   resilience.CircuitBreakerConfig
	IdentityCacheTTL        time.Duration
	IdentityCacheMaxEntries int
	IdentityLookupWorkers   int

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIChatModel  string
	OpenAIImageModel string
	OpenAIImageSize  string
	OpenAITimeout    time.Duration
	OpenAIMaxRetries int
	OpenAICircuit    resilience.CircuitBreakerConfig

	DigestResolveNames      bool
	DigestGenerateImage     bool
	DigestImageFailureFatal bool
	DigestPartialTimeout    time.Duration
	DigestFramesTimeout     time.Duration
	DigestMaxPromptTokens   int
	DigestStyleDirective    string

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:             appEnv,
		ServiceName:        strings.TrimSpace(getEnv("SERVICE_NAME", "match-digest")),
		ServiceVersion:     strings.TrimSpace(getEnv("SERVICE_VERSION", "dev")),
		HTTPAddr:           resolveHTTPAddr(),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		PprofAddr:          strings.TrimSpace(getEnv("PPROF_ADDR", ":6060")),
		LogLevel:           parseLogLevel(getEnv("APP_LOG_LEVEL", "info")),
	}

	if cfg.ReadTimeout, err = getEnvAsPositiveDuration("APP_READ_TIMEOUT", "15s"); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getEnvAsPositiveDuration("APP_SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return Config{}, err
	}
	if cfg.MetricsEnabled, err = getEnvAsBool("METRICS_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.PprofEnabled, err = getEnvAsBool("PPROF_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.PprofEnabled && cfg.PprofAddr == "" {
		return Config{}, fmt.Errorf("PPROF_ADDR is required when PPROF_ENABLED=true")
	}

	if err := loadObservability(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadFootium(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadOpenAI(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadDigest(&cfg); err != nil {
		return Config{}, err
	}
	if err := loadWriteTimeout(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const (
	defaultWriteTimeout    = 180 * time.Second
	writeTimeoutSlack      = 15 * time.Second
	openAIRetryBackoffStep = time.Second
)

// loadWriteTimeout reads APP_WRITE_TIMEOUT. The terminal SSE write lands only
// after every digest phase, so the timeout must cover their worst case.
func loadWriteTimeout(cfg *Config) error {
	required := digestWorstCase(*cfg)
	raw := strings.TrimSpace(os.Getenv("APP_WRITE_TIMEOUT"))
	if raw == "" {
		cfg.WriteTimeout = max(defaultWriteTimeout, required+writeTimeoutSlack)
		return nil
	}

	var err error
	if cfg.WriteTimeout, err = getEnvAsPositiveDuration("APP_WRITE_TIMEOUT", raw); err != nil {
		return err
	}
	if cfg.WriteTimeout < required {
		return fmt.Errorf("APP_WRITE_TIMEOUT must be >= %s for the configured digest and openai timeouts", required)
	}
	return nil
}

// digestWorstCase is the longest successful request: both stream phases plus
// every OpenAI attempt and its backoff, doubled when an image is requested.
func digestWorstCase(cfg Config) time.Duration {
	retries := time.Duration(cfg.OpenAIMaxRetries)
	perCall := cfg.OpenAITimeout*(retries+1) + openAIRetryBackoffStep*retries*(retries+1)/2
	calls := time.Duration(1)
	if cfg.DigestGenerateImage {
		calls = 2
	}
	return cfg.DigestPartialTimeout + cfg.DigestFramesTimeout + perCall*calls
}

func loadObservability(cfg *Config) error {
	var err error
	if cfg.UptraceEnabled, err = getEnvAsBool("UPTRACE_ENABLED", false); err != nil {
		return err
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceDSN == "" {
		cfg.UptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	if cfg.PyroscopeEnabled, err = getEnvAsBool("PYROSCOPE_ENABLED", false); err != nil {
		return err
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeUploadRate, err = getEnvAsPositiveDuration("PYROSCOPE_UPLOAD_RATE", "15s"); err != nil {
		return err
	}
	if cfg.PyroscopeContentionProfiles, err = getEnvAsBool("PYROSCOPE_CONTENTION_PROFILES", false); err != nil {
		return err
	}
	return nil
}

func loadFootium(cfg *Config) error {
	var err error
	cfg.FootiumSSEBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("FOOTIUM_SSE_BASE_URL", "https://live.api.footium.club/api/sse")), "/")
	cfg.FootiumGraphQLURL = strings.TrimSpace(getEnv("FOOTIUM_GRAPHQL_URL", "https://live.api.footium.club/api/graphql"))
	if cfg.FootiumGraphQLTimeout, err = getEnvAsPositiveDuration("FOOTIUM_GRAPHQL_TIMEOUT", "10s"); err != nil {
		return err
	}
	if cfg.FootiumStreamCircuit, err = loadCircuit("FOOTIUM_STREAM"); err != nil {
		return err
	}
	if cfg.FootiumGraphQLCircuit, err = loadCircuit("FOOTIUM_GRAPHQL"); err != nil {
		return err
	}

	if cfg.IdentityCacheTTL, err = getEnvAsPositiveDuration("IDENTITY_CACHE_TTL", "30m"); err != nil {
		return err
	}
	if cfg.IdentityCacheMaxEntries, err = getEnvAsInt("IDENTITY_CACHE_MAX_ENTRIES", 10000); err != nil {
		return fmt.Errorf("parse IDENTITY_CACHE_MAX_ENTRIES: %w", err)
	}
	if cfg.IdentityCacheMaxEntries < 0 {
		return fmt.Errorf("IDENTITY_CACHE_MAX_ENTRIES must be >= 0")
	}
	if cfg.IdentityLookupWorkers, err = getEnvAsInt("IDENTITY_LOOKUP_WORKERS", 8); err != nil {
		return fmt.Errorf("parse IDENTITY_LOOKUP_WORKERS: %w", err)
	}
	if cfg.IdentityLookupWorkers < 1 {
		return fmt.Errorf("IDENTITY_LOOKUP_WORKERS must be >= 1")
	}
	return nil
}

func loadOpenAI(cfg *Config) error {
	var err error
	cfg.OpenAIAPIKey = strings.TrimSpace(getEnv("OPENAI_API_KEY", ""))
	if cfg.OpenAIAPIKey == "" && cfg.AppEnv == EnvProd {
		return fmt.Errorf("OPENAI_API_KEY is required when APP_ENV=%s", EnvProd)
	}
	cfg.OpenAIBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")), "/")
	cfg.OpenAIChatModel = strings.TrimSpace(getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"))
	cfg.OpenAIImageModel = strings.TrimSpace(getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"))
	cfg.OpenAIImageSize = strings.TrimSpace(getEnv("OPENAI_IMAGE_SIZE", "1024x1024"))
	if cfg.OpenAITimeout, err = getEnvAsPositiveDuration("OPENAI_TIMEOUT", "60s"); err != nil {
		return err
	}
	if cfg.OpenAIMaxRetries, err = getEnvAsInt("OPENAI_MAX_RETRIES", 0); err != nil {
		return fmt.Errorf("parse OPENAI_MAX_RETRIES: %w", err)
	}
	if cfg.OpenAIMaxRetries < 0 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be >= 0")
	}
	if cfg.OpenAICircuit, err = loadCircuit("OPENAI"); err != nil {
		return err
	}
	return nil
}

func loadDigest(cfg *Config) error {
	var err error
	if cfg.DigestResolveNames, err = getEnvAsBool("DIGEST_RESOLVE_NAMES", true); err != nil {
		return err
	}
	if cfg.DigestGenerateImage, err = getEnvAsBool("DIGEST_GENERATE_IMAGE", false); err != nil {
		return err
	}
	if cfg.DigestImageFailureFatal, err = getEnvAsBool("DIGEST_IMAGE_FAILURE_FATAL", false); err != nil {
		return err
	}
	if cfg.DigestPartialTimeout, err = getEnvAsPositiveDuration("DIGEST_PARTIAL_TIMEOUT", "30s"); err != nil {
		return err
	}
	if cfg.DigestFramesTimeout, err = getEnvAsPositiveDuration("DIGEST_FRAMES_TIMEOUT", "60s"); err != nil {
		return err
	}
	if cfg.DigestMaxPromptTokens, err = getEnvAsInt("DIGEST_MAX_PROMPT_TOKENS", 12000); err != nil {
		return fmt.Errorf("parse DIGEST_MAX_PROMPT_TOKENS: %w", err)
	}
	if cfg.DigestMaxPromptTokens < 0 {
		return fmt.Errorf("DIGEST_MAX_PROMPT_TOKENS must be >= 0")
	}
	cfg.DigestStyleDirective = strings.TrimSpace(getEnv("DIGEST_STYLE_DIRECTIVE", ""))
	return nil
}

// loadCircuit reads <PREFIX>_CIRCUIT_ENABLED, _FAILURE_COUNT, _OPEN_TIMEOUT
// and _HALF_OPEN_MAX_REQ.
func loadCircuit(prefix string) (resilience.CircuitBreakerConfig, error) {
	defaults := resilience.DefaultCircuitBreakerConfig()
	enabled, err := getEnvAsBool(prefix+"_CIRCUIT_ENABLED", defaults.Enabled)
	if err != nil {
		return resilience.CircuitBreakerConfig{}, err
	}
	failureCount, err := getEnvAsInt(prefix+"_CIRCUIT_FAILURE_COUNT", defaults.FailureThreshold)
	if err != nil {
		return resilience.CircuitBreakerConfig{}, fmt.Errorf("parse %s_CIRCUIT_FAILURE_COUNT: %w", prefix, err)
	}
	if failureCount < 1 {
		return resilience.CircuitBreakerConfig{}, fmt.Errorf("%s_CIRCUIT_FAILURE_COUNT must be >= 1", prefix)
	}
	openTimeout, err := getEnvAsPositiveDuration(prefix+"_CIRCUIT_OPEN_TIMEOUT", defaults.OpenTimeout.String())
	if err != nil {
		return resilience.CircuitBreakerConfig{}, err
	}
	halfOpenMaxReq, err := getEnvAsInt(prefix+"_CIRCUIT_HALF_OPEN_MAX_REQ", defaults.HalfOpenMaxReq)
	if err != nil {
		return resilience.CircuitBreakerConfig{}, fmt.Errorf("parse %s_CIRCUIT_HALF_OPEN_MAX_REQ: %w", prefix, err)
	}
	if halfOpenMaxReq < 1 {
		return resilience.CircuitBreakerConfig{}, fmt.Errorf("%s_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1", prefix)
	}

	return resilience.CircuitBreakerConfig{
		Enabled:          enabled,
		FailureThreshold: failureCount,
		OpenTimeout:      openTimeout,
		HalfOpenMaxReq:   halfOpenMaxReq,
	}, nil
}

// resolveHTTPAddr prefers APP_HTTP_ADDR and falls back to a bare PORT.
func resolveHTTPAddr() string {
	if addr := strings.TrimSpace(os.Getenv("APP_HTTP_ADDR")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + strings.TrimPrefix(port, ":")
	}
	return ":5000"
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return out, nil
}

func getEnvAsPositiveDuration(key, fallback string) (time.Duration, error) {
	out, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if out <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
