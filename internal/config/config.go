package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contract-validator/internal/validation"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Tokens     TokensConfig     `yaml:"tokens" mapstructure:"tokens"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Inbox      InboxConfig      `yaml:"inbox" mapstructure:"inbox"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	CacheTTL  string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ExtractConfig configures structured extraction from document text.
type ExtractConfig struct {
	// Provider is "llm" or "json".
	Provider       string  `yaml:"provider" mapstructure:"provider"`
	MaxInputChars  int     `yaml:"max_input_chars" mapstructure:"max_input_chars"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	// Provider is "local" or "mistral".
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
	// Fallback names a second provider used when the first yields sparse text.
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
	MinChars int    `yaml:"min_chars" mapstructure:"min_chars"`
}

// TokensConfig configures positioned token extraction.
type TokensConfig struct {
	// Provider is "bbox" (pdftotext -bbox) or "plain" (synthetic grid).
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ValidationConfig holds the comparison policy.
type ValidationConfig struct {
	PriceTolerance              float64 `yaml:"price_tolerance" mapstructure:"price_tolerance"`
	CriticalOverchargeThreshold float64 `yaml:"critical_overcharge_threshold" mapstructure:"critical_overcharge_threshold"`
	IncludeUnauthorizedInTotals bool    `yaml:"include_unauthorized_in_totals" mapstructure:"include_unauthorized_in_totals"`
	MatchStrategy               string  `yaml:"match_strategy" mapstructure:"match_strategy"`
	MinOverlapScore             float64 `yaml:"min_overlap_score" mapstructure:"min_overlap_score"`
	CheckQuantityCaps           bool    `yaml:"check_quantity_caps" mapstructure:"check_quantity_caps"`
	CheckContractDates          bool    `yaml:"check_contract_dates" mapstructure:"check_contract_dates"`
	PolicyFile                  string  `yaml:"policy_file" mapstructure:"policy_file"`
}

// Policy converts the configured thresholds to a validation policy.
func (v ValidationConfig) Policy() validation.Policy {
	return validation.Policy{
		PriceTolerance:              v.PriceTolerance,
		CriticalOverchargeThreshold: v.CriticalOverchargeThreshold,
		IncludeUnauthorizedInTotals: v.IncludeUnauthorizedInTotals,
		CheckQuantityCaps:           v.CheckQuantityCaps,
		CheckContractDates:          v.CheckContractDates,
	}
}

// Policies resolves per-vendor policies, layering policy_file over the
// configured thresholds when set.
func (v ValidationConfig) Policies() (*validation.PolicySet, error) {
	if v.PolicyFile == "" {
		return validation.NewPolicySet(v.Policy()), nil
	}
	return validation.LoadPolicySet(v.PolicyFile, v.Policy())
}

// Matcher builds the configured match strategy.
func (v ValidationConfig) Matcher() (validation.MatchStrategy, error) {
	return validation.NewMatchStrategy(v.MatchStrategy, v.MinOverlapScore)
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token         string  `yaml:"token" mapstructure:"token"`
	ExceptionsDB  string  `yaml:"exceptions_db" mapstructure:"exceptions_db"`
	ValidationsDB string  `yaml:"validations_db" mapstructure:"validations_db"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Enabled reports whether validation results should be published to Notion.
func (n NotionConfig) Enabled() bool {
	return n.Token != ""
}

// InboxConfig holds credentials for the vendor FTP drop.
type InboxConfig struct {
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	DownloadDir string `yaml:"download_dir" mapstructure:"download_dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	UploadDir      string   `yaml:"upload_dir" mapstructure:"upload_dir"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures bulk revalidation.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	DLQMaxRetry int `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
}

// RetryConfig configures retries of external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures circuit breakers on external calls.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures the background health checks run by serve.
type MonitoringConfig struct {
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	DLQThreshold             int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
	PendingApprovalThreshold int     `yaml:"pending_approval_threshold" mapstructure:"pending_approval_threshold"`
}

// Enabled reports whether alerts have somewhere to go.
func (m MonitoringConfig) Enabled() bool {
	return m.WebhookURL != ""
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads ./config.yaml, if present, and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and the environment. An empty path
// falls back to an optional config.yaml in the working directory; an
// explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VALIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// setDefaults registers every key, including empty secrets, so that
// AutomaticEnv can resolve them during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "contract-validator.db")
	v.SetDefault("store.max_conns", 10)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.cache_ttl", "5m")

	v.SetDefault("extract.provider", "llm")
	v.SetDefault("extract.max_input_chars", 15000)
	v.SetDefault("extract.requests_per_sec", 1.0)
	v.SetDefault("extract.burst", 2)

	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("ocr.fallback", "")
	v.SetDefault("ocr.min_chars", 100)

	v.SetDefault("tokens.provider", "bbox")
	v.SetDefault("tokens.pdftotext_path", "pdftotext")

	v.SetDefault("validation.price_tolerance", 0.01)
	v.SetDefault("validation.critical_overcharge_threshold", 500.0)
	v.SetDefault("validation.include_unauthorized_in_totals", false)
	v.SetDefault("validation.match_strategy", "substring")
	v.SetDefault("validation.min_overlap_score", validation.DefaultMinOverlapScore)
	v.SetDefault("validation.check_quantity_caps", false)
	v.SetDefault("validation.check_contract_dates", false)
	v.SetDefault("validation.policy_file", "")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.exceptions_db", "")
	v.SetDefault("notion.validations_db", "")
	v.SetDefault("notion.rate_limit", 3.0)

	v.SetDefault("inbox.user", "")
	v.SetDefault("inbox.password", "")
	v.SetDefault("inbox.download_dir", "inbox")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.dlq_max_retries", 3)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.dlq_threshold", 20)
	v.SetDefault("monitoring.pending_approval_threshold", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Mode names the kind of work a command is about to do, for Validate.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeIngest  Mode = "ingest"
	ModeServe   Mode = "serve"
	ModePublish Mode = "publish"
)

// Validate checks that the keys a mode depends on are present.
func (c *Config) Validate(mode Mode) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}

	switch c.Extract.Provider {
	case "llm", "json":
	default:
		return eris.Errorf("config: unknown extract provider %q", c.Extract.Provider)
	}

	if mode == ModeIngest || mode == ModeServe {
		if c.Extract.Provider == "llm" && c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
		if (c.OCR.Provider == "mistral" || c.OCR.Fallback == "mistral") && c.OCR.MistralKey == "" {
			missing = append(missing, "ocr.mistral_api_key")
		}
	}

	if mode == ModePublish || c.Notion.Enabled() {
		if c.Notion.Token == "" {
			missing = append(missing, "notion.token")
		}
		if c.Notion.ExceptionsDB == "" {
			missing = append(missing, "notion.exceptions_db")
		}
		if c.Notion.ValidationsDB == "" {
			missing = append(missing, "notion.validations_db")
		}
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
