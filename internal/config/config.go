package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Blob       BlobConfig       `yaml:"blob" mapstructure:"blob"`
	Tracking   TrackingConfig   `yaml:"tracking" mapstructure:"tracking"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	ESign      ESignConfig      `yaml:"esign" mapstructure:"esign"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	Verify     VerifyConfig     `yaml:"verify" mapstructure:"verify"`
	Wizard     WizardConfig     `yaml:"wizard" mapstructure:"wizard"`
	Reminder   ReminderConfig   `yaml:"reminder" mapstructure:"reminder"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the step-output index database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlobConfig configures binary artifact storage. Mode "fs" keeps blobs
// under Dir; mode "s3" uses a MinIO/S3 bucket.
type BlobConfig struct {
	Mode      string `yaml:"mode" mapstructure:"mode"`
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// TrackingConfig configures the tracking store. Mode "dynamo" is the
// production path; "memory" keeps records in-process for local runs.
type TrackingConfig struct {
	Mode        string `yaml:"mode" mapstructure:"mode"`
	Region      string `yaml:"region" mapstructure:"region"`
	Table       string `yaml:"table" mapstructure:"table"`
	EmailIndex  string `yaml:"email_index" mapstructure:"email_index"`
	TTLDays     int    `yaml:"ttl_days" mapstructure:"ttl_days"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig holds the background-search API settings.
type SearchConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for findings extraction.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ESignConfig holds e-signature provider settings.
type ESignConfig struct {
	Key         string   `yaml:"key" mapstructure:"key"`
	BaseURL     string   `yaml:"base_url" mapstructure:"base_url"`
	TemplateIDs []string `yaml:"template_ids" mapstructure:"template_ids"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MailConfig configures outbound email via SES.
type MailConfig struct {
	Region      string `yaml:"region" mapstructure:"region"`
	From        string `yaml:"from" mapstructure:"from"`
	SalesAddr   string `yaml:"sales_addr" mapstructure:"sales_addr"`
	ResumeURL   string `yaml:"resume_url" mapstructure:"resume_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VerifyConfig holds the expected metadata fingerprints for uploaded
// verification reports.
type VerifyConfig struct {
	Identity FingerprintConfig `yaml:"identity" mapstructure:"identity"`
	Credit   FingerprintConfig `yaml:"credit" mapstructure:"credit"`
	Complete FingerprintConfig `yaml:"complete" mapstructure:"complete"`
}

// FingerprintConfig is one expected (titles, author, keywords) tuple.
type FingerprintConfig struct {
	Titles       []string `yaml:"titles" mapstructure:"titles"`
	Author       string   `yaml:"author" mapstructure:"author"`
	KeywordCount int      `yaml:"keyword_count" mapstructure:"keyword_count"`
	Keywords     []string `yaml:"keywords" mapstructure:"keywords"`
}

// WizardConfig configures the step machine: how many screens, which
// ones suppress the back action, which may be skipped outright, and
// which index plays which role.
type WizardConfig struct {
	Steps         int      `yaml:"steps" mapstructure:"steps"`
	NoBackSteps   []int    `yaml:"no_back_steps" mapstructure:"no_back_steps"`
	SkipSteps     []int    `yaml:"skip_steps" mapstructure:"skip_steps"`
	StepNames     []string `yaml:"step_names" mapstructure:"step_names"`
	IdentityStep  int      `yaml:"identity_step" mapstructure:"identity_step"`
	CreditStep    int      `yaml:"credit_step" mapstructure:"credit_step"`
	CompleteStep  int      `yaml:"complete_step" mapstructure:"complete_step"`
	BackcheckStep int      `yaml:"backcheck_step" mapstructure:"backcheck_step"`
	ESignStep     int      `yaml:"esign_step" mapstructure:"esign_step"`
}

// ReminderConfig configures the incomplete-application scanner.
type ReminderConfig struct {
	IdleHours      int     `yaml:"idle_hours" mapstructure:"idle_hours"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	SendsPerSecond float64 `yaml:"sends_per_second" mapstructure:"sends_per_second"`
	IntervalMins   int     `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// MonitoringConfig configures funnel alerting.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	RejectionRateThreshold float64 `yaml:"rejection_rate_threshold" mapstructure:"rejection_rate_threshold"`
	DeadLetterThreshold    int     `yaml:"dead_letter_threshold" mapstructure:"dead_letter_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	CookieName     string   `yaml:"cookie_name" mapstructure:"cookie_name"`
	MaxUploadMB    int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APPLYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "applyflow.db")
	v.SetDefault("blob.mode", "fs")
	v.SetDefault("blob.dir", "blobs")
	v.SetDefault("blob.bucket", "applyflow-uploads")
	v.SetDefault("tracking.mode", "dynamo")
	v.SetDefault("tracking.region", "us-east-1")
	v.SetDefault("tracking.table", "application-tracking")
	v.SetDefault("tracking.email_index", "email-index")
	v.SetDefault("tracking.ttl_days", 30)
	v.SetDefault("tracking.timeout_secs", 10)
	v.SetDefault("search.base_url", "https://api.perplexity.ai")
	v.SetDefault("search.model", "sonar-pro")
	v.SetDefault("search.timeout_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("esign.base_url", "https://api.esignatures.com")
	v.SetDefault("esign.timeout_secs", 30)
	v.SetDefault("mail.region", "us-east-1")
	v.SetDefault("mail.timeout_secs", 15)
	v.SetDefault("wizard.steps", 7)
	v.SetDefault("wizard.no_back_steps", []int{6})
	v.SetDefault("wizard.skip_steps", []int{4})
	v.SetDefault("wizard.step_names", []string{
		"Application Form",
		"Identity Verification",
		"Credit Report",
		"Background Check",
		"Supporting Documents",
		"Lease Signature",
		"Review & Submit",
	})
	v.SetDefault("wizard.identity_step", 1)
	v.SetDefault("wizard.credit_step", 2)
	v.SetDefault("wizard.complete_step", 4)
	v.SetDefault("wizard.backcheck_step", 3)
	v.SetDefault("wizard.esign_step", 5)
	v.SetDefault("reminder.idle_hours", 24)
	v.SetDefault("reminder.concurrency", 4)
	v.SetDefault("reminder.sends_per_second", 2.0)
	v.SetDefault("reminder.interval_mins", 60)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.rejection_rate_threshold", 0.5)
	v.SetDefault("monitoring.dead_letter_threshold", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cookie_name", "applyflow_sid")
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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
