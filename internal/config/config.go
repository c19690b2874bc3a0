package config

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	SAT        SATConfig        `yaml:"sat" mapstructure:"sat"`
	QR         QRConfig         `yaml:"qr" mapstructure:"qr"`
	Blacklist  BlacklistConfig  `yaml:"blacklist" mapstructure:"blacklist"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Events     EventsConfig     `yaml:"events" mapstructure:"events"`
	Intake     IntakeConfig     `yaml:"intake" mapstructure:"intake"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// SATConfig configures how validator pages are fetched. With an empty
// endpoint pages are fetched directly; otherwise through the intermediary.
type SATConfig struct {
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	AcceptLanguage string `yaml:"accept_language" mapstructure:"accept_language"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerFails   int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
}

// QRAttempt is one rasterization setting tried by the locator.
type QRAttempt struct {
	Scale  float64 `yaml:"scale" mapstructure:"scale"`
	Invert bool    `yaml:"invert" mapstructure:"invert"`
}

// QRConfig configures QR scanning. Empty attempts select the built-in list.
type QRConfig struct {
	PdfToPPMPath string      `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	Attempts     []QRAttempt `yaml:"attempts" mapstructure:"attempts"`
}

// BlacklistConfig configures the 69-B list source and its store.
type BlacklistConfig struct {
	ListingURL  string   `yaml:"listing_url" mapstructure:"listing_url"`
	LinkLabels  []string `yaml:"link_labels" mapstructure:"link_labels"`
	Column      int      `yaml:"column" mapstructure:"column"`
	SkipRows    int      `yaml:"skip_rows" mapstructure:"skip_rows"`
	Driver      string   `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string   `yaml:"database_url" mapstructure:"database_url"`
	RedisURL    string   `yaml:"redis_url" mapstructure:"redis_url"`
	RedisPrefix string   `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	Cron        string   `yaml:"cron" mapstructure:"cron"`
}

// TemporalConfig configures the workflow client used by the refresh job.
type TemporalConfig struct {
	HostPort   string `yaml:"host_port" mapstructure:"host_port"`
	Namespace  string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue  string `yaml:"task_queue" mapstructure:"task_queue"`
	ScheduleID string `yaml:"schedule_id" mapstructure:"schedule_id"`
}

// ValidationConfig bounds the cross-document checks.
type ValidationConfig struct {
	RecencyDays      int     `yaml:"recency_days" mapstructure:"recency_days"`
	RegistrationDays int     `yaml:"registration_days" mapstructure:"registration_days"`
	NameThreshold    float64 `yaml:"name_threshold" mapstructure:"name_threshold"`
	TimeZone         string  `yaml:"time_zone" mapstructure:"time_zone"`
}

// OCRConfig configures bank statement text recognition.
type OCRConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxPages      int    `yaml:"max_pages" mapstructure:"max_pages"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// StorageConfig configures where submitted documents are kept.
type StorageConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// EventsConfig configures event delivery.
type EventsConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// IntakeConfig bounds accepted uploads.
type IntakeConfig struct {
	MaxBytes int64 `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUPPLIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("sat.endpoint", "")
	v.SetDefault("sat.timeout_secs", 30)
	v.SetDefault("sat.user_agent", "Mozilla/5.0 (compatible; supplier-verify/1.0)")
	v.SetDefault("sat.accept_language", "es-MX,es;q=0.9")
	v.SetDefault("sat.retry_attempts", 3)
	v.SetDefault("sat.breaker_failures", 5)
	v.SetDefault("qr.pdftoppm_path", "pdftoppm")
	v.SetDefault("blacklist.listing_url", "http://omawww.sat.gob.mx/cifras_sat/Paginas/DatosAbiertos/contribuyentes_publicados.html")
	v.SetDefault("blacklist.link_labels", []string{"Listado completo", "Listado_Completo_69-B"})
	v.SetDefault("blacklist.column", 1)
	v.SetDefault("blacklist.skip_rows", 3)
	v.SetDefault("blacklist.driver", "sqlite")
	v.SetDefault("blacklist.database_url", "blacklist.db")
	v.SetDefault("blacklist.redis_url", "")
	v.SetDefault("blacklist.redis_prefix", "blacklist")
	v.SetDefault("blacklist.cron", "0 6 1 * *")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "supplier-verify")
	v.SetDefault("temporal.schedule_id", "blacklist-refresh")
	v.SetDefault("validation.recency_days", 30)
	v.SetDefault("validation.registration_days", 30)
	v.SetDefault("validation.name_threshold", 0.6)
	v.SetDefault("validation.time_zone", "America/Mexico_City")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.max_pages", 2)
	v.SetDefault("ocr.mistral_api_key", "")
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("storage.dir", "uploads")
	v.SetDefault("events.webhook_url", "")
	v.SetDefault("intake.max_bytes", 2<<20)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var blacklistDrivers = map[string]bool{"memory": true, "sqlite": true, "postgres": true, "redis": true}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	if !blacklistDrivers[c.Blacklist.Driver] {
		return eris.Errorf("config: unknown blacklist driver %q (valid: memory, sqlite, postgres, redis)", c.Blacklist.Driver)
	}
	if c.Blacklist.Driver == "redis" && c.Blacklist.RedisURL == "" {
		return eris.New("config: blacklist.redis_url is required for the redis driver")
	}
	if c.Intake.MaxBytes <= 0 {
		return eris.Errorf("config: intake.max_bytes must be positive, got %d", c.Intake.MaxBytes)
	}
	if c.Validation.TimeZone != "" {
		if _, err := time.LoadLocation(c.Validation.TimeZone); err != nil {
			return eris.Wrapf(err, "config: validation.time_zone %q", c.Validation.TimeZone)
		}
	}
	for i, a := range c.QR.Attempts {
		if a.Scale <= 0 {
			return eris.Errorf("config: qr.attempts[%d] has non-positive scale %v", i, a.Scale)
		}
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
