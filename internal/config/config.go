package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata" // ALERT_TIMEZONE must resolve in minimal images

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

// Email providers.
const (
	EmailSMTP   = "smtp"
	EmailSES    = "ses"
	EmailResend = "resend"
	EmailNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Kafka run-request consumer and event publishers.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaRequestTopic  string
	KafkaRiskTopic     string
	KafkaAlertTopic    string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Persistence.
	StoreBackend  string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// Pipeline.
	CarbonPerHectare     float64
	LossThresholdPct     float64
	DefaultTimeWindowHrs int
	ImageRoot            string

	// Vision and message enhancement.
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIVisionModel string
	OpenAITextModel   string
	VisionTimeout     time.Duration
	LLMTimeout        time.Duration
	VisionCacheSize   int
	GCPVisionEnabled  bool

	// Alert dispatch.
	AlertCooldown      time.Duration
	AlertDailyCap      int // 0 disables the cap
	AlertWorkers       int
	AlertRecentWindow  time.Duration
	AlertSweepInterval time.Duration // 0 disables the periodic sweep
	AlertLocation      *time.Location
	Simulation         bool
	RedisAddr          string
	DispatchLockTTL    time.Duration

	// Email escalation.
	EmailProvider         string
	EmailFallbackProvider string
	EmailFrom             string
	EmailTimeout          time.Duration
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	AWSRegion             string
	ResendAPIKey          string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       p.boolean("KAFKA_ENABLED", true),
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic:  sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "parcel-run-requests"),
		KafkaRiskTopic:     sharedcfg.EnvOrDefault("KAFKA_RISK_TOPIC", "coastal-risk-events"),
		KafkaAlertTopic:    sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "coastal-user-alerts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "coastal-risk"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		StoreBackend:  sharedcfg.EnvOrDefault("STORE_BACKEND", StoreMongo),
		MongoURI:      sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: sharedcfg.EnvOrDefault("MONGO_DATABASE", "coastal"),
		MongoTimeout:  p.duration("MONGO_TIMEOUT", 10*time.Second),

		CarbonPerHectare:     p.float("CARBON_PER_HA", 10),
		LossThresholdPct:     p.float("LOSS_THRESHOLD_PCT", 25),
		DefaultTimeWindowHrs: p.positiveInt("DEFAULT_TIME_WINDOW_HRS", 12),
		ImageRoot:            sharedcfg.EnvOrDefault("IMAGE_ROOT", "uploads"),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     sharedcfg.EnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIVisionModel: sharedcfg.EnvOrDefault("OPENAI_VISION_MODEL", "gpt-4o"),
		OpenAITextModel:   sharedcfg.EnvOrDefault("OPENAI_TEXT_MODEL", "gpt-4o-mini"),
		VisionTimeout:     p.duration("VISION_TIMEOUT", 60*time.Second),
		LLMTimeout:        p.duration("LLM_TIMEOUT", 15*time.Second),
		VisionCacheSize:   p.positiveInt("VISION_CACHE_SIZE", 256),
		GCPVisionEnabled:  p.boolean("GCP_VISION_ENABLED", false),

		AlertCooldown:      p.nonNegativeDuration("ALERT_COOLDOWN", 0),
		AlertDailyCap:      p.nonNegativeInt("ALERT_DAILY_CAP", 10),
		AlertWorkers:       p.positiveInt("ALERT_WORKERS", 4),
		AlertRecentWindow:  p.duration("ALERT_RECENT_WINDOW", time.Hour),
		AlertSweepInterval: p.nonNegativeDuration("ALERT_SWEEP_INTERVAL", 5*time.Minute),
		AlertLocation:      p.location("ALERT_TIMEZONE", "UTC"),
		Simulation:         p.boolean("SIMULATION", false),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		DispatchLockTTL:    p.duration("DISPATCH_LOCK_TTL", time.Minute),

		EmailProvider:         sharedcfg.EnvOrDefault("EMAIL_PROVIDER", EmailSMTP),
		EmailFallbackProvider: os.Getenv("EMAIL_FALLBACK_PROVIDER"),
		EmailFrom:             sharedcfg.EnvOrDefault("EMAIL_FROM", "alerts@coastalguard.example"),
		EmailTimeout:          p.duration("EMAIL_TIMEOUT", 10*time.Second),
		SMTPHost:              sharedcfg.EnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:              p.positiveInt("SMTP_PORT", 587),
		SMTPUsername:          os.Getenv("SMTP_USERNAME"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		AWSRegion:             sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		ResendAPIKey:          os.Getenv("RESEND_API_KEY"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaRequestTopic == "" {
			return errors.New("KAFKA_REQUEST_TOPIC is required")
		}
		if c.KafkaRiskTopic == "" {
			return errors.New("KAFKA_RISK_TOPIC is required")
		}
	}
	switch c.StoreBackend {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_BACKEND=mongo")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	if c.CarbonPerHectare < 0 {
		return errors.New("invalid CARBON_PER_HA: must not be negative")
	}
	if c.LossThresholdPct <= 0 || c.LossThresholdPct > 100 {
		return errors.New("invalid LOSS_THRESHOLD_PCT: must be in (0, 100]")
	}
	for _, name := range []string{c.EmailProvider, c.EmailFallbackProvider} {
		switch name {
		case "", EmailSMTP, EmailSES, EmailResend, EmailNone:
		default:
			return fmt.Errorf("invalid email provider %q", name)
		}
	}
	if c.EmailProvider == EmailResend && c.ResendAPIKey == "" {
		return errors.New("EMAIL_PROVIDER is resend but RESEND_API_KEY is not set")
	}
	return nil
}

// parser collects the first parse error so Load can read every variable in
// one struct literal.
type parser struct {
	err error
}

func (p *parser) fail(key string, cause error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, cause)
	}
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	d := p.nonNegativeDuration(key, def)
	if d == 0 && os.Getenv(key) != "" {
		p.fail(key, errors.New("must be positive"))
	}
	return d
}

func (p *parser) nonNegativeDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if d < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return d
}

func (p *parser) positiveInt(key string, def int) int {
	n := p.nonNegativeInt(key, def)
	if n == 0 && os.Getenv(key) != "" {
		p.fail(key, errors.New("must be positive"))
		return def
	}
	return n
}

func (p *parser) nonNegativeInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	if n < 0 {
		p.fail(key, errors.New("must not be negative"))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) location(key, def string) *time.Location {
	loc, err := time.LoadLocation(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		p.fail(key, err)
		return time.UTC
	}
	return loc
}
