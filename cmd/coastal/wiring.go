package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/coastal-risk-service/internal/adapter/email"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/gcpvision"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/imagestore"
	kafkaadapter "github.com/couchcryptid/coastal-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/memstore"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/mongo"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/openai"
	"github.com/couchcryptid/coastal-risk-service/internal/adapter/redislock"
	"github.com/couchcryptid/coastal-risk-service/internal/alert"
	"github.com/couchcryptid/coastal-risk-service/internal/config"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/i18n"
	"github.com/couchcryptid/coastal-risk-service/internal/observability"
	"github.com/couchcryptid/coastal-risk-service/internal/risk"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// store is what both the pipeline and the dispatcher persist through.
type store interface {
	sharedobs.ReadinessChecker
	FindParcelByID(ctx context.Context, id string) (domain.ParcelRecord, error)
	FindParcelsByName(ctx context.Context, name string) ([]domain.ParcelRecord, error)
	FindOutput(ctx context.Context, parcelID string) (domain.ComputedOutput, error)
	ApplyOutputPatch(ctx context.Context, parcelID string, patch domain.OutputPatch) (domain.ComputedOutput, error)
	InsertRiskEvent(ctx context.Context, e domain.RiskEvent) (domain.RiskEvent, error)
	ListEvents(ctx context.Context, f domain.EventFilter) ([]domain.RiskEvent, error)
	CountEvents(ctx context.Context, f domain.EventFilter) (int, error)
	ActiveSubscriptionsForParcel(ctx context.Context, parcelID string) ([]domain.Subscription, error)
	ActiveSubscriptionsForUser(ctx context.Context, userID string) ([]domain.Subscription, error)
	FindUser(ctx context.Context, userID string) (domain.User, error)
}

// components holds every collaborator the service opens, so they can be
// closed in one place. Optional collaborators stay as nil interfaces when
// disabled.
type components struct {
	logger *slog.Logger

	store  store
	mongo  *mongo.Store
	images *imagestore.Loader
	gcs    *imagestore.GCS

	vision    domain.VisionAnalyzer
	enhancer  risk.Enhancer
	greenness domain.GreennessEstimator
	estimator *gcpvision.Estimator

	reader      *kafkaadapter.Reader
	riskWriter  *kafkaadapter.Writer
	alertWriter *kafkaadapter.Writer
	publisher   alert.Publisher

	redis *redis.Client
	lock  *redislock.Lock
}

func (c *components) openStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) error {
	if cfg.StoreBackend == config.StoreMemory {
		c.logger.Warn("using in-memory store; data is lost on restart")
		c.store = memstore.New(clock)
		return nil
	}
	s, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout, clock, c.logger)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	c.mongo = s
	c.store = s
	return nil
}

// openVision wires image loading and the optional vision collaborators.
// GCS object references and the greenness estimator share the GCP
// credentials, so both are enabled by GCP_VISION_ENABLED.
func (c *components) openVision(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) error {
	if cfg.GCPVisionEnabled {
		gcs, err := imagestore.NewGCS(ctx)
		if err != nil {
			return err
		}
		c.gcs = gcs
		estimator, err := gcpvision.NewEstimator(ctx)
		if err != nil {
			return err
		}
		c.estimator = estimator
		c.greenness = estimator
		c.logger.Info("gcp vision enabled")
	}
	if c.gcs != nil {
		c.images = imagestore.NewLoader(cfg.ImageRoot, c.gcs)
	} else {
		c.images = imagestore.NewLoader(cfg.ImageRoot, nil)
	}

	if cfg.OpenAIAPIKey == "" {
		c.logger.Info("openai disabled; vegetation uses fallbacks and messages use templates")
		return nil
	}
	client := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, c.logger)
	c.vision = openai.NewCachedAnalyzer(openai.NewVisionAnalyzer(client, cfg.OpenAIVisionModel), cfg.VisionCacheSize, metrics)
	c.enhancer = openai.NewEnhancer(client, cfg.OpenAITextModel)
	c.logger.Info("openai enabled",
		"vision_model", cfg.OpenAIVisionModel,
		"text_model", cfg.OpenAITextModel,
		"cache_size", cfg.VisionCacheSize,
	)
	return nil
}

func (c *components) openMailer(ctx context.Context, cfg *config.Config, catalog *i18n.Catalog) (domain.AlertMailer, error) {
	m, err := email.NewFromConfig(ctx, cfg, catalog, c.logger)
	if err != nil {
		return nil, err
	}
	if m == nil {
		c.logger.Info("email escalation disabled")
		return nil, nil
	}
	return m, nil
}

func (c *components) openKafka(cfg *config.Config) {
	if !cfg.KafkaEnabled {
		return
	}
	c.reader = kafkaadapter.NewReader(cfg, c.logger)
	c.riskWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaRiskTopic, c.logger)
	if cfg.KafkaAlertTopic != "" {
		c.alertWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, c.logger)
		c.publisher = c.alertWriter
	}
}

func (c *components) openRedis(cfg *config.Config) {
	if cfg.RedisAddr == "" {
		return
	}
	c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	c.lock = redislock.New(c.redis, redislock.DefaultKey, cfg.DispatchLockTTL)
	c.logger.Info("dispatch sweep lock enabled", "redis_addr", cfg.RedisAddr)
}

// readiness reports ready once the store, and Redis when configured,
// answer.
func (c *components) readiness() sharedobs.ReadinessChecker {
	checks := readinessChecks{c.store}
	if c.lock != nil {
		checks = append(checks, c.lock)
	}
	return checks
}

// sweepLock returns the dispatch lock, or nil for a single replica.
func (c *components) sweepLock() alert.Lock {
	if c.lock == nil {
		return nil
	}
	return c.lock
}

type readinessChecks []sharedobs.ReadinessChecker

func (r readinessChecks) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, check := range r {
		if err := check.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *components) closeAll(cfg *config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	closeWith := func(name string, fn func() error) {
		if err := fn(); err != nil {
			c.logger.Error(name+" close error", "error", err)
		}
	}
	if c.reader != nil {
		closeWith("kafka reader", c.reader.Close)
	}
	if c.riskWriter != nil {
		closeWith("kafka risk writer", c.riskWriter.Close)
	}
	if c.alertWriter != nil {
		closeWith("kafka alert writer", c.alertWriter.Close)
	}
	if c.redis != nil {
		closeWith("redis", c.redis.Close)
	}
	if c.estimator != nil {
		closeWith("gcp vision", c.estimator.Close)
	}
	if c.gcs != nil {
		closeWith("gcs", c.gcs.Close)
	}
	if c.mongo != nil {
		closeWith("mongo", func() error { return c.mongo.Close(ctx) })
	}
}

func vegetationModel(cfg *config.Config) domain.VegetationModel {
	return domain.VegetationModel{
		LossThresholdPct: cfg.LossThresholdPct,
		CarbonPerHectare: cfg.CarbonPerHectare,
	}
}

func alertPolicy(cfg *config.Config) alert.Policy {
	return alert.Policy{
		Cooldown:     cfg.AlertCooldown,
		DailyCap:     cfg.AlertDailyCap,
		Workers:      cfg.AlertWorkers,
		RecentWindow: cfg.AlertRecentWindow,
		Simulation:   cfg.Simulation,
		Location:     cfg.AlertLocation,
	}
}
