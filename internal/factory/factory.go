package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cash-settlement-service/internal/bucketing"
	"cash-settlement-service/internal/client"
	"cash-settlement-service/internal/config"
	"cash-settlement-service/internal/encryption"
	"cash-settlement-service/internal/fraud"
	"cash-settlement-service/internal/hashing"
	"cash-settlement-service/internal/notification"
	"cash-settlement-service/internal/repository"
	chrepo "cash-settlement-service/internal/repository/clickhouse"
	esrepo "cash-settlement-service/internal/repository/elasticsearch"
	"cash-settlement-service/internal/repository/memory"
	"cash-settlement-service/internal/repository/postgres"
	redisrepo "cash-settlement-service/internal/repository/redis"
	"cash-settlement-service/internal/repository/scylla"
	"cash-settlement-service/internal/service"
	"cash-settlement-service/internal/tls"
	"cash-settlement-service/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	postgresClient   *client.PostgresClient
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	store          repository.Store
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads the config and initializes every enabled backend. Outside
// production a backend that cannot be reached is replaced by its in-memory
// or no-op counterpart.
func NewFactory(ctx context.Context) (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if cfg.IsProduction() && cfg.Server.InternalToken == "" {
		return nil, errors.New("INTERNAL_API_TOKEN is required in production")
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(cfg)
	}

	if err := f.initializeStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := f.initializeClients(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := f.initializeManagers(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store", cfg.Store.Driver),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeStore(ctx context.Context) error {
	if f.config.Store.Driver == "memory" {
		if f.config.IsProduction() {
			return errors.New("memory store is not allowed in production")
		}
		util.Warn("Using in-memory store - data is lost on restart")
		f.store = memory.NewStore()
		return nil
	}

	pg, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		if f.config.IsProduction() {
			return err
		}
		util.Warn("Postgres unavailable - falling back to in-memory store", util.ErrorField(err))
		f.store = memory.NewStore()
		return nil
	}

	store := postgres.NewStore(pg.Pool)
	if err := store.Migrate(ctx); err != nil {
		pg.Close()
		return err
	}

	f.postgresClient = pg
	f.store = store
	return nil
}

// initializeClients connects the optional backends concurrently
func (f *Factory) initializeClients(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var (
		mu         sync.Mutex
		initErrors []error
	)
	fail := func(err error) {
		mu.Lock()
		initErrors = append(initErrors, err)
		mu.Unlock()
	}

	var g errgroup.Group

	if f.config.Redis.Enabled {
		g.Go(func() error {
			c, err := client.NewRedisClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("redis: %w", err))
				return nil
			}
			if err := c.HealthCheck(ctx); err != nil {
				c.Close()
				fail(fmt.Errorf("redis health check: %w", err))
				return nil
			}
			f.redisClient = c
			util.Info("Redis client initialized and healthy")
			return nil
		})
	}

	if f.config.Scylla.Enabled {
		g.Go(func() error {
			c, err := scylla.NewScyllaClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("scylla: %w", err))
				return nil
			}
			if err := c.HealthCheck(ctx); err != nil {
				c.Close()
				fail(fmt.Errorf("scylla health check: %w", err))
				return nil
			}
			f.scyllaClient = c
			util.Info("ScyllaDB client initialized and healthy")
			return nil
		})
	}

	if f.config.Kafka.Enabled {
		g.Go(func() error {
			p, err := client.NewKafkaProducer(f.config, util.Get())
			if err != nil {
				util.Warn("Kafka producer initialization failed - proceeding without notifications", util.ErrorField(err))
				return nil
			}
			f.kafkaProducer = p
			util.Info("Kafka producer initialized")
			return nil
		})
	}

	if f.config.Elasticsearch.Enabled {
		g.Go(func() error {
			c, err := client.NewElasticsearchClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("elasticsearch: %w", err))
				return nil
			}
			if err := c.HealthCheck(ctx); err != nil {
				fail(fmt.Errorf("elasticsearch health check: %w", err))
				return nil
			}
			f.esClient = c
			util.Info("Elasticsearch client initialized and healthy")
			return nil
		})
	}

	if f.config.Clickhouse.Enabled {
		g.Go(func() error {
			c, err := client.NewClickHouseClient(f.config, util.Get())
			if err != nil {
				fail(fmt.Errorf("clickhouse: %w", err))
				return nil
			}
			if err := c.HealthCheck(ctx); err != nil {
				c.Close()
				fail(fmt.Errorf("clickhouse health check: %w", err))
				return nil
			}
			f.clickhouseClient = c
			util.Info("ClickHouse client initialized and healthy")
			return nil
		})
	}

	_ = g.Wait()

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, and bucketing managers
func (f *Factory) initializeManagers(ctx context.Context) error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewBucketingManager(f.config)

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	} else if f.config.IsProduction() {
		return errors.New("KMS must be enabled in production")
	}
	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient)

	util.Info("Managers initialized successfully",
		util.Bool("hashing_initialized", f.hasher != nil),
		util.Bool("encryption_initialized", f.encryptionManager != nil),
		util.Bool("bucketing_initialized", f.bucketingManager != nil),
	)
	return nil
}

// ==============================
// Service Factory
// ==============================

// ServiceFactory wires the ledger to whichever backends came up
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory != nil {
		return f.serviceFactory
	}

	cfg := f.config.Settlement
	logger := util.Component("ledger")

	deps := service.Dependencies{
		Store:  f.store,
		Vault:  service.NewCodeVault(f.hasher, f.encryptionManager),
		Logger: logger,
	}

	if f.scyllaClient != nil {
		deps.Events = scylla.NewTransactionEventRepository(f.scyllaClient, f.bucketingManager)
	} else {
		deps.Events = memory.NewEventLog()
	}

	if f.redisClient != nil {
		deps.Attempts = redisrepo.NewConfirmationAttemptCache(f.redisClient, cfg.MaxCodeAttempts, cfg.CodeLockout)
	} else {
		deps.Attempts = memory.NewAttemptTracker(cfg.MaxCodeAttempts, cfg.CodeLockout, nil)
	}

	if f.esClient != nil {
		index := esrepo.NewDisputeIndex(f.esClient, f.config.Elasticsearch.DisputeIndex)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := index.EnsureIndex(ctx); err != nil {
			util.Warn("Failed to ensure dispute index", util.ErrorField(err))
		}
		cancel()
		deps.DisputeIndex = index
	}

	var sink fraud.SuspiciousActivitySink
	if f.clickhouseClient != nil {
		sink = chrepo.NewSuspiciousActivityRepository(f.clickhouseClient, f.bucketingManager)
	}
	deps.Recorder = fraud.NewRecorder(sink, logger)

	var notifier notification.Notifier = notification.NoopNotifier{}
	if f.kafkaProducer != nil {
		notifier = notification.NewKafkaNotifier(f.kafkaProducer, f.config.Kafka.NotificationTopic)
	}
	deps.Dispatcher = notification.NewDispatcher(notifier, cfg.NotifyTimeout, logger)

	f.serviceFactory = service.NewServiceFactory(deps, cfg)
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

// HealthCheck probes every initialized backend concurrently
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]func(context.Context) error{
		"store": f.store.HealthCheck,
	}
	if f.redisClient != nil {
		checks["redis"] = f.redisClient.HealthCheck
	}
	if f.scyllaClient != nil {
		checks["scylla"] = f.scyllaClient.HealthCheck
	}
	if f.esClient != nil {
		checks["elasticsearch"] = f.esClient.HealthCheck
	}
	if f.clickhouseClient != nil {
		checks["clickhouse"] = f.clickhouseClient.HealthCheck
	}
	if f.kafkaProducer != nil {
		checks["kafka"] = f.kafkaProducer.HealthCheck
	}

	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
		g            errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			if err := check(ctx); err != nil {
				mu.Lock()
				healthErrors[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

// IsHealthy ignores Kafka since notifications are best-effort
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
		} else if f.store != nil {
			f.store.Close()
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
			util.Info("Encryption manager cache cleared")
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}
