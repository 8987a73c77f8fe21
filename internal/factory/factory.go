package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blackjack-auth/internal/bucketing"
	"blackjack-auth/internal/client"
	"blackjack-auth/internal/config"
	"blackjack-auth/internal/encryption"
	"blackjack-auth/internal/events"
	"blackjack-auth/internal/hashing"
	"blackjack-auth/internal/notifier"
	redisrepo "blackjack-auth/internal/repository/redis"
	"blackjack-auth/internal/repository/scylla"
	"blackjack-auth/internal/service"
	"blackjack-auth/internal/tls"
	"blackjack-auth/internal/util"
)

// Factory owns the lifecycle of every external dependency.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	recorder          *events.Recorder
	notifier          notifier.Notifier

	accountRepository scylla.AccountRepository
	pendingRepository scylla.PendingRepository
	logRepository     scylla.LoginLogRepository
	challengeCache    *redisrepo.ChallengeCache
	serviceFactory    *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads config, initializes logging, and brings up every client
// with a health check.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(&tls.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients brings up the backing stores. Analytics sinks degrade to
// warnings in development; Scylla and Redis are load bearing everywhere.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	if scyllaClient, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = scyllaClient
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	if esClient, err := client.NewElasticsearchClient(f.config); err != nil {
		util.Warn("Elasticsearch initialization failed - proceeding without audit index", util.ErrorField(err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	if chClient, err := client.NewClickHouseClient(f.config); err != nil {
		util.Warn("ClickHouse initialization failed - proceeding without analytics", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
		util.Info("ClickHouse client initialized and healthy")
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)
	f.notifier = notifier.NewSMTPNotifier(f.config)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	encryptionManager, err := encryption.NewManager(ctx, f.config)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = encryptionManager

	f.recorder = events.NewRecorder(
		f.config,
		f.kafkaProducer,
		f.clickhouseClient,
		f.esClient,
		f.bucketingManager,
	)

	if f.config.IsProduction() {
		f.hasher.StartPepperRotation()
	}

	return nil
}

func (f *Factory) AccountRepository() scylla.AccountRepository {
	if f.accountRepository == nil {
		f.accountRepository = scylla.NewAccountRepository(f.scyllaClient)
	}
	return f.accountRepository
}

func (f *Factory) PendingRepository() scylla.PendingRepository {
	if f.pendingRepository == nil {
		f.pendingRepository = scylla.NewPendingRepository(f.scyllaClient)
	}
	return f.pendingRepository
}

func (f *Factory) LoginLogRepository() scylla.LoginLogRepository {
	if f.logRepository == nil {
		f.logRepository = scylla.NewLoginLogRepository(f.scyllaClient)
	}
	return f.logRepository
}

func (f *Factory) ChallengeCache() *redisrepo.ChallengeCache {
	if f.challengeCache == nil {
		f.challengeCache = redisrepo.NewChallengeCache(f.redisClient)
	}
	return f.challengeCache
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.config,
			f.AccountRepository(),
			f.PendingRepository(),
			f.LoginLogRepository(),
			f.ChallengeCache(),
			f.hasher,
			f.encryptionManager,
			f.notifier,
			f.recorder,
		)
	}
	return f.serviceFactory
}

// HealthCheck reports per-dependency status. Optional sinks report healthy
// when absent; they are allowed to be down.
func (f *Factory) HealthCheck(ctx context.Context) map[string]string {
	checks := make(map[string]string)

	report := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "healthy"
		}
	}

	if f.redisClient != nil {
		report("redis", f.redisClient.HealthCheck(ctx))
	} else {
		checks["redis"] = "not initialized"
	}

	if f.scyllaClient != nil {
		report("scylla", f.scyllaClient.HealthCheck())
	} else {
		checks["scylla"] = "not initialized"
	}

	if f.esClient != nil {
		report("elasticsearch", f.esClient.HealthCheck())
	} else {
		checks["elasticsearch"] = "healthy"
	}

	if f.clickhouseClient != nil {
		report("clickhouse", f.clickhouseClient.HealthCheck(ctx))
	} else {
		checks["clickhouse"] = "healthy"
	}

	if f.kafkaProducer != nil {
		report("kafka", f.kafkaProducer.HealthCheck(ctx))
	} else {
		checks["kafka"] = "healthy"
	}

	return checks
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
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
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
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

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}
