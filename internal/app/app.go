// Package app wires the store, ledger, services, jobs and HTTP router from
// configuration. Both the server and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goldpay/internal/clabe"
	"goldpay/internal/config"
	"goldpay/internal/handler"
	"goldpay/internal/infrastructure/cache"
	"goldpay/internal/infrastructure/database"
	"goldpay/internal/infrastructure/lock"
	"goldpay/internal/infrastructure/mq"
	"goldpay/internal/job"
	"goldpay/internal/ledger"
	"goldpay/internal/service"
	"goldpay/internal/store"
	"goldpay/internal/store/gormstore"
	"goldpay/internal/store/memory"
	"goldpay/internal/store/redisstore"
	"goldpay/pkg/idgen"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// App is a fully wired ledger.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store    *store.Store
	Ledger   *ledger.Ledger
	Services handler.Services

	OutboxSender *job.OutboxSender
	ReconcileJob *job.ReconcileJob
	FeedConsumer *job.FeedConsumer

	redis     *redis.Client
	publisher Publisher
	closers   []func() error
	wg        sync.WaitGroup
}

// Publisher is the outbox destination owned by the app.
type Publisher interface {
	job.Publisher
	Close() error
}

// Option adjusts wiring, mostly for tests.
type Option func(*options)

type options struct {
	backend   store.Backend
	publisher Publisher
}

// WithBackend uses backend instead of the one selected by store.driver.
func WithBackend(backend store.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithPublisher replaces the Kafka producer.
func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// New builds every component. Nothing runs until Start.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return nil, fmt.Errorf("init id generator: %w", err)
	}

	a := &App{Config: cfg, Logger: log}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = a.openBackend()
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Store = store.New(backend, store.WithMaxRetries(cfg.Store.MaxRetries))

	locker, err := a.newLocker()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = ledger.New(a.Store,
		ledger.WithLocker(locker),
		ledger.WithLockTimeout(cfg.Ledger.LockTimeout),
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithLogger(log),
	)

	matcher, err := service.MatcherFromConfig(cfg.Reconcile)
	if err != nil {
		a.Close()
		return nil, err
	}

	transfers := service.NewTransferService(a.Store, a.Ledger, cfg, log)
	reconciler := service.NewReconcileService(a.Store, matcher, cfg, log)
	feeds := service.NewFeedService(a.Store, log)
	a.Services = handler.Services{
		Accounts:  service.NewAccountService(a.Store, a.Ledger, cfg, log),
		Transfers: transfers,
		Reconcile: reconciler,
		Feeds:     feeds,
		Queries:   service.NewQueryService(a.Store),
		Catalog:   clabe.DefaultCatalog,
	}

	a.ReconcileJob = job.NewReconcileJob(reconciler, cfg.Reconcile.Interval, log)
	transfers.SetTrigger(a.ReconcileJob)
	feeds.SetTrigger(a.ReconcileJob)

	a.publisher = o.publisher
	if a.publisher == nil {
		if a.publisher, err = a.newPublisher(); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.closers = append(a.closers, a.publisher.Close)
	a.OutboxSender = job.NewOutboxSender(a.Store, a.publisher, cfg, log)
	a.FeedConsumer = job.NewFeedConsumer(feeds, log)

	return a, nil
}

func (a *App) openBackend() (store.Backend, error) {
	cfg := a.Config
	switch cfg.Store.Driver {
	case config.StoreMemory:
		a.Logger.Warn().Msg("using in-memory store, data is lost on restart")
		return memory.NewBackend(), nil
	case config.StoreMySQL, config.StorePostgres:
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.Logger.Info().Str("driver", cfg.Store.Driver).Msg("database connected")
		return gormstore.NewBackend(db)
	case config.StoreRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return redisstore.NewBackend(client, cfg.Store.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *App) redisClient() (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := cache.InitRedis(&a.Config.Redis)
	if err != nil {
		return nil, err
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	a.Logger.Info().Str("host", a.Config.Redis.Host).Msg("redis connected")
	return client, nil
}

func (a *App) newLocker() (lock.Locker, error) {
	if !a.Config.Ledger.DistributedLock {
		return lock.NewLocalLocker(), nil
	}
	client, err := a.redisClient()
	if err != nil {
		return nil, err
	}
	return lock.NewRedisLocker(client, a.Config.Ledger.LockTTL, a.Config.Ledger.LockRetryInterval, a.Logger), nil
}

func (a *App) newPublisher() (Publisher, error) {
	if !a.Config.Kafka.Enabled {
		return mq.NewLogPublisher(a.Logger), nil
	}
	producer, err := mq.NewProducer(&a.Config.Kafka, a.Logger)
	if err != nil {
		return nil, err
	}
	return producer, nil
}

// Router builds the HTTP router.
func (a *App) Router() *gin.Engine {
	return handler.SetupRouter(handler.NewHandler(a.Services, a.Logger), a.Config.Server.Mode, a.Logger)
}

// Start runs the background jobs until ctx is done. With Kafka enabled it
// also joins the bank feed consumer group.
func (a *App) Start(ctx context.Context) error {
	var group sarama.ConsumerGroup
	if a.Config.Kafka.Enabled {
		var err error
		group, err = mq.NewConsumerGroup(&a.Config.Kafka)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, group.Close)
	}

	a.run(func() { a.OutboxSender.Start(ctx) })
	a.run(func() { a.ReconcileJob.Start(ctx) })
	if group != nil {
		a.run(func() {
			if err := a.FeedConsumer.Run(ctx, group, a.Config.Kafka.Topic.BankFeed); err != nil {
				a.Logger.Error().Err(err).Msg("feed consumer stopped")
			}
		})
	}
	return nil
}

func (a *App) run(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Close stops the jobs, waits for them and releases connections.
func (a *App) Close() error {
	if a.OutboxSender != nil {
		a.OutboxSender.Stop()
	}
	if a.ReconcileJob != nil {
		a.ReconcileJob.Stop()
	}
	a.wg.Wait()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
