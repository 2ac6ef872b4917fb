// Package bridge opens the storage and secret backends selected by the
// configuration and exposes them through the service interfaces.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bucketbridge/bucketbridge/internal/config"
	"github.com/bucketbridge/bucketbridge/internal/database"
	"github.com/bucketbridge/bucketbridge/internal/models"
	"github.com/bucketbridge/bucketbridge/internal/scm"
	"github.com/bucketbridge/bucketbridge/internal/services"
)

// Resources are the backends shared by the server and the issue updater.
// Without a database, Jobs is backed by Static and Heads live in memory.
type Resources struct {
	Pool       *database.Pool
	Jobs       services.JobRegistry
	Static     *services.StaticJobRegistry
	Heads      scm.HeadStore
	Deliveries *database.WebhookDeliveryStore
	Secrets    services.SecretResolver
}

// Opener creates Resources. The function fields default to the real
// implementations and are replaced in tests.
type Opener struct {
	SecretsClient func(ctx context.Context) (database.SecretsAPI, error)
	OpenPool      func(ctx context.Context, url string) (*database.Pool, error)
	Migrate       func(url string) error
	Logger        *slog.Logger

	once    sync.Once
	client  database.SecretsAPI
	clientE error
}

// NewOpener returns an Opener using AWS, pgx and golang-migrate
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{
		SecretsClient: func(ctx context.Context) (database.SecretsAPI, error) {
			return database.NewSecretsClient(ctx)
		},
		OpenPool: database.NewPool,
		Migrate:  database.RunMigrations,
		Logger:   logger,
	}
}

func (o *Opener) secrets(ctx context.Context) (database.SecretsAPI, error) {
	o.once.Do(func() {
		o.client, o.clientE = o.SecretsClient(ctx)
	})
	return o.client, o.clientE
}

// Open connects everything cfg asks for. Config jobs are seeded into the
// database when one is configured.
func (o *Opener) Open(ctx context.Context, cfg *config.Config) (*Resources, error) {
	res := &Resources{Secrets: services.StaticSecrets{}}

	if cfg.Secrets.Backend == config.SecretsAWS {
		client, err := o.secrets(ctx)
		if err != nil {
			return nil, err
		}
		res.Secrets = database.NewSecretsManagerResolver(client)
	}

	if !cfg.Database.Enabled() {
		o.Logger.Info("no database configured, using jobs from the config file", "jobs", len(cfg.Jobs))
		res.Static = services.NewStaticJobRegistry(cfg.Jobs)
		res.Jobs = res.Static
		res.Heads = scm.NewMemoryHeadStore()
		return res, nil
	}

	url, err := o.databaseURL(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Migrate {
		o.Logger.Info("running database migrations")
		if err := o.Migrate(url); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}

	pool, err := o.OpenPool(ctx, url)
	if err != nil {
		return nil, err
	}
	res.Pool = pool

	store := database.NewJobStore(pool)
	if err := SeedJobs(ctx, store, cfg.Jobs); err != nil {
		pool.Close()
		return nil, err
	}

	res.Jobs = store
	res.Heads = database.NewPollStateStore(pool)
	res.Deliveries = database.NewWebhookDeliveryStore(pool)
	o.Logger.Info("database connection pool initialized")
	return res, nil
}

func (o *Opener) databaseURL(ctx context.Context, cfg config.DatabaseConfig) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}

	o.Logger.Info("loading database credentials from Secrets Manager", "secret", cfg.SecretName)
	client, err := o.secrets(ctx)
	if err != nil {
		return "", err
	}
	dbCfg, err := database.LoadConfigFromSecretsManager(ctx, client, cfg.SecretName)
	if err != nil {
		return "", err
	}
	return dbCfg.URL(), nil
}

// Close releases the database pool, if any
func (r *Resources) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

// JobUpserter stores a job
type JobUpserter interface {
	UpsertJob(ctx context.Context, job *models.Job) error
}

// SeedJobs writes every job to store, collecting all failures
func SeedJobs(ctx context.Context, store JobUpserter, jobs []models.Job) error {
	var errs []error
	for i := range jobs {
		if err := store.UpsertJob(ctx, &jobs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
