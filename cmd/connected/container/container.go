package container

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/connected/cmd/connected/middleware"
	"github.com/lyzr/connected/cmd/connected/realtime"
	"github.com/lyzr/connected/cmd/connected/repository"
	"github.com/lyzr/connected/cmd/connected/service"
	"github.com/lyzr/connected/common/bootstrap"
	"github.com/lyzr/connected/common/cache"
	"github.com/lyzr/connected/common/chunkstore"
	"github.com/lyzr/connected/common/classify"
	"github.com/lyzr/connected/common/presence"
	"github.com/lyzr/connected/common/pubsub"
	"github.com/lyzr/connected/common/ratelimit"
	"github.com/lyzr/connected/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Collaborators
	Registry chunkstore.Store
	Storage  storage.Storage
	Local    *storage.LocalStorage // nil unless STORAGE_BACKEND=local
	Broker   pubsub.Broker
	Presence presence.Tracker
	Limiter  ratelimit.Limiter
	Policies map[ratelimit.Action]ratelimit.Policy
	Auth     *middleware.Authenticator
	Results  cache.Cache // finalize results kept for replay

	// Repositories
	TransferRepo service.TransferStore
	SessionRepo  service.SessionStore

	// Services
	PairingService *service.PairingService
	Distributor    *service.Distributor
	Finalizer      *service.Finalizer
	UploadService  *service.UploadService
	Sweeper        *chunkstore.Sweeper
	Hub            *realtime.Hub
}

// NewContainer initializes all services and repositories once.
// Resources it opens are released through Components.Shutdown.
func NewContainer(ctx context.Context, components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	// Chunk registry
	registry, err := newRegistry(cfg.Registry.Backend, cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	components.AddCleanup(registry.Close)

	// Artifact storage
	c := &Container{Components: components, Registry: registry}
	switch cfg.Storage.Backend {
	case "s3":
		s3, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:        cfg.Storage.S3Bucket,
			Region:        cfg.Storage.S3Region,
			Prefix:        cfg.Storage.S3Prefix,
			Endpoint:      cfg.Storage.S3Endpoint,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
			PresignTTL:    cfg.Transfer.ArtifactTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 storage: %w", err)
		}
		c.Storage = s3
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalRoot, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		c.Storage = local
		c.Local = local
	}

	// Broker, presence and rate limiting follow Redis availability
	if components.Redis != nil {
		c.Broker = pubsub.NewRedisBroker(components.Redis, log)
		c.Presence = presence.NewRedisTracker(components.Redis, cfg.Realtime.PresenceTTL, log)
		c.Limiter = ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log)
		c.Results = cache.NewRedisCache(components.Redis.GetUnderlying(), "connected:")
	} else {
		c.Broker = pubsub.NewMemoryBroker(log)
		c.Presence = presence.NewMemoryTracker(cfg.Realtime.PresenceTTL)
		c.Limiter = ratelimit.NewMemoryLimiter()
		c.Results = cache.NewMemoryCache(log)
	}
	components.AddCleanup(c.Results.Close)
	components.AddCleanup(c.Broker.Close)
	c.Policies = ratelimit.DefaultPolicies(cfg.RateLimit.UserLimit, cfg.RateLimit.WindowSeconds)
	c.Auth = middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.AllowHeaderAuth)

	// Initialize repositories
	if components.DB != nil {
		c.TransferRepo = repository.NewTransferRepository(components.DB)
		c.SessionRepo = repository.NewSessionRepository(components.DB)
	} else {
		log.Warn("using in-memory transfer and session stores")
		c.TransferRepo = repository.NewMemoryTransferRepository()
		c.SessionRepo = repository.NewMemorySessionRepository()
	}

	// Initialize services (bottom-up: dependencies first)
	c.PairingService = service.NewPairingService(c.SessionRepo, c.TransferRepo, cfg.Session.TTL, log)
	c.Distributor = service.NewDistributor(
		c.TransferRepo,
		c.PairingService,
		c.Broker,
		classify.Default(),
		service.DistributorConfig{
			EphemeralTTL: cfg.Transfer.EphemeralTTL,
			ArtifactTTL:  cfg.Transfer.ArtifactTTL,
			ListLimit:    cfg.Transfer.ListLimit,
			MaxListLimit: cfg.Transfer.MaxListLimit,
		},
		log,
	)
	// registered after the broker so queued events drain before it closes
	components.AddCleanup(c.Distributor.Close)

	c.Finalizer = service.NewFinalizer(registry, c.Storage, log)
	c.UploadService = service.NewUploadService(
		registry,
		c.Finalizer,
		c.Storage,
		c.Distributor,
		service.UploadLimits{
			MaxFileSize:   cfg.Upload.MaxFileSize,
			MaxDirectSize: cfg.Upload.MaxDirectSize,
			MaxChunkSize:  cfg.Upload.MaxChunkSize,
		},
		c.Results,
		log,
	)
	c.Sweeper = chunkstore.NewSweeper(registry, cfg.Registry.Retention, cfg.Registry.SweepInterval, log)
	c.Hub = realtime.NewHub(c.Broker, c.Presence, cfg.Realtime.SendBuffer, log)

	return c, nil
}

// Start launches the background workers: the registry sweeper and the hub subscription
func (c *Container) Start(ctx context.Context) error {
	go c.Sweeper.Start(ctx)

	if err := c.Hub.Run(ctx); err != nil {
		return fmt.Errorf("failed to start realtime hub: %w", err)
	}
	return nil
}

// Policy returns the rate limit policy for action
func (c *Container) Policy(action ratelimit.Action) ratelimit.Policy {
	return c.Policies[action]
}

// FinalizeTimeout bounds one finalize call
func (c *Container) FinalizeTimeout() time.Duration {
	return c.Components.Config.Upload.FinalizeTimeout
}

func newRegistry(backend, path string) (chunkstore.Store, error) {
	switch backend {
	case "badger":
		store, err := chunkstore.OpenBadgerStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open chunk registry: %w", err)
		}
		return store, nil
	default:
		return chunkstore.NewMemoryStore(), nil
	}
}
