// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/kv"
	ritualstore "github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/ritual"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Logger *logging.ChanneledLogger
	Store  kv.Client

	// Stores
	StateManager *ritualstore.StateManager
	Queue        *ritualstore.Queue
	Presence     *ritualstore.Presence

	// Services
	TriggerService *services.TriggerService
	Generator      *services.GeneratorService
	Mutator        *services.MutatorService
	Engine         *services.RitualEngine

	Location *time.Location
}

// NewContainer creates and wires all singleton services. With no Redis
// URL configured the store runs in-process, for development.
func NewContainer(logger *logging.ChanneledLogger) (*Container, error) {
	loc := ritual.LocationOrUTC(config.SiteTimezone)
	if loc == time.UTC && config.SiteTimezone != "UTC" && config.SiteTimezone != "" {
		logger.System().Debug("Unknown site timezone, using UTC", "timezone", config.SiteTimezone)
	}

	var store kv.Client
	if config.RedisURL == "" {
		logger.System().Warn("No REDIS_URL configured, using in-process store")
		store = kv.NewMemoryClient()
	} else {
		redisStore, err := kv.NewRedisClient(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url invalid: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		store = redisStore
	}

	stateManager := ritualstore.NewStateManager(store, config.StateTTL, logger)
	queue := ritualstore.NewQueue(store, config.QueueMaxSize, config.QueueTTL, logger)
	presence := ritualstore.NewPresence(store, config.PresenceKey, logger)

	triggerService := services.NewTriggerService(loc, logger)
	generator := services.NewGeneratorService(loc, logger)
	mutator := services.NewMutatorService(loc, logger)
	engine := services.NewRitualEngine(stateManager, queue, presence, triggerService, generator, mutator, logger)

	return &Container{
		Logger:         logger,
		Store:          store,
		StateManager:   stateManager,
		Queue:          queue,
		Presence:       presence,
		TriggerService: triggerService,
		Generator:      generator,
		Mutator:        mutator,
		Engine:         engine,
		Location:       loc,
	}, nil
}

// Close releases infrastructure handles.
func (c *Container) Close() error {
	return c.Store.Close()
}
