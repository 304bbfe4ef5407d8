package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bid-settlement-service/internal/adapters/broadcaster"
	"bid-settlement-service/internal/adapters/db"
	"bid-settlement-service/internal/adapters/kafka"
	"bid-settlement-service/internal/adapters/memory"
	"bid-settlement-service/internal/adapters/redis"
	"bid-settlement-service/internal/adapters/rest"
	"bid-settlement-service/internal/adapters/scheduler"
	"bid-settlement-service/internal/adapters/ws"
	"bid-settlement-service/internal/app"
	"bid-settlement-service/internal/config"
	"bid-settlement-service/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	initLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().Msg("Starting Bid Settlement Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize ledger storage
	var repos db.Repositories
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dbConn, err := db.NewConnection(ctx, db.ConnectionParams{
			Config: &cfg.Database,
			Logger: log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		repos = db.NewRepositoryFactory(dbConn).GetAllRepositories()
		log.Info().Msg("Postgres ledger initialized")
	default:
		store := memory.NewStore()
		repos = db.Repositories{
			Ledger:         store,
			ItemRepository: store,
			BidRepository:  store,
			UserRepository: store.Users(),
		}
		log.Warn().Msg("In-memory ledger initialized, state is lost on restart")
	}

	// Create Redis client
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&cfg.Redis)
		if err := redis.PingRedis(ctx, redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("Redis connection established")
	}

	// Create broadcaster for live observers
	var live outbound.Broadcaster
	switch cfg.Notify.Driver {
	case config.DriverRedis:
		redisBroadcaster := broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
			RedisClient: redisClient,
			Logger:      log.Logger,
		})
		defer redisBroadcaster.Close()
		live = redisBroadcaster
	default:
		live = broadcaster.NewLocalBroadcaster(broadcaster.LocalBroadcasterParams{Logger: log.Logger})
	}
	log.Info().Str("driver", cfg.Notify.Driver).Msg("Broadcaster initialized")

	// Optional bid event stream
	var eventStream *kafka.BidEventProducer
	if len(cfg.Kafka.Brokers) > 0 {
		eventStream = kafka.NewBidEventProducer(kafka.BidEventProducerParams{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  log.Logger,
		})
		eventStream.Start()
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka bid event stream started")
	}

	var notifier outbound.Notifier = live
	if eventStream != nil {
		notifier = broadcaster.NewFanout(live, eventStream)
	}

	// Item locks are shared by bidding and closing
	locks := app.NewItemLocks()

	// Create business services
	settlementService := app.NewSettlementService(app.SettlementServiceParams{
		Ledger:        repos.Ledger,
		BidRepo:       repos.BidRepository,
		Notifier:      notifier,
		Locks:         locks,
		LockTimeout:   cfg.Settlement.LockTimeout,
		MaxAttempts:   cfg.Settlement.MaxAttempts,
		NotifyTimeout: cfg.Notify.Timeout,
		Logger:        log.Logger,
	})
	itemService := app.NewItemService(app.ItemServiceParams{
		ItemRepo:    repos.ItemRepository,
		UserRepo:    repos.UserRepository,
		Broadcaster: notifier,
		Locks:       locks,
		LockTimeout: cfg.Settlement.LockTimeout,
		Logger:      log.Logger,
	})
	userService := app.NewUserService(app.UserServiceParams{
		UserRepo:       repos.UserRepository,
		DefaultBalance: cfg.Settlement.DefaultBalance,
		Logger:         log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Create auction scheduler
	var queue scheduler.DueQueue = scheduler.NewLocalQueue()
	if cfg.Scheduler.Driver == config.DriverRedis {
		queue = scheduler.NewRedisQueue(redisClient)
	}
	auctionScheduler := scheduler.NewAuctionScheduler(scheduler.AuctionSchedulerParams{
		Queue:     queue,
		Closer:    itemService,
		Interval:  cfg.Scheduler.Interval,
		BatchSize: cfg.Scheduler.BatchSize,
		Logger:    log.Logger,
	})

	// Update item service with scheduler
	itemService.SetScheduler(auctionScheduler)

	if err := auctionScheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start auction scheduler")
	}
	log.Info().Msg("Auction scheduler started")

	wsHandler := ws.NewHandler(ws.WsHandlerParams{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		},
		ItemService: itemService,
		Broadcaster: live,
		Logger:      log.Logger,
	})

	router := rest.NewRouter(rest.RouterParams{
		Handler: rest.NewHandler(rest.HandlerParams{
			SettlementService: settlementService,
			ItemService:       itemService,
			UserService:       userService,
			Logger:            log.Logger,
		}),
		WebSocket: wsHandler.HandleWebSocket,
		Logger:    log.Logger,
	})

	httpServer := rest.NewServer(rest.ServerParams{
		Config:  cfg,
		Handler: router,
		Logger:  log.Logger,
	})

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start HTTP server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before stopping what they depend on
	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	}

	auctionScheduler.Stop()
	log.Info().Msg("Auction scheduler stopped")

	if eventStream != nil {
		if err := eventStream.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Kafka bid event stream")
		}
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.DefaultContextLogger = &log.Logger
}
