package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"hush/internal/api"
	"hush/internal/classifier"
	"hush/internal/config"
	"hush/internal/config_handler"
	"hush/internal/constants"
	"hush/internal/deduplication"
	"hush/internal/fatigue"
	"hush/internal/history"
	"hush/internal/logger"
	"hush/internal/orchestrator"
	"hush/internal/rules"
	"hush/internal/ruleset"
	"hush/internal/sink"
	"hush/pkg/bootstrap"
	"hush/pkg/cel"
	apperrors "hush/pkg/errors"
	"hush/pkg/health"
	"hush/pkg/logging"
	"hush/pkg/metrics"
	"hush/pkg/migrations"
	"hush/pkg/models"
	"hush/pkg/retry"
	"hush/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	redis *redis.Client
	db    *sql.DB
	mongo *mongo.Client

	store        history.Store
	evaluator    *cel.Evaluator
	reloader     *ruleset.Reloader
	tracker      *fatigue.Tracker
	orchestrator *orchestrator.Orchestrator

	tracerProvider *tracing.TracerProvider
	health         *health.CheckerRegistry
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	a.initHistory()

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRules(ctx); err != nil {
		return fmt.Errorf("failed to initialize rules: %w", err)
	}

	if err := a.initOrchestrator(ctx); err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	a.initHTTPServer(ctx)
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	if a.Config.History.Backend == constants.HistoryBackendRedis {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redis = rdb
		a.health.RegisterOptional(health.NewRedisChecker(rdb))
	}

	if a.Config.Rules.Provider == constants.RulesProviderPostgres {
		db, err := a.dbConnector.InitPostgreSQL(ctx)
		if err != nil {
			return err
		}
		a.db = db
	}
	if a.db != nil {
		if a.Config.Database.RunMigrations {
			if err := migrations.MigratePostgres(a.db, a.Config.Database.MigrationsPath, migrations.Up); err != nil {
				return err
			}
			a.Logger.InfowCtx(ctx, "PostgreSQL migrations applied", "path", a.Config.Database.MigrationsPath)
		}
		a.health.RegisterOptional(health.NewPostgreSQLChecker(a.db))
	}

	if a.Config.Audit.Enabled {
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		a.mongo = client
	}
	if a.mongo != nil {
		if err := migrations.EnsureAuditCollection(ctx, a.mongoDatabase(), a.Config.Audit.Collection, a.Config.Audit.Retention); err != nil {
			return err
		}
		a.health.RegisterOptional(health.NewMongoDBChecker(a.mongo))
	}

	return nil
}

func (a *App) mongoDatabase() *mongo.Database {
	name := a.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	return a.mongo.Database(name)
}

func (a *App) initHistory() {
	var store history.Store
	if a.redis != nil {
		store = history.NewRedisStore(a.redis, a.Config.History.KeyPrefix)
	} else {
		a.Logger.Warn("Using in-memory history; counters are per instance and lost on restart")
		store = history.NewMemoryStore()
	}

	if a.Config.CircuitBreaker.Enabled {
		store = history.NewCircuitBreakerStore(store, a.Config.CircuitBreaker)
	}
	a.store = store
}

func (a *App) initRules(ctx context.Context) error {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create expression evaluator: %w", err)
	}
	a.evaluator = evaluator

	provider, err := ruleset.NewProvider(a.Config.Rules, ruleset.Dependencies{Postgres: a.db})
	if err != nil {
		return err
	}

	a.reloader = ruleset.NewReloader(provider, rules.NewHolder(rules.EmptySnapshot()), evaluator, a.Config.Rules.Reload, a.Logger)

	if _, err := a.reloader.Reload(ctx); err != nil {
		initCtx := logging.WithServiceName(ctx, constants.ServiceName)
		a.Logger.WarnwCtx(initCtx, "Failed to load initial rules, starting with an empty rule set",
			"error", err,
			"provider", provider.Name(),
		)
	}
	return nil
}

func (a *App) initOrchestrator(ctx context.Context) error {
	bounded, err := classifier.New(ctx, a.Config.Classifier, a.Config.CircuitBreaker, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	var embedder deduplication.Embedder
	var opts []orchestrator.Option
	if bounded != nil {
		opts = append(opts, orchestrator.WithClassifier(bounded))
		if a.Config.Deduplication.NearDuplicate.Enabled {
			embedder = bounded
		}
	}

	dedup := deduplication.NewEngine(a.store, embedder, a.Config.Deduplication, a.Logger)
	a.tracker = fatigue.NewTracker(a.store, a.Config.Fatigue, a.Logger)

	sinks := sink.NewMulti(a.Logger, a.newSinks()...)
	if sinks.Len() > 0 {
		opts = append(opts, orchestrator.WithPublisher(sinks))
	}

	a.orchestrator = orchestrator.New(
		a.reloader.Holder(),
		rules.NewEngine(a.Logger),
		dedup,
		a.tracker,
		orchestrator.ConfigFrom(a.Config),
		a.Logger,
		opts...,
	)

	a.Logger.InfowCtx(ctx, "Orchestrator ready",
		"classifier", bounded != nil,
		"near_duplicates", embedder != nil,
		"sinks", sinks.Len(),
	)
	return nil
}

func (a *App) newSinks() []sink.Sink {
	var sinks []sink.Sink

	topics := a.Config.Broker.Topics
	if a.Producer != nil && topics.Decisions != "" {
		sinks = append(sinks, sink.NewDecisionSink(a.Producer, topics.Decisions))
	}

	if !a.Config.Audit.Enabled {
		return sinks
	}
	if a.Producer != nil && topics.Audit != "" {
		sinks = append(sinks, sink.NewBrokerAuditSink(a.Producer, topics.Audit))
	}
	if a.mongo != nil {
		sinks = append(sinks, sink.NewMongoAuditSink(a.mongoDatabase(), a.Config.Audit.Collection))
	}
	return sinks
}

func (a *App) initHTTPServer(ctx context.Context) {
	var handler *api.Handler
	if a.Config.API.Enabled {
		handler = api.NewHandler(a.orchestrator, a.reloader, a.tracker, a.evaluator, a.Logger)
	}

	router := api.NewRouter(ctx, handler, api.RouterOptions{
		API:     a.Config.API,
		Tracing: a.Config.Tracing.Enabled,
		Health:  a.health,
	}, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.reloader.Start(gCtx)
	})

	if a.Consumer != nil {
		topics := a.Config.Broker.Topics

		if topics.ConfigUpdate != "" {
			configEventHandler := config_handler.NewHandler(models.EventTypeRulesUpdated, a.reloader, a.Logger)
			g.Go(func() error {
				configCtx := logging.WithServiceName(gCtx, constants.ServiceName)
				a.Logger.InfowCtx(configCtx, "Starting config update event consumer", "topic", topics.ConfigUpdate)
				return a.Consumer.Consume(gCtx, topics.ConfigUpdate, configEventHandler.HandleConfigUpdateEvent)
			})
		}

		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting notification event consumer", "topic", topics.Input)
			return a.Consumer.Consume(gCtx, topics.Input, a.handleEvent)
		})
	}

	return g.Wait()
}

// handleEvent decides one event from the input topic. Payloads that can
// never be decided are marked fatal so they go to the dead letter topic
// without retries.
func (a *App) handleEvent(ctx context.Context, msg models.MessageEnvelope) error {
	if msg.Type != "" && msg.Type != models.MessageTypeNotification {
		a.Logger.DebugwCtx(ctx, "Skipping envelope of another type", "type", msg.Type, "id", msg.ID)
		return nil
	}

	var event models.NotificationEvent
	if err := msg.DecodePayload(&event); err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to decode notification event %s: %w", msg.ID, err))
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = msg.Timestamp
	}

	decision, err := a.orchestrator.Decide(ctx, &event)
	if err != nil {
		if apperrors.IsValidation(err) {
			a.Logger.WarnwCtx(ctx, "Rejected notification event", "error", err, "id", msg.ID)
			return retry.NewFatalError(err)
		}
		return err
	}

	a.Logger.DebugwCtx(ctx, "Decision made",
		"decision_id", decision.ID,
		"verdict", decision.Verdict,
		"mechanism", decision.Mechanism,
	)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down decision service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongo)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
