// Package bootstrap wires the synthesis pipeline together and owns the
// process lifecycle: configuration, logging, storage, the provider registry,
// the result cache, the training queue and the HTTP surface, started under
// one errgroup and stopped on SIGINT/SIGTERM.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"chorus-server-go/internal/contracts/providers"
	domainauth "chorus-server-go/internal/domain/auth"
	"chorus-server-go/internal/domain/eventbus"
	"chorus-server-go/internal/domain/synthesis"
	"chorus-server-go/internal/domain/synthesis/adapters/edge"
	"chorus-server-go/internal/domain/synthesis/adapters/neural"
	"chorus-server-go/internal/domain/synthesis/adapters/openai"
	synthcache "chorus-server-go/internal/domain/synthesis/cache"
	"chorus-server-go/internal/domain/synthesis/health"
	"chorus-server-go/internal/domain/synthesis/selector"
	"chorus-server-go/internal/domain/training"
	"chorus-server-go/internal/domain/voices"
	platformconfig "chorus-server-go/internal/platform/config"
	platformerrors "chorus-server-go/internal/platform/errors"
	platformlogging "chorus-server-go/internal/platform/logging"
	platformobservability "chorus-server-go/internal/platform/observability"
	platformstorage "chorus-server-go/internal/platform/storage"
	httptransport "chorus-server-go/internal/transport/http"
)

// anonymousOwner is the owner every request runs as when token auth is
// switched off.
const anonymousOwner = "local"

// providerOrder fixes the registration order; it doubles as the fallback
// order when selection scores tie.
var providerOrder = []string{"edge", "openai", "neural"}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc

	db           *gorm.DB
	bus          *eventbus.Bus
	events       *platformstorage.JobEventRepository
	registry     *synthesis.Registry
	tracker      *health.Tracker
	cache        *synthcache.Cache
	library      *voices.Library
	orchestrator *synthesis.Orchestrator

	jobs    training.JobRepository
	models  training.ModelRepository
	queue   *training.Queue
	trainer *training.Service

	tokens *domainauth.AuthToken
}

// Run starts the whole service lifecycle: init steps, the training queue and
// the HTTP server, then blocks until a shutdown signal drains everything.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.orchestrator == nil || state.trainer == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"synthesis pipeline not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("Boot", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	defer state.close(logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		return err
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("Boot", "shutdown complete")
	logger.Close()
	return nil
}

// close releases the long-lived components in reverse construction order. The
// queue and the HTTP server have already drained through the errgroup by the
// time this runs.
func (s *appState) close(logger *platformlogging.Logger) {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Close(closeCtx); err != nil {
			logger.WarnTag("Cache", "cache did not close cleanly: %v", err)
		}
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.tracker != nil {
		s.tracker.Close()
	}
	if s.registry != nil {
		if err := s.registry.CleanupAll(); err != nil {
			logger.WarnTag("Providers", "provider cleanup failed: %v", err)
		}
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Boot", "initialisation order")
	for _, step := range steps {
		if len(step.DependsOn) == 0 {
			logger.InfoTag("Boot", "  %s", step.ID)
			continue
		}
		logger.InfoTag("Boot", "  %s (after %s)", step.ID, strings.Join(step.DependsOn, ", "))
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph declares the initialisation steps in execution order. Every
// dependency must appear earlier in the slice.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "events:init-bus",
			Title:     "Initialise event bus",
			DependsOn: []string{"logging:init-provider", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "providers:init-registry",
			Title:     "Register synthesis providers",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initProvidersStep,
		},
		{
			ID:        "cache:init-store",
			Title:     "Initialise result cache",
			DependsOn: []string{"config:load", "storage:init-database"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initCacheStep,
		},
		{
			ID:        "training:init-pipeline",
			Title:     "Initialise training pipeline",
			DependsOn: []string{"storage:init-database", "events:init-bus"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initTrainingStep,
		},
		{
			ID:        "synthesis:init-orchestrator",
			Title:     "Wire synthesis orchestrator",
			DependsOn: []string{"providers:init-registry", "cache:init-store", "training:init-pipeline"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initOrchestratorStep,
		},
		{
			ID:        "auth:init-tokens",
			Title:     "Initialise token issuer",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initAuthStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "cannot load configuration", err)
	}

	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logger, err := platformlogging.NewLogger(&platformlogging.Config{
		Level: state.config.Log.Level,
		Dir:   state.config.Log.Dir,
		File:  state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "cannot initialise logging", err)
	}

	state.logger = logger
	platformlogging.DefaultLogger = logger

	logger.InfoTag("Boot", "logging ready [%s], config from %s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "cannot setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"storage:init-database",
			"config not loaded",
		)
	}

	db, err := platformstorage.InitDatabase(state.config.Database)
	if err != nil {
		return err
	}
	state.db = db

	if state.logger != nil {
		state.logger.InfoTag("Storage", "database ready at %s", state.config.Database.Path)
	}
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.db == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"events:init-bus",
			"logger/database not initialised",
		)
	}

	bus := eventbus.New(0, state.logger)
	if err := eventbus.AttachLogSink(bus, state.logger); err != nil {
		bus.Close()
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "cannot attach log sink", err)
	}

	events := platformstorage.NewJobEventRepository(state.db)
	if err := eventbus.AttachPersistSink(bus, events, state.logger); err != nil {
		bus.Close()
		return platformerrors.Wrap(platformerrors.KindBootstrap, "events:init-bus", "cannot attach persist sink", err)
	}

	state.bus = bus
	state.events = events
	return nil
}

func initProvidersStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"providers:init-registry",
			"config/logger not initialised",
		)
	}

	registry := synthesis.NewRegistry()
	tracker := health.NewTracker(
		state.config.Health.FailureThreshold,
		state.config.Health.Cooldown.Std(),
		state.logger,
	)

	for _, name := range providerOrder {
		pc, ok := state.config.Providers[name]
		if !ok || !pc.Enabled {
			continue
		}

		provider, err := buildProvider(name, pc, state.logger)
		if err != nil {
			return err
		}
		if err := provider.Initialize(); err != nil {
			// A misconfigured backend (say, a missing API key) should not
			// keep the rest of the fleet from serving.
			state.logger.WarnTag("Providers", "%s unavailable, skipping: %v", name, err)
			continue
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
		if err := tracker.Register(name, health.RegisterOptions{
			CostPerChar:   pc.CostPerChar,
			QualityScore:  pc.QualityScore,
			MaxConcurrent: pc.MaxConcurrent,
			MaxChars:      pc.Quota.MaxChars,
			MaxRequests:   pc.Quota.MaxRequests,
			ResetInterval: pc.Quota.ResetInterval.Std(),
			Probe:         provider.HealthCheck,
		}); err != nil {
			return err
		}
		state.logger.InfoTag("Providers", "registered %s (quality %.2f, %d concurrent)", name, pc.QualityScore, pc.MaxConcurrent)
	}

	for name := range state.config.Providers {
		if !knownProvider(name) {
			state.logger.WarnTag("Providers", "unknown provider %q in config, skipping", name)
		}
	}

	if len(registry.Order()) == 0 {
		return platformerrors.New(platformerrors.KindConfig, "providers:init-registry", "no synthesis provider could be initialised")
	}

	state.registry = registry
	state.tracker = tracker
	return nil
}

func buildProvider(name string, pc platformconfig.ProviderConfig, logger *platformlogging.Logger) (providers.SynthesisProvider, error) {
	switch name {
	case "edge":
		return edge.New(edge.Config{
			Voice:      pc.Voice,
			SampleRate: pc.SampleRate,
		}, logger), nil
	case "openai":
		return openai.New(openai.Config{
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Model:   pc.Model,
			Voice:   pc.Voice,
			Timeout: pc.Timeout.Std(),
		}, logger), nil
	case "neural":
		return neural.New(neural.Config{
			BaseURL: pc.BaseURL,
			Voice:   pc.Voice,
			Timeout: pc.Timeout.Std(),
		}, logger), nil
	default:
		return nil, platformerrors.New(platformerrors.KindConfig, "providers:init-registry", "unknown provider "+name)
	}
}

func knownProvider(name string) bool {
	for _, known := range providerOrder {
		if known == name {
			return true
		}
	}
	return false
}

func initCacheStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"cache:init-store",
			"config not loaded",
		)
	}

	cc := state.config.Cache
	cacheCfg := synthcache.Config{
		Driver:          cc.Driver,
		MaxEntries:      cc.MaxEntries,
		ShortTTL:        cc.ShortTTL.Std(),
		MediumTTL:       cc.MediumTTL.Std(),
		LongTTL:         cc.LongTTL.Std(),
		CleanupInterval: cc.CleanupInterval.Std(),
		CompressionMin:  cc.CompressionMin,
		Warming: synthcache.WarmingConfig{
			Enabled:       cc.Warming.Enabled,
			Interval:      cc.Warming.Interval.Std(),
			TopK:          cc.Warming.TopK,
			MinFrequency:  cc.Warming.MinFrequency,
			TableCapacity: cc.Warming.TableCapacity,
		},
		Optimization: synthcache.OptimizationConfig{
			MaxHits:   int64(cc.Optimization.MaxHits),
			IdleAfter: cc.Optimization.IdleAfter.Std(),
		},
	}
	if cc.Redis.Addr != "" {
		cacheCfg.Redis = &synthcache.RedisConfig{
			Addr:     cc.Redis.Addr,
			Username: cc.Redis.Username,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
			Prefix:   cc.Redis.Prefix,
		}
	}

	switch cc.Driver {
	case synthcache.DriverSQLite:
		// The sqlite store rides on the main database handle instead of
		// opening a second file.
		if state.db == nil {
			return platformerrors.New(platformerrors.KindBootstrap, "cache:init-store", "database not initialised")
		}
		state.cache = synthcache.NewWithStore(cacheCfg, platformstorage.NewCacheStore(state.db), state.logger)
	default:
		built, err := synthcache.New(cacheCfg, state.logger)
		if err != nil {
			return err
		}
		state.cache = built
	}

	if state.logger != nil {
		state.logger.InfoTag("Cache", "result cache ready (%s driver, %d entries max)", cc.Driver, cc.MaxEntries)
	}
	return nil
}

func initTrainingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil || state.db == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"training:init-pipeline",
			"database not initialised",
		)
	}

	tc := state.config.Training
	jobs := platformstorage.NewTrainingJobRepository(state.db)
	models := platformstorage.NewVoiceModelRepository(state.db)

	processor := training.NewProcessor(jobs, models, state.bus, state.logger, training.ProcessorOptions{
		StorageDir:       tc.StorageDir,
		Epochs:           tc.Epochs,
		QualityThreshold: tc.QualityThreshold,
		MinSampleSeconds: tc.MinSampleSeconds,
	})
	queue := training.NewQueue(jobs, models, processor, state.bus, state.logger, training.QueueOptions{
		Workers:        tc.Workers,
		JobsPerMinute:  tc.JobsPerMinute,
		BaseRetryDelay: tc.BaseRetryDelay.Std(),
	})
	trainer := training.NewService(jobs, models, queue, training.NewEstimator(), state.logger, training.ServiceOptions{
		MaxRetries:       tc.MaxRetries,
		Epochs:           tc.Epochs,
		MinSampleSeconds: tc.MinSampleSeconds,
	})

	state.jobs = jobs
	state.models = models
	state.queue = queue
	state.trainer = trainer
	return nil
}

func initOrchestratorStep(_ context.Context, state *appState) error {
	if state == nil || state.registry == nil || state.tracker == nil || state.cache == nil || state.models == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"synthesis:init-orchestrator",
			"pipeline components not initialised",
		)
	}

	library := voices.New(state.registry, state.models, state.logger)

	sc := state.config.Selection
	sel := selector.New(state.tracker, state.registry, selector.Criteria{
		MaxLatency:     sc.MaxLatency.Std(),
		MaxCostPerChar: sc.MaxCostPerChar,
		MinQuality:     sc.MinQuality,
	}, state.logger)

	costs := make(map[string]float64)
	timeouts := make(map[string]time.Duration)
	for _, name := range state.registry.Order() {
		pc := state.config.Providers[name]
		costs[name] = pc.CostPerChar
		timeouts[name] = pc.Timeout.Std()
	}

	state.library = library
	state.orchestrator = synthesis.NewOrchestrator(synthesis.Options{
		Registry: state.registry,
		Tracker:  state.tracker,
		Selector: sel,
		Cache:    state.cache,
		Resolver: library,
		Logger:   state.logger,
		Costs:    costs,
		Timeouts: timeouts,
	})
	return nil
}

func initAuthStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"auth:init-tokens",
			"config not loaded",
		)
	}

	if !state.config.Auth.Enabled {
		if state.logger != nil {
			state.logger.WarnTag("Auth", "token auth disabled; all requests run as the %q owner", anonymousOwner)
		}
		return nil
	}

	if state.config.Auth.Secret == "" {
		return platformerrors.New(
			platformerrors.KindConfig,
			"auth:init-tokens",
			"auth is enabled but no secret is configured (set CHORUS_AUTH_SECRET)",
		)
	}

	tokens := domainauth.NewAuthToken(state.config.Auth.Secret)
	if ttl := state.config.Auth.TTL.Std(); ttl > 0 {
		tokens = tokens.WithTTL(ttl)
	}
	state.tokens = tokens
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	startTrainingQueue(state, g, groupCtx)

	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

func startTrainingQueue(state *appState, g *errgroup.Group, groupCtx context.Context) {
	logger := state.logger
	tc := state.config.Training

	g.Go(func() error {
		logger.InfoTag("Training", "queue started (%d workers, %d jobs/min)", tc.Workers, tc.JobsPerMinute)
		if err := state.queue.Run(groupCtx); err != nil {
			logger.ErrorTag("Training", "queue stopped with error: %v", err)
			return err
		}
		logger.InfoTag("Training", "queue drained")
		return nil
	})
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	authMiddleware := httptransport.AnonymousOwner(anonymousOwner)
	if config.Auth.Enabled {
		authMiddleware = httptransport.RequireAuth(state.tokens, logger)
	}

	router, err := httptransport.Build(httptransport.Options{
		Config:         config,
		Logger:         logger,
		AuthMiddleware: authMiddleware,
	})
	if err != nil {
		return nil, err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httptransport.APIResponse{
			Success: false,
			Data:    gin.H{},
			Message: "not found",
			Code:    http.StatusNotFound,
		})
	})

	service, err := httptransport.NewService(config, logger, httptransport.Dependencies{
		Synth:   state.orchestrator,
		Trainer: state.trainer,
		Catalog: state.library,
		Health:  state.tracker,
		Cache:   state.cache,
		Events:  state.events,
		Tokens:  state.tokens,
	})
	if err != nil {
		return nil, err
	}
	if err := service.Register(groupCtx, router); err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Server.IP, config.Server.Port),
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s:%d", config.Server.IP, config.Server.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server closed")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("Boot", "received shutdown signal (%v), draining services", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Boot", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Boot", "shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
	return nil
}

// loadConfigAndLogger runs the config and logging steps only, for tests.
func loadConfigAndLogger() (*platformconfig.Config, *platformlogging.Logger, error) {
	state := &appState{}

	steps := []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
	}

	if err := executeInitSteps(context.Background(), steps, state); err != nil {
		return nil, nil, err
	}

	return state.config, state.logger, nil
}
