package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/xoxo/internal/a2a"
	"github.com/nidhogg/xoxo/internal/api"
	"github.com/nidhogg/xoxo/internal/config"
	"github.com/nidhogg/xoxo/internal/conversation"
	"github.com/nidhogg/xoxo/internal/events"
	"github.com/nidhogg/xoxo/internal/gateway"
	"github.com/nidhogg/xoxo/internal/metrics"
	"github.com/nidhogg/xoxo/internal/persona"
	"github.com/nidhogg/xoxo/internal/provider"
	"github.com/nidhogg/xoxo/internal/registry"
	"github.com/nidhogg/xoxo/internal/relation"
	pgstore "github.com/nidhogg/xoxo/internal/store"
	"github.com/nidhogg/xoxo/internal/transcript"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/xoxo.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Config loaded", zap.String("path", cfgPath))

	profile, err := persona.Resolve(cfg.Persona)
	if err != nil {
		logger.Fatal("failed to load persona", zap.String("persona", cfg.Persona), zap.Error(err))
	}
	logger = logger.With(zap.String("agent", profile.Short()))
	logger.Info("Starting xoxo agent", zap.String("persona", profile.Name))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("xoxo", logger)
	card := a2a.CardFromProfile(profile, cfg.Server.PublicURL)

	// Conversation driver
	roster := conversation.NewRoster(profile.Name)
	gen := conversation.NewGenerator(profile, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), logger)
	gen.OnFallback(collector.RecordFallback)
	client := a2a.NewClient(cfg.Transport.Timeout.Std(), logger)
	driver := conversation.NewDriver(profile, gen, client, roster, conversation.DriverConfig{
		InitialDelay: cfg.Conversation.InitialDelay.Std(),
		PartnerDelay: cfg.Conversation.PartnerDelay.Std(),
		RoundDelay:   cfg.Conversation.RoundDelay.Std(),
		IdleDelay:    cfg.Conversation.IdleDelay.Std(),
	}, logger)
	driver.SetStats(collector)
	driver.AddObserver(collector)

	checks := make(map[string]api.Pinger)

	transcripts, err := transcript.New(cfg.Transcript.Dir, profile, logger)
	if err != nil {
		logger.Fatal("failed to open transcript dir", zap.String("dir", cfg.Transcript.Dir), zap.Error(err))
	}
	driver.AddObserver(transcripts)

	// Initialize PostgreSQL store
	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.MigrationsDir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			states, loadErr := ps.LoadStates(ctx, profile.Name)
			if loadErr != nil {
				logger.Warn("failed to load conversations from DB", zap.Error(loadErr))
			} else {
				driver.Restore(states)
				logger.Info("Loaded conversations from DB", zap.Int("count", len(states)))
			}
			driver.AddObserver(ps)
			checks["postgres"] = ps
		}
	}

	// Relationship graph requires Neo4j
	var graph *relation.Graph
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := relation.Connect(ctx, cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, cfg.Database.Neo4j.Boost, logger)
		if gErr != nil {
			logger.Warn("Neo4j unavailable, running without relationship graph", zap.Error(gErr))
		} else {
			graph = g
			driver.AddObserver(g)
			checks["neo4j"] = g
		}
	}

	// Turn stream requires Redis
	var bus *events.Bus
	if cfg.Database.Redis.URL != "" {
		b, bErr := events.NewBus(ctx, cfg.Database.Redis.URL, logger)
		if bErr != nil {
			logger.Warn("Redis unavailable, running without turn stream", zap.Error(bErr))
		} else {
			bus = b
			driver.AddObserver(b)
			checks["redis"] = b
		}
	}

	// Initialize gateway
	gw := gateway.NewGateway(logger)
	gwPersona := &gateway.Persona{Name: profile.DisplayName(), Emoji: cfg.Gateway.Slack.IconEmoji}
	if sc := cfg.Gateway.Slack; sc.Enabled && sc.BotToken != "" {
		slackAdapter := gateway.NewSlackAdapter(sc.BotToken, logger)
		slackAdapter.SetPersona(profile.Name, gwPersona)
		gw.Register(slackAdapter, sc.ChannelID)
	}
	if dc := cfg.Gateway.Discord; dc.Enabled && dc.BotToken != "" {
		discordAdapter := gateway.NewDiscordAdapter(dc.BotToken, logger)
		discordAdapter.SetPersona(profile.Name, gwPersona)
		if dc.WebhookURL != "" {
			discordAdapter.SetWebhook(dc.ChannelID, dc.WebhookURL)
		}
		gw.Register(discordAdapter, dc.ChannelID)
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}
	if len(gw.Adapters()) > 0 {
		driver.AddObserver(gw)
		online := fmt.Sprintf("%s is online at %s", profile.DisplayName(), cfg.Server.PublicURL)
		if err := gw.Announce(ctx, profile.Name, online); err != nil {
			logger.Warn("startup announcement failed", zap.Error(err))
		}
	}

	// Inbound side
	responder, err := newResponder(cfg, profile, logger)
	if err != nil {
		logger.Fatal("failed to build responder", zap.Error(err))
	}
	server := a2a.NewServer(card, responder, logger)

	// Partner discovery
	reg, closeReg, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open registry", zap.String("type", cfg.Registry.Type), zap.Error(err))
	}
	defer closeReg()
	poller := registry.NewPoller(reg, roster, card, registry.PollConfig{
		Interval:   cfg.Registry.PollInterval.Std(),
		RetryDelay: cfg.Registry.RetryDelay.Std(),
	}, logger)
	poller.OnRosterChange(collector.SetRosterSize)

	// Build HTTP handler
	deps := api.Deps{
		Profile:       profile,
		Card:          card,
		Roster:        roster,
		Conversations: driver,
		A2A:           server,
		Transcripts:   transcripts,
		Checks:        checks,
		Metrics:       collector,
	}
	if graph != nil {
		deps.Affinities = graph
	}
	if bus != nil {
		deps.Turns = bus
	}
	if pgStore != nil {
		deps.History = pgStore
	}
	handler := api.NewHandler(deps, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("xoxo listening", zap.String("addr", srv.Addr), zap.String("public_url", cfg.Server.PublicURL))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return ignoreCanceled(poller.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(driver.Run(gctx)) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down xoxo agent...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("agent stopped with error", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if graph != nil {
		graph.Close(closeCtx)
	}
	if bus != nil {
		bus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	gw.Close()
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newResponder picks how inbound messages are answered.
func newResponder(cfg *config.Config, profile *persona.Profile, logger *zap.Logger) (a2a.Responder, error) {
	if cfg.Responder.Type != "llm" {
		return a2a.NewCannedResponder(profile), nil
	}
	var chain []provider.Provider
	for _, pc := range cfg.Providers {
		pc.Timeout = cfg.Transport.Timeout.Std()
		p, err := provider.New(pc, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(err))
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, errors.New("llm responder needs at least one provider")
	}
	router := provider.NewRouter(logger, chain...)
	return a2a.NewLLMResponder(router, cfg.Responder.Model, profile, cfg.Responder.HistoryLimit, logger), nil
}

// newRegistry opens the configured partner directory. The returned func
// releases it.
func newRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, func(), error) {
	switch cfg.Registry.Type {
	case "mongo":
		reg, err := registry.NewMongoRegistry(ctx, registry.MongoConfig{
			URI:          cfg.Registry.Mongo.URI,
			Database:     cfg.Registry.Mongo.Database,
			Collection:   cfg.Registry.Mongo.Collection,
			ActiveWindow: cfg.Registry.ActiveWindow.Std(),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reg.Close(ctx)
		}, nil
	default:
		partners := make([]conversation.Partner, 0, len(cfg.Registry.Static))
		for _, pc := range cfg.Registry.Static {
			partners = append(partners, conversation.Partner{
				ID:          pc.Name,
				DisplayName: persona.ShortName(pc.Name),
				URL:         pc.URL,
				Description: pc.Description,
			})
		}
		return registry.NewStaticRegistry(partners...), func() {}, nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
