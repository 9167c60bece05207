package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/comptoirhq/comptoir/internal/catalog"
	"github.com/comptoirhq/comptoir/internal/channel"
	"github.com/comptoirhq/comptoir/internal/config"
	"github.com/comptoirhq/comptoir/internal/contact"
	"github.com/comptoirhq/comptoir/internal/conversation"
	"github.com/comptoirhq/comptoir/internal/db"
	"github.com/comptoirhq/comptoir/internal/delegated"
	"github.com/comptoirhq/comptoir/internal/delivery"
	"github.com/comptoirhq/comptoir/internal/dialogue"
	"github.com/comptoirhq/comptoir/internal/document"
	"github.com/comptoirhq/comptoir/internal/history"
	"github.com/comptoirhq/comptoir/internal/intent"
	"github.com/comptoirhq/comptoir/internal/logger"
	"github.com/comptoirhq/comptoir/internal/order"
	"github.com/comptoirhq/comptoir/internal/pipeline"
	"github.com/comptoirhq/comptoir/internal/respond"
	"github.com/comptoirhq/comptoir/internal/server"
	"github.com/comptoirhq/comptoir/internal/tenant"
	"github.com/comptoirhq/comptoir/internal/transport/messenger"
	"github.com/comptoirhq/comptoir/internal/transport/twilio"
	"github.com/comptoirhq/comptoir/internal/transport/whatsappcloud"
	"github.com/comptoirhq/comptoir/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			tenant.NewService,
			contact.NewService,
			catalog.NewService,
			order.NewService,
			history.NewService,
			delivery.NewLog,
			provideClassifier,
			provideConversationStore,
			provideDelegatedClient,
			provideDocumentClient,
			provideDialogueEngine,
			provideCoordinator,
			provideChannelRegistry,
			provideDeliveryService,
			provideDedupe,
			providePipeline,
			webhook.NewPingHandler,
			provideTwilioHandler,
			provideWhatsAppCloudHandler,
			provideMessengerHandler,
			provideServer,
		),
		fx.Invoke(
			startRoutingRefresh,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level, cfg.Log.Format)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Connect(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideClassifier() *intent.Classifier {
	return intent.NewClassifier(intent.DefaultVocabulary)
}

func provideConversationStore(log *slog.Logger, conn *pgxpool.Pool, cfg config.Config) *conversation.Store {
	return conversation.NewStore(log, conn, cfg.Pipeline.SessionWindow.Duration)
}

func provideDelegatedClient(log *slog.Logger, cfg config.Config) *delegated.Client {
	return delegated.NewClient(log, cfg.Delegated.BaseURL, cfg.Delegated.Timeout.Duration)
}

func provideDocumentClient(log *slog.Logger, cfg config.Config) *document.Client {
	return document.NewClient(log, cfg.Documents.BaseURL, cfg.Documents.Timeout.Duration)
}

func provideDialogueEngine(log *slog.Logger, catalogService *catalog.Service, orderService *order.Service, documents *document.Client) *dialogue.Engine {
	return dialogue.NewEngine(log, catalogService, orderService, documents)
}

func provideCoordinator(log *slog.Logger, generator *delegated.Client, engine *dialogue.Engine, historyService *history.Service) *respond.Coordinator {
	return respond.NewCoordinator(log, generator, engine, historyService)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config) *channel.Registry {
	registry := channel.NewRegistry()
	twilioClient := twilio.NewClient(log, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.BaseURL, cfg.Twilio.Timeout.Duration)
	registry.MustRegister(twilioClient.SMSTransport())
	registry.MustRegister(twilioClient.WhatsAppTransport())
	registry.MustRegister(whatsappcloud.New(log, cfg.WhatsApp.AccessToken, cfg.WhatsApp.BaseURL, cfg.WhatsApp.Timeout.Duration))
	registry.MustRegister(messenger.New(log, cfg.Messenger.PageToken, cfg.Messenger.BaseURL, cfg.Messenger.Timeout.Duration))
	return registry
}

func provideDeliveryService(log *slog.Logger, registry *channel.Registry, store *conversation.Store, deliveryLog *delivery.Log, cfg config.Config) *delivery.Service {
	return delivery.NewService(log, registry, store, deliveryLog, cfg.Pipeline.SessionWindow.Duration, cfg.Pipeline.MaxAttempts)
}

func provideDedupe(log *slog.Logger, conn *pgxpool.Pool, cfg config.Config) *pipeline.Dedupe {
	return pipeline.NewDedupe(log, conn, cfg.Pipeline.DedupWindow.Duration)
}

func providePipeline(
	log *slog.Logger,
	tenants *tenant.Service,
	contacts *contact.Service,
	conversations *conversation.Store,
	classifier *intent.Classifier,
	coordinator *respond.Coordinator,
	deliverer *delivery.Service,
	dedupe *pipeline.Dedupe,
	cfg config.Config,
) *pipeline.Service {
	return pipeline.NewService(log, context.Background(), tenants, contacts, conversations, classifier, coordinator, deliverer, dedupe, cfg.Pipeline.AckBudget.Duration)
}

func provideTwilioHandler(log *slog.Logger, p *pipeline.Service, cfg config.Config) *webhook.TwilioHandler {
	return webhook.NewTwilioHandler(log, p, cfg.Twilio.AuthToken, cfg.Server.PublicBaseURL)
}

func provideWhatsAppCloudHandler(log *slog.Logger, p *pipeline.Service, cfg config.Config) *webhook.WhatsAppCloudHandler {
	return webhook.NewWhatsAppCloudHandler(log, p, cfg.WhatsApp.VerifyToken)
}

func provideMessengerHandler(log *slog.Logger, p *pipeline.Service, cfg config.Config) *webhook.MessengerHandler {
	return webhook.NewMessengerHandler(log, p, cfg.Messenger.AppSecret, cfg.Messenger.VerifyToken)
}

func provideServer(cfg config.Config, ping *webhook.PingHandler, twilioHandler *webhook.TwilioHandler, whatsappHandler *webhook.WhatsAppCloudHandler, messengerHandler *webhook.MessengerHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, ping, twilioHandler, whatsappHandler, messengerHandler)
}

// startRoutingRefresh builds the routing index once at startup and keeps it
// fresh on a cron schedule, pruning expired dedup receipts on the same tick.
func startRoutingRefresh(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, tenants *tenant.Service, dedupe *pipeline.Dedupe) error {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(cfg.Pipeline.RoutingRefresh, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := tenants.Rebuild(ctx); err != nil {
			log.Error("routing index refresh failed", slog.Any("error", err))
		}
		if err := dedupe.Prune(ctx); err != nil {
			log.Warn("receipt prune failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule routing refresh %q: %w", cfg.Pipeline.RoutingRefresh, err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := tenants.Rebuild(ctx); err != nil {
				return fmt.Errorf("initial routing index build: %w", err)
			}
			if cfg.Fallback.Enabled() {
				if err := tenants.SetFallback(ctx, cfg.Fallback.TenantID, cfg.Fallback.AccountID); err != nil {
					return fmt.Errorf("configure fallback account: %w", err)
				}
			}
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx := scheduler.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, p *pipeline.Service, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			// Drain in-flight conversations before the DB pool closes.
			p.Wait()
			return nil
		},
	})
}
