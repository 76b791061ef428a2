package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/farm-market-backend/internal/config"
	"github.com/shinyyama/farm-market-backend/internal/db"
	"github.com/shinyyama/farm-market-backend/internal/gcp"
	"github.com/shinyyama/farm-market-backend/internal/handler"
	"github.com/shinyyama/farm-market-backend/internal/mailer"
	appmw "github.com/shinyyama/farm-market-backend/internal/middleware"
	"github.com/shinyyama/farm-market-backend/internal/payment"
	"github.com/shinyyama/farm-market-backend/internal/realtime"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shinyyama/farm-market-backend/internal/server"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/shinyyama/farm-market-backend/internal/storage"
	"github.com/shinyyama/farm-market-backend/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(conn); err != nil {
		return err
	}
	store := repository.NewStore(conn)

	gcpOpts, credProjectID, err := gcp.ClientOptions(ctx, cfg.GoogleCredentialsJSON)
	if err != nil {
		return err
	}
	projectID := cfg.FirebaseProjectID
	if projectID == "" {
		projectID = credProjectID
	}

	hub := realtime.NewHub(logger)
	var (
		pusher service.Pusher = hub
		relay  *realtime.RedisRelay
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		relay = realtime.NewRedisRelay(rdb, hub, logger)
		pusher = relay
	}

	var mail service.Mailer
	if cfg.MailEnabled() {
		mail = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		logger.Info("SMTP_HOST not set, email notifications disabled")
	}

	var provider payment.Provider
	if cfg.StripeSecretKey != "" {
		provider = payment.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		logger.Info("STRIPE_SECRET_KEY not set, payments disabled")
	}

	var images service.ImageStore
	if cfg.StorageBucket != "" {
		gcs, err := storage.NewGCSImageStore(ctx, cfg.StorageBucket, gcpOpts...)
		if err != nil {
			logger.Warn("image storage unavailable", "err", err)
		} else {
			defer gcs.Close()
			images = gcs
		}
	}

	notify := service.NewNotificationService(store, pusher, mail, logger, cfg.FrontendURL)
	dispatcher := worker.NewDispatcher(notify, cfg.NotifyWorkers, cfg.NotifyQueueSize, logger)
	dispatcher.Start(ctx)

	services := server.Services{
		Users:    service.NewUserService(store),
		Products: service.NewProductService(store, images, dispatcher, logger, cfg.ProductRequireApproval),
		Orders: service.NewOrderService(store, dispatcher, logger, service.OrderOptions{
			DefaultDeliveryDays: cfg.DefaultDeliveryDays,
			TxTimeout:           cfg.OrderTxTimeout,
		}),
		Payments:      service.NewPaymentService(store, provider, dispatcher, logger, cfg.PaymentCurrency, cfg.OrderTxTimeout),
		Notifications: notify,
		Wishlist:      service.NewWishlistService(store),
		Follows:       service.NewFollowService(store),
		Reviews:       service.NewReviewService(store, dispatcher, logger),
		Messages:      service.NewMessageService(store, dispatcher, logger),
	}

	opts := server.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
		GitSHA:         cfg.GitSHA,
		BuildTime:      cfg.BuildTime,
	}
	authClient, err := appmw.NewFirebaseVerifier(ctx, projectID, gcpOpts...)
	if err != nil {
		logger.Warn("firebase auth unavailable, protected routes disabled", "err", err)
	} else {
		authMw := appmw.NewAuthMiddleware(authClient, store.Users())
		opts.RequireAuth = authMw.RequireAuth
		opts.OptionalAuth = authMw.OptionalAuth
		opts.Accounts = handler.AccountLookup(authClient)
		opts.WebSocket = realtime.ServeWS(hub, cfg.CORSAllowedOrigins, logger)
	}
	srv := server.New(services, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("starting server", "addr", addr, "git_sha", cfg.GitSHA)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil {
				logger.Warn("redis relay stopped, pushes stay local", "err", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		dispatcher.Stop()
		logger.Info("notification queue drained", "handled", dispatcher.Handled(), "dropped", dispatcher.Dropped())
		return err
	})
	return g.Wait()
}
