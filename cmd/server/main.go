package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"issuesmap/internal/accounts"
	"issuesmap/internal/database"
	"issuesmap/internal/database/boltstore"
	"issuesmap/internal/database/sqlstore"
	"issuesmap/internal/email"
	"issuesmap/internal/events"
	"issuesmap/internal/handlers"
	"issuesmap/internal/identity"
	"issuesmap/internal/issues"
	"issuesmap/internal/media"
	"issuesmap/internal/metrics"
	"issuesmap/internal/reports"
	"issuesmap/internal/routing"
	"issuesmap/internal/settings"
	"issuesmap/internal/tracing"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	zerolog.SetGlobalLevel(parseLogLevel(os.Getenv("LOG_LEVEL")))

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Str("version", version).Msg("Starting Issues Map")

	cfg := loadConfig(os.Getenv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing {
		tp, err := tracing.Init(ctx, tracing.Config{
			Endpoint:    cfg.OTLP,
			SampleRatio: cfg.SampleRatio,
			Version:     version,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
		log.Info().Msg("Tracing enabled")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("Failed to open database")
	}
	defer store.Close()

	bucket, err := openBucket(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open file storage")
	}
	files := media.NewService(bucket)

	var cache settings.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		cache = settings.NewRedisCache(client, time.Minute)
		log.Info().Str("addr", opts.Addr).Msg("Settings cache enabled")
	}
	loader := settings.NewLoader(store, cache, store)

	hub := events.NewHub(nil)
	defer hub.Close()
	var broker events.Sink
	if cfg.AMQPURL != "" {
		amqp, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to message broker")
		}
		defer amqp.Close()
		broker = amqp
		log.Info().Str("queue", cfg.AMQPQueue).Msg("Publishing events to message broker")
	}

	var mailer email.Mailer
	if sender := email.NewSender(cfg.SMTP); sender.Enabled() {
		mailer = sender
		log.Info().Str("host", cfg.SMTP.Host).Int("port", cfg.SMTP.Port).Msg("SMTP configured")
	} else {
		log.Warn().Msg("SMTP is not configured, reports cannot be sent")
	}

	svc := issues.NewService(issues.Deps{
		Store:     store,
		Settings:  loader,
		Media:     files,
		Artifacts: reports.NewArtifacts(bucket, "/files"),
		Mailer:    mailer,
		Events:    events.NewBus(hub, broker),
		SiteURL:   cfg.PublicURL,
		Demo:      cfg.Demo,
	})
	acc := accounts.NewService(store)

	if cfg.AdminLogin != "" {
		if err := bootstrapAdmin(ctx, acc, store, cache, cfg); err != nil {
			log.Fatal().Err(err).Str("login", cfg.AdminLogin).Msg("Failed to bootstrap admin account")
		}
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		rand.Read(secret)
		log.Warn().Msg("ISSUESMAP_TOKEN_SECRET is not set, identities will not survive a restart")
	}
	resolver := identity.NewResolver(
		identity.NewTokens(secret, cfg.AnonTokenTTL, cfg.SessionTokenTTL),
		store,
		cfg.SecureCookies,
	)

	h := handlers.NewHandler(svc, acc, resolver, files, handlers.Config{
		PublicURL: cfg.PublicURL,
	})

	handler := routing.SetupRouter(routing.Config{
		Handlers:      h,
		Resolver:      resolver,
		Settings:      loader,
		Events:        hub,
		Logger:        log.Logger,
		SecureCookies: cfg.SecureCookies,
		CSRFKey:       secret,
	})

	metrics.StartCollector(ctx, metrics.StatsSource{
		IssuesByStatus:   store.CountIssuesByStatus,
		WebsocketClients: hub.ClientCount,
	}, time.Minute)
	go sweepOrphans(ctx, files, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("address", srv.Addr).
		Str("url", "http://localhost:"+cfg.Port).
		Bool("secure_cookies", cfg.SecureCookies).
		Bool("demo", cfg.Demo).
		Str("database", cfg.DBDriver).
		Msg("Starting HTTP server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
	log.Info().Msg("Server stopped")
}

func openStore(cfg config) (database.Store, error) {
	switch cfg.DBDriver {
	case "bolt":
		store, err := boltstore.Open(boltstore.Options{Path: cfg.DBPath})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.DBPath).Msg("Database opened")
		return store, nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("ISSUESMAP_DB_DSN is required for %s", cfg.DBDriver)
		}
		store, err := sqlstore.Open(sqlstore.Options{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.DBDriver).Msg("Database opened")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func openBucket(ctx context.Context, cfg config) (media.Bucket, error) {
	if cfg.MinIO != nil {
		bucket, err := media.NewMinIOBucket(ctx, *cfg.MinIO)
		if err != nil {
			return nil, err
		}
		log.Info().Str("endpoint", cfg.MinIO.Endpoint).Str("bucket", cfg.MinIO.Bucket).Msg("Using object storage")
		return bucket, nil
	}
	bucket, err := media.NewFSBucket(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", cfg.UploadDir).Msg("Using local file storage")
	return bucket, nil
}

// bootstrapAdmin makes sure the configured admin account exists and is
// on the moderators list.
func bootstrapAdmin(ctx context.Context, acc *accounts.Service, store settings.Source, cache settings.Cache, cfg config) error {
	user, created, err := acc.EnsureUser(ctx, accounts.Registration{
		Login:       cfg.AdminLogin,
		Email:       cfg.AdminEmail,
		DisplayName: cfg.AdminLogin,
		Password:    cfg.AdminPassword,
	})
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("login", user.Login).Msg("Admin account created")
	}

	values, err := store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	ids := settings.Parse(values).ModeratorIDs
	for _, id := range ids {
		if id == user.ID {
			return nil
		}
	}
	if values == nil {
		values = make(map[string]string)
	}
	values[settings.OptModeratorsList] = strings.Join(append(ids, user.ID), ",")
	if err := store.SaveSettings(ctx, values); err != nil {
		return err
	}
	if cache != nil {
		cache.Invalidate(ctx)
	}
	log.Info().Str("login", user.Login).Msg("Admin added to moderators")
	return nil
}

func sweepOrphans(ctx context.Context, files *media.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := files.SweepOrphans(ctx); err != nil {
				log.Warn().Err(err).Msg("Orphan sweep failed")
			}
		}
	}
}
