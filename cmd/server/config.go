package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"issuesmap/internal/email"
	"issuesmap/internal/media"

	"github.com/rs/zerolog"
)

// config is everything read from the environment at startup.
type config struct {
	Port      string
	PublicURL string

	DBDriver string
	DBPath   string
	DBDSN    string

	UploadDir     string
	TokenSecret   string
	SecureCookies bool
	Demo          bool

	AnonTokenTTL    time.Duration
	SessionTokenTTL time.Duration
	SweepInterval   time.Duration

	SMTP      email.Config
	RedisURL  string
	AMQPURL   string
	AMQPQueue string
	MinIO     *media.MinIOConfig

	AdminLogin    string
	AdminEmail    string
	AdminPassword string

	Tracing     bool
	OTLP        string
	SampleRatio float64
}

// loadConfig reads the configuration through getenv so tests can supply
// their own environment.
func loadConfig(getenv func(string) string) config {
	cfg := config{
		Port:            getenv("PORT"),
		PublicURL:       strings.TrimRight(getenv("SERVER_PUBLIC_URL"), "/"),
		DBDriver:        strings.ToLower(getenv("ISSUESMAP_DB_DRIVER")),
		DBPath:          getenv("ISSUESMAP_DB_PATH"),
		DBDSN:           getenv("ISSUESMAP_DB_DSN"),
		UploadDir:       getenv("ISSUESMAP_UPLOAD_DIR"),
		TokenSecret:     getenv("ISSUESMAP_TOKEN_SECRET"),
		SecureCookies:   getenv("SECURE_COOKIES") == "true",
		Demo:            getenv("ISSUESMAP_DEMO") == "true",
		AnonTokenTTL:    durationOr(getenv("ISSUESMAP_ANON_TTL"), 28*24*time.Hour),
		SessionTokenTTL: durationOr(getenv("ISSUESMAP_SESSION_TTL"), 30*24*time.Hour),
		SweepInterval:   durationOr(getenv("ISSUESMAP_SWEEP_INTERVAL"), 15*time.Minute),
		RedisURL:        getenv("REDIS_URL"),
		AMQPURL:         getenv("AMQP_URL"),
		AMQPQueue:       getenv("AMQP_QUEUE"),
		AdminLogin:      getenv("ISSUESMAP_ADMIN_LOGIN"),
		AdminEmail:      getenv("ISSUESMAP_ADMIN_EMAIL"),
		AdminPassword:   getenv("ISSUESMAP_ADMIN_PASSWORD"),
		OTLP:            getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.Tracing = cfg.OTLP != ""
	cfg.SampleRatio, _ = strconv.ParseFloat(getenv("OTEL_TRACES_SAMPLER_ARG"), 64)

	if cfg.Port == "" {
		cfg.Port = "18920"
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "bolt"
	}
	if cfg.AMQPQueue == "" {
		cfg.AMQPQueue = "issuesmap.events"
	}

	dataDir := defaultDataDir(getenv)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(dataDir, "issuesmap.db")
	}
	if cfg.DBDriver == "sqlite" && cfg.DBDSN == "" {
		cfg.DBDSN = "file:" + filepath.Join(dataDir, "issuesmap.sqlite") + "?_pragma=foreign_keys(1)"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(dataDir, "files")
	}

	port, _ := strconv.Atoi(getenv("SMTP_PORT"))
	cfg.SMTP = email.Config{
		Host:         getenv("SMTP_HOST"),
		Port:         port,
		User:         getenv("SMTP_USER"),
		Pass:         getenv("SMTP_PASS"),
		EnvelopeFrom: getenv("SMTP_FROM"),
	}

	if endpoint := getenv("MINIO_ENDPOINT"); endpoint != "" {
		bucket := getenv("MINIO_BUCKET")
		if bucket == "" {
			bucket = "issuesmap"
		}
		cfg.MinIO = &media.MinIOConfig{
			Endpoint:  endpoint,
			AccessKey: getenv("MINIO_ACCESS_KEY"),
			SecretKey: getenv("MINIO_SECRET_KEY"),
			Bucket:    bucket,
			UseSSL:    getenv("MINIO_USE_SSL") == "true",
		}
	}

	return cfg
}

// defaultDataDir follows XDG so the server works from read-only locations.
func defaultDataDir(getenv func(string) string) string {
	dataDir := getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "issuesmap")
}

func durationOr(raw string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return def
}

func parseLogLevel(raw string) zerolog.Level {
	switch raw {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
