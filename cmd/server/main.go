package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jermoo/realms-core/internal/acl"
	"github.com/jermoo/realms-core/internal/aggregate"
	"github.com/jermoo/realms-core/internal/clock"
	"github.com/jermoo/realms-core/internal/config"
	"github.com/jermoo/realms-core/internal/httpapi"
	"github.com/jermoo/realms-core/internal/index"
	"github.com/jermoo/realms-core/internal/journal"
	"github.com/jermoo/realms-core/internal/projector"
	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/realms"
	"github.com/jermoo/realms-core/internal/secrets"
	"github.com/jermoo/realms-core/internal/token"
	"github.com/jermoo/realms-core/internal/wellknown"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", config.Version).
		Str("service", "realms-core").
		Msg("realms server starting")

	runtimeCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load runtime configuration")
	}

	secretsClient := secrets.NewClient()

	dbConfig, err := secretsClient.GetDatabaseConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load database configuration")
	}

	ctx := context.Background()
	pool, err := journal.OpenPool(ctx, dbConfig.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database connection pool")
	}
	defer pool.Close()

	if err := journal.RunMigrations(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to run database migrations")
	}

	evtJournal := journal.NewPostgresJournal(pool)

	idx, closeIndex := newIndex(ctx, secretsClient)
	if closeIndex != nil {
		defer closeIndex()
	}

	resolver := wellknown.NewResolver(&http.Client{Timeout: 10 * time.Second}, runtimeCfg.WellKnownRetry)

	runtime := aggregate.NewRuntime(
		runtimeCfg.Aggregate, clock.System{}, evtJournal, evtJournal, resolver, idx, runtimeCfg.JournalRetry, log.Logger,
	)

	offsets := projector.NewPostgresOffsetStore(pool, "realm")
	proj := projector.New(evtJournal, idx, runtime, offsets, runtimeCfg.Projector, runtimeCfg.IndexRetry, log.Logger)
	go func() {
		if err := proj.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("projector stopped")
		}
	}()

	acls := newACLs()
	verifier := token.NewVerifier(idx)
	service := realms.New(runtime, idx, acls, log.Logger)
	handlers := httpapi.NewHandlers(service)
	router := httpapi.NewRouter(handlers, verifier)

	port := 8080
	if p := os.Getenv("PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("event", "server_started").
			Str("version", config.Version).
			Int("port", port).
			Msg("server listening")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}

// newIndex selects the Redis-backed read index (INDEX_BACKEND=redis) or
// falls back to the in-memory one for single-node deployments.
func newIndex(ctx context.Context, secretsClient *secrets.Client) (readIndex, func()) {
	if os.Getenv("INDEX_BACKEND") == "redis" {
		redisCfg, err := secretsClient.GetRedisConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load redis configuration")
		}
		redisIndex, err := index.NewRedis(ctx, index.RedisConfig{URL: redisCfg.URL, KeyPrefix: redisCfg.KeyPrefix})
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to redis, falling back to in-memory index")
			return index.NewMemory(), nil
		}
		return redisIndex, func() { redisIndex.Close() }
	}
	return index.NewMemory(), nil
}

// readIndex is the union of capabilities main wires into the aggregate
// runtime, the token verifier, and the façade.
type readIndex interface {
	index.Index
	token.RealmLookup
	realmdomain.IssuerIndex
}

// newACLs returns the configured ACL backend, which is always AllowAll;
// acl.Static is not wired here.
func newACLs() acl.Acls {
	return acl.AllowAll{}
}
