package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/teresa-solution/lead-finance-service/internal/access"
	"github.com/teresa-solution/lead-finance-service/internal/config"
	"github.com/teresa-solution/lead-finance-service/internal/crypto"
	"github.com/teresa-solution/lead-finance-service/internal/monitoring"
	"github.com/teresa-solution/lead-finance-service/internal/service"
	"github.com/teresa-solution/lead-finance-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	monitoring.ConfigureLogger(cfg.Log.Level, cfg.Log.Pretty)

	ctx := context.Background()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("Failed to open store")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled || cfg.Security.CapabilitySource == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Redis.Enabled {
		backend = store.NewCachedStore(backend, rdb, cfg.Redis.CacheTTL)
	} else if rdb != nil {
		defer rdb.Close()
	}
	defer backend.Close()

	var checker access.CapabilityChecker = access.AdminIdentity{ID: cfg.Security.AdminID}
	if cfg.Security.CapabilitySource == "redis" {
		checker = access.NewRedisCapabilities(rdb, cfg.Security.CapabilityPrefix)
	}

	cipher, err := newCipher(cfg.Security)
	if err != nil {
		// Quoting still works; financial reads and writes report the
		// missing key per request.
		log.Warn().Err(err).Msg("Financial encryption disabled")
	}

	svc := service.NewFinancialService(backend, backend, cipher, access.NewGuard(checker))

	monitoring.InitMetrics()

	log.Info().Msgf("Starting Lead Finance Service on port %d", cfg.Server.GRPCPort)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen")
	}

	server := grpc.NewServer()
	service.RegisterLeadFinanceServiceServer(server, service.NewLeadFinanceServer(svc))

	go func() {
		log.Info().Msgf("gRPC server listening at %v", lis.Addr())
		if err := server.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("Failed to start gRPC server")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Msgf("HTTP server for health checks and metrics started on port %d", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	server.GracefulStop()
	log.Info().Msg("Server exiting")
}

func openBackend(ctx context.Context, cfg config.Config) (store.Backend, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := store.NewPool(ctx, cfg.Database.DSN(), store.DefaultPoolOptions())
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(pool), nil
	case "dynamodb":
		client, err := store.ConnectDynamoDB(ctx, store.DynamoOptions{
			Region:          cfg.Dynamo.Region,
			Endpoint:        cfg.Dynamo.Endpoint,
			AccessKeyID:     cfg.Dynamo.AccessKeyID,
			SecretAccessKey: cfg.Dynamo.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store.NewDynamoStore(client, cfg.Dynamo.LeadsTable, cfg.Dynamo.AuditTable), nil
	default:
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

func newCipher(sec config.SecurityConfig) (*crypto.Cipher, error) {
	kd, err := crypto.ParseKeyDerivation(sec.KeyDerivation)
	if err != nil {
		return nil, err
	}
	return crypto.NewCipher(sec.EncryptionKey, kd)
}
