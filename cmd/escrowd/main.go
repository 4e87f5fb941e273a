package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Handik4/GenLayer-Escrow/config"
	"github.com/Handik4/GenLayer-Escrow/core"
	"github.com/Handik4/GenLayer-Escrow/native/arbitration"
	"github.com/Handik4/GenLayer-Escrow/observability/logging"
	"github.com/Handik4/GenLayer-Escrow/observability/otel"
	"github.com/Handik4/GenLayer-Escrow/rpc"
	"github.com/Handik4/GenLayer-Escrow/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("escrowd", env, logging.Options{
		Path:       cfg.Log.Path,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Enabled {
		shutdown, err := otel.Init(context.Background(), otel.Config{
			ServiceName: "escrowd",
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	db, err := openDatabase(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	fetcher := arbitration.NewHTTPProofFetcher(time.Duration(cfg.Oracle.ProofTimeoutSeconds) * time.Second)
	oracle := arbitration.NewHTTPOracle(arbitration.OracleConfig{
		URL:     cfg.Oracle.URL,
		Model:   cfg.Oracle.Model,
		APIKey:  cfg.OracleAPIKey(),
		Timeout: time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
	})

	node := core.NewNode(db, fetcher, oracle)

	alloc, err := cfg.GenesisAlloc()
	if err != nil {
		logger.Error("Invalid genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.ApplyGenesisAlloc(alloc); err != nil {
		logger.Error("Failed to apply genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}

	token := cfg.RPCToken()
	if token == "" {
		logger.Warn("RPC authentication disabled; set the token environment variable for production", slog.String("env", cfg.RPCTokenEnv))
	}

	server := rpc.NewServer(node, token, logger)

	go func() {
		if err := server.Start(cfg.RPCAddress); err != nil {
			logger.Error("RPC server terminated", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	go func() {
		if err := serveOps(cfg.OpsAddress); err != nil {
			logger.Error("Ops server terminated", slog.Any("error", err))
		}
	}()

	logger.Info("escrowd started",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", cfg.RPCAddress),
		slog.String("ops", cfg.OpsAddress),
		slog.String("db", cfg.DBBackend),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("escrowd shutting down")
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DBBackend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "ledger.db"))
	default:
		return storage.NewLevelDB(cfg.DataDir)
	}
}

func serveOps(addr string) error {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
