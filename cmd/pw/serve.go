package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/config"
	"github.com/alfredjeanlab/paywall/internal/events"
	"github.com/alfredjeanlab/paywall/internal/hooks"
	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/server"
	"github.com/alfredjeanlab/paywall/internal/store"
	"github.com/alfredjeanlab/paywall/internal/store/memory"
	"github.com/alfredjeanlab/paywall/internal/store/postgres"
	paywallsync "github.com/alfredjeanlab/paywall/internal/sync"
)

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store == config.StoreMemory {
		return memory.New(), nil
	}
	return postgres.New(cfg.DatabaseURL)
}

// hooksQueue is the NATS queue group hook runners join.
const hooksQueue = "paywall-hooks"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the paywall HTTP and gRPC server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		envFile, _ := cmd.Flags().GetString("env-file")
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		logger.Info("store opened", "backend", cfg.Store)

		// Embedded broker, when asked for and no external one is configured.
		if cfg.NATSURL == "" && cfg.NATSEmbed {
			ns, err := events.StartEmbeddedNATS("127.0.0.1", -1)
			if err != nil {
				st.Close()
				return err
			}
			defer ns.Shutdown()
			cfg.NATSURL = ns.ClientURL()
			logger.Info("embedded NATS started", "nats_url", cfg.NATSURL)
		}

		// Committed events go to SSE clients and, when configured, NATS.
		hub := server.NewEventHub()
		publishers := events.MultiPublisher{hub}
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publishers = append(publishers, pub)
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			logger.Info("NATS events disabled (PAYWALL_NATS_URL not set)")
		}

		opts := []ledger.Option{ledger.WithPublisher(publishers)}
		if cfg.Admin != nil {
			opts = append(opts, ledger.WithBootstrapAdmin(*cfg.Admin))
		}
		l := ledger.New(st, cfg.ProgramID, opts...)

		metrics := server.NewMetrics()
		var limiter *server.RateLimiter
		if cfg.RateLimit > 0 {
			limiter = server.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, metrics)
		}
		paywallServer := server.NewPaywallServer(l, hub, metrics)
		grpcServer := server.NewGRPCServer(paywallServer, cfg.AuthToken, limiter)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publishers.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           paywallServer.NewHTTPHandler(cfg.AuthToken, limiter),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start sync scheduler if any destinations are configured.
		var scheduler *paywallsync.Scheduler
		if cfg.SyncInterval > 0 {
			var dests []paywallsync.Destination

			if cfg.SyncS3Bucket != "" {
				s3Dest, err := paywallsync.NewS3Destination(
					context.Background(),
					cfg.SyncS3Bucket,
					cfg.SyncS3Key,
					cfg.SyncS3Region,
					cfg.SyncS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 sync destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
				}
			}

			if cfg.SyncGitRepo != "" {
				dests = append(dests, paywallsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
				logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
			}

			if len(dests) > 0 {
				scheduler = paywallsync.NewScheduler(l, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		// Start event hooks if a hooks file is configured. They consume
		// the NATS stream, so they need a broker.
		var hooksCancel context.CancelFunc
		if cfg.HooksFile != "" {
			hookList, err := hooks.LoadFile(cfg.HooksFile)
			switch {
			case err != nil:
				logger.Error("failed to load hooks", "file", cfg.HooksFile, "err", err)
			case cfg.NATSURL == "":
				logger.Warn("hooks configured but NATS is disabled; set PAYWALL_NATS_URL or PAYWALL_NATS_EMBEDDED")
			default:
				conn, err := events.NewNATSSubscriber(cfg.NATSURL)
				if err != nil {
					logger.Error("failed to create hooks subscriber", "err", err)
					break
				}
				// Replicas sharing a hooks file split the events between them.
				hooksSub := conn.InQueue(hooksQueue)
				handler := hooks.NewHandler(hookList, logger)
				var hooksCtx context.Context
				hooksCtx, hooksCancel = context.WithCancel(context.Background())
				go func() {
					if err := handler.StartSubscriber(hooksCtx, hooksSub); err != nil {
						logger.Error("hooks subscriber error", "err", err)
					}
					if n := hooksSub.Dropped(); n > 0 {
						logger.Warn("hooks subscriber dropped events", "count", n)
					}
					hooksSub.Close()
				}()
			}
		}

		logger.Info("paywall server started",
			"program_id", cfg.ProgramID,
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if hooksCancel != nil {
			hooksCancel()
			logger.Info("hooks subscriber stopped")
		}

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publishers.Close(); err != nil {
			logger.Error("error closing publishers", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("env-file", ".env", "dotenv file loaded before reading PAYWALL_* variables")
}
