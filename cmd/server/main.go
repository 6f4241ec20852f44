package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
	"github.com/rl1809/warehouse-ledger/internal/adapter/storage"
	"github.com/rl1809/warehouse-ledger/internal/config"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
	"github.com/rl1809/warehouse-ledger/internal/logging"
)

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "ledger-server",
		Short:         "Serve the warehouse inventory ledger over HTTP and gRPC",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file (yaml, toml or json); LEDGER_* env vars override it")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "ledger-server:", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Initialize the ledger store
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, storage.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	defer store.Close()
	log.WithField("driver", cfg.Database.Driver).Info("connected to ledger store")

	opts := []service.Option{service.WithLogger(log)}

	// Initialize Redis
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, service.WithCache(storage.NewRedisAdapter(rdb, cfg.Redis.CacheTTL, cfg.Redis.IdempotencyTTL)))
		log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	ledger := service.NewLedgerService(store, opts...)

	var wg sync.WaitGroup
	if cfg.Reconcile.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.RunReconciler(ctx, cfg.Reconcile.Interval, cfg.Reconcile.AutoRepair)
		}()
		log.WithFields(logrus.Fields{
			"interval":    cfg.Reconcile.Interval,
			"auto_repair": cfg.Reconcile.AutoRepair,
		}).Info("started reconciler")
	}

	errc := make(chan error, 2)

	// Start gRPC server
	var grpcServer *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		grpcServer = grpc.NewServer()
		handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger))

		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
		}
		go func() {
			log.Infof("gRPC server listening on %s", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// Start HTTP server
	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		mux := http.NewServeMux()
		handler.NewHTTPHandler(ledger).Register(mux)
		httpServer = &http.Server{
			Addr:    cfg.Server.HTTPAddr,
			Handler: mux,
		}
		go func() {
			log.Infof("HTTP server listening on %s", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("shutting down")
	case serveErr = <-errc:
		log.WithError(serveErr).Error("server failed, shutting down")
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP shutdown")
		}
		log.Info("HTTP server stopped")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
	}

	// Stop the reconciler before the store closes
	cancel()
	wg.Wait()
	log.Info("connections closed")
	return serveErr
}
