// boardstore server
// Serves whiteboard snapshots and their version history over HTTP and gRPC
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/nainya/boardstore/internal/config"
	"github.com/nainya/boardstore/internal/events"
	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/internal/metrics"
	"github.com/nainya/boardstore/internal/server"
	"github.com/nainya/boardstore/pkg/codec"
	"github.com/nainya/boardstore/pkg/rpc"
	"github.com/nainya/boardstore/pkg/store"
	"github.com/nainya/boardstore/pkg/wal"
)

func main() {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "boardstore: %v\n", err)
		os.Exit(2)
	}

	logger.InitGlobalLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logger.GetGlobalLogger()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server failed").Err(err).Send()
	}
}

// openStore returns the configured store and a function releasing it
func openStore(cfg config.Config, log *logger.Logger) (store.Store, func() error, error) {
	blank, err := codec.Blank(cfg.Width, cfg.Height, cfg.Background)
	if err != nil {
		return nil, nil, err
	}

	if cfg.DataDir == "" {
		st, err := store.NewMemoryStore(blank)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, wal.WALFilePrefix)
	st, err := store.OpenLogStore(path, blank)
	if err != nil {
		return nil, nil, err
	}
	log.LogRecovery(path, st.RecoveryStats(), st.Len())
	return st, st.Close, nil
}

func run(cfg config.Config, log *logger.Logger) error {
	storage := "memory"
	if cfg.DataDir != "" {
		storage = cfg.DataDir
	}
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	log.LogServerStart(httpAddr, grpcAddr, storage)

	var ready atomic.Bool
	m := metrics.NewMetrics()
	done := make(chan struct{})
	defer close(done)
	go m.UpdateUptime(done)

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := events.NewHub(cfg.AllowedOrigins, log, m)
	defer hub.Close()
	backend := server.NewBackend(st, hub, log, m)

	var limiter *server.IPRateLimit
	if cfg.RateLimit > 0 {
		limiter = server.NewIPRateLimit(cfg.RateLimit, cfg.RateBurst)
		limiter.TrustProxies(cfg.TrustedProxies)
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					limiter.Cleanup(time.Hour)
				case <-done:
					return
				}
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           server.NewAPI(backend, hub, limiter, log, m),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Create gRPC server with options
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(100*1024*1024), // 100 MB
		grpc.MaxSendMsgSize(100*1024*1024), // 100 MB
		grpc.ChainUnaryInterceptor(
			server.GrpcMetricsInterceptor(m, log),
			server.GrpcIdentityInterceptor(log),
		),
	)
	rpc.RegisterSnapshotStoreServer(grpcServer, server.NewServer(backend))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Register reflection service for grpcurl/grpcui
	reflection.Register(grpcServer)

	errCh := make(chan error, 3)

	if cfg.GRPCPort != 0 {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var obs *server.ObservabilityServer
	if cfg.MetricsPort != 0 {
		obs = server.NewObservabilityServer(cfg.MetricsPort, m, func() error {
			if !ready.Load() {
				return errors.New("starting")
			}
			return nil
		}, log)
		go func() {
			if err := obs.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	ready.Store(true)
	healthServer.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	log.LogServerReady(httpAddr, grpcAddr)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
	case runErr = <-errCh:
	}

	log.LogServerShutdown()
	ready.Store(false)
	healthServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("HTTP shutdown incomplete").Err(err).Send()
	}
	grpcServer.GracefulStop()
	if obs != nil {
		obs.Shutdown(ctx)
	}
	return runErr
}
