package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core/async"
	"github.com/joseph-ayodele/clinical-extract/internal/core/pipeline"
	repo "github.com/joseph-ayodele/clinical-extract/internal/repository"
	svc "github.com/joseph-ayodele/clinical-extract/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(2)
	}

	// Runs live only as long as the process.
	db, err := repo.Open(ctx, repo.MemoryDSN, logger)
	if err != nil {
		logger.Error("failed to open session store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping session store", "error", err)
		os.Exit(1)
	}

	runs := repo.NewRunRepository(db, logger)
	queue := async.NewRunQueue(pipe.Processor, runs, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.QueueSize),
		async.WithRunTimeout(cfg.Queue.RunTimeout),
	)
	service := svc.NewService(pipe.Processor, runs, queue, nil, pipe.Defaults, cfg.Batch, logger)

	// HTTP
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              listenAddr(cfg.Server.HTTPAddr),
		Handler:           svc.NewRouter(svc.NewHandler(service, cfg.Server.MaxUploadBytes, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC
	grpcAddr := listenAddr(cfg.Server.GRPCAddr)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", grpcAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := svc.NewGRPC(service, logger)

	logger.Info("clinicald listening",
		"http_addr", httpServer.Addr,
		"grpc_addr", grpcAddr,
		"strategies", pipe.Text.Strategies(),
		"engine", string(pipe.Fields.Engine),
		"default_fields", pipe.Defaults.Len())

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	queue.Shutdown(shutdownCtx)
}

func listenAddr(addr string) string {
	if addr != "" && !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
