package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/config"
	"github.com/BrandonDHaskell/tagtracer/internal/db"
	"github.com/BrandonDHaskell/tagtracer/internal/grpcapi"
	"github.com/BrandonDHaskell/tagtracer/internal/httpapi"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/hostbridge"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/service"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/source"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/memory"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/store/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "tagtracer-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	var kv store.KVStore
	switch cfg.Store {
	case "memory":
		kv = memory.NewKVStore()
		logger.Printf("store=memory; scan history will not survive restarts")
	default:
		conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			logger.Fatalf("open db: %v", err)
		}
		defer conn.Close()

		writer := db.NewWorker(conn)
		defer writer.Close()

		kv = sqlite.NewKVStore(conn, writer)
		logger.Printf("store=sqlite path=%s", cfg.DBPath)
	}

	// Admin gate
	policy := service.AdminPolicy{Open: cfg.AdminOpen, PasswordHash: cfg.AdminPasswordHash}
	if policy.PasswordHash == "" && cfg.AdminPassword != "" {
		h, err := service.HashAdminPassword(cfg.AdminPassword)
		if err != nil {
			logger.Fatalf("admin password: %v", err)
		}
		policy.PasswordHash = h
	}
	if cfg.Env == "dev" && cfg.AdminPasswordHash == "" {
		logger.Printf("admin gate using plain password from config (dev)")
	}

	// Source: host bridge when a shell attaches, simulation otherwise.
	sim := source.NewSimulated(source.SimConfig{
		Delay:       cfg.SimDelay,
		SuccessRate: cfg.SimSuccessRate,
		DemoID:      cfg.SimDemoID,
		DemoRate:    cfg.SimDemoRate,
	})
	var (
		bridge *hostbridge.Bridge
		host   source.Host
	)
	if cfg.HostBridge {
		bridge = hostbridge.New()
		host = bridge
	}

	tracer := service.NewTracer(service.TracerDeps{
		Source:         source.NewAuto(host, sim, logger),
		History:        service.NewHistoryLog(kv, logger),
		Gate:           service.NewAdminGate(policy),
		ProfileBaseURL: cfg.ProfileBaseURL,
		Logger:         logger,
	})
	defer tracer.Close()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger: logger,
		Addr:   cfg.HTTPAddr,
		Tracer: tracer,
		Bridge: bridge,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	// gRPC health
	var health *grpcapi.Server
	if cfg.GRPCAddr != "" {
		health = grpcapi.NewServer(grpcapi.Dependencies{
			Logger: logger,
			Addr:   cfg.GRPCAddr,
			Check: func(ctx context.Context) error {
				_, _, err := kv.GetItem(ctx, service.HistoryKey)
				return err
			},
		})
		go func() {
			logger.Printf("grpc health listening on %s", cfg.GRPCAddr)
			if err := health.Start(); err != nil {
				logger.Printf("grpc server error: %v", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if health != nil {
		_ = health.Shutdown(shutdownCtx)
	}
}

