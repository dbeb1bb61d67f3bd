package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/api"
	"github.com/aurum-saas/aurum-server/internal/config"
	"github.com/aurum-saas/aurum-server/internal/ledger"
	"github.com/aurum-saas/aurum-server/internal/server"
	"github.com/aurum-saas/aurum-server/internal/storage"
	"github.com/aurum-saas/aurum-server/internal/tenant"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/aurum-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to the shared metadata store
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	store.SetPoolLimits(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tenant routing core
	directory := tenant.NewDirectory(store, cfg.Tenant.DirectoryTTL)
	validator := tenant.NewValidator(directory)
	provisioner := tenant.NewProvisioner(store, directory, cfg.Tenant.SchemaPrefix, cfg.Tenant.TrialDays)
	registry := tenant.NewRegistry(validator, tenant.RegistryConfig{
		BaseDSN:        cfg.Database.DSN,
		TTL:            cfg.Tenant.ConnectionTTL,
		AcquireTimeout: cfg.Tenant.AcquireTimeout,
		HealthTimeout:  cfg.Tenant.HealthTimeout,
		MaxOpenConns:   cfg.Tenant.MaxOpenConns,
		MaxIdleConns:   cfg.Tenant.MaxIdleConns,
	})
	book := ledger.NewCustomerBook(registry)

	if cfg.Tenant.SweepInterval > 0 {
		directory.StartSweeper(ctx, cfg.Tenant.SweepInterval)
		registry.StartSweeper(ctx, cfg.Tenant.SweepInterval)
	}

	// WaitGroup for services
	var wg sync.WaitGroup

	// Optional: connect to NATS for cross-instance cache invalidation
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("aurum-server"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")

			subscriber := server.NewNATSSubscriber(nc, directory, registry)

			wg.Add(1)
			go func() {
				defer wg.Done()
				log.Info().Msg("Starting NATS subscriber")
				if err := subscriber.Start(ctx); err != nil && err != context.Canceled {
					log.Error().Err(err).Msg("NATS subscriber stopped")
				}
			}()
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, api.Deps{
		Store:       store,
		Directory:   directory,
		Validator:   validator,
		Provisioner: provisioner,
		Registry:    registry,
		Ledger:      book,
		NC:          nc,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		log.Info().Str("addr", addr).Msg("Starting REST API server")
		// Shutdown makes ListenAndServe return ErrServerClosed; that is the
		// normal exit, not a failure. Exiting here would skip the connection
		// cleanup below.
		if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Close every cached tenant connection before exit
	registry.Cleanup()

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Aurum server stopped")
}
