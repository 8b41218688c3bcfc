package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/config"
	"github.com/chofesh/model-gateway/internal/credit"
	"github.com/chofesh/model-gateway/internal/health"
	"github.com/chofesh/model-gateway/internal/logging"
	"github.com/chofesh/model-gateway/internal/provider"
	"github.com/chofesh/model-gateway/internal/routing"
	"github.com/chofesh/model-gateway/internal/scheduler"
	"github.com/chofesh/model-gateway/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Logger.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}
	logging.Configure(cfg.Logging.Level)
	logger := logging.WithComponent("gateway")

	descriptors := make([]catalog.Descriptor, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		descriptors = append(descriptors, m.Descriptor())
	}
	cat, err := catalog.New(descriptors)
	if err != nil {
		logger.Error("invalid model catalog", "error", err.Error())
		os.Exit(1)
	}

	var store credit.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := credit.NewRedisStore(credit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err.Error())
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		logger.Warn("redis not configured, using in-memory credit store")
		store = credit.NewMemoryStore()
	}
	ledger := credit.NewLedger(store, cfg.Credits.DailyAllotment, logging.WithComponent("credit"))

	tracker := health.NewTracker(logging.WithComponent("health"))

	adapters, err := buildAdapters(cfg)
	if err != nil {
		logger.Error("failed to build provider adapters", "error", err.Error())
		os.Exit(1)
	}
	invoker := provider.NewInvoker(adapters, tracker, maxTimeout(cfg), logging.WithComponent("provider"))

	chains := routing.NewChainBuilder(cat, tracker)
	router := routing.NewRouter(chains, invoker, ledger, logging.WithComponent("router"))

	sched, err := scheduler.New(ledger, cfg.Credits.RefreshCron, logging.WithComponent("scheduler"))
	if err != nil {
		logger.Error("failed to build scheduler", "error", err.Error())
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(cfg, router, cat, tracker, ledger, logging.WithComponent("server"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err.Error())
		}
	}
}

func buildAdapters(cfg *config.Config) ([]provider.Adapter, error) {
	adapters := make([]provider.Adapter, 0, len(cfg.Providers))
	for family, pc := range cfg.Providers {
		switch catalog.Family(family) {
		case catalog.FamilyOpenAI:
			a, err := provider.NewOpenAIAdapter(&provider.OpenAIConfig{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.GetTimeout(),
				Headers: pc.Headers,
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		case catalog.FamilyAnthropic:
			a, err := provider.NewAnthropicAdapter(&provider.AnthropicConfig{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.GetTimeout(),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		case catalog.FamilyKimi:
			a, err := provider.NewKimiAdapter(&provider.KimiConfig{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.GetTimeout(),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		case catalog.FamilyVenice:
			a, err := provider.NewVeniceAdapter(&provider.VeniceConfig{
				BaseURL: pc.BaseURL,
				APIKey:  pc.APIKey,
				Timeout: pc.GetTimeout(),
			})
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		}
	}
	return adapters, nil
}

// maxTimeout picks the largest configured provider timeout so the invoker's
// per-call deadline never undercuts an adapter's own client timeout.
func maxTimeout(cfg *config.Config) time.Duration {
	max := 120 * time.Second
	for _, pc := range cfg.Providers {
		if t := pc.GetTimeout(); t > max {
			max = t
		}
	}
	return max
}
