package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"condor_trader/internal/account"
	"condor_trader/internal/bootstrap"
	"condor_trader/internal/core"
	"condor_trader/internal/margin"
	"condor_trader/internal/marketdata"
	"condor_trader/internal/metrics"
	"condor_trader/internal/mock"
	"condor_trader/internal/position"
	"condor_trader/internal/strategy"
	"condor_trader/pkg/concurrency"
	"condor_trader/pkg/telemetry"

	apperrors "condor_trader/pkg/errors"

	"github.com/shopspring/decimal"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

// paper sandbox pricing center
var paperReferencePrice = decimal.NewFromInt(5000)

func main() {
	configPath := flag.String("config", "configs/strategist.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("strategist version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	tel, err := telemetry.Setup("condor_trader")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup telemetry: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := app.Cfg, app.Logger

	if cfg.Broker.Provider != "paper" {
		// Real brokerage sessions are provided by an external client library.
		logger.Fatal("Only the paper broker is bundled", "provider", cfg.Broker.Provider)
	}

	expiration := time.Now().AddDate(0, 0, cfg.Strategy.ExpirationDays)
	chain := mock.SyntheticChain(cfg.Strategy.RootSymbol, expiration,
		paperReferencePrice, decimal.NewFromInt(5), 200)
	env := mock.NewPaperEnvironment(cfg.Strategy.UnderlyingSymbol, paperReferencePrice, chain)

	ctx := context.Background()

	quotes, err := marketdata.New(ctx, env.MarketFeed, []string{cfg.Strategy.UnderlyingSymbol}, logger)
	if err != nil {
		logger.Fatal("Quote cache init failed", "error", err.Error())
	}
	defer quotes.Close()

	events, err := account.New(ctx, env.AccountFeed, cfg.Broker.AccountNumber, logger)
	if err != nil {
		logger.Fatal("Account stream init failed", "error", err.Error())
	}
	defer events.Close()

	optionChain, err := env.Broker.OptionChain(ctx, cfg.Strategy.RootSymbol, expiration)
	if err != nil {
		logger.Fatal("Option chain lookup failed", "error", err.Error())
	}
	logger.Info("Option chain resolved", "legs", len(optionChain), "expiration", expiration.Format("2006-01-02"))

	manager := position.NewManager(events, env.Broker, position.Config{
		AccountNumber:   cfg.Broker.AccountNumber,
		OpenLimitPrice:  decimal.NewFromFloat(cfg.Orders.OpenLimitPrice),
		CloseLimitPrice: decimal.NewFromFloat(cfg.Orders.CloseLimitPrice),
		Quantity:        decimal.NewFromInt(int64(cfg.Orders.Quantity)),
		FillPollEvery:   time.Duration(cfg.Orders.FillPollIntervalMs) * time.Millisecond,
		RateLimit:       cfg.Orders.RateLimit,
		RateBurst:       cfg.Orders.RateBurst,
	}, logger)

	builder := strategy.NewBuilder(quotes, optionChain, strategy.BuilderConfig{
		UnderlyingSymbol: cfg.Strategy.UnderlyingSymbol,
		SearchInterval:   decimal.NewFromFloat(cfg.Strategy.SearchInterval),
		PriceThreshold:   decimal.NewFromFloat(cfg.Strategy.PriceThreshold),
		InsuranceOffset:  decimal.NewFromFloat(cfg.Strategy.InsuranceOffset),
	}, logger)

	actions := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "order-actions",
		MaxWorkers:  1,
		MaxCapacity: 4,
		NonBlocking: true,
	}, logger)
	defer actions.Stop()

	strategist := strategy.NewStrategist(quotes, builder, manager,
		time.Duration(cfg.Strategy.RebuildIntervalMs)*time.Millisecond, actions, logger)
	estimator := margin.NewEstimator(manager,
		time.Duration(cfg.Margin.RefreshIntervalMs)*time.Millisecond, logger)

	if cfg.Telemetry.EnableMetrics {
		ops := metrics.NewServer(cfg.Telemetry.MetricsPort, statusSnapshot(strategist), logger)
		ops.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ops.Stop(stopCtx)
		}()
	}

	err = app.Run(
		env,
		strategist,
		estimator,
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			return statusLoop(ctx, strategist, logger)
		}),
	)
	if err != nil {
		os.Exit(1)
	}
}

// statusSnapshot renders the strategy readout served at /statusz
func statusSnapshot(s *strategy.Strategist) metrics.Snapshot {
	return func() map[string]interface{} {
		status := map[string]interface{}{
			"state":          s.State().String(),
			"available":      s.IsStrategyAvailable(),
			"open_positions": s.NumOpenPositions(),
		}
		if ref, err := s.ReferencePrice(); err == nil {
			status["reference"] = ref.StringFixed(2)
		}
		if winnings, err := s.Winnings(); err == nil {
			status["winnings"] = winnings.StringFixed(2)
		}
		if estimate, err := s.MarginEstimate(); err == nil {
			status["margin_estimate"] = estimate.StringFixed(2)
		}
		if realized, err := s.BuyingPowerEffect(); err == nil {
			status["realized"] = realized.StringFixed(2)
		}
		return status
	}
}

// statusLoop periodically logs the strategy readout
func statusLoop(ctx context.Context, s *strategy.Strategist, logger core.ILogger) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fields := []interface{}{"state", s.State().String(), "open_positions", s.NumOpenPositions()}

			if ref, err := s.ReferencePrice(); err == nil {
				fields = append(fields, "reference", ref.StringFixed(2))
			}
			if winnings, err := s.Winnings(); err == nil {
				fields = append(fields, "winnings", winnings.StringFixed(2))
			} else if !errors.Is(err, apperrors.ErrNoPosition) {
				fields = append(fields, "winnings", "unavailable")
			}
			if estimate, err := s.MarginEstimate(); err == nil {
				fields = append(fields, "margin", estimate.StringFixed(2))
			}
			if realized, err := s.BuyingPowerEffect(); err == nil {
				fields = append(fields, "realized", realized.StringFixed(2))
			}

			logger.Info("Strategy status", fields...)
		}
	}
}
