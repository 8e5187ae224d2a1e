// Command scan drives the long-running scanner loop: it loads
// configuration, wires every component, and runs ScanLoop until
// interrupted.
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/polyarb/scanner/internal/calldata"
	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/config"
	"github.com/polyarb/scanner/internal/decimals"
	"github.com/polyarb/scanner/internal/evaluator"
	"github.com/polyarb/scanner/internal/executor"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/pairstore"
	"github.com/polyarb/scanner/internal/reserves"
	"github.com/polyarb/scanner/internal/resolver"
	"github.com/polyarb/scanner/internal/rpcclient"
	"github.com/polyarb/scanner/internal/scanner"
	"github.com/polyarb/scanner/internal/sizing"
)

func main() {
	app := &cli.App{
		Name:  "scan",
		Usage: "run the arbitrage scanner loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML config file",
				Value: "config.yaml",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("scan: fatal")
	}
}

func run(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	configureLogging(cfg.Logging)
	if cfg.DebugMode {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().
		Float64("minProfitUsd", cfg.Thresholds.MinProfitUsd).
		Bool("simulationMode", cfg.SimulationMode).
		Msg("scan: effective configuration loaded")

	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			return err
		}
	}

	client, err := rpcclient.New(cfg.RPCEndpoints, 20, 30*time.Second, m)
	if err != nil {
		return err
	}
	fetcher := rpcclient.NewBatchFetcher(client)

	decimalsCache, err := decimals.Load(cfg.DecimalsCache, fetcher, m)
	if err != nil {
		return err
	}

	store, err := pairstore.Open(cfg.PairCacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := resolver.New(client, fetcher, store, m)
	if err != nil {
		return err
	}

	reservesFetcher, err := reserves.New(fetcher)
	if err != nil {
		return err
	}

	oracle, err := sizing.Load(cfg.SizingGridFile)
	if err != nil {
		return err
	}

	dexes := cfg.EnabledDexTable()
	eval := evaluator.New(dexes, oracle, cfg.Thresholds, cfg.Economics, cfg.BaseTokenUsdPrices, m)

	var exec *executor.Executor
	if !cfg.SimulationMode {
		builder, err := calldata.New()
		if err != nil {
			return err
		}
		ethClient, err := ethclient.Dial(cfg.RPCEndpoints[0])
		if err != nil {
			return err
		}
		exec, err = executor.New(
			ethClient,
			res,
			builder,
			dexes,
			decimalsCache,
			cfg.PrivateKey,
			big.NewInt(cfg.Chain.ID),
			chain.NewTokenRef(cfg.ContractAddress).Address(),
			nil,
			executor.GasPolicy{
				PriceMultiplier: cfg.Gas.PriceMultiplier,
				LimitMultiplier: cfg.Gas.LimitMultiplier,
				LimitCap:        cfg.Gas.LimitCap,
			},
			cfg.Economics.FlashFeeBps,
			cfg.SimulationMode,
		)
		if err != nil {
			return err
		}
	}

	loop := scanner.New(
		client,
		cfg.CandidateFile,
		reservesFetcher,
		decimalsCache,
		eval,
		exec,
		time.Duration(cfg.ScanIntervalSec)*time.Second,
		m,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = loop.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func configureLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
