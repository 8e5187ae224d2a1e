// Command simulate runs the Evaluator and Executor pre-flight for a
// single candidate triangle, without submitting anything, for
// debugging calldata and economic-gate behavior outside the scan loop.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/polyarb/scanner/internal/calldata"
	"github.com/polyarb/scanner/internal/candidate"
	"github.com/polyarb/scanner/internal/config"
	"github.com/polyarb/scanner/internal/decimals"
	"github.com/polyarb/scanner/internal/evaluator"
	"github.com/polyarb/scanner/internal/executor"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/reserves"
	"github.com/polyarb/scanner/internal/resolver"
	"github.com/polyarb/scanner/internal/pairstore"
	"github.com/polyarb/scanner/internal/rpcclient"
	"github.com/polyarb/scanner/internal/sizing"
)

func main() {
	app := &cli.App{
		Name:  "simulate",
		Usage: "pre-flight a single candidate triangle without submitting",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml"},
			&cli.StringFlag{Name: "base", Required: true},
			&cli.StringFlag{Name: "trade", Required: true},
			&cli.StringFlag{Name: "buy-dex", Required: true},
			&cli.StringFlag{Name: "buy-pair", Required: true},
			&cli.StringFlag{Name: "sell-dex", Required: true},
			&cli.StringFlag{Name: "sell-pair", Required: true},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("simulate: fatal")
	}
}

func run(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	m := metrics.New()

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

	c := candidate.Candidate{
		Base:  common.HexToAddress(cctx.String("base")),
		Trade: common.HexToAddress(cctx.String("trade")),
		Buy:   candidate.VenueRef{Dex: cctx.String("buy-dex"), Pair: cctx.String("buy-pair")},
		Sell:  candidate.VenueRef{Dex: cctx.String("sell-dex"), Pair: cctx.String("sell-pair")},
	}

	ctx := context.Background()
	buyPair := common.HexToAddress(c.Buy.Pair)
	sellPair := common.HexToAddress(c.Sell.Pair)

	fetched, err := reservesFetcher.FetchAll(ctx, []common.Address{buyPair, sellPair})
	if err != nil {
		return err
	}
	reservesMap := make(evaluator.ReservesByPool, len(fetched))
	for _, r := range fetched {
		reservesMap[r.Pool] = r
	}

	decimalsMap := decimalsCache.ResolveAll(ctx, []common.Address{c.Base, c.Trade})

	opp := eval.Evaluate(c, buyPair, sellPair, reservesMap, decimalsMap)
	if opp == nil {
		fmt.Println("no opportunity: candidate dropped (see drop-reason metrics)")
		return nil
	}

	fmt.Printf("opportunity found: buy=%s sell=%s spread=%.4f%% size=%.6f expectedProfit=$%.2f flipped=%v\n",
		opp.BuyDex, opp.SellDex, opp.Spread*100, opp.OptimalSize, opp.ExpectedProfit, opp.Flipped)

	builder, err := calldata.New()
	if err != nil {
		return err
	}
	ethClient, err := ethclient.Dial(cfg.RPCEndpoints[0])
	if err != nil {
		return err
	}

	exec, err := executor.New(
		ethClient,
		res,
		builder,
		dexes,
		decimalsCache,
		cfg.PrivateKey,
		big.NewInt(cfg.Chain.ID),
		common.HexToAddress(cfg.ContractAddress),
		nil,
		executor.GasPolicy{
			PriceMultiplier: cfg.Gas.PriceMultiplier,
			LimitMultiplier: cfg.Gas.LimitMultiplier,
			LimitCap:        cfg.Gas.LimitCap,
		},
		cfg.Economics.FlashFeeBps,
		true, // simulation only: never submit
	)
	if err != nil {
		return err
	}

	result := exec.Execute(ctx, opp)
	switch {
	case result.Err != nil:
		fmt.Printf("pre-flight error: %v\n", result.Err)
	case result.Revert != nil:
		fmt.Printf("pre-flight reverted: kind=%s message=%s\n", result.Revert.Kind, result.Revert.Message)
	default:
		fmt.Println("pre-flight succeeded, would submit")
	}

	return nil
}
