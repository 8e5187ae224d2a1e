// Command resolve is a one-shot debugging CLI for PairResolver: given a
// DEX name and two token addresses, it prints the resolved pair address
// and which rung of the resolution ladder produced it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/polyarb/scanner/internal/config"
	"github.com/polyarb/scanner/internal/pairstore"
	"github.com/polyarb/scanner/internal/resolver"
	"github.com/polyarb/scanner/internal/rpcclient"
)

func main() {
	app := &cli.App{
		Name:  "resolve",
		Usage: "resolve a pair address via CREATE2 derivation or factory.getPair",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml"},
			&cli.StringFlag{Name: "dex", Required: true, Usage: "DEX name as registered in dexConfig"},
			&cli.StringFlag{Name: "token-a", Required: true},
			&cli.StringFlag{Name: "token-b", Required: true},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("resolve: fatal")
	}
}

func run(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}

	dex, ok := cfg.EnabledDexTable().Get(cctx.String("dex"))
	if !ok {
		return fmt.Errorf("resolve: unknown or disabled dex %q", cctx.String("dex"))
	}

	client, err := rpcclient.New(cfg.RPCEndpoints, 20, 30*time.Second, nil)
	if err != nil {
		return err
	}
	fetcher := rpcclient.NewBatchFetcher(client)

	store, err := pairstore.Open(cfg.PairCacheDB)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := resolver.New(client, fetcher, store, nil)
	if err != nil {
		return err
	}

	tokenA := common.HexToAddress(cctx.String("token-a"))
	tokenB := common.HexToAddress(cctx.String("token-b"))

	addr, source, err := res.Resolve(context.Background(), dex, tokenA, tokenB)
	if err != nil {
		return err
	}

	if source == "" {
		source = "cached"
	}
	fmt.Printf("pair:   %s\n", addr.Hex())
	fmt.Printf("source: %s\n", source)
	return nil
}
