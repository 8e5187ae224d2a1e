// Package scanner implements ScanLoop (spec.md §4.11): the per-cycle
// driver that pulls candidates, fetches reserves/decimals once per
// cycle (never leaking across the boundary), runs the Evaluator, and
// attempts the Executor on the best few survivors.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/polyarb/scanner/internal/candidate"
	"github.com/polyarb/scanner/internal/decimals"
	"github.com/polyarb/scanner/internal/evaluator"
	"github.com/polyarb/scanner/internal/executor"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/reserves"
	"github.com/polyarb/scanner/internal/rpcclient"
)

const (
	rotateEveryCycles = 5
	maxAttemptsPerCycle = 3
)

// Stats summarizes one completed cycle, emitted at step (e) of §4.11.
type Stats struct {
	Cycle          int64
	CandidateCount int
	Opportunities  int
	Attempts       int
	Successes      int
	Duration       time.Duration
}

// Loop owns the cycle cadence and cross-component wiring.
type Loop struct {
	client        *rpcclient.Client
	candidateFile string
	reservesF     *reserves.Fetcher
	decimalsCache *decimals.Cache
	evaluator     *evaluator.Evaluator
	exec          *executor.Executor
	scanInterval  time.Duration
	metrics       *metrics.Metrics

	cycle int64
}

func New(
	client *rpcclient.Client,
	candidateFile string,
	reservesF *reserves.Fetcher,
	decimalsCache *decimals.Cache,
	eval *evaluator.Evaluator,
	exec *executor.Executor,
	scanInterval time.Duration,
	m *metrics.Metrics,
) *Loop {
	return &Loop{
		client:        client,
		candidateFile: candidateFile,
		reservesF:     reservesF,
		decimalsCache: decimalsCache,
		evaluator:     eval,
		exec:          exec,
		scanInterval:  scanInterval,
		metrics:       m,
	}
}

// Run drives cycles until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stats, err := l.runCycle(ctx)
		if err != nil {
			log.Error().Err(err).Int64("cycle", l.cycle).Msg("scanner: cycle failed")
		} else {
			log.Info().
				Int64("cycle", stats.Cycle).
				Int("candidates", stats.CandidateCount).
				Int("opportunities", stats.Opportunities).
				Int("attempts", stats.Attempts).
				Int("successes", stats.Successes).
				Dur("duration", stats.Duration).
				Msg("scanner: cycle complete")
		}

		if !sleepCtx(ctx, l.scanInterval) {
			return ctx.Err()
		}
	}
}

// runCycle executes steps (a)-(e) of spec.md §4.11 once.
func (l *Loop) runCycle(ctx context.Context) (Stats, error) {
	start := time.Now()
	l.cycle++

	// (a) rotate endpoint every 5 cycles.
	if l.cycle%rotateEveryCycles == 0 {
		l.client.ForceRotate()
		if l.metrics != nil {
			l.metrics.RPCEndpointRotations.Inc()
		}
	}

	// (b) pull candidates — a fresh read each cycle, never carried over.
	candidates, err := candidate.LoadCandidates(l.candidateFile)
	if err != nil {
		return Stats{Cycle: l.cycle}, err
	}
	if l.metrics != nil {
		l.metrics.CandidatesSeen.Add(float64(len(candidates)))
	}

	pools, tokens := collectAddresses(candidates)

	// Two parallel batched fetches at cycle start (spec.md §2, §5):
	// reserves and decimals depend on disjoint RPC calls, so there is no
	// reason to serialize them.
	var fetchedReserves []reserves.Reserves
	var decimalsMap evaluator.DecimalsByAddr
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := l.reservesF.FetchAll(gctx, pools)
		if err != nil {
			return err
		}
		fetchedReserves = r
		return nil
	})
	g.Go(func() error {
		decimalsMap = l.decimalsCache.ResolveAll(gctx, tokens)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{Cycle: l.cycle}, err
	}

	reservesMap := make(evaluator.ReservesByPool, len(fetchedReserves))
	for _, r := range fetchedReserves {
		reservesMap[r.Pool] = r
	}

	// (c) run Evaluator over every candidate using only cycle-local data.
	var opportunities []*evaluator.Opportunity
	for _, c := range candidates {
		buyPair := common.HexToAddress(c.Buy.Pair)
		sellPair := common.HexToAddress(c.Sell.Pair)
		if op := l.evaluator.Evaluate(c, buyPair, sellPair, reservesMap, decimalsMap); op != nil {
			opportunities = append(opportunities, op)
		}
	}

	// (d) attempt Executor on up to 3 opportunities, descending profit,
	// stopping on first success.
	sort.Slice(opportunities, func(i, j int) bool {
		return opportunities[i].ExpectedProfit > opportunities[j].ExpectedProfit
	})

	attempts, successes := 0, 0
	if l.exec != nil {
		for i := 0; i < len(opportunities) && attempts < maxAttemptsPerCycle; i++ {
			attempts++
			attemptStart := time.Now()
			result := l.exec.Execute(ctx, opportunities[i])
			if l.metrics != nil {
				l.metrics.RecordExecution(time.Since(attemptStart), result.Success)
			}
			if result.Err != nil {
				log.Warn().Err(result.Err).Msg("scanner: execution attempt failed")
				continue
			}
			if result.Revert != nil {
				log.Warn().Str("kind", result.Revert.Kind).Str("message", result.Revert.Message).Msg("scanner: pre-flight revert")
				continue
			}
			if result.Success {
				successes++
				break
			}
		}
	}

	if l.metrics != nil {
		l.metrics.RecordCycle(time.Since(start))
	}

	return Stats{
		Cycle:          l.cycle,
		CandidateCount: len(candidates),
		Opportunities:  len(opportunities),
		Attempts:       attempts,
		Successes:      successes,
		Duration:       time.Since(start),
	}, nil
}

// collectAddresses gathers the unique pool and token addresses a cycle
// needs, for the two parallel batched fetches described in spec.md §5.
func collectAddresses(candidates []candidate.Candidate) ([]common.Address, []common.Address) {
	poolSeen := make(map[common.Address]bool)
	tokenSeen := make(map[common.Address]bool)
	var pools, tokens []common.Address

	addPool := func(hex string) {
		if hex == "" {
			return
		}
		addr := common.HexToAddress(hex)
		if !poolSeen[addr] {
			poolSeen[addr] = true
			pools = append(pools, addr)
		}
	}
	addToken := func(addr common.Address) {
		if !tokenSeen[addr] {
			tokenSeen[addr] = true
			tokens = append(tokens, addr)
		}
	}

	for _, c := range candidates {
		addPool(c.Buy.Pair)
		addPool(c.Sell.Pair)
		addToken(c.Base)
		addToken(c.Trade)
	}

	return pools, tokens
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
