// Package executor implements Executor (spec.md §4.10): re-verify
// reserves through the chosen venues' routers, quote the round trip,
// gate on economics, eth_call pre-flight with revert decoding, estimate
// gas, sign, submit, and wait for a receipt. Submission itself is
// grounded on the teacher's internal/eth.Client (ethclient.Client
// wrapping), since BatchFetcher/rpcclient only ever issue eth_call.
package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/polyarb/scanner/internal/amm"
	"github.com/polyarb/scanner/internal/calldata"
	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/decimals"
	"github.com/polyarb/scanner/internal/evaluator"
	"github.com/polyarb/scanner/internal/resolver"
)

const (
	slippageDefault  = 0.005
	receiptTimeout   = 60 * time.Second
	panicSelectorHex = "4e487b71"
)

// GasPolicy controls submission-time gas pricing and limits. Exposed as
// configuration per spec.md §9: the fixed ×1.2 multiplier and ~1.2M cap
// are conservative defaults, not constants that suit every chain.
type GasPolicy struct {
	PriceMultiplier float64
	LimitMultiplier float64
	LimitCap        uint64
}

func defaultGasPolicy() GasPolicy {
	return GasPolicy{PriceMultiplier: 1.2, LimitMultiplier: 1.2, LimitCap: 1_200_000}
}

// RevertReason is the structured decode of a failed eth_call.
type RevertReason struct {
	Kind    string // "Error", "Panic", "custom", "unknown"
	Message string
	Code    *big.Int // Panic(uint256) code
}

// Result is the outcome of one execution attempt.
type Result struct {
	Submitted bool
	TxHash    common.Hash
	Success   bool
	Revert    *RevertReason
	Err       error
}

// FlashLoanProvider abstracts the set of tokens a flash loan source will
// lend, per spec.md §4.10 step 1.
type FlashLoanProvider interface {
	Supports(token common.Address) bool
}

// Executor submits arbitrage transactions.
type Executor struct {
	ethClient  *ethclient.Client
	resolver   *resolver.Resolver
	builder    *calldata.Builder
	dexes      *chain.DexTable
	decimals   *decimals.Cache
	privateKey *ecdsa.PrivateKey
	signer     types.Signer
	contract   common.Address
	flashLoan   FlashLoanProvider
	gasPolicy   GasPolicy
	flashFeeBps int

	simulationOnly bool

	executorABI abi.ABI
}

func New(
	ethClient *ethclient.Client,
	res *resolver.Resolver,
	builder *calldata.Builder,
	dexes *chain.DexTable,
	decimalsCache *decimals.Cache,
	privateKeyHex string,
	chainID *big.Int,
	contract common.Address,
	flashLoan FlashLoanProvider,
	gasPolicy GasPolicy,
	flashFeeBps int,
	simulationOnly bool,
) (*Executor, error) {
	execABI, err := abi.JSON(strings.NewReader(chain.ExecutorABI))
	if err != nil {
		return nil, fmt.Errorf("executor: parse ABI: %w", err)
	}

	if gasPolicy.LimitCap == 0 {
		gasPolicy = defaultGasPolicy()
	}

	e := &Executor{
		ethClient:      ethClient,
		resolver:       res,
		builder:        builder,
		dexes:          dexes,
		decimals:       decimalsCache,
		contract:       contract,
		flashLoan:      flashLoan,
		gasPolicy:      gasPolicy,
		flashFeeBps:    flashFeeBps,
		simulationOnly: simulationOnly,
		executorABI:    execABI,
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("executor: parse private key: %w", err)
		}
		e.privateKey = key
		e.signer = types.NewEIP155Signer(chainID)
	}

	return e, nil
}

// chooseFlashLoanToken implements step 1 of §4.10: prefer base, then
// trade, otherwise abort.
func (e *Executor) chooseFlashLoanToken(o *evaluator.Opportunity) (common.Address, bool) {
	if e.flashLoan == nil || e.flashLoan.Supports(o.BaseToken) {
		return o.BaseToken, true
	}
	if e.flashLoan.Supports(o.TradeToken) {
		return o.TradeToken, true
	}
	return common.Address{}, false
}

// Execute runs the full pipeline for one opportunity.
func (e *Executor) Execute(ctx context.Context, o *evaluator.Opportunity) Result {
	asset, ok := e.chooseFlashLoanToken(o)
	if !ok {
		return Result{Err: fmt.Errorf("executor: no supported flash-loan token for %s/%s", o.BaseToken.Hex(), o.TradeToken.Hex())}
	}

	buyDex, ok := e.dexes.Get(o.BuyDex)
	if !ok {
		return Result{Err: fmt.Errorf("executor: unknown buy dex %q", o.BuyDex)}
	}
	sellDex, ok := e.dexes.Get(o.SellDex)
	if !ok {
		return Result{Err: fmt.Errorf("executor: unknown sell dex %q", o.SellDex)}
	}

	// Step 2: re-verify through the routers, not the candidate pair.
	buyPair, _, err := e.resolver.Resolve(ctx, buyDex, o.BaseToken, o.TradeToken)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: re-resolve buy pair: %w", err)}
	}
	sellPair, _, err := e.resolver.Resolve(ctx, sellDex, o.BaseToken, o.TradeToken)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: re-resolve sell pair: %w", err)}
	}

	buyReserve0, buyReserve1, err := e.fetchReserves(ctx, buyPair)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: fetch buy reserves: %w", err)}
	}
	sellReserve0, sellReserve1, err := e.fetchReserves(ctx, sellPair)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: fetch sell reserves: %w", err)}
	}

	baseIsToken0 := isToken0(o.BaseToken, o.TradeToken)
	buyBase, buyTrade := orient(buyReserve0, buyReserve1, baseIsToken0)
	sellBase, sellTrade := orient(sellReserve0, sellReserve1, baseIsToken0)

	baseDecimals := chain.DefaultDecimals
	if d, ok := e.decimals.Get(o.BaseToken); ok {
		baseDecimals = d
	}
	loanUnits, overflow := uint256.FromBig(scaleToWei(o.OptimalSize, baseDecimals))
	if overflow {
		return Result{Err: fmt.Errorf("executor: loan amount overflow")}
	}

	// Step 3: quote.
	tradeOut := amm.AmountOut(loanUnits, buyBase, buyTrade, buyDex.FeeBps)
	baseOut := amm.AmountOut(tradeOut, sellTrade, sellBase, sellDex.FeeBps)
	repay := new(big.Int).Add(
		loanUnits.ToBig(),
		new(big.Int).Div(new(big.Int).Mul(loanUnits.ToBig(), big.NewInt(int64(e.flashFeeBps))), big.NewInt(10000)),
	)

	// Step 4: economic gate.
	if baseOut.ToBig().Cmp(repay) <= 0 {
		return Result{Err: fmt.Errorf("executor: economic gate failed, expectedBaseOut %s <= repay %s", baseOut.ToBig(), repay)}
	}

	minFinalOutput := new(big.Int).Set(repay)
	minFinalOutput.Add(minFinalOutput, big.NewInt(1))
	slippageAdjusted := applySlippage(baseOut.ToBig(), slippageDefault)
	if slippageAdjusted.Cmp(minFinalOutput) > 0 {
		minFinalOutput = slippageAdjusted
	}

	deadline := big.NewInt(time.Now().Add(2 * time.Minute).Unix())

	buyCalldata, err := e.builder.BuildSwap(calldata.SwapLeg{
		Kind:         buyDex.Kind,
		TokenIn:      o.BaseToken,
		TokenOut:     o.TradeToken,
		Recipient:    e.contract,
		AmountIn:     loanUnits.ToBig(),
		AmountOutMin: applySlippage(tradeOut.ToBig(), slippageDefault),
		Deadline:     deadline,
		FeeBps:       buyDex.FeeBps,
	})
	if err != nil {
		return Result{Err: fmt.Errorf("executor: build buy calldata: %w", err)}
	}

	sellCalldata, err := e.builder.BuildSwap(calldata.SwapLeg{
		Kind:         sellDex.Kind,
		TokenIn:      o.TradeToken,
		TokenOut:     o.BaseToken,
		Recipient:    e.contract,
		AmountIn:     calldata.MaxUint256, // sentinel: contract substitutes actual TRADE balance
		AmountOutMin: applySlippage(baseOut.ToBig(), slippageDefault),
		Deadline:     deadline,
		FeeBps:       sellDex.FeeBps,
	})
	if err != nil {
		return Result{Err: fmt.Errorf("executor: build sell calldata: %w", err)}
	}

	params := calldata.ExecutorParams{
		SwapDataList:   [][]byte{buyCalldata, sellCalldata},
		Routers:        []common.Address{buyDex.Router, sellDex.Router},
		InputTokens:    []common.Address{o.BaseToken, o.TradeToken},
		MinFinalOutput: minFinalOutput,
	}

	outerCalldata, err := e.builder.BuildExecuteArbitrage(asset, loanUnits.ToBig(), params)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: build outer calldata: %w", err)}
	}

	// Step 5: pre-flight.
	if revert := e.preflight(ctx, outerCalldata); revert != nil {
		log.Warn().Str("kind", revert.Kind).Str("message", revert.Message).Msg("executor: pre-flight reverted, not submitting")
		return Result{Revert: revert}
	}

	if e.simulationOnly {
		return Result{Submitted: false}
	}

	return e.submit(ctx, outerCalldata)
}

func (e *Executor) fetchReserves(ctx context.Context, pair common.Address) (*uint256.Int, *uint256.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(chain.UniswapV2PairABI))
	if err != nil {
		return nil, nil, err
	}
	data, err := parsedABI.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}
	result, err := e.ethClient.CallContract(ctx, ethereum.CallMsg{To: &pair, Data: data}, nil)
	if err != nil {
		return nil, nil, err
	}
	unpacked, err := parsedABI.Unpack("getReserves", result)
	if err != nil || len(unpacked) < 2 {
		return nil, nil, fmt.Errorf("executor: unpack getReserves: %w", err)
	}
	r0, ok0 := unpacked[0].(*big.Int)
	r1, ok1 := unpacked[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("executor: reserve type assertion failed")
	}
	u0, _ := uint256.FromBig(r0)
	u1, _ := uint256.FromBig(r1)
	return u0, u1, nil
}

// preflight issues an eth_call against latest with the signer's
// account as sender (spec.md §4.10 step 5). A revert is decoded via
// go-ethereum's Error(string) unpacker, with a manual Panic(uint256)
// decoder for the other standard Solidity revert shape.
func (e *Executor) preflight(ctx context.Context, data []byte) *RevertReason {
	msg := ethereum.CallMsg{To: &e.contract, Data: data}
	if e.privateKey != nil {
		msg.From = crypto.PubkeyToAddress(e.privateKey.PublicKey)
	}

	_, err := e.ethClient.CallContract(ctx, msg, nil)
	if err == nil {
		return nil
	}

	return decodeRevert(err)
}

func decodeRevert(err error) *RevertReason {
	data := extractRevertData(err)
	if len(data) == 0 {
		return &RevertReason{Kind: "unknown", Message: err.Error()}
	}

	if msg, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return &RevertReason{Kind: "Error", Message: msg}
	}

	if len(data) >= 4 && common.Bytes2Hex(data[:4]) == panicSelectorHex {
		code := new(big.Int).SetBytes(data[4:])
		return &RevertReason{Kind: "Panic", Message: panicMessage(code), Code: code}
	}

	return &RevertReason{Kind: "custom", Message: common.Bytes2Hex(data)}
}

// extractRevertData pulls the raw revert bytes out of a go-ethereum RPC
// error when present (rpc.DataError carries it in .ErrorData()).
func extractRevertData(err error) []byte {
	type dataError interface {
		ErrorData() interface{}
	}
	de, ok := err.(dataError)
	if !ok {
		return nil
	}
	raw, ok := de.ErrorData().(string)
	if !ok {
		return nil
	}
	return common.FromHex(raw)
}

func panicMessage(code *big.Int) string {
	switch code.Uint64() {
	case 0x01:
		return "assertion failed"
	case 0x11:
		return "arithmetic overflow/underflow"
	case 0x12:
		return "division or modulo by zero"
	case 0x32:
		return "out-of-bounds array access"
	default:
		return fmt.Sprintf("panic code 0x%x", code)
	}
}

// submit performs gas estimation, signing, broadcast, and receipt wait
// (spec.md §4.10 steps 6-7).
func (e *Executor) submit(ctx context.Context, data []byte) Result {
	if e.privateKey == nil {
		return Result{Err: fmt.Errorf("executor: no signer configured")}
	}

	from := crypto.PubkeyToAddress(e.privateKey.PublicKey)

	nonce, err := e.ethClient.PendingNonceAt(ctx, from)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: fetch nonce: %w", err)}
	}

	estimatedGas, err := e.ethClient.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &e.contract, Data: data})
	if err != nil {
		return Result{Err: fmt.Errorf("executor: estimate gas: %w", err)}
	}
	gasLimit := e.gasPolicy.LimitCap
	if headroom := uint64(float64(estimatedGas) * e.gasPolicy.LimitMultiplier); headroom < gasLimit {
		gasLimit = headroom
	}

	gasPrice, err := e.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: suggest gas price: %w", err)}
	}
	gasPrice = mulFloat(gasPrice, e.gasPolicy.PriceMultiplier)

	tx := types.NewTransaction(nonce, e.contract, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, e.signer, e.privateKey)
	if err != nil {
		return Result{Err: fmt.Errorf("executor: sign transaction: %w", err)}
	}

	if err := e.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return Result{Err: fmt.Errorf("executor: send transaction: %w", err)}
	}

	receipt, err := e.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return Result{Submitted: true, TxHash: signedTx.Hash(), Err: err}
	}

	return Result{
		Submitted: true,
		TxHash:    signedTx.Hash(),
		Success:   receipt.Status == types.ReceiptStatusSuccessful,
	}
}

func (e *Executor) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(receiptTimeout)
	for time.Now().Before(deadline) {
		receipt, err := e.ethClient.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("executor: timed out waiting for receipt after %s", receiptTimeout)
}

func isToken0(base, trade common.Address) bool {
	t0, _ := chain.SortPair(chain.TokenRefFromAddress(base), chain.TokenRefFromAddress(trade))
	return t0.Address() == base
}

func orient(reserve0, reserve1 *uint256.Int, baseIsToken0 bool) (base, trade *uint256.Int) {
	if baseIsToken0 {
		return reserve0, reserve1
	}
	return reserve1, reserve0
}

func applySlippage(amount *big.Int, slippage float64) *big.Int {
	bps := int64((1 - slippage) * 10000)
	out := new(big.Int).Mul(amount, big.NewInt(bps))
	return out.Div(out, big.NewInt(10000))
}

func scaleToWei(amount float64, decimals int) *big.Int {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled := new(big.Float).Mul(big.NewFloat(amount), scale)
	i, _ := scaled.Int(nil)
	return i
}

// mulFloat scales an integer amount (e.g. a suggested gas price) by a
// configured float multiplier without losing precision to int division,
// rounding the product to the nearest integer.
func mulFloat(amount *big.Int, multiplier float64) *big.Int {
	f := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(multiplier))
	f.Add(f, big.NewFloat(0.5))
	i, _ := f.Int(nil)
	return i
}
