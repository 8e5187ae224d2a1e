// Package calldata implements CalldataBuilder (spec.md §4.9): ABI
// encoding for one swap leg (V2/V3/Algebra shapes) and for the outer
// executeArbitrage(asset, amount, params) call, generalized from the
// teacher's BuildSwapCalldata (which only knew the V2 shape, on one
// hard-coded router pair).
package calldata

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/polyarb/scanner/internal/chain"
)

// MaxUint256 is the MAX_UINT sentinel (spec.md §4.9/§9): the executor
// contract substitutes its actual on-hand balance when it sees this
// exact value as the second leg's amountIn. Any other large number is a
// different contract path — never approximate this value.
var MaxUint256 = new(big.Int).SetBytes(common.FromHex(chain.MaxUint256Hex))

// Builder parses each ABI fragment once and reuses it across calls.
type Builder struct {
	v2RouterABI  abi.ABI
	v3RouterABI  abi.ABI
	algebraABI   abi.ABI
	executorABI  abi.ABI
}

func New() (*Builder, error) {
	v2, err := abi.JSON(strings.NewReader(chain.UniswapV2RouterABI))
	if err != nil {
		return nil, fmt.Errorf("calldata: parse v2 router ABI: %w", err)
	}
	v3, err := abi.JSON(strings.NewReader(chain.UniswapV3RouterABI))
	if err != nil {
		return nil, fmt.Errorf("calldata: parse v3 router ABI: %w", err)
	}
	alg, err := abi.JSON(strings.NewReader(chain.AlgebraRouterABI))
	if err != nil {
		return nil, fmt.Errorf("calldata: parse algebra router ABI: %w", err)
	}
	exec, err := abi.JSON(strings.NewReader(chain.ExecutorABI))
	if err != nil {
		return nil, fmt.Errorf("calldata: parse executor ABI: %w", err)
	}
	return &Builder{v2RouterABI: v2, v3RouterABI: v3, algebraABI: alg, executorABI: exec}, nil
}

// SwapLeg describes one leg of the round trip to be encoded.
type SwapLeg struct {
	Kind         chain.DexKind
	TokenIn      common.Address
	TokenOut     common.Address
	Recipient    common.Address
	AmountIn     *big.Int // pass MaxUint256 for the second leg's sentinel
	AmountOutMin *big.Int
	Deadline     *big.Int
	FeeBps       int // V3 only
}

// BuildSwap encodes one leg according to its venue kind.
func (b *Builder) BuildSwap(leg SwapLeg) ([]byte, error) {
	switch leg.Kind {
	case chain.KindV2:
		path := []common.Address{leg.TokenIn, leg.TokenOut}
		return b.v2RouterABI.Pack("swapExactTokensForTokens", leg.AmountIn, leg.AmountOutMin, path, leg.Recipient, leg.Deadline)

	case chain.KindV3:
		params := struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			Deadline          *big.Int
			AmountIn          *big.Int
			AmountOutMinimum  *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           leg.TokenIn,
			TokenOut:          leg.TokenOut,
			Fee:               big.NewInt(int64(leg.FeeBps) * 100), // bps -> hundredths-of-bip (V3 fee units)
			Recipient:         leg.Recipient,
			Deadline:          leg.Deadline,
			AmountIn:          leg.AmountIn,
			AmountOutMinimum:  leg.AmountOutMin,
			SqrtPriceLimitX96: big.NewInt(0),
		}
		return b.v3RouterABI.Pack("exactInputSingle", params)

	case chain.KindAlgebra:
		params := struct {
			TokenIn          common.Address
			TokenOut         common.Address
			Recipient        common.Address
			Deadline         *big.Int
			AmountIn         *big.Int
			AmountOutMinimum *big.Int
			LimitSqrtPrice   *big.Int
		}{
			TokenIn:          leg.TokenIn,
			TokenOut:         leg.TokenOut,
			Recipient:        leg.Recipient,
			Deadline:         leg.Deadline,
			AmountIn:         leg.AmountIn,
			AmountOutMinimum: leg.AmountOutMin,
			LimitSqrtPrice:   big.NewInt(0),
		}
		return b.algebraABI.Pack("exactInputSingle", params)

	default:
		return nil, fmt.Errorf("calldata: unsupported venue kind %q for swap encoding", leg.Kind)
	}
}

// ExecutorParams is the decoded shape of the outer call's params blob:
// params = abi.encode(bytes[] swapDataList, address[] routers,
// address[] inputTokens, uint256 minFinalOutput).
type ExecutorParams struct {
	SwapDataList   [][]byte
	Routers        []common.Address
	InputTokens    []common.Address
	MinFinalOutput *big.Int
}

var paramsArguments = abi.Arguments{
	{Type: mustType("bytes[]")},
	{Type: mustType("address[]")},
	{Type: mustType("address[]")},
	{Type: mustType("uint256")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeParams ABI-encodes the inner params blob.
func EncodeParams(p ExecutorParams) ([]byte, error) {
	return paramsArguments.Pack(p.SwapDataList, p.Routers, p.InputTokens, p.MinFinalOutput)
}

// DecodeParams is the inverse of EncodeParams, used by tests asserting
// the round-trip property in spec.md §8.
func DecodeParams(data []byte) (ExecutorParams, error) {
	values, err := paramsArguments.Unpack(data)
	if err != nil {
		return ExecutorParams{}, fmt.Errorf("calldata: unpack params: %w", err)
	}
	if len(values) != 4 {
		return ExecutorParams{}, fmt.Errorf("calldata: expected 4 params, got %d", len(values))
	}

	swapDataList, ok := values[0].([][]byte)
	if !ok {
		return ExecutorParams{}, fmt.Errorf("calldata: swapDataList type assertion failed")
	}
	routers, ok := values[1].([]common.Address)
	if !ok {
		return ExecutorParams{}, fmt.Errorf("calldata: routers type assertion failed")
	}
	inputTokens, ok := values[2].([]common.Address)
	if !ok {
		return ExecutorParams{}, fmt.Errorf("calldata: inputTokens type assertion failed")
	}
	minFinalOutput, ok := values[3].(*big.Int)
	if !ok {
		return ExecutorParams{}, fmt.Errorf("calldata: minFinalOutput type assertion failed")
	}

	return ExecutorParams{
		SwapDataList:   swapDataList,
		Routers:        routers,
		InputTokens:    inputTokens,
		MinFinalOutput: minFinalOutput,
	}, nil
}

// BuildExecuteArbitrage encodes the outer executeArbitrage(asset, amount, params) call.
func (b *Builder) BuildExecuteArbitrage(asset common.Address, amount *big.Int, params ExecutorParams) ([]byte, error) {
	encodedParams, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	return b.executorABI.Pack("executeArbitrage", asset, amount, encodedParams)
}
