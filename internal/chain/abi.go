package chain

// ABI fragments, kept as inline JSON the way the teacher's
// internal/eth/constants.go and internal/arbitrage/builder.go do — one
// function per fragment, parsed lazily by whichever caller needs it.

// ERC20DecimalsABI exposes only decimals(), used by DecimalsCache.
const ERC20DecimalsABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// UniswapV2PairABI exposes getReserves(); token0/token1 are intentionally
// absent per spec.md §4.4 (ReservesFetcher does not learn them this way).
const UniswapV2PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32",  "name": "blockTimestampLast", "type": "uint32"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	}
]`

// UniswapV2RouterABI exposes factory() and swapExactTokensForTokens(...),
// used by the factory-fallback ladder and CalldataBuilder respectively.
const UniswapV2RouterABI = `[
	{
		"inputs": [],
		"name": "factory",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint256", "name": "amountOutMin", "type": "uint256"},
			{"internalType": "address[]", "name": "path", "type": "address[]"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "swapExactTokensForTokens",
		"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// UniswapV2FactoryABI exposes getPair(tokenA, tokenB).
const UniswapV2FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "getPair",
		"outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// UniswapV3RouterABI exposes exactInputSingle for single-hop V3 swaps.
const UniswapV3RouterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24",  "name": "fee", "type": "uint24"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "deadline", "type": "uint256"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct ISwapRouter.ExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactInputSingle",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// AlgebraRouterABI mirrors UniswapV3RouterABI minus the fee field: Algebra
// pools carry a single dynamic fee per pool rather than a tiered selector.
const AlgebraRouterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "deadline", "type": "uint256"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"},
					{"internalType": "uint160", "name": "limitSqrtPrice", "type": "uint160"}
				],
				"internalType": "struct ISwapRouter.ExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactInputSingle",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// ExecutorABI exposes the outer executeArbitrage(asset, amount, params)
// entry point of the on-chain contract (spec.md §4.9); the contract itself
// is an external collaborator, only its call signature is needed here.
const ExecutorABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "asset", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bytes",   "name": "params", "type": "bytes"}
		],
		"name": "executeArbitrage",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// MaxUint256Hex is the MAX_UINT sentinel contract convention described in
// spec.md §4.9/§9: the executor contract substitutes its actual TRADE
// balance for the second leg's amountIn when it sees this exact value.
const MaxUint256Hex = "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
