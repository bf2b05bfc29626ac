package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"driftbuy/internal/market"
)

const (
	erc20ABIJSON = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"approve","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

	routerABIJSON = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}]`

	poolABIJSON = `[{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"onBehalfOf","type":"address"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"address","name":"asset","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"},{"internalType":"address","name":"to","type":"address"}],"name":"withdraw","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}]`
)

var (
	erc20ABI  abi.ABI
	routerABI abi.ABI
	poolABI   abi.ABI
)

func init() {
	for _, entry := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"erc20", erc20ABIJSON, &erc20ABI},
		{"router", routerABIJSON, &routerABI},
		{"pool", poolABIJSON, &poolABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(entry.json))
		if err != nil {
			panic("failed to parse " + entry.name + " ABI: " + err.Error())
		}
		*entry.dst = parsed
	}
}

// EVMOptions parameterise the live executor.
type EVMOptions struct {
	RPCURL        string
	ChainID       int64
	PrivateKey    string
	RouterAddress string
	PoolAddress   string

	StableToken    string
	StableDecimals int32
	TargetToken    string
	TargetDecimals int32

	GasLimit uint64
	Timeout  time.Duration
}

// EVM executes conversions and pool deposits against an EVM chain over RPC.
type EVM struct {
	opts      EVMOptions
	logger    zerolog.Logger
	key       *ecdsa.PrivateKey
	from      common.Address
	client    *ethclient.Client
	clientMux sync.Mutex
	nonceMux  sync.Mutex
}

// NewEVM builds a live executor. The private key is parsed eagerly so a bad
// key fails at startup, not on the first trade.
func NewEVM(opts EVMOptions, logger zerolog.Logger) (*EVM, error) {
	if opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}
	if opts.RouterAddress == "" || opts.PoolAddress == "" {
		return nil, errors.New("router and pool addresses must be configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(opts.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if opts.GasLimit == 0 {
		opts.GasLimit = 400000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &EVM{
		opts:   opts,
		logger: logger.With().Str("component", "evm_executor").Logger(),
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Convert swaps stable for target through the router and reports the amount
// actually received from the destination's balance delta.
func (e *EVM) Convert(ctx context.Context, amount decimal.Decimal, destination string) (ConvertResult, error) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return ConvertResult{}, execErr("convert", err)
	}

	to := common.HexToAddress(destination)
	stable := common.HexToAddress(e.opts.StableToken)
	target := common.HexToAddress(e.opts.TargetToken)
	units := toUnits(amount, e.opts.StableDecimals)

	held, err := e.tokenBalance(ctx, client, stable, e.from)
	if err != nil {
		return ConvertResult{}, execErr("convert", err)
	}
	if held.Cmp(units) < 0 {
		return ConvertResult{}, execErr("convert", ErrInsufficientBalance)
	}

	before, err := e.tokenBalance(ctx, client, target, to)
	if err != nil {
		return ConvertResult{}, execErr("convert", err)
	}

	router := common.HexToAddress(e.opts.RouterAddress)
	if _, err := e.sendCall(ctx, client, stable, erc20ABI, "approve", router, units); err != nil {
		return ConvertResult{}, execErr("convert", fmt.Errorf("approve router: %w", err))
	}

	deadline := big.NewInt(time.Now().Add(e.opts.Timeout).Unix())
	path := []common.Address{stable, target}
	receipt, err := e.sendCall(ctx, client, router, routerABI, "swapExactTokensForTokens",
		units, big.NewInt(0), path, to, deadline)
	if err != nil {
		return ConvertResult{}, execErr("convert", err)
	}

	after, err := e.tokenBalance(ctx, client, target, to)
	if err != nil {
		return ConvertResult{}, execErr("convert", err)
	}

	received := decimal.NewFromBigInt(new(big.Int).Sub(after, before), -e.opts.TargetDecimals)
	hash := receipt.TxHash.Hex()

	e.logger.Info().
		Str("tx", hash).
		Str("amount", amount.String()).
		Str("received", received.String()).
		Msg("conversion confirmed")

	return ConvertResult{TxHash: hash, Received: received}, nil
}

// Deposit approves the pool and supplies the target token on behalf of the
// signing account.
func (e *EVM) Deposit(ctx context.Context, amount decimal.Decimal, mk market.Market) (DepositResult, error) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return DepositResult{}, execErr("deposit", err)
	}

	asset := common.HexToAddress(e.opts.TargetToken)
	pool := common.HexToAddress(e.opts.PoolAddress)
	units := toUnits(amount, e.opts.TargetDecimals)

	held, err := e.tokenBalance(ctx, client, asset, e.from)
	if err != nil {
		return DepositResult{}, execErr("deposit", err)
	}
	if held.Cmp(units) < 0 {
		return DepositResult{}, execErr("deposit", ErrInsufficientBalance)
	}

	if _, err := e.sendCall(ctx, client, asset, erc20ABI, "approve", pool, units); err != nil {
		return DepositResult{}, execErr("deposit", fmt.Errorf("approve pool: %w", err))
	}

	receipt, err := e.sendCall(ctx, client, pool, poolABI, "deposit", asset, units, e.from)
	if err != nil {
		return DepositResult{}, execErr("deposit", err)
	}

	hash := receipt.TxHash.Hex()
	ref := fmt.Sprintf("%s:%s", e.opts.PoolAddress, hash)

	e.logger.Info().
		Str("tx", hash).
		Str("market", mk.Asset).
		Str("amount", amount.String()).
		Msg("deposit confirmed")

	return DepositResult{TxHash: hash, PositionRef: ref}, nil
}

// Withdraw pulls funds back out of the pool to the signing account.
func (e *EVM) Withdraw(ctx context.Context, amount decimal.Decimal, _ string, mk market.Market) (string, error) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return "", execErr("withdraw", err)
	}

	asset := common.HexToAddress(e.opts.TargetToken)
	pool := common.HexToAddress(e.opts.PoolAddress)
	units := toUnits(amount, e.opts.TargetDecimals)

	receipt, err := e.sendCall(ctx, client, pool, poolABI, "withdraw", asset, units, e.from)
	if err != nil {
		return "", execErr("withdraw", err)
	}

	hash := receipt.TxHash.Hex()
	e.logger.Info().
		Str("tx", hash).
		Str("market", mk.Asset).
		Str("amount", amount.String()).
		Msg("withdrawal confirmed")

	return hash, nil
}

// Balance reports an ERC-20 balance for an address. The asset selects between
// the configured stable and target tokens.
func (e *EVM) Balance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	client, err := e.getClient(ctx)
	if err != nil {
		return decimal.Decimal{}, execErr("balance", err)
	}

	token := common.HexToAddress(e.opts.StableToken)
	decimals := e.opts.StableDecimals
	if asset == AssetTarget {
		token = common.HexToAddress(e.opts.TargetToken)
		decimals = e.opts.TargetDecimals
	}

	holder := e.from
	if address != "" {
		holder = common.HexToAddress(address)
	}

	units, err := e.tokenBalance(ctx, client, token, holder)
	if err != nil {
		return decimal.Decimal{}, execErr("balance", err)
	}

	return decimal.NewFromBigInt(units, -decimals), nil
}

func (e *EVM) tokenBalance(ctx context.Context, client *ethclient.Client, token, holder common.Address) (*big.Int, error) {
	payload, err := erc20ABI.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return nil, err
	}

	outputs, err := erc20ABI.Unpack("balanceOf", res)
	if err != nil {
		return nil, err
	}
	if len(outputs) != 1 {
		return nil, errors.New("unexpected balanceOf response")
	}
	bal, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, errors.New("failed to decode balanceOf output")
	}
	return bal, nil
}

// sendCall packs, signs, submits and waits for a state-changing contract call.
// Nonce allocation is serialised so back-to-back calls on one trade do not
// race each other.
func (e *EVM) sendCall(ctx context.Context, client *ethclient.Client, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (*types.Receipt, error) {
	payload, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	e.nonceMux.Lock()
	nonce, err := client.PendingNonceAt(ctx, e.from)
	if err != nil {
		e.nonceMux.Unlock()
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		e.nonceMux.Unlock()
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      e.opts.GasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	})

	signer := types.LatestSignerForChainID(big.NewInt(e.opts.ChainID))
	signed, err := types.SignTx(tx, signer, e.key)
	if err != nil {
		e.nonceMux.Unlock()
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		e.nonceMux.Unlock()
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	e.nonceMux.Unlock()

	receipt, err := bind.WaitMined(ctx, client, signed)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s transaction %s reverted", method, signed.Hash().Hex())
	}
	return receipt, nil
}

func (e *EVM) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	client, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

func toUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

var _ Executor = (*EVM)(nil)
