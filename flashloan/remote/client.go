package remote

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flashctl/flashloan"
	"github.com/michaelpento.lv/flashctl/utils/metrics"
)

// Config tunes the RPC side of a Client.
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	WaitTimeout       time.Duration
	CacheSize         int
}

// DefaultConfig matches the CLI's default rate limit.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 10,
		BurstSize:         20,
		WaitTimeout:       5 * time.Second,
		CacheSize:         64,
	}
}

// Client talks to a controller deployed on a live network.
type Client struct {
	address  common.Address
	contract *bind.BoundContract
	abi      abi.ABI
	limiter  *rate.Limiter
	cache    *lru.Cache
	timeout  time.Duration
	metrics  *metrics.RPCMetrics
	logger   *zap.Logger
	readOnly bool
}

// NewClient binds the controller at address. transactor may be nil for a
// read-only client.
func NewClient(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, cfg Config, m *metrics.RPCMetrics, logger *zap.Logger) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewRPCMetrics("flashctl_rpc", nil)
	}
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}

	parsed, err := flashloan.ParseControllerABI()
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &Client{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, transactor, nil),
		abi:      parsed,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		cache:    cache,
		timeout:  cfg.WaitTimeout,
		metrics:  m,
		logger:   logger.With(zap.String("contract", address.Hex())),
		readOnly: transactor == nil,
	}, nil
}

// Address returns the bound controller address.
func (c *Client) Address() common.Address { return c.address }

func (c *Client) wait(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	c.metrics.Requests.WithLabelValues(method).Inc()
	defer func() {
		c.metrics.Latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		c.metrics.Errors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(out) == 0 {
		c.metrics.Errors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("empty result from %s", method)
	}
	return out, nil
}

// cached serves reads of immutable contract fields from the cache.
func (c *Client) cached(ctx context.Context, method string) (interface{}, error) {
	key := c.address.Hex() + "/" + method
	if v, ok := c.cache.Get(key); ok {
		c.metrics.CacheHit.Inc()
		return v, nil
	}
	out, err := c.call(ctx, method)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, out[0])
	return out[0], nil
}

// Owner returns the controller's owner. The value never changes and is cached.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	v, err := c.cached(ctx, "getOwner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse owner")
	}
	return owner, nil
}

// Version returns the controller's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	v, err := c.cached(ctx, "getVersion")
	if err != nil {
		return "", err
	}
	version, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("failed to parse version")
	}
	return version, nil
}

// Balance reads getBalance(), the controller's native balance in wei.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "getBalance")
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse balance")
	}
	return balance, nil
}

// TokenBalance reads getTokenBalance(token).
func (c *Client) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "getTokenBalance", token)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse token balance")
	}
	return balance, nil
}

func (c *Client) transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	if opts == nil {
		return nil, fmt.Errorf("transact options cannot be nil")
	}
	if c.readOnly {
		return nil, fmt.Errorf("client is read-only, cannot send %s", method)
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.metrics.Requests.WithLabelValues(method).Inc()

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		c.metrics.Errors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}
	c.logger.Info("Transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("from", opts.From.Hex()))
	return tx, nil
}

// RequestFlashLoan submits requestFlashLoan. The request is checked locally
// first so that obviously invalid loans never reach the network.
func (c *Client) RequestFlashLoan(opts *bind.TransactOpts, assets []common.Address, amounts []*big.Int, userData []byte) (*types.Transaction, error) {
	if err := flashloan.ValidateRequest(assets, amounts); err != nil {
		return nil, err
	}
	if userData == nil {
		userData = []byte{}
	}
	return c.transact(opts, "requestFlashLoan", assets, amounts, userData)
}

// Deposit sends opts.Value through deposit().
func (c *Client) Deposit(opts *bind.TransactOpts) (*types.Transaction, error) {
	if opts == nil || opts.Value == nil || opts.Value.Sign() <= 0 {
		return nil, fmt.Errorf("deposit value must be positive")
	}
	return c.transact(opts, "deposit")
}

// Withdraw submits withdraw(). Only the owner's transaction succeeds on chain.
func (c *Client) Withdraw(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.transact(opts, "withdraw")
}

// WithdrawToken submits withdrawToken(token) for the full token balance.
func (c *Client) WithdrawToken(opts *bind.TransactOpts, token common.Address) (*types.Transaction, error) {
	return c.transact(opts, "withdrawToken", token)
}

// Calldata packs a controller call without sending it.
func (c *Client) Calldata(method string, params ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return data, nil
}

// WaitMined blocks until tx is mined and fails if it reverted.
func WaitMined(ctx context.Context, backend bind.DeployBackend, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
