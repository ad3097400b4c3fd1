package gas

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// FeeSource is the part of an RPC client the estimator reads fees from.
// *ethclient.Client satisfies it.
type FeeSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Quote is a fee suggestion for the next block. BaseFee is nil on chains
// without EIP-1559, in which case only GasPrice is set.
type Quote struct {
	BaseFee  *big.Int
	TipCap   *big.Int
	FeeCap   *big.Int
	GasPrice *big.Int
}

// Dynamic reports whether the quote prices an EIP-1559 transaction.
func (q Quote) Dynamic() bool {
	return q.BaseFee != nil
}

// Cost returns the worst-case cost of gasLimit gas at this quote.
func (q Quote) Cost(gasLimit uint64) *big.Int {
	price := q.GasPrice
	if q.Dynamic() {
		price = q.FeeCap
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))
}

// Estimator provides fee quotes, refreshing them at most once per ttl.
type Estimator struct {
	source FeeSource
	logger *zap.Logger
	ttl    time.Duration

	mu      sync.Mutex
	quote   Quote
	fetched time.Time
}

func NewEstimator(source FeeSource, ttl time.Duration, logger *zap.Logger) (*Estimator, error) {
	if source == nil {
		return nil, fmt.Errorf("fee source cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{source: source, logger: logger, ttl: ttl}, nil
}

// Estimate returns the cached quote if it is fresh, otherwise fetches a new one.
func (e *Estimator) Estimate(ctx context.Context) (Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.fetched.IsZero() && time.Since(e.fetched) < e.ttl {
		return e.quote, nil
	}
	quote, err := e.fetch(ctx)
	if err != nil {
		return Quote{}, err
	}
	e.quote = quote
	e.fetched = time.Now()
	return quote, nil
}

func (e *Estimator) fetch(ctx context.Context) (Quote, error) {
	head, err := e.source.HeaderByNumber(ctx, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to get latest header: %w", err)
	}

	if head.BaseFee == nil {
		price, err := e.source.SuggestGasPrice(ctx)
		if err != nil {
			return Quote{}, fmt.Errorf("failed to get gas price: %w", err)
		}
		e.logger.Debug("Legacy gas price", zap.String("gas_price", price.String()))
		return Quote{GasPrice: price}, nil
	}

	tip, err := e.source.SuggestGasTipCap(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to get priority fee: %w", err)
	}
	// Leaves room for the base fee to double before the transaction is priced out.
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	e.logger.Debug("Dynamic gas fees",
		zap.String("base_fee", head.BaseFee.String()),
		zap.String("tip_cap", tip.String()),
		zap.String("fee_cap", feeCap.String()))
	return Quote{
		BaseFee:  new(big.Int).Set(head.BaseFee),
		TipCap:   tip,
		FeeCap:   feeCap,
		GasPrice: new(big.Int).Add(head.BaseFee, tip),
	}, nil
}

// Apply prices opts from a fresh or cached quote.
func (e *Estimator) Apply(ctx context.Context, opts *bind.TransactOpts) error {
	quote, err := e.Estimate(ctx)
	if err != nil {
		return err
	}
	if quote.Dynamic() {
		opts.GasPrice = nil
		opts.GasTipCap = quote.TipCap
		opts.GasFeeCap = quote.FeeCap
	} else {
		opts.GasPrice = quote.GasPrice
		opts.GasTipCap = nil
		opts.GasFeeCap = nil
	}
	return nil
}
