package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// MaxCallDepth bounds nested calls inside one transaction.
const MaxCallDepth = 1024

// Contract is anything that lives at an address and can be called.
type Contract interface {
	Address() common.Address
}

// Payable contracts accept plain value transfers that name no function.
type Payable interface {
	Contract
	Receive(call *CallContext) error
}

// Reader exposes balance queries. Both *Chain and *CallContext satisfy it.
type Reader interface {
	BalanceOf(account common.Address) *big.Int
	TokenBalanceOf(token, holder common.Address) (*big.Int, error)
}

// Receipt is the outcome of one transaction.
type Receipt struct {
	TxHash common.Hash
	From   common.Address
	To     common.Address
	Status uint64
	Logs   []*types.Log
	Err    error
}

// Succeeded reports whether the transaction committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Chain is a single-threaded execution environment. Transactions never
// interleave: each one holds the chain lock from start to commit or revert.
type Chain struct {
	mu     sync.Mutex
	state  *State
	nonces map[common.Address]uint64
	logger *zap.Logger
}

// New creates an empty chain.
func New(logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		state:  NewState(),
		nonces: make(map[common.Address]uint64),
		logger: logger,
	}
}

// Fund credits account with native coins outside of any transaction.
func (c *Chain) Fund(account common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.commit()
	return c.state.addBalance(account, amount)
}

// NewToken creates a token ledger at address.
func (c *Chain) NewToken(address common.Address, symbol string, decimals uint8) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.commit()

	tok := newToken(c.state, address, symbol, decimals)
	if err := c.state.register(tok); err != nil {
		return nil, err
	}
	c.logger.Debug("Token created",
		zap.String("token", address.Hex()),
		zap.String("symbol", symbol))
	return tok, nil
}

// Mint credits holder with amount of token outside of any transaction.
func (c *Chain) Mint(token, holder common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.commit()

	tok, err := c.state.token(token)
	if err != nil {
		return err
	}
	return tok.mint(holder, amount)
}

// Register places a contract at its own address, e.g. a protocol deployed
// before the environment was created.
func (c *Chain) Register(contract Contract) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.commit()
	return c.state.register(contract)
}

// Contract returns the contract at address, if any.
func (c *Chain) Contract(address common.Address) (Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.contract(address)
}

func (c *Chain) BalanceOf(account common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.BalanceOf(account)
}

func (c *Chain) TokenBalanceOf(token, holder common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.TokenBalanceOf(token, holder)
}

// Nonce returns the number of transactions sent by account.
func (c *Chain) Nonce(account common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[account]
}

// Transact runs fn as a transaction from from to to carrying value. Either
// every effect of fn commits or none does. The returned error wraps the
// revert reason in a *RevertError.
func (c *Chain) Transact(ctx context.Context, from, to common.Address, value *big.Int, fn func(call *CallContext) error) (*Receipt, error) {
	return c.transact(ctx, from, &to, value, fn)
}

// Send transfers value to to without naming a function. Contracts receive it
// through Payable.Receive; contracts that are not payable revert.
func (c *Chain) Send(ctx context.Context, from, to common.Address, value *big.Int) (*Receipt, error) {
	return c.transact(ctx, from, &to, value, deliver)
}

// View runs fn against the current state and discards every effect.
func (c *Chain) View(ctx context.Context, from, to common.Address, fn func(call *CallContext) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.state.Snapshot()
	defer func() {
		c.state.RevertToSnapshot(snap)
		c.state.commit()
	}()
	frame := &CallContext{ctx: ctx, state: c.state, Sender: from, Self: to, Value: new(big.Int)}
	return fn(frame)
}

func (c *Chain) transact(ctx context.Context, from common.Address, to *common.Address, value *big.Int, fn func(call *CallContext) error) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nonce := c.nonces[from]
	c.nonces[from] = nonce + 1

	target := crypto.CreateAddress(from, nonce)
	if to != nil {
		target = *to
	}
	receipt := &Receipt{
		TxHash: txHash(from, nonce),
		From:   from,
		To:     target,
	}

	c.state.logs = nil
	err := execute(ctx, c.state, 0, from, target, value, fn)
	if err != nil {
		c.state.commit()
		receipt.Status = types.ReceiptStatusFailed
		receipt.Err = err
		c.logger.Debug("Transaction reverted",
			zap.String("tx_hash", receipt.TxHash.Hex()),
			zap.String("from", from.Hex()),
			zap.String("to", target.Hex()),
			zap.Error(err))
		return receipt, &RevertError{TxHash: receipt.TxHash, Err: err}
	}

	c.state.commit()
	receipt.Status = types.ReceiptStatusSuccessful
	receipt.Logs = c.state.logs
	for i, log := range receipt.Logs {
		log.TxHash = receipt.TxHash
		log.Index = uint(i)
	}
	c.state.logs = nil

	c.logger.Debug("Transaction committed",
		zap.String("tx_hash", receipt.TxHash.Hex()),
		zap.String("from", from.Hex()),
		zap.String("to", target.Hex()),
		zap.Int("logs", len(receipt.Logs)))
	return receipt, nil
}

// Deploy creates a contract at the address derived from from and its nonce.
// create runs inside the deployment frame, so call.Sender is the deployer and
// call.Self the new contract address.
func Deploy[T Contract](ctx context.Context, c *Chain, from common.Address, create func(call *CallContext) (T, error)) (T, *Receipt, error) {
	var deployed T
	receipt, err := c.transact(ctx, from, nil, nil, func(call *CallContext) error {
		contract, err := create(call)
		if err != nil {
			return err
		}
		if contract.Address() != call.Self {
			return fmt.Errorf("%w: constructed at %s, deploying to %s",
				ErrWrongFrame, contract.Address().Hex(), call.Self.Hex())
		}
		if err := call.state.register(contract); err != nil {
			return err
		}
		deployed = contract
		return nil
	})
	if err != nil {
		var zero T
		return zero, receipt, err
	}
	return deployed, receipt, nil
}

// execute runs one call frame. A failing frame undoes its own effects before
// the error reaches the parent.
func execute(ctx context.Context, state *State, depth int, sender, to common.Address, value *big.Int, fn func(call *CallContext) error) error {
	if depth > MaxCallDepth {
		return ErrCallDepth
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := state.Snapshot()
	if value.Sign() > 0 {
		if err := state.transferNative(sender, to, value); err != nil {
			state.RevertToSnapshot(snap)
			return err
		}
	}

	frame := &CallContext{
		ctx:    ctx,
		state:  state,
		depth:  depth,
		Sender: sender,
		Self:   to,
		Value:  new(big.Int).Set(value),
	}
	if err := fn(frame); err != nil {
		state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

// deliver is the body of a plain value transfer.
func deliver(call *CallContext) error {
	contract, ok := call.state.contract(call.Self)
	if !ok {
		return nil
	}
	payable, ok := contract.(Payable)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotPayable, call.Self.Hex())
	}
	return payable.Receive(call)
}

func txHash(from common.Address, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(from.Bytes(), new(big.Int).SetUint64(nonce).Bytes())
}
