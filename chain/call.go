package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallContext is a single call frame: Self is the account whose code runs,
// Sender the immediate caller and Value the native amount attached to the call
// (already credited to Self when the frame starts).
type CallContext struct {
	ctx   context.Context
	state *State
	depth int

	Sender common.Address
	Self   common.Address
	Value  *big.Int
}

// Context returns the context of the enclosing transaction.
func (c *CallContext) Context() context.Context { return c.ctx }

// Depth returns how many frames enclose this one.
func (c *CallContext) Depth() int { return c.depth }

// Call runs fn in a nested frame where Self becomes the caller.
func (c *CallContext) Call(to common.Address, value *big.Int, fn func(call *CallContext) error) error {
	if value == nil {
		value = new(big.Int)
	}
	return execute(c.ctx, c.state, c.depth+1, c.Self, to, value, fn)
}

// Contract looks up the contract deployed at address.
func (c *CallContext) Contract(address common.Address) (Contract, error) {
	contract, ok := c.state.contract(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoContract, address.Hex())
	}
	return contract, nil
}

// Emit appends a log attributed to Self.
func (c *CallContext) Emit(log *types.Log) {
	log.Address = c.Self
	c.state.addLog(log)
}

func (c *CallContext) BalanceOf(account common.Address) *big.Int {
	return c.state.BalanceOf(account)
}

func (c *CallContext) TokenBalanceOf(token, holder common.Address) (*big.Int, error) {
	return c.state.TokenBalanceOf(token, holder)
}

// Transfer sends native coins from Self to to. A payable contract at to
// receives them through its Receive hook.
func (c *CallContext) Transfer(to common.Address, amount *big.Int) error {
	return c.Call(to, amount, deliver)
}

// TransferToken calls token.transfer(to, amount) from Self.
func (c *CallContext) TransferToken(token, to common.Address, amount *big.Int) error {
	tok, err := c.state.token(token)
	if err != nil {
		return err
	}
	return c.Call(token, nil, func(call *CallContext) error {
		return tok.Transfer(call, to, amount)
	})
}

// ApproveToken calls token.approve(spender, amount) from Self.
func (c *CallContext) ApproveToken(token, spender common.Address, amount *big.Int) error {
	tok, err := c.state.token(token)
	if err != nil {
		return err
	}
	return c.Call(token, nil, func(call *CallContext) error {
		return tok.Approve(call, spender, amount)
	})
}

// TransferTokenFrom calls token.transferFrom(from, to, amount) with Self as spender.
func (c *CallContext) TransferTokenFrom(token, from, to common.Address, amount *big.Int) error {
	tok, err := c.state.token(token)
	if err != nil {
		return err
	}
	return c.Call(token, nil, func(call *CallContext) error {
		return tok.TransferFrom(call, from, to, amount)
	})
}

// TokenAllowance returns how much spender may pull from owner.
func (c *CallContext) TokenAllowance(token, owner, spender common.Address) (*big.Int, error) {
	tok, err := c.state.token(token)
	if err != nil {
		return nil, err
	}
	return tok.allowance(owner, spender), nil
}
