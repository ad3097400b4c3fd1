package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	approvalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// Token is an ERC-20 style balance ledger living at a fixed address.
type Token struct {
	address  common.Address
	symbol   string
	decimals uint8

	state      *State
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func newToken(state *State, address common.Address, symbol string, decimals uint8) *Token {
	return &Token{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		state:      state,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() uint8         { return t.decimals }

// Transfer moves amount from the caller of the frame to to.
func (t *Token) Transfer(call *CallContext, to common.Address, amount *big.Int) error {
	if call.Self != t.address {
		return ErrWrongFrame
	}
	if err := t.move(call.Sender, to, amount); err != nil {
		return err
	}
	call.Emit(&types.Log{
		Topics: []common.Hash{transferTopic, addressTopic(call.Sender), addressTopic(to)},
		Data:   common.LeftPadBytes(amount.Bytes(), 32),
	})
	return nil
}

// Approve lets spender pull up to amount from the caller of the frame.
func (t *Token) Approve(call *CallContext, spender common.Address, amount *big.Int) error {
	if call.Self != t.address {
		return ErrWrongFrame
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.setAllowance(call.Sender, spender, new(big.Int).Set(amount))
	call.Emit(&types.Log{
		Topics: []common.Hash{approvalTopic, addressTopic(call.Sender), addressTopic(spender)},
		Data:   common.LeftPadBytes(amount.Bytes(), 32),
	})
	return nil
}

// TransferFrom moves amount from from to to, spending the caller's allowance.
func (t *Token) TransferFrom(call *CallContext, from, to common.Address, amount *big.Int) error {
	if call.Self != t.address {
		return ErrWrongFrame
	}
	allowed := t.allowance(from, call.Sender)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may spend %s of %s, needs %s",
			ErrInsufficientAllowance, call.Sender.Hex(), allowed, t.symbol, amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.setAllowance(from, call.Sender, allowed.Sub(allowed, amount))
	call.Emit(&types.Log{
		Topics: []common.Hash{transferTopic, addressTopic(from), addressTopic(to)},
		Data:   common.LeftPadBytes(amount.Bytes(), 32),
	})
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := t.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			ErrInsufficientBalance, from.Hex(), bal, t.symbol, amount)
	}
	t.setBalance(from, bal.Sub(bal, amount))
	t.setBalance(to, new(big.Int).Add(t.balanceOf(to), amount))
	return nil
}

func (t *Token) mint(to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.setBalance(to, new(big.Int).Add(t.balanceOf(to), amount))
	return nil
}

func (t *Token) balanceOf(holder common.Address) *big.Int {
	if bal, ok := t.balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (t *Token) setBalance(holder common.Address, amount *big.Int) {
	prev, existed := t.balances[holder]
	t.state.record(func() {
		if existed {
			t.balances[holder] = prev
		} else {
			delete(t.balances, holder)
		}
	})
	t.balances[holder] = amount
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if amount, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(amount)
	}
	return new(big.Int)
}

func (t *Token) setAllowance(owner, spender common.Address, amount *big.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[owner] = spenders
	}
	prev, existed := spenders[spender]
	t.state.record(func() {
		if existed {
			spenders[spender] = prev
		} else {
			delete(spenders, spender)
		}
	})
	spenders[spender] = amount
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
