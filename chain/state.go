package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// State holds every balance the environment knows about. Mutations are
// journaled so that a call frame or a whole transaction can be undone.
type State struct {
	native    map[common.Address]*big.Int
	tokens    map[common.Address]*Token
	contracts map[common.Address]Contract
	journal   []func()
	logs      []*types.Log
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		native:    make(map[common.Address]*big.Int),
		tokens:    make(map[common.Address]*Token),
		contracts: make(map[common.Address]Contract),
	}
}

// Snapshot returns an identifier that RevertToSnapshot can rewind to.
func (s *State) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every mutation recorded after the snapshot was taken.
func (s *State) RevertToSnapshot(id int) {
	for i := len(s.journal) - 1; i >= id; i-- {
		s.journal[i]()
	}
	s.journal = s.journal[:id]
}

func (s *State) record(undo func()) {
	s.journal = append(s.journal, undo)
}

// commit drops the journal once a transaction is final.
func (s *State) commit() {
	s.journal = s.journal[:0]
}

// BalanceOf returns a copy of the native balance of account.
func (s *State) BalanceOf(account common.Address) *big.Int {
	if bal, ok := s.native[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (s *State) setBalance(account common.Address, amount *big.Int) {
	prev, existed := s.native[account]
	s.record(func() {
		if existed {
			s.native[account] = prev
		} else {
			delete(s.native, account)
		}
	})
	s.native[account] = amount
}

func (s *State) addBalance(account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.setBalance(account, new(big.Int).Add(s.BalanceOf(account), amount))
	return nil
}

func (s *State) subBalance(account common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := s.BalanceOf(account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, account.Hex(), bal, amount)
	}
	s.setBalance(account, bal.Sub(bal, amount))
	return nil
}

func (s *State) transferNative(from, to common.Address, amount *big.Int) error {
	if err := s.subBalance(from, amount); err != nil {
		return err
	}
	return s.addBalance(to, amount)
}

func (s *State) token(address common.Address) (*Token, error) {
	tok, ok := s.tokens[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, address.Hex())
	}
	return tok, nil
}

// TokenBalanceOf returns holder's balance in the token ledger at token.
func (s *State) TokenBalanceOf(token, holder common.Address) (*big.Int, error) {
	tok, err := s.token(token)
	if err != nil {
		return nil, err
	}
	return tok.balanceOf(holder), nil
}

func (s *State) contract(address common.Address) (Contract, bool) {
	c, ok := s.contracts[address]
	return c, ok
}

func (s *State) register(contract Contract) error {
	address := contract.Address()
	if _, ok := s.contracts[address]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, address.Hex())
	}
	s.contracts[address] = contract
	if tok, ok := contract.(*Token); ok {
		s.tokens[address] = tok
	}
	s.record(func() {
		delete(s.contracts, address)
		delete(s.tokens, address)
	})
	return nil
}

func (s *State) addLog(log *types.Log) {
	s.logs = append(s.logs, log)
	n := len(s.logs) - 1
	s.record(func() {
		s.logs = s.logs[:n]
	})
}
