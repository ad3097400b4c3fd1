package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("chain: insufficient balance")
	ErrInsufficientAllowance = errors.New("chain: insufficient allowance")
	ErrNegativeAmount        = errors.New("chain: negative amount")
	ErrUnknownToken          = errors.New("chain: unknown token")
	ErrNoContract            = errors.New("chain: no contract at address")
	ErrNotPayable            = errors.New("chain: contract does not accept value")
	ErrAddressInUse          = errors.New("chain: address already in use")
	ErrCallDepth             = errors.New("chain: max call depth exceeded")
	ErrWrongFrame            = errors.New("chain: call frame does not belong to contract")
)

// RevertError is returned for a transaction whose effects were undone.
type RevertError struct {
	TxHash common.Hash
	Err    error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("transaction %s reverted: %v", e.TxHash.Hex(), e.Err)
}

func (e *RevertError) Unwrap() error {
	return e.Err
}
