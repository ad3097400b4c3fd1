package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/flashctl/chain"
)

// Lender is the lending vault a controller borrows from. FlashLoan must move
// every asset to recipient, invoke its ReceiveFlashLoan in the same call chain
// and fail unless principal plus fee came back.
type Lender interface {
	chain.Contract
	FlashLoan(call *chain.CallContext, recipient common.Address, assets []common.Address, amounts []*big.Int, userData []byte) error
	RepaymentMode() RepaymentMode
	String() string
}

// Recipient is the callback side of a flash loan.
type Recipient interface {
	chain.Contract
	ReceiveFlashLoan(call *chain.CallContext, assets []common.Address, amounts, fees []*big.Int, userData []byte) (*Settlement, error)
}

// Strategy runs with the borrowed assets in hand, before repayment is computed.
type Strategy interface {
	Execute(call *chain.CallContext, loan *Loan, userData []byte) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(call *chain.CallContext, loan *Loan, userData []byte) error

func (f StrategyFunc) Execute(call *chain.CallContext, loan *Loan, userData []byte) error {
	return f(call, loan, userData)
}
