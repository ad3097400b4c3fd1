package flashloan

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RepaymentMode tells the controller how a lender collects what it is owed.
type RepaymentMode int

const (
	// RepayByTransfer: the recipient sends principal plus fee back before
	// returning and the lender checks its own balance afterwards.
	RepayByTransfer RepaymentMode = iota
	// RepayByApproval: the recipient approves the lender, which pulls the
	// repayment after the callback returns.
	RepayByApproval
)

func (m RepaymentMode) String() string {
	switch m {
	case RepayByTransfer:
		return "transfer"
	case RepayByApproval:
		return "approval"
	default:
		return "unknown"
	}
}

// Phase of a loan inside one transaction.
type Phase int

const (
	PhaseDispatched Phase = iota + 1
	PhaseSettled
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseDispatched:
		return "dispatched"
	case PhaseSettled:
		return "settled"
	case PhaseAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Loan is the borrowed position handed to a Strategy.
type Loan struct {
	Assets  []common.Address
	Amounts []*big.Int
	Fees    []*big.Int
}

// Repayment is what the controller owes and made available for one asset.
type Repayment struct {
	Asset     common.Address
	Principal *big.Int
	Fee       *big.Int
	Owed      *big.Int
	Paid      *big.Int
}

// Short reports whether less than the owed amount was made available.
func (r Repayment) Short() bool {
	return r.Paid.Cmp(r.Owed) < 0
}

// Settlement is the explicit result of the settlement callback.
type Settlement struct {
	Phase      Phase
	Lender     common.Address
	Mode       RepaymentMode
	Repayments []Repayment
}

// LenderConfig contains configuration for a lending vault
type LenderConfig struct {
	Address common.Address
	FeeBps  uint64 // In basis points (1 = 0.01%)
}
