package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

// ReceiveFlashLoan is invoked by the vault after it moved the borrowed assets
// to the controller. It runs the strategy, then computes and makes available
// amounts[i]+fees[i] of every asset. Whether that is enough is decided by the
// vault; a shortfall there unwinds the whole transaction.
func (c *Controller) ReceiveFlashLoan(call *chain.CallContext, assets []common.Address, amounts, fees []*big.Int, userData []byte) (*Settlement, error) {
	if err := c.enter(call); err != nil {
		return nil, err
	}
	if call.Sender != c.vault {
		c.metrics.RejectedCalls.WithLabelValues("callback").Inc()
		return nil, fmt.Errorf("%w: sender %s is not the vault", ErrUnauthorizedCallback, call.Sender.Hex())
	}

	loan := c.loan
	switch {
	case loan == nil || loan.phase != PhaseDispatched:
		c.metrics.RejectedCalls.WithLabelValues("callback").Inc()
		return nil, fmt.Errorf("%w: no loan was requested", ErrUnauthorizedCallback)
	case loan.settling:
		c.metrics.RejectedCalls.WithLabelValues("callback").Inc()
		return nil, fmt.Errorf("%w: settlement already in progress", ErrUnauthorizedCallback)
	}
	if err := loan.matches(assets, amounts, fees); err != nil {
		c.metrics.RejectedCalls.WithLabelValues("callback").Inc()
		return nil, err
	}

	loan.settling = true
	defer func() { loan.settling = false }()

	lender, err := c.lender(call)
	if err != nil {
		return nil, err
	}

	if len(userData) > 0 {
		if c.strategy == nil {
			c.logger.Debug("No strategy configured, ignoring user data", zap.Int("bytes", len(userData)))
		} else {
			position := &Loan{
				Assets:  append([]common.Address(nil), assets...),
				Amounts: umath.CloneAll(amounts),
				Fees:    umath.CloneAll(fees),
			}
			if err := c.strategy.Execute(call, position, userData); err != nil {
				return nil, fmt.Errorf("strategy failed: %w", err)
			}
		}
	}

	// From here on nothing outside the token ledgers runs until the
	// repayment is in place. Holdings are shared by entries naming the
	// same asset, so each entry is paid from what earlier ones left.
	available := make(map[common.Address]*big.Int, len(assets))
	repayments := make([]Repayment, len(assets))
	for i, asset := range assets {
		left, ok := available[asset]
		if !ok {
			held, err := call.TokenBalanceOf(asset, c.address)
			if err != nil {
				return nil, err
			}
			left = held
			available[asset] = left
		}
		owed := new(big.Int).Add(amounts[i], fees[i])
		paid := umath.Min(left, owed)
		left.Sub(left, paid)
		repayments[i] = Repayment{
			Asset:     asset,
			Principal: umath.Clone(amounts[i]),
			Fee:       umath.Clone(fees[i]),
			Owed:      owed,
			Paid:      paid,
		}
	}

	mode := lender.RepaymentMode()
	approvals := make(map[common.Address]*big.Int, len(available))
	order := make([]common.Address, 0, len(available))
	for _, r := range repayments {
		if r.Short() {
			c.logger.Warn("Holdings do not cover repayment",
				zap.String("asset", r.Asset.Hex()),
				zap.String("owed", r.Owed.String()),
				zap.String("paid", r.Paid.String()))
		}
		if mode == RepayByApproval {
			total, ok := approvals[r.Asset]
			if !ok {
				total = new(big.Int)
				approvals[r.Asset] = total
				order = append(order, r.Asset)
			}
			total.Add(total, r.Paid)
			continue
		}
		if err := call.TransferToken(r.Asset, c.vault, r.Paid); err != nil {
			return nil, fmt.Errorf("failed to repay %s: %w", r.Asset.Hex(), err)
		}
	}
	// An approval replaces the previous allowance, so each asset is
	// approved once for everything its entries pay.
	for _, asset := range order {
		if err := call.ApproveToken(asset, c.vault, approvals[asset]); err != nil {
			return nil, fmt.Errorf("failed to approve %s: %w", asset.Hex(), err)
		}
	}

	if err := c.emit(call, "FlashLoanSettled", assets, amounts, fees); err != nil {
		return nil, err
	}

	settlement := &Settlement{
		Phase:      PhaseSettled,
		Lender:     c.vault,
		Mode:       mode,
		Repayments: repayments,
	}
	loan.phase = PhaseSettled
	loan.settlement = settlement

	c.logger.Debug("Repayment made available",
		zap.String("mode", mode.String()),
		zap.Int("assets", len(assets)))
	return settlement, nil
}

// matches checks the callback against what was dispatched.
func (l *openLoan) matches(assets []common.Address, amounts, fees []*big.Int) error {
	if len(assets) != len(l.assets) || len(amounts) != len(l.amounts) || len(fees) != len(l.assets) {
		return fmt.Errorf("%w: callback arrays do not match the request", ErrUnauthorizedCallback)
	}
	for i := range l.assets {
		if assets[i] != l.assets[i] {
			return fmt.Errorf("%w: asset %d is %s, requested %s", ErrUnauthorizedCallback, i, assets[i].Hex(), l.assets[i].Hex())
		}
		if amounts[i] == nil || amounts[i].Cmp(l.amounts[i]) != 0 {
			return fmt.Errorf("%w: amount %d differs from the request", ErrUnauthorizedCallback, i)
		}
		if fees[i] == nil || fees[i].Sign() < 0 {
			return fmt.Errorf("%w: fee %d is invalid", ErrUnauthorizedCallback, i)
		}
	}
	return nil
}
