package flashloan

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

// RequestFlashLoan borrows amounts[i] of assets[i] from the vault. The vault
// calls ReceiveFlashLoan before this returns; the settlement it recorded is
// returned. Anyone may request a loan since the controller, not the caller,
// bears the repayment.
func (c *Controller) RequestFlashLoan(call *chain.CallContext, assets []common.Address, amounts []*big.Int, userData []byte) (*Settlement, error) {
	if err := c.enter(call); err != nil {
		return nil, err
	}
	if err := ValidateRequest(assets, amounts); err != nil {
		c.metrics.RejectedCalls.WithLabelValues("request").Inc()
		return nil, err
	}
	if c.loan != nil {
		c.metrics.RejectedCalls.WithLabelValues("request").Inc()
		return nil, fmt.Errorf("%w: a loan is already in flight", ErrInvalidRequest)
	}

	lender, err := c.lender(call)
	if err != nil {
		return nil, err
	}

	loan := &openLoan{
		phase:   PhaseDispatched,
		assets:  append([]common.Address(nil), assets...),
		amounts: umath.CloneAll(amounts),
	}
	c.loan = loan
	defer func() { c.loan = nil }()

	start := time.Now()
	c.metrics.LoansRequested.Inc()
	c.metrics.ActiveLoans.Inc()
	defer c.metrics.ActiveLoans.Dec()

	c.logger.Info("Requesting flash loan",
		zap.String("lender", lender.String()),
		zap.String("vault", c.vault.Hex()),
		zap.String("sender", call.Sender.Hex()),
		zap.Int("assets", len(assets)),
		zap.Int("user_data_bytes", len(userData)))

	err = call.Call(c.vault, nil, func(vault *chain.CallContext) error {
		return lender.FlashLoan(vault, c.address, loan.assets, umath.CloneAll(loan.amounts), userData)
	})
	c.metrics.SettlementLatency.Observe(time.Since(start).Seconds())
	if err == nil && loan.phase != PhaseSettled {
		err = ErrNotSettled
	}
	if err != nil {
		loan.phase = PhaseAborted
		c.metrics.LoansAborted.WithLabelValues(abortReason(err)).Inc()
		c.logger.Warn("Flash loan aborted",
			zap.String("vault", c.vault.Hex()),
			zap.Error(err))
		return nil, fmt.Errorf("flash loan aborted: %w", err)
	}

	c.metrics.LoansSettled.Inc()
	for _, r := range loan.settlement.Repayments {
		asset := r.Asset.Hex()
		c.metrics.BorrowedVolume.WithLabelValues(asset).Add(umath.ToFloat(r.Principal))
		c.metrics.FeesPaid.WithLabelValues(asset).Add(umath.ToFloat(r.Fee))
	}
	c.logger.Info("Flash loan settled",
		zap.String("vault", c.vault.Hex()),
		zap.Int("assets", len(assets)),
		zap.Duration("elapsed", time.Since(start)))
	return loan.settlement, nil
}

// ValidateRequest checks the shape of a loan request.
func ValidateRequest(assets []common.Address, amounts []*big.Int) error {
	if len(assets) == 0 {
		return fmt.Errorf("%w: no assets requested", ErrInvalidRequest)
	}
	if len(assets) != len(amounts) {
		return fmt.Errorf("%w: %d assets but %d amounts", ErrInvalidRequest, len(assets), len(amounts))
	}
	for i, asset := range assets {
		if asset == (common.Address{}) {
			return fmt.Errorf("%w: asset %d is the zero address", ErrInvalidRequest, i)
		}
		if !umath.IsPositive(amounts[i]) {
			return fmt.Errorf("%w: amount %d must be positive", ErrInvalidRequest, i)
		}
	}
	return nil
}

func abortReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientRepayment):
		return "insufficient_repayment"
	case errors.Is(err, ErrUnauthorizedCallback):
		return "unauthorized_callback"
	case errors.Is(err, ErrNotSettled):
		return "not_settled"
	case errors.Is(err, chain.ErrInsufficientBalance):
		return "insufficient_liquidity"
	default:
		return "other"
	}
}
