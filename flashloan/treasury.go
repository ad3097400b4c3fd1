package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

// GetBalance returns the controller's native coin balance.
func (c *Controller) GetBalance(r chain.Reader) *big.Int {
	return r.BalanceOf(c.address)
}

// GetTokenBalance returns the controller's balance in the token ledger at token.
func (c *Controller) GetTokenBalance(r chain.Reader, token common.Address) (*big.Int, error) {
	return r.TokenBalanceOf(token, c.address)
}

// Deposit accepts the value attached to the call. Anyone may deposit.
func (c *Controller) Deposit(call *chain.CallContext) error {
	return c.credit(call, "deposit")
}

// Receive accepts plain transfers that name no function.
func (c *Controller) Receive(call *chain.CallContext) error {
	return c.credit(call, "receive")
}

func (c *Controller) credit(call *chain.CallContext, via string) error {
	if err := c.enter(call); err != nil {
		return err
	}
	if err := c.emit(call, "Deposited", call.Sender, call.Value); err != nil {
		return err
	}
	c.metrics.Deposits.Inc()
	c.metrics.DepositedVolume.Add(umath.ToFloat(call.Value))
	c.logger.Debug("Native coins received",
		zap.String("via", via),
		zap.String("from", call.Sender.Hex()),
		zap.String("amount", call.Value.String()))
	return nil
}

// Withdraw sends the whole native balance to the owner.
func (c *Controller) Withdraw(call *chain.CallContext) error {
	if err := c.requireOwner(call.Sender); err != nil {
		return err
	}
	if err := c.enter(call); err != nil {
		return err
	}

	amount := call.BalanceOf(c.address)
	if err := call.Transfer(c.owner, amount); err != nil {
		return fmt.Errorf("failed to withdraw native coins: %w", err)
	}
	if err := c.emit(call, "Withdrawn", c.owner, amount); err != nil {
		return err
	}

	c.metrics.Withdrawals.WithLabelValues("native").Inc()
	c.logger.Info("Native coins withdrawn",
		zap.String("to", c.owner.Hex()),
		zap.String("amount", amount.String()))
	return nil
}

// WithdrawToken sends the whole balance of token to the owner.
func (c *Controller) WithdrawToken(call *chain.CallContext, token common.Address) error {
	if err := c.requireOwner(call.Sender); err != nil {
		return err
	}
	if err := c.enter(call); err != nil {
		return err
	}

	amount, err := call.TokenBalanceOf(token, c.address)
	if err != nil {
		return err
	}
	if err := call.TransferToken(token, c.owner, amount); err != nil {
		return fmt.Errorf("failed to withdraw %s: %w", token.Hex(), err)
	}
	if err := c.emit(call, "TokenWithdrawn", token, c.owner, amount); err != nil {
		return err
	}

	c.metrics.Withdrawals.WithLabelValues("token").Inc()
	c.logger.Info("Tokens withdrawn",
		zap.String("token", token.Hex()),
		zap.String("to", c.owner.Hex()),
		zap.String("amount", amount.String()))
	return nil
}
