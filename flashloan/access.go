package flashloan

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// GetOwner returns the account that deployed the controller.
func (c *Controller) GetOwner() common.Address {
	return c.owner
}

// GetVersion returns the version string given at deployment.
func (c *Controller) GetVersion() string {
	return c.version
}

// requireOwner must be the first check of every owner-only operation.
func (c *Controller) requireOwner(caller common.Address) error {
	if caller != c.owner {
		c.metrics.RejectedCalls.WithLabelValues("owner").Inc()
		c.logger.Warn("Rejected non-owner call", zap.String("caller", caller.Hex()))
		return ErrNotOwner
	}
	return nil
}
