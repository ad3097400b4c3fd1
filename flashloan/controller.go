package flashloan

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	"github.com/michaelpento.lv/flashctl/utils/metrics"
)

// Config holds the two constructor inputs of a controller.
type Config struct {
	Vault   common.Address
	Version string
}

// Controller borrows from a single lending vault within one transaction and
// keeps an owner-gated treasury. Owner, version and vault are fixed at
// construction.
type Controller struct {
	address common.Address
	owner   common.Address
	version string
	vault   common.Address

	abi      abi.ABI
	strategy Strategy
	metrics  *metrics.ControllerMetrics
	logger   *zap.Logger

	// loan is non-nil only while RequestFlashLoan is on the call stack.
	loan *openLoan
}

type openLoan struct {
	phase      Phase
	assets     []common.Address
	amounts    []*big.Int
	settling   bool
	settlement *Settlement
}

// Option configures a Controller.
type Option func(*Controller)

// WithStrategy sets the strategy run for loans that carry user data.
func WithStrategy(s Strategy) Option {
	return func(c *Controller) { c.strategy = s }
}

// WithMetrics records controller activity on m instead of an unregistered set.
func WithMetrics(m *metrics.ControllerMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController constructs a controller inside its deployment frame: the
// frame's sender becomes the owner and its address the controller's address.
func NewController(call *chain.CallContext, cfg Config, opts ...Option) (*Controller, error) {
	if call.Sender == (common.Address{}) {
		return nil, ErrZeroOwner
	}
	if cfg.Vault == (common.Address{}) {
		return nil, ErrZeroVault
	}

	parsed, err := ParseControllerABI()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		address: call.Self,
		owner:   call.Sender,
		version: cfg.Version,
		vault:   cfg.Vault,
		abi:     parsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewControllerMetrics("flashloan", nil)
	}

	c.logger.Info("Flashloan controller deployed",
		zap.String("address", c.address.Hex()),
		zap.String("owner", c.owner.Hex()),
		zap.String("vault", c.vault.Hex()),
		zap.String("version", c.version))
	return c, nil
}

// Address returns the address the controller was deployed at.
func (c *Controller) Address() common.Address { return c.address }

// Vault returns the lending vault the controller borrows from.
func (c *Controller) Vault() common.Address { return c.vault }

// Metrics returns the collectors the controller reports to.
func (c *Controller) Metrics() *metrics.ControllerMetrics { return c.metrics }

// enter rejects frames that do not execute this controller's code.
func (c *Controller) enter(call *chain.CallContext) error {
	if call.Self != c.address {
		return fmt.Errorf("%w: frame runs %s, controller is %s", chain.ErrWrongFrame, call.Self.Hex(), c.address.Hex())
	}
	return nil
}

func (c *Controller) lender(call *chain.CallContext) (Lender, error) {
	contract, err := call.Contract(c.vault)
	if err != nil {
		return nil, err
	}
	lender, ok := contract.(Lender)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotLender, c.vault.Hex())
	}
	return lender, nil
}

// emit appends an ABI-encoded event to the transaction's logs.
func (c *Controller) emit(call *chain.CallContext, name string, args ...interface{}) error {
	event, ok := c.abi.Events[name]
	if !ok {
		return fmt.Errorf("unknown event %s", name)
	}
	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s event: %w", name, err)
	}
	call.Emit(&types.Log{
		Topics: []common.Hash{event.ID},
		Data:   data,
	})
	return nil
}
