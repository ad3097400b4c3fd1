package aave

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	"github.com/michaelpento.lv/flashctl/flashloan"
	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

const (
	// LendingPool address of Aave V2 on mainnet
	PoolAddress = "0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9"

	// DefaultPremiumBps is the V2 flash loan premium, 0.09%
	DefaultPremiumBps = 9
)

var (
	ErrInconsistentParams = errors.New("aave pool: inconsistent flashloan parameters")
	ErrNoLiquidity        = errors.New("aave pool: not enough available liquidity")
)

// Pool lends its reserves and pulls principal plus premium back from the
// receiver through an allowance once the receiver's callback returned.
type Pool struct {
	address    common.Address
	premiumBps uint64
	abi        abi.ABI
	logger     *zap.Logger
}

// NewPool creates a lending pool. A zero config address places it at
// PoolAddress and a zero fee uses DefaultPremiumBps.
func NewPool(config *flashloan.LenderConfig, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	p := &Pool{
		address:    config.Address,
		premiumBps: config.FeeBps,
		abi:        parsed,
		logger:     logger,
	}
	if p.address == (common.Address{}) {
		p.address = common.HexToAddress(PoolAddress)
	}
	if p.premiumBps == 0 {
		p.premiumBps = DefaultPremiumBps
	}
	return p, nil
}

func (p *Pool) Address() common.Address { return p.address }

// ABI returns the parsed pool ABI, used to decode its logs.
func (p *Pool) ABI() abi.ABI { return p.abi }

func (p *Pool) RepaymentMode() flashloan.RepaymentMode { return flashloan.RepayByApproval }

// String returns the provider name
func (p *Pool) String() string {
	return "Aave"
}

// Premium returns the premium charged on amount.
func (p *Pool) Premium(amount *big.Int) *big.Int {
	return umath.FeeFromBasisPoints(amount, p.premiumBps)
}

// AvailableLiquidity returns the pool's reserve of asset.
func (p *Pool) AvailableLiquidity(r chain.Reader, asset common.Address) (*big.Int, error) {
	return r.TokenBalanceOf(asset, p.address)
}

// FlashLoan lends assets to receiver, runs its callback and then collects
// amount plus premium of every asset with transferFrom.
func (p *Pool) FlashLoan(call *chain.CallContext, receiver common.Address, assets []common.Address, amounts []*big.Int, params []byte) error {
	if call.Self != p.address {
		return chain.ErrWrongFrame
	}
	if len(assets) != len(amounts) {
		return ErrInconsistentParams
	}

	contract, err := call.Contract(receiver)
	if err != nil {
		return err
	}
	recipient, ok := contract.(flashloan.Recipient)
	if !ok {
		return fmt.Errorf("receiver %s cannot execute flash loans", receiver.Hex())
	}

	premiums := make([]*big.Int, len(assets))
	for i, asset := range assets {
		available, err := call.TokenBalanceOf(asset, p.address)
		if err != nil {
			return err
		}
		if available.Cmp(amounts[i]) < 0 {
			return fmt.Errorf("%w: %w: %s", ErrNoLiquidity, chain.ErrInsufficientBalance, asset.Hex())
		}
		premiums[i] = p.Premium(amounts[i])
		if err := call.TransferToken(asset, receiver, amounts[i]); err != nil {
			return err
		}
	}

	err = call.Call(receiver, nil, func(rc *chain.CallContext) error {
		_, err := recipient.ReceiveFlashLoan(rc, assets, umath.CloneAll(amounts), umath.CloneAll(premiums), params)
		return err
	})
	if err != nil {
		return fmt.Errorf("receiver callback failed: %w", err)
	}

	for i, asset := range assets {
		owed := new(big.Int).Add(amounts[i], premiums[i])
		if err := call.TransferTokenFrom(asset, receiver, p.address, owed); err != nil {
			if errors.Is(err, chain.ErrInsufficientAllowance) || errors.Is(err, chain.ErrInsufficientBalance) {
				return fmt.Errorf("%w: %s: %v", flashloan.ErrInsufficientRepayment, asset.Hex(), err)
			}
			return err
		}
		if err := p.emitFlashLoan(call, receiver, asset, amounts[i], premiums[i]); err != nil {
			return err
		}
	}

	p.logger.Info("Flash loan collected",
		zap.String("receiver", receiver.Hex()),
		zap.Int("assets", len(assets)),
		zap.Uint64("premium_bps", p.premiumBps))
	return nil
}

func (p *Pool) emitFlashLoan(call *chain.CallContext, receiver, asset common.Address, amount, premium *big.Int) error {
	event := p.abi.Events["FlashLoan"]
	data, err := event.Inputs.NonIndexed().Pack(amount, premium)
	if err != nil {
		return fmt.Errorf("failed to pack FlashLoan event: %w", err)
	}
	call.Emit(&types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(receiver.Bytes()),
			common.BytesToHash(asset.Bytes()),
		},
		Data: data,
	})
	return nil
}

// LendingPool ABI subset used for flash loans
const poolABI = `[
	{
		"inputs": [
			{
				"internalType": "address",
				"name": "receiverAddress",
				"type": "address"
			},
			{
				"internalType": "address[]",
				"name": "assets",
				"type": "address[]"
			},
			{
				"internalType": "uint256[]",
				"name": "amounts",
				"type": "uint256[]"
			},
			{
				"internalType": "bytes",
				"name": "params",
				"type": "bytes"
			}
		],
		"name": "flashLoan",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{
				"indexed": true,
				"internalType": "address",
				"name": "target",
				"type": "address"
			},
			{
				"indexed": true,
				"internalType": "address",
				"name": "asset",
				"type": "address"
			},
			{
				"indexed": false,
				"internalType": "uint256",
				"name": "amount",
				"type": "uint256"
			},
			{
				"indexed": false,
				"internalType": "uint256",
				"name": "premium",
				"type": "uint256"
			}
		],
		"name": "FlashLoan",
		"type": "event"
	}
]`
