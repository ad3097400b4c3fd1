package balancer

import (
	"bytes"
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
	// Vault address, identical on mainnet and Polygon
	VaultAddress = "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
)

var (
	ErrInputLengthMismatch   = errors.New("balancer vault: input length mismatch")
	ErrUnsortedTokens        = errors.New("balancer vault: unsorted or duplicate tokens")
	ErrInsufficientLiquidity = errors.New("balancer vault: insufficient liquidity")
)

// Vault lends any token it holds for the duration of one call. Borrowers send
// principal plus fee back before their callback returns.
type Vault struct {
	address common.Address
	feeBps  uint64
	abi     abi.ABI
	logger  *zap.Logger
}

// NewVault creates a vault. A zero config address places it at VaultAddress.
func NewVault(config *flashloan.LenderConfig, logger *zap.Logger) (*Vault, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}

	address := config.Address
	if address == (common.Address{}) {
		address = common.HexToAddress(VaultAddress)
	}
	return &Vault{
		address: address,
		feeBps:  config.FeeBps,
		abi:     parsed,
		logger:  logger,
	}, nil
}

func (v *Vault) Address() common.Address { return v.address }

// ABI returns the parsed vault ABI, used to decode its logs.
func (v *Vault) ABI() abi.ABI { return v.abi }

func (v *Vault) RepaymentMode() flashloan.RepaymentMode { return flashloan.RepayByTransfer }

// String returns the provider name
func (v *Vault) String() string {
	return "Balancer"
}

// FlashLoanFee returns the protocol fee charged on amount.
func (v *Vault) FlashLoanFee(amount *big.Int) *big.Int {
	return umath.FeeFromBasisPoints(amount, v.feeBps)
}

// FlashLoan lends tokens to recipient and verifies that every balance grew by
// at least the fee once the recipient's callback returned.
func (v *Vault) FlashLoan(call *chain.CallContext, recipient common.Address, tokens []common.Address, amounts []*big.Int, userData []byte) error {
	if call.Self != v.address {
		return chain.ErrWrongFrame
	}
	if len(tokens) != len(amounts) {
		return ErrInputLengthMismatch
	}
	for i := 1; i < len(tokens); i++ {
		if bytes.Compare(tokens[i-1].Bytes(), tokens[i].Bytes()) >= 0 {
			return fmt.Errorf("%w: %s before %s", ErrUnsortedTokens, tokens[i-1].Hex(), tokens[i].Hex())
		}
	}

	contract, err := call.Contract(recipient)
	if err != nil {
		return err
	}
	receiver, ok := contract.(flashloan.Recipient)
	if !ok {
		return fmt.Errorf("recipient %s cannot receive flash loans", recipient.Hex())
	}

	fees := make([]*big.Int, len(tokens))
	preBalances := make([]*big.Int, len(tokens))
	for i, token := range tokens {
		if amounts[i] == nil || amounts[i].Sign() < 0 {
			return fmt.Errorf("invalid amount for %s", token.Hex())
		}
		pre, err := call.TokenBalanceOf(token, v.address)
		if err != nil {
			return err
		}
		if pre.Cmp(amounts[i]) < 0 {
			return fmt.Errorf("%w: %w: %s holds %s, asked for %s", ErrInsufficientLiquidity, chain.ErrInsufficientBalance, token.Hex(), pre, amounts[i])
		}
		preBalances[i] = pre
		fees[i] = v.FlashLoanFee(amounts[i])

		if err := call.TransferToken(token, recipient, amounts[i]); err != nil {
			return fmt.Errorf("failed to lend %s: %w", token.Hex(), err)
		}
	}

	v.logger.Debug("Calling flash loan recipient",
		zap.String("recipient", recipient.Hex()),
		zap.Int("tokens", len(tokens)))

	err = call.Call(recipient, nil, func(rc *chain.CallContext) error {
		_, err := receiver.ReceiveFlashLoan(rc, tokens, umath.CloneAll(amounts), umath.CloneAll(fees), userData)
		return err
	})
	if err != nil {
		return fmt.Errorf("flash loan callback failed: %w", err)
	}

	for i, token := range tokens {
		post, err := call.TokenBalanceOf(token, v.address)
		if err != nil {
			return err
		}
		required := new(big.Int).Add(preBalances[i], fees[i])
		if post.Cmp(required) < 0 {
			return fmt.Errorf("%w: %s balance %s below %s",
				flashloan.ErrInsufficientRepayment, token.Hex(), post, required)
		}
		received := new(big.Int).Sub(post, preBalances[i])
		if err := v.emitFlashLoan(call, recipient, token, amounts[i], received); err != nil {
			return err
		}
	}

	v.logger.Info("Flash loan repaid",
		zap.String("recipient", recipient.Hex()),
		zap.Int("tokens", len(tokens)))
	return nil
}

// PackFlashLoan encodes a flashLoan call for the on-chain vault.
func (v *Vault) PackFlashLoan(recipient common.Address, tokens []common.Address, amounts []*big.Int, userData []byte) ([]byte, error) {
	packed, err := v.abi.Pack("flashLoan", recipient, tokens, amounts, userData)
	if err != nil {
		return nil, fmt.Errorf("failed to pack parameters: %w", err)
	}
	return packed, nil
}

func (v *Vault) emitFlashLoan(call *chain.CallContext, recipient, token common.Address, amount, fee *big.Int) error {
	event := v.abi.Events["FlashLoan"]
	data, err := event.Inputs.NonIndexed().Pack(amount, fee)
	if err != nil {
		return fmt.Errorf("failed to pack FlashLoan event: %w", err)
	}
	call.Emit(&types.Log{
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(recipient.Bytes()),
			common.BytesToHash(token.Bytes()),
		},
		Data: data,
	})
	return nil
}

// Vault ABI
const vaultABI = `[
	{
		"inputs": [
			{
				"internalType": "contract IFlashLoanRecipient",
				"name": "recipient",
				"type": "address"
			},
			{
				"internalType": "contract IERC20[]",
				"name": "tokens",
				"type": "address[]"
			},
			{
				"internalType": "uint256[]",
				"name": "amounts",
				"type": "uint256[]"
			},
			{
				"internalType": "bytes",
				"name": "userData",
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
				"internalType": "contract IFlashLoanRecipient",
				"name": "recipient",
				"type": "address"
			},
			{
				"indexed": true,
				"internalType": "contract IERC20",
				"name": "token",
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
				"name": "feeAmount",
				"type": "uint256"
			}
		],
		"name": "FlashLoan",
		"type": "event"
	}
]`
