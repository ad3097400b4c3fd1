package testutils

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// HardhatKey is the first well-known development account of a local hardhat node.
const HardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// HardhatAddress is the account controlled by HardhatKey.
var HardhatAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// TestKey returns the hardhat development key.
func TestKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA(HardhatKey)
	require.NoError(t, err)
	return key
}

// NewTransactor returns legacy-priced transact options signed by the hardhat
// key. Gas price and limit are fixed so no estimation round trips happen.
func NewTransactor(t testing.TB, chainID int64) *bind.TransactOpts {
	t.Helper()
	opts, err := bind.NewKeyedTransactorWithChainID(TestKey(t), big.NewInt(chainID))
	require.NoError(t, err)
	opts.Context = context.Background()
	opts.GasPrice = big.NewInt(30_000_000_000)
	opts.GasLimit = 500_000
	return opts
}

// Sender recovers the signer of tx.
func Sender(t testing.TB, tx *types.Transaction) common.Address {
	t.Helper()
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	return from
}

// Transactor is a bind.ContractTransactor that records sent transactions
// instead of broadcasting them.
type Transactor struct {
	mu    sync.Mutex
	nonce uint64
	sent  []*types.Transaction

	// Fail, when set, is returned by SendTransaction.
	Fail error
}

func (b *Transactor) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (b *Transactor) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (b *Transactor) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Transactor) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *Transactor) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Transactor) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 0, errors.New("gas estimation is not supported")
}

func (b *Transactor) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if b.Fail != nil {
		return b.Fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

// Sent returns the recorded transactions in send order.
func (b *Transactor) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

var _ bind.ContractTransactor = (*Transactor)(nil)
