package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	daiAdr = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
)

type sink struct {
	address  common.Address
	received *big.Int
}

func (s *sink) Address() common.Address { return s.address }

func (s *sink) Receive(call *CallContext) error {
	s.received = new(big.Int).Set(call.Value)
	return nil
}

type inert struct{ address common.Address }

func (i *inert) Address() common.Address { return i.address }

func newTestChain(t *testing.T) (*Chain, *Token) {
	c := New(zaptest.NewLogger(t))
	require.NoError(t, c.Fund(alice, big.NewInt(1000)))
	dai, err := c.NewToken(daiAdr, "DAI", 18)
	require.NoError(t, err)
	require.NoError(t, c.Mint(daiAdr, alice, big.NewInt(500)))
	return c, dai
}

func TestSendToAccount(t *testing.T) {
	c, _ := newTestChain(t)

	receipt, err := c.Send(context.Background(), alice, bob, big.NewInt(300))
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, int64(700), c.BalanceOf(alice).Int64())
	assert.Equal(t, int64(300), c.BalanceOf(bob).Int64())
	assert.Equal(t, uint64(1), c.Nonce(alice))
}

func TestSendInsufficientBalance(t *testing.T) {
	c, _ := newTestChain(t)

	receipt, err := c.Send(context.Background(), bob, alice, big.NewInt(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)

	var revert *RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, receipt.TxHash, revert.TxHash)
	assert.Equal(t, int64(1000), c.BalanceOf(alice).Int64())
}

func TestSendToContract(t *testing.T) {
	c, _ := newTestChain(t)

	payable := &sink{address: common.HexToAddress("0x01")}
	require.NoError(t, c.Register(payable))
	_, err := c.Send(context.Background(), alice, payable.address, big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(10), payable.received.Int64())
	assert.Equal(t, int64(10), c.BalanceOf(payable.address).Int64())

	closed := &inert{address: common.HexToAddress("0x02")}
	require.NoError(t, c.Register(closed))
	_, err = c.Send(context.Background(), alice, closed.address, big.NewInt(10))
	assert.ErrorIs(t, err, ErrNotPayable)
	assert.Zero(t, c.BalanceOf(closed.address).Sign())
	assert.Equal(t, int64(990), c.BalanceOf(alice).Int64())
}

func TestTransactRevertsEverything(t *testing.T) {
	c, dai := newTestChain(t)
	ctx := context.Background()
	boom := errors.New("boom")

	receipt, err := c.Transact(ctx, alice, bob, big.NewInt(100), func(call *CallContext) error {
		require.NoError(t, call.Transfer(alice, big.NewInt(40)))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, receipt.Succeeded())
	assert.Equal(t, int64(1000), c.BalanceOf(alice).Int64())
	assert.Zero(t, c.BalanceOf(bob).Sign())

	receipt, err = c.Transact(ctx, alice, daiAdr, nil, func(call *CallContext) error {
		if err := dai.Transfer(call, bob, big.NewInt(200)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, receipt.Logs)

	bal, err := c.TokenBalanceOf(daiAdr, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.Int64())
	bal, err = c.TokenBalanceOf(daiAdr, bob)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())
}

func TestNestedFrameRevertIsLocal(t *testing.T) {
	c, _ := newTestChain(t)

	_, err := c.Transact(context.Background(), alice, bob, big.NewInt(100), func(call *CallContext) error {
		inner := call.Call(alice, big.NewInt(30), func(*CallContext) error {
			return errors.New("inner failure")
		})
		assert.Error(t, inner)
		assert.Equal(t, int64(100), call.BalanceOf(bob).Int64())
		return call.Transfer(alice, big.NewInt(10))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(910), c.BalanceOf(alice).Int64())
	assert.Equal(t, int64(90), c.BalanceOf(bob).Int64())
}

func TestTokenAllowance(t *testing.T) {
	c, dai := newTestChain(t)
	ctx := context.Background()

	receipt, err := c.Transact(ctx, alice, daiAdr, nil, func(call *CallContext) error {
		return dai.Approve(call, bob, big.NewInt(50))
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, approvalTopic, receipt.Logs[0].Topics[0])
	assert.Equal(t, daiAdr, receipt.Logs[0].Address)

	_, err = c.Transact(ctx, bob, daiAdr, nil, func(call *CallContext) error {
		return dai.TransferFrom(call, alice, bob, big.NewInt(60))
	})
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	receipt, err = c.Transact(ctx, bob, daiAdr, nil, func(call *CallContext) error {
		return dai.TransferFrom(call, alice, bob, big.NewInt(50))
	})
	require.NoError(t, err)
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, transferTopic, receipt.Logs[0].Topics[0])

	bal, err := c.TokenBalanceOf(daiAdr, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(50), bal.Int64())
}

func TestTokenWrongFrame(t *testing.T) {
	c, dai := newTestChain(t)

	_, err := c.Transact(context.Background(), alice, bob, nil, func(call *CallContext) error {
		return dai.Transfer(call, bob, big.NewInt(1))
	})
	assert.ErrorIs(t, err, ErrWrongFrame)
}

func TestUnknownToken(t *testing.T) {
	c, _ := newTestChain(t)

	_, err := c.TokenBalanceOf(common.HexToAddress("0xdead"), alice)
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.ErrorIs(t, c.Mint(common.HexToAddress("0xdead"), alice, big.NewInt(1)), ErrUnknownToken)
}

func TestDeploy(t *testing.T) {
	c, _ := newTestChain(t)
	ctx := context.Background()

	_, err := c.Send(ctx, alice, bob, big.NewInt(1))
	require.NoError(t, err)

	expected := crypto.CreateAddress(alice, 1)
	deployed, receipt, err := Deploy(ctx, c, alice, func(call *CallContext) (*sink, error) {
		assert.Equal(t, alice, call.Sender)
		return &sink{address: call.Self}, nil
	})
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, expected, deployed.Address())

	got, ok := c.Contract(expected)
	require.True(t, ok)
	assert.Same(t, deployed, got)
}

func TestDeployFailureLeavesNoContract(t *testing.T) {
	c, _ := newTestChain(t)

	expected := crypto.CreateAddress(alice, 0)
	_, _, err := Deploy(context.Background(), c, alice, func(call *CallContext) (*sink, error) {
		return nil, errors.New("constructor failed")
	})
	require.Error(t, err)
	_, ok := c.Contract(expected)
	assert.False(t, ok)
}

func TestViewDiscardsEffects(t *testing.T) {
	c, _ := newTestChain(t)

	var seen *big.Int
	err := c.View(context.Background(), alice, bob, func(call *CallContext) error {
		if err := call.state.transferNative(alice, bob, big.NewInt(5)); err != nil {
			return err
		}
		seen = call.BalanceOf(bob)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), seen.Int64())
	assert.Zero(t, c.BalanceOf(bob).Sign())
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Send(ctx, alice, bob, big.NewInt(1))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), c.Nonce(alice))
}
