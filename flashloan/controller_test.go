package flashloan_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flashctl/chain"
	"github.com/michaelpento.lv/flashctl/flashloan"
	"github.com/michaelpento.lv/flashctl/flashloan/aave"
	"github.com/michaelpento.lv/flashctl/flashloan/balancer"
)

const version = "1.03"

var (
	owner    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	stranger = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	whale    = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	weth     = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	dai      = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type testEnv struct {
	t      *testing.T
	chain  *chain.Chain
	ctl    *flashloan.Controller
	lender flashloan.Lender
	tokens map[common.Address]*chain.Token
}

func newBalancerEnv(t *testing.T, feeBps uint64, opts ...flashloan.Option) *testEnv {
	vault, err := balancer.NewVault(&flashloan.LenderConfig{FeeBps: feeBps}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return newEnv(t, vault, opts...)
}

func newAaveEnv(t *testing.T, premiumBps uint64, opts ...flashloan.Option) *testEnv {
	pool, err := aave.NewPool(&flashloan.LenderConfig{FeeBps: premiumBps}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return newEnv(t, pool, opts...)
}

func newEnv(t *testing.T, lender flashloan.Lender, opts ...flashloan.Option) *testEnv {
	logger := zaptest.NewLogger(t)
	c := chain.New(logger)

	env := &testEnv{t: t, chain: c, lender: lender, tokens: make(map[common.Address]*chain.Token)}
	for _, account := range []common.Address{owner, stranger, whale} {
		require.NoError(t, c.Fund(account, ether(10)))
	}
	for addr, symbol := range map[common.Address]string{weth: "WETH", dai: "DAI"} {
		tok, err := c.NewToken(addr, symbol, 18)
		require.NoError(t, err)
		env.tokens[addr] = tok
	}
	require.NoError(t, c.Register(lender))
	require.NoError(t, c.Mint(weth, lender.Address(), ether(1_000)))
	require.NoError(t, c.Mint(dai, lender.Address(), ether(5_000_000)))
	require.NoError(t, c.Mint(dai, whale, ether(2_000_000)))

	opts = append([]flashloan.Option{flashloan.WithLogger(logger)}, opts...)
	ctl, receipt, err := chain.Deploy(context.Background(), c, owner, func(call *chain.CallContext) (*flashloan.Controller, error) {
		return flashloan.NewController(call, flashloan.Config{Vault: lender.Address(), Version: version}, opts...)
	})
	require.NoError(t, err)
	require.True(t, receipt.Succeeded())
	env.ctl = ctl
	return env
}

func (e *testEnv) request(from common.Address, assets []common.Address, amounts []*big.Int, userData []byte) (*flashloan.Settlement, *chain.Receipt, error) {
	var settlement *flashloan.Settlement
	receipt, err := e.chain.Transact(context.Background(), from, e.ctl.Address(), nil, func(call *chain.CallContext) error {
		s, err := e.ctl.RequestFlashLoan(call, assets, amounts, userData)
		settlement = s
		return err
	})
	return settlement, receipt, err
}

// fund moves amount of token from the whale's or the lender's stock to the controller.
func (e *testEnv) fund(token common.Address, from common.Address, amount *big.Int) {
	tok := e.tokens[token]
	_, err := e.chain.Transact(context.Background(), from, token, nil, func(call *chain.CallContext) error {
		return tok.Transfer(call, e.ctl.Address(), amount)
	})
	require.NoError(e.t, err)
}

func (e *testEnv) tokenBalance(token, holder common.Address) *big.Int {
	bal, err := e.chain.TokenBalanceOf(token, holder)
	require.NoError(e.t, err)
	return bal
}

func (e *testEnv) controllerBalance(token common.Address) *big.Int {
	bal, err := e.ctl.GetTokenBalance(e.chain, token)
	require.NoError(e.t, err)
	return bal
}

func TestReferenceScenario(t *testing.T) {
	env := newBalancerEnv(t, 0)
	ctx := context.Background()
	ctl := env.ctl

	assert.Equal(t, version, ctl.GetVersion())
	assert.Equal(t, owner, ctl.GetOwner())
	assert.Equal(t, common.HexToAddress(balancer.VaultAddress), ctl.Vault())

	// Zero-fee loan leaves the controller's WETH untouched.
	before := env.controllerBalance(weth)
	settlement, receipt, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, nil)
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, flashloan.PhaseSettled, settlement.Phase)
	assert.Equal(t, before, env.controllerBalance(weth))

	// Plain send credits the native balance.
	_, err = env.chain.Send(ctx, stranger, ctl.Address(), big.NewInt(4e18))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(4e18), ctl.GetBalance(env.chain))

	// A non-owner cannot withdraw.
	receipt, err = env.chain.Transact(ctx, stranger, ctl.Address(), nil, ctl.Withdraw)
	require.Error(t, err)
	assert.ErrorIs(t, err, flashloan.ErrNotOwner)
	assert.Contains(t, err.Error(), "caller is not the owner!")
	assert.False(t, receipt.Succeeded())
	assert.Equal(t, big.NewInt(4e18), ctl.GetBalance(env.chain))

	// The owner gets everything.
	ownerBefore := env.chain.BalanceOf(owner)
	_, err = env.chain.Transact(ctx, owner, ctl.Address(), nil, ctl.Withdraw)
	require.NoError(t, err)
	assert.Zero(t, ctl.GetBalance(env.chain).Sign())
	assert.Equal(t, new(big.Int).Add(ownerBefore, big.NewInt(4e18)), env.chain.BalanceOf(owner))

	// Token treasury.
	million := big.NewInt(1_000_000)
	env.fund(dai, whale, million)
	assert.Equal(t, million, env.controllerBalance(dai))

	_, err = env.chain.Transact(ctx, owner, ctl.Address(), nil, func(call *chain.CallContext) error {
		return ctl.WithdrawToken(call, dai)
	})
	require.NoError(t, err)
	assert.Zero(t, env.controllerBalance(dai).Sign())
	assert.Equal(t, million, env.tokenBalance(dai, owner))
}

func TestDeployRejectsZeroVault(t *testing.T) {
	c := chain.New(zaptest.NewLogger(t))
	_, receipt, err := chain.Deploy(context.Background(), c, owner, func(call *chain.CallContext) (*flashloan.Controller, error) {
		return flashloan.NewController(call, flashloan.Config{Version: version})
	})
	assert.ErrorIs(t, err, flashloan.ErrZeroVault)
	assert.False(t, receipt.Succeeded())
	_, ok := c.Contract(receipt.To)
	assert.False(t, ok)
}

func TestMultiAssetLoan(t *testing.T) {
	env := newBalancerEnv(t, 0)
	vault := env.lender.Address()

	wethBefore := env.tokenBalance(weth, vault)
	daiBefore := env.tokenBalance(dai, vault)

	settlement, _, err := env.request(stranger,
		[]common.Address{weth, dai},
		[]*big.Int{ether(500), ether(4_000_000)},
		nil)
	require.NoError(t, err)
	require.Len(t, settlement.Repayments, 2)
	for _, r := range settlement.Repayments {
		assert.False(t, r.Short())
		assert.Zero(t, r.Fee.Sign())
	}
	assert.Equal(t, flashloan.RepayByTransfer, settlement.Mode)

	assert.Equal(t, wethBefore, env.tokenBalance(weth, vault))
	assert.Equal(t, daiBefore, env.tokenBalance(dai, vault))
	assert.Zero(t, env.controllerBalance(weth).Sign())
	assert.Zero(t, env.controllerBalance(dai).Sign())
}

func TestUnsortedAssetsRejectedByVault(t *testing.T) {
	env := newBalancerEnv(t, 0)

	_, _, err := env.request(owner, []common.Address{dai, weth}, []*big.Int{ether(1), ether(1)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, balancer.ErrUnsortedTokens)
}

func TestLoanAboveLiquidity(t *testing.T) {
	env := newBalancerEnv(t, 0)

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1_001)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, balancer.ErrInsufficientLiquidity)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.ctl.Metrics().LoansAborted.WithLabelValues("insufficient_liquidity")))
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		assets  []common.Address
		amounts []*big.Int
	}{
		{name: "no assets", assets: nil, amounts: nil},
		{name: "length mismatch", assets: []common.Address{weth, dai}, amounts: []*big.Int{ether(1)}},
		{name: "zero amount", assets: []common.Address{weth}, amounts: []*big.Int{big.NewInt(0)}},
		{name: "nil amount", assets: []common.Address{weth}, amounts: []*big.Int{nil}},
		{name: "negative amount", assets: []common.Address{weth}, amounts: []*big.Int{big.NewInt(-1)}},
		{name: "zero asset", assets: []common.Address{{}}, amounts: []*big.Int{ether(1)}},
	}

	env := newBalancerEnv(t, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := env.chain.Transact(context.Background(), owner, env.ctl.Address(), nil, func(call *chain.CallContext) error {
				_, err := env.ctl.RequestFlashLoan(call, tt.assets, tt.amounts, nil)
				return err
			})
			assert.ErrorIs(t, err, flashloan.ErrInvalidRequest)
			assert.False(t, receipt.Succeeded())
		})
	}
	assert.Zero(t, testutil.ToFloat64(env.ctl.Metrics().LoansRequested))
}

func TestFeeCoveredByHoldings(t *testing.T) {
	env := newBalancerEnv(t, 5)
	vault := env.lender.Address()

	env.fund(weth, vault, ether(1))
	held := env.controllerBalance(weth)
	vaultBefore := env.tokenBalance(weth, vault)

	settlement, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(10)}, nil)
	require.NoError(t, err)

	fee := big.NewInt(5e15) // 5 bps of 10 WETH
	require.Len(t, settlement.Repayments, 1)
	assert.Equal(t, fee, settlement.Repayments[0].Fee)
	assert.Equal(t, new(big.Int).Sub(held, fee), env.controllerBalance(weth))
	assert.Equal(t, new(big.Int).Add(vaultBefore, fee), env.tokenBalance(weth, vault))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.ctl.Metrics().LoansSettled))
	assert.Equal(t, 5e15, testutil.ToFloat64(env.ctl.Metrics().FeesPaid.WithLabelValues(weth.Hex())))
}

func TestInsufficientRepaymentRevertsEverything(t *testing.T) {
	env := newBalancerEnv(t, 5)
	vault := env.lender.Address()
	vaultBefore := env.tokenBalance(weth, vault)

	settlement, receipt, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(10)}, nil)
	require.Error(t, err)
	assert.Nil(t, settlement)
	assert.ErrorIs(t, err, flashloan.ErrInsufficientRepayment)

	var revert *chain.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, receipt.TxHash, revert.TxHash)
	assert.Empty(t, receipt.Logs)

	assert.Equal(t, vaultBefore, env.tokenBalance(weth, vault))
	assert.Zero(t, env.controllerBalance(weth).Sign())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.ctl.Metrics().LoansAborted.WithLabelValues("insufficient_repayment")))
	assert.Zero(t, testutil.ToFloat64(env.ctl.Metrics().ActiveLoans))
}

func TestApprovalRepayment(t *testing.T) {
	env := newAaveEnv(t, 0)
	pool := env.lender.Address()

	env.fund(weth, pool, ether(1))
	poolBefore := env.tokenBalance(weth, pool)

	settlement, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(100)}, nil)
	require.NoError(t, err)
	assert.Equal(t, flashloan.RepayByApproval, settlement.Mode)

	premium := big.NewInt(9e16) // 9 bps of 100 WETH
	assert.Equal(t, premium, settlement.Repayments[0].Fee)
	assert.Equal(t, new(big.Int).Add(poolBefore, premium), env.tokenBalance(weth, pool))
	assert.Equal(t, new(big.Int).Sub(ether(1), premium), env.controllerBalance(weth))

	allowance := new(big.Int)
	err = env.chain.View(context.Background(), owner, env.ctl.Address(), func(call *chain.CallContext) error {
		a, err := call.TokenAllowance(weth, env.ctl.Address(), pool)
		allowance = a
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, allowance.Sign())
}

func TestApprovalRepaymentShortfall(t *testing.T) {
	env := newAaveEnv(t, 0)
	pool := env.lender.Address()
	poolBefore := env.tokenBalance(weth, pool)

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(100)}, nil)
	assert.ErrorIs(t, err, flashloan.ErrInsufficientRepayment)
	assert.Equal(t, poolBefore, env.tokenBalance(weth, pool))
}

func TestApprovalRepaymentRepeatedAsset(t *testing.T) {
	env := newAaveEnv(t, 9)
	pool := env.lender.Address()
	env.fund(dai, whale, ether(1_000))
	poolBefore := env.tokenBalance(dai, pool)

	settlement, _, err := env.request(owner, []common.Address{dai, dai}, []*big.Int{ether(10), ether(10)}, nil)
	require.NoError(t, err)
	require.Len(t, settlement.Repayments, 2)

	premiums := big.NewInt(18e15) // 9 bps of 10 DAI, twice
	for _, r := range settlement.Repayments {
		assert.False(t, r.Short())
		assert.Equal(t, big.NewInt(9e15), r.Fee)
	}
	assert.Equal(t, new(big.Int).Add(poolBefore, premiums), env.tokenBalance(dai, pool))
	assert.Equal(t, new(big.Int).Sub(ether(1_000), premiums), env.controllerBalance(dai))

	allowance := new(big.Int)
	err = env.chain.View(context.Background(), owner, env.ctl.Address(), func(call *chain.CallContext) error {
		a, err := call.TokenAllowance(dai, env.ctl.Address(), pool)
		allowance = a
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, allowance.Sign())
}

func TestApprovalRepaymentRepeatedAssetShortfall(t *testing.T) {
	env := newAaveEnv(t, 9)
	pool := env.lender.Address()
	// Covers the first premium only; both entries draw on the same holdings.
	env.fund(dai, whale, big.NewInt(9e15))
	poolBefore := env.tokenBalance(dai, pool)

	_, _, err := env.request(owner, []common.Address{dai, dai}, []*big.Int{ether(10), ether(10)}, nil)
	assert.ErrorIs(t, err, flashloan.ErrInsufficientRepayment)
	assert.Equal(t, poolBefore, env.tokenBalance(dai, pool))
	assert.Equal(t, big.NewInt(9e15), env.controllerBalance(dai))
}

func TestStrategyReceivesLoan(t *testing.T) {
	var seen *flashloan.Loan
	var data []byte
	strategy := flashloan.StrategyFunc(func(call *chain.CallContext, loan *flashloan.Loan, userData []byte) error {
		held, err := call.TokenBalanceOf(loan.Assets[0], call.Self)
		if err != nil {
			return err
		}
		if held.Cmp(loan.Amounts[0]) < 0 {
			return errors.New("loan not received")
		}
		seen, data = loan, userData
		return nil
	})
	env := newBalancerEnv(t, 0, flashloan.WithStrategy(strategy))

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(3)}, []byte{0xca, 0xfe})
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, []common.Address{weth}, seen.Assets)
	assert.Equal(t, ether(3), seen.Amounts[0])
	assert.Equal(t, []byte{0xca, 0xfe}, data)
}

func TestStrategySkippedWithoutUserData(t *testing.T) {
	called := false
	strategy := flashloan.StrategyFunc(func(*chain.CallContext, *flashloan.Loan, []byte) error {
		called = true
		return nil
	})
	env := newBalancerEnv(t, 0, flashloan.WithStrategy(strategy))

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, nil)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestUserDataWithoutStrategy(t *testing.T) {
	env := newBalancerEnv(t, 0)

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, []byte("arb"))
	assert.NoError(t, err)
}

func TestStrategyFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	strategy := flashloan.StrategyFunc(func(call *chain.CallContext, loan *flashloan.Loan, _ []byte) error {
		// Spend part of the loan before failing.
		if err := call.TransferToken(loan.Assets[0], stranger, ether(1)); err != nil {
			return err
		}
		return boom
	})
	env := newBalancerEnv(t, 0, flashloan.WithStrategy(strategy))
	vaultBefore := env.tokenBalance(weth, env.lender.Address())

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(2)}, []byte{1})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, env.tokenBalance(weth, stranger).Sign())
	assert.Equal(t, vaultBefore, env.tokenBalance(weth, env.lender.Address()))
}

func TestUnrequestedCallbackRejected(t *testing.T) {
	env := newBalancerEnv(t, 0)
	vault := env.lender.Address()
	env.fund(weth, vault, ether(5))

	callback := func(call *chain.CallContext) error {
		_, err := env.ctl.ReceiveFlashLoan(call, []common.Address{weth}, []*big.Int{ether(5)}, []*big.Int{big.NewInt(0)}, nil)
		return err
	}

	t.Run("from stranger", func(t *testing.T) {
		_, err := env.chain.Transact(context.Background(), stranger, env.ctl.Address(), nil, callback)
		assert.ErrorIs(t, err, flashloan.ErrUnauthorizedCallback)
	})

	t.Run("from vault without a loan", func(t *testing.T) {
		_, err := env.chain.Transact(context.Background(), vault, env.ctl.Address(), nil, callback)
		assert.ErrorIs(t, err, flashloan.ErrUnauthorizedCallback)
	})

	assert.Equal(t, ether(5), env.controllerBalance(weth))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.ctl.Metrics().RejectedCalls.WithLabelValues("callback")))
}

func TestReentrantCallbackRejected(t *testing.T) {
	var ctl *flashloan.Controller
	strategy := flashloan.StrategyFunc(func(call *chain.CallContext, loan *flashloan.Loan, _ []byte) error {
		// Re-enter the settlement handler through the vault.
		return call.Call(ctl.Vault(), nil, func(vault *chain.CallContext) error {
			return vault.Call(ctl.Address(), nil, func(inner *chain.CallContext) error {
				_, err := ctl.ReceiveFlashLoan(inner, loan.Assets, loan.Amounts, loan.Fees, nil)
				return err
			})
		})
	})
	env := newBalancerEnv(t, 0, flashloan.WithStrategy(strategy))
	ctl = env.ctl

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, []byte{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, flashloan.ErrUnauthorizedCallback)
}

func TestNestedRequestRejected(t *testing.T) {
	var ctl *flashloan.Controller
	strategy := flashloan.StrategyFunc(func(call *chain.CallContext, loan *flashloan.Loan, _ []byte) error {
		_, err := ctl.RequestFlashLoan(call, loan.Assets, loan.Amounts, nil)
		return err
	})
	env := newBalancerEnv(t, 0, flashloan.WithStrategy(strategy))
	ctl = env.ctl

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, []byte{1})
	assert.ErrorIs(t, err, flashloan.ErrInvalidRequest)

	// The controller is usable again once the transaction is over.
	_, _, err = env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, nil)
	assert.NoError(t, err)
}

// lazyLender returns without ever calling back.
type lazyLender struct{ address common.Address }

func (l *lazyLender) Address() common.Address                { return l.address }
func (l *lazyLender) RepaymentMode() flashloan.RepaymentMode { return flashloan.RepayByTransfer }
func (l *lazyLender) String() string                         { return "lazy" }

func (l *lazyLender) FlashLoan(*chain.CallContext, common.Address, []common.Address, []*big.Int, []byte) error {
	return nil
}

func TestVaultWithoutCallback(t *testing.T) {
	env := newEnv(t, &lazyLender{address: common.HexToAddress("0x00000000000000000000000000000000000000aa")})

	_, _, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, nil)
	assert.ErrorIs(t, err, flashloan.ErrNotSettled)
}

func TestDepositAndReads(t *testing.T) {
	env := newBalancerEnv(t, 0)
	ctx := context.Background()

	receipt, err := env.chain.Transact(ctx, stranger, env.ctl.Address(), big.NewInt(7e17), env.ctl.Deposit)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(7e17), env.ctl.GetBalance(env.chain))

	event := mustABI(t).Events["Deposited"]
	require.Len(t, receipt.Logs, 1)
	assert.Equal(t, event.ID, receipt.Logs[0].Topics[0])
	assert.Equal(t, env.ctl.Address(), receipt.Logs[0].Address)
	values, err := event.Inputs.Unpack(receipt.Logs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, stranger, values[0])
	assert.Equal(t, big.NewInt(7e17), values[1])

	// Reads are idempotent.
	for i := 0; i < 3; i++ {
		assert.Equal(t, big.NewInt(7e17), env.ctl.GetBalance(env.chain))
		assert.Equal(t, owner, env.ctl.GetOwner())
		tokens, err := env.ctl.GetTokenBalance(env.chain, dai)
		require.NoError(t, err)
		assert.Zero(t, tokens.Sign())
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(env.ctl.Metrics().Deposits))
}

func TestNonOwnerWithdrawTokenFails(t *testing.T) {
	env := newBalancerEnv(t, 0)
	env.fund(dai, whale, big.NewInt(1_000_000))

	_, err := env.chain.Transact(context.Background(), stranger, env.ctl.Address(), nil, func(call *chain.CallContext) error {
		return env.ctl.WithdrawToken(call, dai)
	})
	assert.ErrorIs(t, err, flashloan.ErrNotOwner)
	assert.Equal(t, big.NewInt(1_000_000), env.controllerBalance(dai))
	assert.Zero(t, env.tokenBalance(dai, stranger).Sign())
}

func TestSettlementEmitsEvents(t *testing.T) {
	env := newBalancerEnv(t, 0)

	_, receipt, err := env.request(owner, []common.Address{weth}, []*big.Int{ether(1)}, nil)
	require.NoError(t, err)

	settled := mustABI(t).Events["FlashLoanSettled"].ID
	var found bool
	for _, log := range receipt.Logs {
		assert.Equal(t, receipt.TxHash, log.TxHash)
		if log.Topics[0] == settled {
			found = true
			assert.Equal(t, env.ctl.Address(), log.Address)
		}
	}
	assert.True(t, found)
}
