package simulator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/chain"
	"github.com/michaelpento.lv/flashctl/config"
	"github.com/michaelpento.lv/flashctl/flashloan"
	"github.com/michaelpento.lv/flashctl/flashloan/aave"
	"github.com/michaelpento.lv/flashctl/flashloan/balancer"
	"github.com/michaelpento.lv/flashctl/utils"
	"github.com/michaelpento.lv/flashctl/utils/metrics"
)

// Polygon token addresses
var (
	WETH = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	DAI  = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
)

// Scenario describes one end-to-end run.
type Scenario struct {
	Version    string
	LenderKind string
	FeeBps     uint64

	Owner    common.Address
	Stranger common.Address

	LoanAssets  []common.Address
	LoanAmounts []*big.Int
	// Topup is given to the controller before the loan so that fees can be paid.
	Topup *big.Int

	Deposit     *big.Int
	TokenAmount *big.Int
}

// DefaultScenario follows the deployment on Polygon: a Balancer loan of one
// WETH, a native deposit of 4 coins and a treasury of 1,000,000 DAI units.
func DefaultScenario() Scenario {
	return Scenario{
		Version:     config.DefaultVersion,
		LenderKind:  config.LenderBalancer,
		Owner:       common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Stranger:    common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		LoanAssets:  []common.Address{WETH},
		LoanAmounts: []*big.Int{big.NewInt(1e18)},
		Topup:       new(big.Int),
		Deposit:     big.NewInt(4e18),
		TokenAmount: big.NewInt(1_000_000),
	}
}

// StepResult represents the result of one simulated transaction
type StepResult struct {
	Name    string
	Success bool
	TxHash  common.Hash
	Events  []utils.DecodedEvent
	Error   error
}

// Report collects the observable outcome of a scenario.
type Report struct {
	Controller common.Address
	Owner      common.Address
	Version    string
	Lender     string
	Steps      []StepResult

	// Fee paid per loan asset
	Fees map[common.Address]*big.Int

	FinalBalance      *big.Int
	OwnerTokenBalance *big.Int
}

// Failed returns the steps whose outcome differed from what the scenario expects.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, step := range r.Steps {
		expectFailure := step.Name == stepStrangerWithdraw
		if step.Success == expectFailure {
			failed = append(failed, step)
		}
	}
	return failed
}

const (
	stepDeploy           = "deploy"
	stepLoan             = "requestFlashLoan"
	stepSend             = "send"
	stepStrangerWithdraw = "withdraw (non-owner)"
	stepWithdraw         = "withdraw"
	stepFundToken        = "token transfer"
	stepWithdrawToken    = "withdrawToken"
)

// Simulator handles scenario runs against a fresh in-process chain
type Simulator struct {
	logger  *zap.Logger
	metrics *metrics.ControllerMetrics
}

// NewSimulator creates a new simulator. m may be nil.
func NewSimulator(logger *zap.Logger, m *metrics.ControllerMetrics) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{logger: logger, metrics: m}
}

func (s *Simulator) newLender(sc Scenario) (flashloan.Lender, error) {
	cfg := &flashloan.LenderConfig{FeeBps: sc.FeeBps}
	switch sc.LenderKind {
	case config.LenderBalancer, "":
		return balancer.NewVault(cfg, s.logger.Named("balancer"))
	case config.LenderAave:
		return aave.NewPool(cfg, s.logger.Named("aave"))
	default:
		return nil, fmt.Errorf("unsupported lender kind %q", sc.LenderKind)
	}
}

// Run deploys a controller and walks through the scenario. It stops at the
// first step that cannot continue; failed expectations are reported, not
// returned as errors.
func (s *Simulator) Run(ctx context.Context, sc Scenario) (*Report, error) {
	if len(sc.LoanAssets) != len(sc.LoanAmounts) {
		return nil, fmt.Errorf("scenario has %d loan assets but %d amounts", len(sc.LoanAssets), len(sc.LoanAmounts))
	}

	lender, err := s.newLender(sc)
	if err != nil {
		return nil, err
	}
	env, err := s.genesis(sc, lender)
	if err != nil {
		return nil, fmt.Errorf("failed to build genesis: %w", err)
	}
	decoder, err := utils.NewEventDecoder(s.logger, env.controllerABI, lenderABI(lender))
	if err != nil {
		return nil, err
	}

	report := &Report{
		Lender: lender.String(),
		Fees:   make(map[common.Address]*big.Int),
	}
	record := func(name string, receipt *chain.Receipt, err error) {
		step := StepResult{Name: name, Success: err == nil, Error: err}
		if receipt != nil {
			step.TxHash = receipt.TxHash
			step.Events = decoder.DecodeAll(receipt.Logs)
		}
		report.Steps = append(report.Steps, step)
		s.logger.Info("Scenario step",
			zap.String("step", name),
			zap.Bool("success", step.Success),
			zap.Error(err))
	}

	opts := []flashloan.Option{flashloan.WithLogger(s.logger.Named("controller"))}
	if s.metrics != nil {
		opts = append(opts, flashloan.WithMetrics(s.metrics))
	}
	ctl, receipt, err := chain.Deploy(ctx, env.chain, sc.Owner, func(call *chain.CallContext) (*flashloan.Controller, error) {
		return flashloan.NewController(call, flashloan.Config{Vault: lender.Address(), Version: sc.Version}, opts...)
	})
	record(stepDeploy, receipt, err)
	if err != nil {
		return report, nil
	}
	report.Controller = ctl.Address()
	report.Owner = ctl.GetOwner()
	report.Version = ctl.GetVersion()

	if sc.Topup != nil && sc.Topup.Sign() > 0 {
		for _, asset := range sc.LoanAssets {
			if err := env.chain.Mint(asset, ctl.Address(), sc.Topup); err != nil {
				return nil, err
			}
		}
	}

	var settlement *flashloan.Settlement
	receipt, err = env.chain.Transact(ctx, sc.Owner, ctl.Address(), nil, func(call *chain.CallContext) error {
		st, err := ctl.RequestFlashLoan(call, sc.LoanAssets, sc.LoanAmounts, nil)
		settlement = st
		return err
	})
	record(stepLoan, receipt, err)
	if settlement != nil {
		for _, r := range settlement.Repayments {
			report.Fees[r.Asset] = r.Fee
		}
	}

	receipt, err = env.chain.Send(ctx, sc.Stranger, ctl.Address(), sc.Deposit)
	record(stepSend, receipt, err)

	receipt, err = env.chain.Transact(ctx, sc.Stranger, ctl.Address(), nil, ctl.Withdraw)
	record(stepStrangerWithdraw, receipt, err)

	receipt, err = env.chain.Transact(ctx, sc.Owner, ctl.Address(), nil, ctl.Withdraw)
	record(stepWithdraw, receipt, err)

	dai := env.tokens[DAI]
	receipt, err = env.chain.Transact(ctx, sc.Stranger, DAI, nil, func(call *chain.CallContext) error {
		return dai.Transfer(call, ctl.Address(), sc.TokenAmount)
	})
	record(stepFundToken, receipt, err)

	receipt, err = env.chain.Transact(ctx, sc.Owner, ctl.Address(), nil, func(call *chain.CallContext) error {
		return ctl.WithdrawToken(call, DAI)
	})
	record(stepWithdrawToken, receipt, err)

	report.FinalBalance = ctl.GetBalance(env.chain)
	if report.OwnerTokenBalance, err = env.chain.TokenBalanceOf(DAI, sc.Owner); err != nil {
		return nil, err
	}
	return report, nil
}
