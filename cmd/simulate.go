package cmd

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flashctl/simulator"
	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

var simulateFlags struct {
	amount string
	topup  string
	feeBps uint64
	lender string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the controller scenario on an in-process chain",
	Long: `Deploy a controller next to a simulated lending vault, borrow WETH, deposit,
withdraw as owner and as a stranger, and withdraw a token treasury. Every step
is printed with the events it emitted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := simulator.DefaultScenario()
		sc.Version = cfg.Contract.Version
		sc.LenderKind = cfg.Lender.Kind
		sc.FeeBps = cfg.Lender.FeeBps
		if cmd.Flags().Changed("lender") {
			sc.LenderKind = simulateFlags.lender
		}
		if cmd.Flags().Changed("fee-bps") {
			sc.FeeBps = simulateFlags.feeBps
		}

		amount, err := umath.ParseAmount(simulateFlags.amount)
		if err != nil {
			return err
		}
		sc.LoanAmounts = []*big.Int{amount}
		if sc.Topup, err = umath.ParseAmount(simulateFlags.topup); err != nil {
			return err
		}

		report, err := simulator.NewSimulator(logger(), sharedControllerMetrics()).Run(cmd.Context(), sc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "controller %s (owner %s, version %s, lender %s)\n",
			report.Controller.Hex(), report.Owner.Hex(), report.Version, report.Lender)
		for _, step := range report.Steps {
			status := "ok"
			if !step.Success {
				status = "reverted: " + step.Error.Error()
			}
			fmt.Fprintf(out, "%-22s %s %s\n", step.Name, shortHash(step.TxHash), status)
			for _, event := range step.Events {
				fmt.Fprintf(out, "    %s\n", event)
			}
		}
		for asset, fee := range report.Fees {
			fmt.Fprintf(out, "fee paid on %s: %s\n", asset.Hex(), fee)
		}
		fmt.Fprintf(out, "final balance %s, owner token balance %s\n", report.FinalBalance, report.OwnerTokenBalance)

		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d step(s) did not behave as expected, first: %s", len(failed), failed[0].Name)
		}
		return nil
	},
}

func shortHash(h common.Hash) string {
	hex := h.Hex()
	return hex[:10]
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFlags.amount, "amount", "1e18", "WETH amount to borrow in base units")
	simulateCmd.Flags().StringVar(&simulateFlags.topup, "topup", "0", "WETH given to the controller before the loan to cover fees")
	simulateCmd.Flags().Uint64Var(&simulateFlags.feeBps, "fee-bps", 0, "lender fee in basis points (overrides config)")
	simulateCmd.Flags().StringVar(&simulateFlags.lender, "lender", "", "balancer or aave (overrides config)")
	rootCmd.AddCommand(simulateCmd)
}
