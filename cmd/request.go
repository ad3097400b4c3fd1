package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

var requestFlags struct {
	assets   []string
	amounts  []string
	userData string
	dryRun   bool
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request a flash loan from the deployed controller",
	Example: `  flashctl request --asset 0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619 --amount 1e18`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(requestFlags.assets) != len(requestFlags.amounts) {
			return fmt.Errorf("got %d assets but %d amounts", len(requestFlags.assets), len(requestFlags.amounts))
		}
		assets := make([]common.Address, len(requestFlags.assets))
		amounts := make([]*big.Int, len(requestFlags.amounts))
		for i, asset := range requestFlags.assets {
			if !common.IsHexAddress(asset) {
				return fmt.Errorf("invalid asset address %q", asset)
			}
			assets[i] = common.HexToAddress(asset)
			amount, err := umath.ParseAmount(requestFlags.amounts[i])
			if err != nil {
				return err
			}
			amounts[i] = amount
		}

		userData := []byte{}
		if data := strings.TrimSpace(requestFlags.userData); data != "" && data != "0x" {
			decoded, err := hexutil.Decode(data)
			if err != nil {
				return fmt.Errorf("invalid user data: %w", err)
			}
			userData = decoded
		}

		s, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if requestFlags.dryRun {
			calldata, err := s.client.Calldata("requestFlashLoan", assets, amounts, userData)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(calldata))
			return nil
		}

		opts, err := s.transactor(cmd.Context(), nil)
		if err != nil {
			return err
		}
		logger().Info("Requesting flash loan",
			zap.Int("assets", len(assets)),
			zap.String("from", opts.From.Hex()))
		tx, err := s.client.RequestFlashLoan(opts, assets, amounts, userData)
		if err != nil {
			return err
		}
		return s.await(cmd, tx)
	},
}

func init() {
	requestCmd.Flags().StringSliceVar(&requestFlags.assets, "asset", nil, "asset to borrow, repeat for several")
	requestCmd.Flags().StringSliceVar(&requestFlags.amounts, "amount", nil, "amount to borrow in base units, one per asset")
	requestCmd.Flags().StringVar(&requestFlags.userData, "data", "0x", "hex encoded user data passed to the strategy")
	requestCmd.Flags().BoolVar(&requestFlags.dryRun, "dry-run", false, "print the calldata instead of sending")
	_ = requestCmd.MarkFlagRequired("asset")
	_ = requestCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(requestCmd)
}
