package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var infoTokens []string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show owner, version and balances of the deployed controller",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		owner, err := s.client.Owner(ctx)
		if err != nil {
			return err
		}
		version, err := s.client.Version(ctx)
		if err != nil {
			return err
		}
		balance, err := s.client.Balance(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "contract owner => %s\n", owner.Hex())
		fmt.Fprintf(out, "contract version => %s\n", version)
		fmt.Fprintf(out, "balance => %s\n", balance)

		for _, token := range infoTokens {
			if !common.IsHexAddress(token) {
				return fmt.Errorf("invalid token address %q", token)
			}
			amount, err := s.client.TokenBalance(ctx, common.HexToAddress(token))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "token %s => %s\n", common.HexToAddress(token).Hex(), amount)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().StringSliceVar(&infoTokens, "token", nil, "token addresses to report balances for")
	rootCmd.AddCommand(infoCmd)
}
