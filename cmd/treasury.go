package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	umath "github.com/michaelpento.lv/flashctl/utils/math"
)

var depositValue string

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Send native coins to the controller through deposit()",
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := umath.ParseAmount(depositValue)
		if err != nil {
			return err
		}

		s, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := s.transactor(cmd.Context(), value)
		if err != nil {
			return err
		}
		tx, err := s.client.Deposit(opts)
		if err != nil {
			return err
		}
		return s.await(cmd, tx)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Withdraw the controller's native balance to the owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := s.transactor(cmd.Context(), nil)
		if err != nil {
			return err
		}
		tx, err := s.client.Withdraw(opts)
		if err != nil {
			return err
		}
		return s.await(cmd, tx)
	},
}

var withdrawTokenCmd = &cobra.Command{
	Use:   "withdraw-token <token>",
	Short: "Withdraw the controller's whole balance of a token to the owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid token address %q", args[0])
		}
		token := common.HexToAddress(args[0])

		s, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := s.transactor(cmd.Context(), nil)
		if err != nil {
			return err
		}
		tx, err := s.client.WithdrawToken(opts, token)
		if err != nil {
			return err
		}
		return s.await(cmd, tx)
	},
}

func init() {
	depositCmd.Flags().StringVar(&depositValue, "value", "", "amount in wei, e.g. 4e18")
	_ = depositCmd.MarkFlagRequired("value")
	rootCmd.AddCommand(depositCmd, withdrawCmd, withdrawTokenCmd)
}
