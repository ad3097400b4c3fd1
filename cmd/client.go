package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/config"
	"github.com/michaelpento.lv/flashctl/flashloan"
	"github.com/michaelpento.lv/flashctl/flashloan/remote"
	"github.com/michaelpento.lv/flashctl/gas"
	"github.com/michaelpento.lv/flashctl/utils"
)

// session is a connection to the configured network and controller.
type session struct {
	eth     *ethclient.Client
	client  *remote.Client
	fees    *gas.Estimator
	decoder *utils.EventDecoder
}

func dial(ctx context.Context) (*session, error) {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	address, err := cfg.ContractAddress()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.Timeout)
	defer cancel()
	eth, err := ethclient.DialContext(dialCtx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Network.Name, err)
	}

	rpcCfg := remote.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		WaitTimeout:       cfg.RateLimit.WaitTimeout,
	}
	client, err := remote.NewClient(address, eth, eth, rpcCfg, sharedRPCMetrics(), logger())
	if err != nil {
		eth.Close()
		return nil, err
	}

	controllerABI, err := flashloan.ParseControllerABI()
	if err != nil {
		eth.Close()
		return nil, err
	}
	decoder, err := utils.NewEventDecoder(logger(), controllerABI)
	if err != nil {
		eth.Close()
		return nil, err
	}

	fees, err := gas.NewEstimator(eth, 10*time.Second, logger())
	if err != nil {
		eth.Close()
		return nil, err
	}

	logger().Debug("Connected",
		zap.String("network", cfg.Network.Name),
		zap.String("contract", address.Hex()))
	return &session{eth: eth, client: client, fees: fees, decoder: decoder}, nil
}

func (s *session) Close() {
	s.eth.Close()
}

// transactor signs with PRIVATE_KEY for the configured chain.
func (s *session) transactor(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	secure, err := config.LoadSecureConfig()
	if err != nil {
		return nil, err
	}
	key, err := crypto.HexToECDSA(secure.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.Network.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	if err := s.fees.Apply(ctx, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// await waits for tx to be mined and prints the events it emitted.
func (s *session) await(cmd *cobra.Command, tx *types.Transaction) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sent %s\n", tx.Hash().Hex())

	receipt, err := remote.WaitMined(cmd.Context(), s.eth, tx)
	if receipt != nil {
		for _, event := range s.decoder.DecodeAll(receipt.Logs) {
			fmt.Fprintf(out, "  %s\n", event)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "mined in block %s, gas used %d\n", receipt.BlockNumber, receipt.GasUsed)
	return nil
}
