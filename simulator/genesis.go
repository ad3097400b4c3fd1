package simulator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashctl/chain"
	"github.com/michaelpento.lv/flashctl/flashloan"
)

type environment struct {
	chain         *chain.Chain
	tokens        map[common.Address]*chain.Token
	controllerABI abi.ABI
}

var genesisTokens = []struct {
	address  common.Address
	symbol   string
	decimals uint8
	// liquidity held by the lender, in whole tokens
	liquidity int64
}{
	{WETH, "WETH", 18, 10_000},
	{DAI, "DAI", 18, 50_000_000},
}

// genesis funds the scenario accounts and places the lender with liquidity.
func (s *Simulator) genesis(sc Scenario, lender flashloan.Lender) (*environment, error) {
	c := chain.New(s.logger.Named("chain"))
	env := &environment{chain: c, tokens: make(map[common.Address]*chain.Token)}

	parsed, err := flashloan.ParseControllerABI()
	if err != nil {
		return nil, err
	}
	env.controllerABI = parsed

	funding := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	for _, account := range []common.Address{sc.Owner, sc.Stranger} {
		if err := c.Fund(account, funding); err != nil {
			return nil, err
		}
	}
	if err := c.Register(lender); err != nil {
		return nil, err
	}

	unit := big.NewInt(1e18)
	for _, t := range genesisTokens {
		tok, err := c.NewToken(t.address, t.symbol, t.decimals)
		if err != nil {
			return nil, err
		}
		env.tokens[t.address] = tok
		if err := c.Mint(t.address, lender.Address(), new(big.Int).Mul(big.NewInt(t.liquidity), unit)); err != nil {
			return nil, err
		}
	}
	if sc.TokenAmount != nil {
		if err := c.Mint(DAI, sc.Stranger, sc.TokenAmount); err != nil {
			return nil, err
		}
	}
	return env, nil
}

func lenderABI(lender flashloan.Lender) abi.ABI {
	if withABI, ok := lender.(interface{ ABI() abi.ABI }); ok {
		return withABI.ABI()
	}
	return abi.ABI{}
}
