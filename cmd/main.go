// Command bond runs one ledger action for the key in BOND_KEY.
//
// BOND_ACTION is one of status, mint, bond, unbond, withdraw or register.
// bond pulls tokens from the caller's balance, so on a fresh data dir the
// balance has to be created first with BOND_ACTION=mint, which is only
// accepted when BOND_ALLOW_MINT=true.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/videocoin/common/crypto"

	bonding "github.com/videocoin/go-bonding"
	"github.com/videocoin/go-bonding/rounds"
	"github.com/videocoin/go-bonding/token"
)

type config struct {
	Key      string
	Password string
	Block    uint64
	Verbose  bool

	AllowMint bool `split_words:"true"`

	Action string `default:"status"`
	Amount string `default:"0"`
	To     common.Address

	RewardCut    string `default:"0"`
	FeeShare     string `default:"0"`
	PricePerUnit string `default:"0"`
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func bigFromString(name, value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 0)
	if !ok {
		panic(fmt.Sprintf("can't use %s=%s as math.BigInt", name, value))
	}
	return v
}

var errMintDisabled = errors.New("mint is disabled, set BOND_ALLOW_MINT=true")

func run(ctx context.Context, c config, caller common.Address, engine *bonding.Engine, ledger *token.Ledger) error {
	switch c.Action {
	case "mint":
		if !c.AllowMint {
			return errMintDisabled
		}
		amount := bigFromString("amount", c.Amount)
		if err := ledger.Mint(caller, amount); err != nil {
			return err
		}
		balance, err := ledger.BalanceOf(caller)
		if err != nil {
			return err
		}
		fmt.Printf("minted %v to %s, balance %v\n", amount, caller.String(), balance)
	case "bond":
		amount := bigFromString("amount", c.Amount)
		if amount.Sign() > 0 {
			if err := ledger.Approve(caller, ledger.Escrow(), amount); err != nil {
				return err
			}
		}
		if err := engine.Bond(ctx, caller, amount, c.To); err != nil {
			return err
		}
		fmt.Printf("bonded %v to %s\n", amount, c.To.String())
	case "unbond":
		if err := engine.Unbond(ctx, caller); err != nil {
			return err
		}
		fmt.Printf("unbonded %s\n", caller.String())
	case "withdraw":
		if err := engine.WithdrawStake(ctx, caller); err != nil {
			return err
		}
		fmt.Printf("withdrew stake of %s\n", caller.String())
	case "register":
		err := engine.RegisterTranscoder(ctx, caller, bonding.TranscoderParams{
			RewardCut:    bigFromString("reward cut", c.RewardCut),
			FeeShare:     bigFromString("fee share", c.FeeShare),
			PricePerUnit: bigFromString("price per unit", c.PricePerUnit),
		})
		if err != nil {
			return err
		}
		fmt.Printf("registered transcoder %s\n", caller.String())
	case "status":
	default:
		return errors.Errorf("unknown action %s", c.Action)
	}
	return nil
}

func main() {
	var c config
	must(envconfig.Process("bond", &c))
	ledgerConfig, err := bonding.LoadConfig("bonding")
	must(err)

	if c.Verbose {
		log.Root().SetHandler(log.LvlFilterHandler(log.LvlDebug, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	key, err := crypto.DecryptKeyFile(c.Key, c.Password)
	must(err)
	caller := ethcrypto.PubkeyToAddress(key.PrivateKey.PublicKey)

	db, err := ledgerConfig.OpenStore()
	must(err)
	defer db.Close()

	manager, err := rounds.NewManager(ledgerConfig.RoundLength, c.Block)
	must(err)
	ledger := token.New(db, ledgerConfig.Escrow)
	engine, err := bonding.NewEngine(db, manager, ledger, ledgerConfig.UnbondingPeriod)
	must(err)
	defer engine.Close()

	must(run(ctx, c, caller, engine, ledger))

	del, err := engine.GetDelegator(ctx, caller)
	must(err)
	status, err := engine.DelegatorStatus(ctx, caller)
	must(err)
	fmt.Printf("round %d: %s %s bonded=%v delegate=%s delegated=%v start=%d withdraw=%d lastClaim=%d\n",
		manager.CurrentRound(), caller.String(), status, del.BondedAmount, del.DelegateAddress.String(),
		del.DelegatedAmount, del.StartRound, del.WithdrawRound, del.LastClaimRound)
}
