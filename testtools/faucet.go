package testtools

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/videocoin/go-bonding/token"
)

// NewFaucet creates faucet object, requires a token ledger to mint from.
func NewFaucet(ledger *token.Ledger) Faucet {
	return Faucet{ledger: ledger}
}

// Faucet provides API to request funds.
type Faucet struct {
	ledger *token.Ledger
}

// Request funds for an address.
func (f Faucet) Request(to common.Address, funds *big.Int) error {
	return f.ledger.Mint(to, funds)
}

// NewAccounts generates n fresh addresses and funds each of them.
func (f Faucet) NewAccounts(n int, funds *big.Int) ([]common.Address, error) {
	addrs := make([]common.Address, 0, n)
	for i := 0; i < n; i++ {
		pkey, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		addr := crypto.PubkeyToAddress(pkey.PublicKey)
		if err := f.Request(addr, funds); err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
