package bonding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/videocoin/go-bonding/store"
)

// RoundClock is read at the start of every operation. The engine never
// advances it.
type RoundClock interface {
	CurrentRound() uint64
	RoundLength() uint64
	CurrentRoundInitialized() bool
}

// StakeLedger moves tokens in and out of escrow inside the engine's
// transaction. Shortfalls are reported with token.ErrInsufficientFunds,
// token.ErrInsufficientAllowance and token.ErrInsufficientEscrow.
type StakeLedger interface {
	TransferIn(rw store.ReadWriter, from common.Address, amount *big.Int) error
	TransferOut(rw store.ReadWriter, to common.Address, amount *big.Int) error
}

// RewardSource settles the rounds (fromRound, toRound] a bonded delegator
// earned with its delegate and returns the fees credited to it. It is only
// called for rounds the delegator was bonded in.
type RewardSource interface {
	Settle(rw store.ReadWriter, delegator, delegate common.Address, bonded *big.Int, fromRound, toRound uint64) (*big.Int, error)
}
