package bonding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

//go:generate stringer -type=DelegatorStatus -trimprefix=Delegator
type DelegatorStatus uint8

const (
	DelegatorPending DelegatorStatus = iota
	DelegatorBonded
	DelegatorUnbonding
	DelegatorUnbonded
)

//go:generate stringer -type=TranscoderStatus -trimprefix=Transcoder
type TranscoderStatus uint8

const (
	TranscoderNotRegistered TranscoderStatus = iota
	TranscoderRegistered
)

// NullAddress is the delegate of a record that is not delegating.
var NullAddress = common.Address{}

// Delegator is the bonding state of one address. DelegatedAmount is the
// stake received from every record delegating to this address, its own
// self-bond included.
type Delegator struct {
	Address         common.Address
	BondedAmount    *big.Int
	Fees            *big.Int
	DelegateAddress common.Address
	DelegatedAmount *big.Int
	StartRound      uint64
	WithdrawRound   uint64
	LastClaimRound  uint64
}

// Delegating reports whether the record has a delegate.
func (d *Delegator) Delegating() bool {
	return d.DelegateAddress != NullAddress
}

// TranscoderParams are accepted at registration and stored as is.
type TranscoderParams struct {
	RewardCut    *big.Int
	FeeShare     *big.Int
	PricePerUnit *big.Int
}

type Transcoder struct {
	Address        common.Address
	Status         TranscoderStatus
	TotalStake     *big.Int
	SelfStake      *big.Int
	DelegatedStake *big.Int
	TranscoderParams
}
