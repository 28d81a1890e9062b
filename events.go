package bonding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// BondEvent reports a committed bond. Every event kind carries Seq, the
// commit sequence number of its change. Sequence numbers are shared by all
// kinds and strictly increase with commit order, while delivery to
// subscribers is not ordered across concurrent callers.
type BondEvent struct {
	Seq          uint64
	Delegator    common.Address
	OldDelegate  common.Address
	NewDelegate  common.Address
	Amount       *big.Int
	BondedAmount *big.Int
	Round        uint64
}

type UnbondEvent struct {
	Seq           uint64
	Delegator     common.Address
	Delegate      common.Address
	Amount        *big.Int
	WithdrawRound uint64
	Round         uint64
}

type WithdrawStakeEvent struct {
	Seq       uint64
	Delegator common.Address
	Amount    *big.Int
	Round     uint64
}

type TranscoderUpdateEvent struct {
	Seq        uint64
	Transcoder common.Address
	Registered bool
	TranscoderParams
}

type feeds struct {
	bond       event.Feed
	unbond     event.Feed
	withdraw   event.Feed
	transcoder event.Feed
	scope      event.SubscriptionScope
}

// SubscribeBondEvents delivers an event for every committed bond. Sends block
// until every subscriber receives, so channels should be buffered. Delivery
// happens after the commit and is not ordered across callers, see Seq.
func (e *Engine) SubscribeBondEvents(ch chan<- BondEvent) event.Subscription {
	return e.feeds.scope.Track(e.feeds.bond.Subscribe(ch))
}

func (e *Engine) SubscribeUnbondEvents(ch chan<- UnbondEvent) event.Subscription {
	return e.feeds.scope.Track(e.feeds.unbond.Subscribe(ch))
}

func (e *Engine) SubscribeWithdrawStakeEvents(ch chan<- WithdrawStakeEvent) event.Subscription {
	return e.feeds.scope.Track(e.feeds.withdraw.Subscribe(ch))
}

func (e *Engine) SubscribeTranscoderEvents(ch chan<- TranscoderUpdateEvent) event.Subscription {
	return e.feeds.scope.Track(e.feeds.transcoder.Subscribe(ch))
}
