package bonding

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/videocoin/go-bonding/rounds"
	"github.com/videocoin/go-bonding/store"
)

// RoundNotifier announces initialized rounds.
type RoundNotifier interface {
	SubscribeNewRound(ch chan<- rounds.NewRoundEvent) event.Subscription
}

func NewClient(engine *Engine, notifier RoundNotifier) *Client {
	return &Client{
		engine:   engine,
		notifier: notifier,
	}
}

// Client is a read-only view over the engine's transcoders and delegators.
type Client struct {
	engine   *Engine
	notifier RoundNotifier
}

func (c *Client) GetTranscoderState(ctx context.Context, address common.Address) (TranscoderStatus, error) {
	return c.engine.TranscoderStatus(ctx, address)
}

func (c *Client) GetTranscoderStake(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.engine.TranscoderTotalStake(ctx, address)
}

func (c *Client) GetDelegator(ctx context.Context, address common.Address) (Delegator, error) {
	return c.engine.GetDelegator(ctx, address)
}

func (c *Client) GetTranscoder(ctx context.Context, address common.Address) (tcr Transcoder, err error) {
	if err := ctx.Err(); err != nil {
		return tcr, err
	}
	err = c.engine.db.View(func(r store.Reader) error {
		status, err := c.engine.registry.Status(r, address)
		if err != nil {
			return err
		}
		params, err := c.engine.registry.Params(r, address)
		if err != nil {
			return err
		}
		del, err := getDelegator(r, address)
		if err != nil {
			return err
		}
		self := new(big.Int)
		if del.DelegateAddress == address {
			self.Set(del.BondedAmount)
		}
		tcr = Transcoder{
			Address:          address,
			Status:           status,
			TotalStake:       del.DelegatedAmount,
			SelfStake:        self,
			DelegatedStake:   new(big.Int).Sub(del.DelegatedAmount, self),
			TranscoderParams: params,
		}
		return nil
	})
	return tcr, err
}

func (c *Client) TranscodersCount(ctx context.Context) (count uint64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	err = c.engine.db.View(func(r store.Reader) error {
		count, err = c.engine.registry.Count(r)
		return err
	})
	return count, err
}

func (c *Client) GetTranscoderAt(ctx context.Context, index uint64) (tcr Transcoder, err error) {
	if err := ctx.Err(); err != nil {
		return tcr, err
	}
	var address common.Address
	err = c.engine.db.View(func(r store.Reader) error {
		address, err = c.engine.registry.At(r, index)
		return err
	})
	if err != nil {
		return tcr, err
	}
	return c.GetTranscoder(ctx, address)
}

func (c *Client) TranscoderIterator(ctx context.Context) (*TranscoderIterator, error) {
	count, err := c.TranscodersCount(ctx)
	if err != nil {
		return nil, err
	}
	return newTranscoderIterator(c, 0, count), nil
}

func (c *Client) GetAllTranscoders(ctx context.Context) (tcrs []Transcoder, err error) {
	iter, err := c.TranscoderIterator(ctx)
	if err != nil {
		return nil, err
	}
	for iter.Next(ctx) {
		tcrs = append(tcrs, iter.Current())
	}
	if iter.Error() != nil {
		return nil, iter.Error()
	}
	return tcrs, nil
}

// GetBondedTranscoders returns registered transcoders whose self-bond is in
// effect at the current round.
func (c *Client) GetBondedTranscoders(ctx context.Context) (tcrs []Transcoder, err error) {
	iter, err := c.TranscoderIterator(ctx)
	if err != nil {
		return nil, err
	}
	for iter.Next(ctx) {
		tcr := iter.Current()
		status, err := c.engine.DelegatorStatus(ctx, tcr.Address)
		if err != nil {
			return nil, err
		}
		if status != DelegatorBonded || tcr.SelfStake.Sign() == 0 {
			continue
		}
		tcrs = append(tcrs, tcr)
	}
	if iter.Error() != nil {
		return nil, iter.Error()
	}
	return tcrs, nil
}

// WaitWithdrawable blocks until address can withdraw its stake or ctx is
// done. An address that is not unbonding keeps the call waiting.
func (c *Client) WaitWithdrawable(ctx context.Context, address common.Address) (Delegator, error) {
	if c.notifier == nil {
		return Delegator{}, ErrNoRoundNotifier
	}
	ch := make(chan rounds.NewRoundEvent, 1)
	sub := c.notifier.SubscribeNewRound(ch)
	defer sub.Unsubscribe()

	for {
		del, err := c.engine.GetDelegator(ctx, address)
		if err != nil {
			return del, err
		}
		if c.engine.clock.CurrentRoundInitialized() && Withdrawable(del, c.engine.clock.CurrentRound()) {
			return del, nil
		}
		select {
		case <-ctx.Done():
			return del, ctx.Err()
		case err := <-sub.Err():
			if err == nil {
				err = ErrRoundFeedClosed
			}
			return del, err
		case <-ch:
		}
	}
}

func newTranscoderIterator(client *Client, start, end uint64) *TranscoderIterator {
	return &TranscoderIterator{
		client: client,
		start:  start,
		end:    end,
	}
}

type TranscoderIterator struct {
	client *Client

	start, end uint64

	transcoder Transcoder
	err        error
}

func (iter *TranscoderIterator) Next(ctx context.Context) bool {
	if iter.start >= iter.end || iter.err != nil {
		return false
	}
	tcr, err := iter.client.GetTranscoderAt(ctx, iter.start)
	iter.err = err
	if err != nil {
		return false
	}
	iter.transcoder = tcr
	iter.start++
	return true
}

func (iter *TranscoderIterator) Current() Transcoder {
	return iter.transcoder
}

func (iter *TranscoderIterator) Error() error {
	return iter.err
}
