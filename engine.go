package bonding

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/videocoin/go-bonding/store"
	"github.com/videocoin/go-bonding/token"
)

type Option func(*Engine)

// WithRewardSource sets the collaborator that settles rewards and fees for
// bonded rounds. Without one no settlement happens and fees stay zero.
func WithRewardSource(source RewardSource) Option {
	return func(e *Engine) {
		e.rewards = source
	}
}

// NewEngine returns ErrZeroUnbondingPeriod for a zero period: an unbond in
// round 0 would otherwise leave stake that can never be withdrawn.
func NewEngine(db *store.Store, clock RoundClock, ledger StakeLedger, unbondingPeriod uint64, opts ...Option) (*Engine, error) {
	if unbondingPeriod == 0 {
		return nil, ErrZeroUnbondingPeriod
	}
	e := &Engine{
		db:              db,
		clock:           clock,
		ledger:          ledger,
		unbondingPeriod: unbondingPeriod,
		log:             log.New("pkg", "bonding"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Engine applies bond, unbond, withdraw and registration transitions. Every
// transition runs in one store transaction, so the token movement and the
// record updates are committed together or not at all.
type Engine struct {
	db              *store.Store
	clock           RoundClock
	ledger          StakeLedger
	rewards         RewardSource
	registry        Registry
	unbondingPeriod uint64
	log             log.Logger

	feeds feeds
}

// Close unsubscribes all event subscribers.
func (e *Engine) Close() {
	e.feeds.scope.Close()
}

func (e *Engine) UnbondingPeriod() uint64 {
	return e.unbondingPeriod
}

func (e *Engine) round() (uint64, error) {
	if !e.clock.CurrentRoundInitialized() {
		return 0, ErrRoundNotInitialized
	}
	return e.clock.CurrentRound(), nil
}

func (e *Engine) reject(op string, caller common.Address, err error) error {
	if IsFatal(err) {
		faultCounter.Inc(1)
		e.log.Error("Ledger invariant violated", "op", op, "caller", caller, "err", err)
		return err
	}
	rejectMeter.Mark(1)
	e.log.Debug("Rejected", "op", op, "caller", caller, "err", err)
	return err
}

// settle runs the reward source for the rounds d was bonded since its last
// claim. Rounds spent without a delegate are never visited.
func (e *Engine) settle(rw store.ReadWriter, d *Delegator, round uint64) error {
	if e.rewards == nil || d.LastClaimRound >= round {
		return nil
	}
	if DelegatorStatusAt(*d, round) != DelegatorBonded {
		return nil
	}
	fees, err := e.rewards.Settle(rw, d.Address, d.DelegateAddress, d.BondedAmount, d.LastClaimRound, round)
	if err != nil {
		return errors.Wrap(err, "failed to settle rewards")
	}
	if fees != nil && fees.Sign() > 0 {
		d.Fees = new(big.Int).Add(d.Fees, fees)
	}
	return nil
}

// Bond locks amount more tokens for caller and delegates its whole bonded
// stake to `to`. A zero amount only moves the existing stake. The change is
// pending until the next round; delegated totals move immediately.
func (e *Engine) Bond(ctx context.Context, caller common.Address, amount *big.Int, to common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return e.reject("bond", caller, ErrNegativeAmount)
	}
	if to == NullAddress {
		return e.reject("bond", caller, ErrInvalidDelegate)
	}

	var ev BondEvent
	err := e.db.Update(func(tx *store.Tx) error {
		round, err := e.round()
		if err != nil {
			return err
		}
		status, err := e.registry.Status(tx, caller)
		if err != nil {
			return err
		}
		if status == TranscoderRegistered && to != caller {
			return ErrInvalidSelfDelegation
		}

		set := newDelegatorSet(tx)
		del, err := set.get(caller)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 && del.BondedAmount.Sign() == 0 {
			return ErrNothingToBond
		}
		if err := e.settle(tx, del, round); err != nil {
			return err
		}

		if amount.Sign() > 0 {
			if err := e.ledger.TransferIn(tx, caller, amount); err != nil {
				if errors.Is(err, token.ErrInsufficientFunds) || errors.Is(err, token.ErrInsufficientAllowance) {
					return errors.Wrap(ErrInsufficientAllowanceOrBalance, err.Error())
				}
				return err
			}
			if err := addTotalBonded(tx, amount); err != nil {
				return err
			}
		}

		old := del.DelegateAddress
		if del.Delegating() {
			if err := set.subDelegated(old, del.BondedAmount); err != nil {
				return err
			}
		}
		del.BondedAmount = new(big.Int).Add(del.BondedAmount, amount)
		if err := set.addDelegated(to, del.BondedAmount); err != nil {
			return err
		}
		del.DelegateAddress = to
		del.StartRound = round + 1
		del.WithdrawRound = 0
		del.LastClaimRound = round

		if err := set.flush(); err != nil {
			return err
		}
		seq, err := nextEventSeq(tx)
		if err != nil {
			return err
		}
		ev = BondEvent{
			Seq:          seq,
			Delegator:    caller,
			OldDelegate:  old,
			NewDelegate:  to,
			Amount:       new(big.Int).Set(amount),
			BondedAmount: new(big.Int).Set(del.BondedAmount),
			Round:        round,
		}
		return nil
	})
	if err != nil {
		return e.reject("bond", caller, err)
	}
	bondMeter.Mark(1)
	e.log.Debug("Bonded", "delegator", caller, "delegate", to, "amount", amount, "bonded", ev.BondedAmount, "round", ev.Round)
	e.feeds.bond.Send(ev)
	return nil
}

// RegisterTranscoder activates caller as a transcoder. The caller must be
// bonded to itself. The parameters are stored for the reward source and not
// interpreted here.
func (e *Engine) RegisterTranscoder(ctx context.Context, caller common.Address, params TranscoderParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ev TranscoderUpdateEvent
	err := e.db.Update(func(tx *store.Tx) error {
		if _, err := e.round(); err != nil {
			return err
		}
		del, err := getDelegator(tx, caller)
		if err != nil {
			return err
		}
		if del.BondedAmount.Sign() == 0 || del.DelegateAddress != caller {
			return ErrNotSelfBonded
		}
		isNew, err := e.registry.Register(tx, caller, params)
		if err != nil {
			return err
		}
		stored, err := e.registry.Params(tx, caller)
		if err != nil {
			return err
		}
		seq, err := nextEventSeq(tx)
		if err != nil {
			return err
		}
		ev = TranscoderUpdateEvent{Seq: seq, Transcoder: caller, Registered: isNew, TranscoderParams: stored}
		return nil
	})
	if err != nil {
		return e.reject("register", caller, err)
	}
	registerMeter.Mark(1)
	e.log.Debug("Registered transcoder", "transcoder", caller, "new", ev.Registered,
		"rewardCut", ev.RewardCut, "feeShare", ev.FeeShare, "price", ev.PricePerUnit)
	e.feeds.transcoder.Send(ev)
	return nil
}

// Unbond ends caller's delegation. The bonded stake stays in escrow until
// the unbonding period has passed.
func (e *Engine) Unbond(ctx context.Context, caller common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ev UnbondEvent
	err := e.db.Update(func(tx *store.Tx) error {
		round, err := e.round()
		if err != nil {
			return err
		}
		set := newDelegatorSet(tx)
		del, err := set.get(caller)
		if err != nil {
			return err
		}
		if !del.Delegating() {
			return ErrNoActiveDelegation
		}
		if err := e.settle(tx, del, round); err != nil {
			return err
		}
		delegate := del.DelegateAddress
		if err := set.subDelegated(delegate, del.BondedAmount); err != nil {
			return err
		}
		del.DelegateAddress = NullAddress
		del.StartRound = 0
		del.WithdrawRound = round + e.unbondingPeriod
		del.LastClaimRound = round

		if err := set.flush(); err != nil {
			return err
		}
		seq, err := nextEventSeq(tx)
		if err != nil {
			return err
		}
		ev = UnbondEvent{
			Seq:           seq,
			Delegator:     caller,
			Delegate:      delegate,
			Amount:        new(big.Int).Set(del.BondedAmount),
			WithdrawRound: del.WithdrawRound,
			Round:         round,
		}
		return nil
	})
	if err != nil {
		return e.reject("unbond", caller, err)
	}
	unbondMeter.Mark(1)
	e.log.Debug("Unbonded", "delegator", caller, "delegate", ev.Delegate, "amount", ev.Amount, "withdrawRound", ev.WithdrawRound)
	e.feeds.unbond.Send(ev)
	return nil
}

// WithdrawStake returns caller's bonded stake once its withdraw round has
// been reached.
func (e *Engine) WithdrawStake(ctx context.Context, caller common.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var ev WithdrawStakeEvent
	err := e.db.Update(func(tx *store.Tx) error {
		round, err := e.round()
		if err != nil {
			return err
		}
		del, err := getDelegator(tx, caller)
		if err != nil {
			return err
		}
		if !Withdrawable(del, round) {
			return errors.Wrapf(ErrUnbondingPeriodNotElapsed, "withdraw round %d, current round %d", del.WithdrawRound, round)
		}
		amount := del.BondedAmount
		if err := e.ledger.TransferOut(tx, caller, amount); err != nil {
			if errors.Is(err, token.ErrInsufficientEscrow) {
				return errors.Wrap(ErrEscrowInvariant, err.Error())
			}
			return err
		}
		if err := addTotalBonded(tx, new(big.Int).Neg(amount)); err != nil {
			return err
		}
		del.BondedAmount = new(big.Int)
		del.WithdrawRound = 0
		if err := putDelegator(tx, &del); err != nil {
			return err
		}
		seq, err := nextEventSeq(tx)
		if err != nil {
			return err
		}
		ev = WithdrawStakeEvent{Seq: seq, Delegator: caller, Amount: new(big.Int).Set(amount), Round: round}
		return nil
	})
	if err != nil {
		return e.reject("withdraw", caller, err)
	}
	withdrawMeter.Mark(1)
	e.log.Debug("Withdrew stake", "delegator", caller, "amount", ev.Amount, "round", ev.Round)
	e.feeds.withdraw.Send(ev)
	return nil
}

func (e *Engine) GetDelegator(ctx context.Context, address common.Address) (del Delegator, err error) {
	if err := ctx.Err(); err != nil {
		return del, err
	}
	err = e.db.View(func(r store.Reader) error {
		del, err = getDelegator(r, address)
		return err
	})
	return del, err
}

// DelegatorStatus derives the status of address at the current round.
func (e *Engine) DelegatorStatus(ctx context.Context, address common.Address) (DelegatorStatus, error) {
	del, err := e.GetDelegator(ctx, address)
	if err != nil {
		return 0, err
	}
	return DelegatorStatusAt(del, e.clock.CurrentRound()), nil
}

func (e *Engine) TranscoderStatus(ctx context.Context, address common.Address) (status TranscoderStatus, err error) {
	if err := ctx.Err(); err != nil {
		return status, err
	}
	err = e.db.View(func(r store.Reader) error {
		status, err = e.registry.Status(r, address)
		return err
	})
	return status, err
}

// TranscoderTotalStake is the stake delegated to address, its own self-bond
// included.
func (e *Engine) TranscoderTotalStake(ctx context.Context, address common.Address) (*big.Int, error) {
	del, err := e.GetDelegator(ctx, address)
	if err != nil {
		return nil, err
	}
	return del.DelegatedAmount, nil
}

// TotalBonded is the sum of every record's bonded amount.
func (e *Engine) TotalBonded(ctx context.Context) (total *big.Int, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = e.db.View(func(r store.Reader) error {
		total, err = getTotalBonded(r)
		return err
	})
	return total, err
}
