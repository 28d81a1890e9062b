package bonding_test

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	bonding "github.com/videocoin/go-bonding"
	"github.com/videocoin/go-bonding/testtools"
)

var funds = big.NewInt(1000000)

type EngineSuite struct {
	suite.Suite

	ctx    context.Context
	node   *testtools.Node
	engine *bonding.Engine

	transcoder1, transcoder2 common.Address
	delegator1, delegator2   common.Address
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.node = testtools.DefaultNode()
	s.Require().NoError(s.node.Start())
	s.engine = s.node.Engine()

	accounts, err := s.node.FaucetService().NewAccounts(4, funds)
	s.Require().NoError(err)
	s.transcoder1, s.transcoder2 = accounts[0], accounts[1]
	s.delegator1, s.delegator2 = accounts[2], accounts[3]
}

func (s *EngineSuite) TearDownTest() {
	s.Require().NoError(s.node.Stop())
}

func (s *EngineSuite) delegator(address common.Address) bonding.Delegator {
	del, err := s.engine.GetDelegator(s.ctx, address)
	s.Require().NoError(err)
	return del
}

func (s *EngineSuite) balance(address common.Address) *big.Int {
	balance, err := s.node.Ledger().BalanceOf(address)
	s.Require().NoError(err)
	return balance
}

func (s *EngineSuite) escrow() *big.Int {
	balance, err := s.node.Ledger().EscrowBalance()
	s.Require().NoError(err)
	return balance
}

func (s *EngineSuite) round() uint64 {
	return s.node.Rounds().CurrentRound()
}

func (s *EngineSuite) status(address common.Address) bonding.DelegatorStatus {
	status, err := s.engine.DelegatorStatus(s.ctx, address)
	s.Require().NoError(err)
	return status
}

func (s *EngineSuite) totalStake(address common.Address) int64 {
	stake, err := s.engine.TranscoderTotalStake(s.ctx, address)
	s.Require().NoError(err)
	return stake.Int64()
}

func (s *EngineSuite) registerTranscoders() {
	params := bonding.TranscoderParams{RewardCut: big.NewInt(10), FeeShare: big.NewInt(5), PricePerUnit: big.NewInt(100)}
	for _, tr := range []common.Address{s.transcoder1, s.transcoder2} {
		s.Require().NoError(s.node.Bond(s.ctx, tr, big.NewInt(1000), tr))
		s.Require().NoError(s.engine.RegisterTranscoder(s.ctx, tr, params))
		status, err := s.engine.TranscoderStatus(s.ctx, tr)
		s.Require().NoError(err)
		s.Require().Equal(bonding.TranscoderRegistered, status)
	}
}

func (s *EngineSuite) TestDelegationLifecycle() {
	s.registerTranscoders()

	// both delegators bond to transcoder 1
	for _, d := range []common.Address{s.delegator1, s.delegator2} {
		s.Require().NoError(s.node.Bond(s.ctx, d, big.NewInt(1000), s.transcoder1))
		s.Require().Equal(int64(1000), s.delegator(d).BondedAmount.Int64())
	}
	s.Require().Equal(int64(3000), s.delegator(s.transcoder1).DelegatedAmount.Int64())

	// move the stake to transcoder 2 without adding tokens
	s.Require().NoError(s.engine.Bond(s.ctx, s.delegator1, big.NewInt(0), s.transcoder2))
	s.Require().Equal(s.transcoder2, s.delegator(s.delegator1).DelegateAddress)
	s.Require().Equal(int64(2000), s.delegator(s.transcoder2).DelegatedAmount.Int64())
	s.Require().Equal(int64(2000), s.delegator(s.transcoder1).DelegatedAmount.Int64())

	s.Require().NoError(s.engine.Bond(s.ctx, s.delegator2, big.NewInt(0), s.transcoder2))
	s.Require().Equal(s.transcoder2, s.delegator(s.delegator2).DelegateAddress)
	s.Require().Equal(int64(3000), s.delegator(s.transcoder2).DelegatedAmount.Int64())

	start := s.delegator(s.delegator1).BondedAmount
	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(1000), s.transcoder2))
	end := s.delegator(s.delegator1).BondedAmount
	s.Require().Equal(int64(1000), new(big.Int).Sub(end, start).Int64())
	s.Require().Equal(int64(4000), s.delegator(s.transcoder2).DelegatedAmount.Int64())

	// a registered transcoder can't redirect its self-bond
	err := s.engine.Bond(s.ctx, s.transcoder1, big.NewInt(0), s.transcoder2)
	s.Require().True(errors.Is(err, bonding.ErrInvalidSelfDelegation))

	// delegator 1 unbonds and withdraws
	s.Require().NoError(s.node.NextRound())
	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator1))
	s.node.Rounds().MineBlocks(1)

	info := s.delegator(s.delegator1)
	current := s.round()
	s.Require().Equal(bonding.NullAddress, info.DelegateAddress)
	s.Require().Zero(info.StartRound)
	s.Require().Equal(current+s.engine.UnbondingPeriod(), info.WithdrawRound)
	s.Require().Equal(current, info.LastClaimRound)
	s.Require().Equal(bonding.DelegatorUnbonding, s.status(s.delegator1))
	s.Require().Equal(int64(1000), s.delegator(s.transcoder1).DelegatedAmount.Int64())
	s.Require().Equal(int64(1000), s.totalStake(s.transcoder1))
	s.Require().Equal(int64(2000), s.totalStake(s.transcoder2))

	s.Require().NoError(s.node.AdvanceRounds(s.engine.UnbondingPeriod()))
	startBalance := s.balance(s.delegator1)
	startEscrow := s.escrow()
	s.Require().NoError(s.engine.WithdrawStake(s.ctx, s.delegator1))
	info = s.delegator(s.delegator1)
	s.Require().Zero(info.BondedAmount.Sign())
	s.Require().Zero(info.WithdrawRound)
	s.Require().Equal(int64(2000), new(big.Int).Sub(s.balance(s.delegator1), startBalance).Int64())
	s.Require().Equal(int64(2000), new(big.Int).Sub(startEscrow, s.escrow()).Int64())
	s.Require().Equal(bonding.DelegatorUnbonded, s.status(s.delegator1))

	// delegator 2 unbonds from transcoder 2 and bonds to transcoder 1 before
	// the unbonding period is over
	s.Require().NoError(s.node.NextRound())
	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator2))
	s.node.Rounds().MineBlocks(1)
	info = s.delegator(s.delegator2)
	current = s.round()
	s.Require().Equal(current+s.engine.UnbondingPeriod(), info.WithdrawRound)
	s.Require().Equal(current, info.LastClaimRound)
	s.Require().Equal(int64(1000), s.delegator(s.transcoder2).DelegatedAmount.Int64())
	s.Require().Equal(int64(1000), s.totalStake(s.transcoder2))

	s.Require().NoError(s.engine.Bond(s.ctx, s.delegator2, big.NewInt(0), s.transcoder1))
	s.node.Rounds().MineBlocks(1)
	info = s.delegator(s.delegator2)
	current = s.round()
	s.Require().Equal(bonding.DelegatorPending, s.status(s.delegator2))
	s.Require().Equal(s.transcoder1, info.DelegateAddress)
	s.Require().Equal(current+1, info.StartRound)
	s.Require().Zero(info.WithdrawRound)
	s.Require().Equal(current, info.LastClaimRound)
	s.Require().Equal(int64(2000), s.delegator(s.transcoder1).DelegatedAmount.Int64())

	// delegator 2 unbonds, leaves its stake for a thousand rounds and bonds
	// again without catching up on any of them
	s.Require().NoError(s.node.NextRound())
	s.Require().Equal(bonding.DelegatorBonded, s.status(s.delegator2))
	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator2))
	info = s.delegator(s.delegator2)
	current = s.round()
	s.Require().Equal(bonding.NullAddress, info.DelegateAddress)
	s.Require().Zero(info.StartRound)
	s.Require().Equal(current+s.engine.UnbondingPeriod(), info.WithdrawRound)
	s.Require().Equal(current, info.LastClaimRound)
	s.Require().Equal(int64(1000), s.delegator(s.transcoder1).DelegatedAmount.Int64())
	s.Require().Equal(int64(1000), s.totalStake(s.transcoder2))

	s.Require().NoError(s.node.AdvanceRounds(1000))
	s.Require().NoError(s.engine.Bond(s.ctx, s.delegator2, big.NewInt(0), s.transcoder2))
	info = s.delegator(s.delegator2)
	current = s.round()
	s.Require().Equal(s.transcoder2, info.DelegateAddress)
	s.Require().Equal(current+1, info.StartRound)
	s.Require().Zero(info.WithdrawRound)
	s.Require().Equal(current, info.LastClaimRound)
	s.Require().Equal(int64(2000), s.delegator(s.transcoder2).DelegatedAmount.Int64())
	s.Require().Equal(int64(2000), s.totalStake(s.transcoder2))

	total, err := s.engine.TotalBonded(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(s.escrow().Int64(), total.Int64())
}

func (s *EngineSuite) TestSelfBondCanGrow() {
	s.registerTranscoders()
	s.Require().NoError(s.node.Bond(s.ctx, s.transcoder1, big.NewInt(500), s.transcoder1))
	s.Require().NoError(s.engine.Bond(s.ctx, s.transcoder1, big.NewInt(0), s.transcoder1))
	tr := s.delegator(s.transcoder1)
	s.Require().Equal(int64(1500), tr.BondedAmount.Int64())
	s.Require().Equal(int64(1500), tr.DelegatedAmount.Int64())

	err := s.node.Bond(s.ctx, s.transcoder1, big.NewInt(10), s.transcoder2)
	s.Require().True(errors.Is(err, bonding.ErrInvalidSelfDelegation))
	s.Require().Equal(int64(1500), s.delegator(s.transcoder1).BondedAmount.Int64())
}

func (s *EngineSuite) TestBondRejections() {
	err := s.node.Bond(s.ctx, s.delegator1, big.NewInt(-1), s.transcoder1)
	s.Require().True(errors.Is(err, bonding.ErrNegativeAmount))

	err = s.engine.Bond(s.ctx, s.delegator1, big.NewInt(10), bonding.NullAddress)
	s.Require().True(errors.Is(err, bonding.ErrInvalidDelegate))

	err = s.engine.Bond(s.ctx, s.delegator1, big.NewInt(0), s.transcoder1)
	s.Require().True(errors.Is(err, bonding.ErrNothingToBond))

	// no approval
	err = s.engine.Bond(s.ctx, s.delegator1, big.NewInt(10), s.transcoder1)
	s.Require().True(errors.Is(err, bonding.ErrInsufficientAllowanceOrBalance))

	// approved but not funded
	over := new(big.Int).Add(funds, big.NewInt(1))
	err = s.node.Bond(s.ctx, s.delegator1, over, s.transcoder1)
	s.Require().True(errors.Is(err, bonding.ErrInsufficientAllowanceOrBalance))

	del := s.delegator(s.delegator1)
	s.Require().Zero(del.BondedAmount.Sign())
	s.Require().Equal(bonding.NullAddress, del.DelegateAddress)
	s.Require().Zero(s.delegator(s.transcoder1).DelegatedAmount.Sign())
	s.Require().Zero(s.escrow().Sign())
	s.Require().Equal(funds.Int64(), s.balance(s.delegator1).Int64())
}

func (s *EngineSuite) TestRoundMustBeInitialized() {
	s.node.Rounds().MineBlocks(testtools.RoundLength)
	err := s.node.Bond(s.ctx, s.delegator1, big.NewInt(10), s.transcoder1)
	s.Require().True(errors.Is(err, bonding.ErrRoundNotInitialized))
	s.Require().Zero(s.escrow().Sign())

	s.Require().NoError(s.node.Rounds().InitializeRound())
	s.Require().NoError(s.engine.Bond(s.ctx, s.delegator1, big.NewInt(10), s.transcoder1))
}

func (s *EngineSuite) TestUnbondWithoutDelegation() {
	err := s.engine.Unbond(s.ctx, s.delegator1)
	s.Require().True(errors.Is(err, bonding.ErrNoActiveDelegation))

	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(100), s.transcoder1))
	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator1))
	err = s.engine.Unbond(s.ctx, s.delegator1)
	s.Require().True(errors.Is(err, bonding.ErrNoActiveDelegation))
}

func (s *EngineSuite) TestWithdrawBeforeUnbondingPeriod() {
	err := s.engine.WithdrawStake(s.ctx, s.delegator1)
	s.Require().True(errors.Is(err, bonding.ErrUnbondingPeriodNotElapsed))

	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(100), s.transcoder1))
	err = s.engine.WithdrawStake(s.ctx, s.delegator1)
	s.Require().True(errors.Is(err, bonding.ErrUnbondingPeriodNotElapsed))

	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator1))
	s.Require().NoError(s.node.AdvanceRounds(s.engine.UnbondingPeriod() - 1))
	err = s.engine.WithdrawStake(s.ctx, s.delegator1)
	s.Require().True(errors.Is(err, bonding.ErrUnbondingPeriodNotElapsed))
	s.Require().Equal(int64(100), s.escrow().Int64())

	s.Require().NoError(s.node.NextRound())
	s.Require().NoError(s.engine.WithdrawStake(s.ctx, s.delegator1))
	s.Require().Zero(s.escrow().Sign())
	s.Require().Equal(funds.Int64(), s.balance(s.delegator1).Int64())
}

func (s *EngineSuite) TestRegisterRequiresSelfBond() {
	params := bonding.TranscoderParams{RewardCut: big.NewInt(1)}
	err := s.engine.RegisterTranscoder(s.ctx, s.transcoder1, params)
	s.Require().True(errors.Is(err, bonding.ErrNotSelfBonded))

	s.Require().NoError(s.node.Bond(s.ctx, s.transcoder1, big.NewInt(100), s.transcoder2))
	err = s.engine.RegisterTranscoder(s.ctx, s.transcoder1, params)
	s.Require().True(errors.Is(err, bonding.ErrNotSelfBonded))

	s.Require().NoError(s.engine.Bond(s.ctx, s.transcoder1, big.NewInt(0), s.transcoder1))
	s.Require().NoError(s.engine.RegisterTranscoder(s.ctx, s.transcoder1, params))
	status, err := s.engine.TranscoderStatus(s.ctx, s.transcoder1)
	s.Require().NoError(err)
	s.Require().Equal(bonding.TranscoderRegistered, status)

	status, err = s.engine.TranscoderStatus(s.ctx, s.transcoder2)
	s.Require().NoError(err)
	s.Require().Equal(bonding.TranscoderNotRegistered, status)
}

func (s *EngineSuite) TestRegisteredTranscoderUnbonds() {
	s.registerTranscoders()
	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(300), s.transcoder1))

	s.Require().NoError(s.engine.Unbond(s.ctx, s.transcoder1))
	tr := s.delegator(s.transcoder1)
	s.Require().Equal(int64(300), tr.DelegatedAmount.Int64())
	s.Require().Equal(int64(1000), tr.BondedAmount.Int64())

	status, err := s.engine.TranscoderStatus(s.ctx, s.transcoder1)
	s.Require().NoError(err)
	s.Require().Equal(bonding.TranscoderRegistered, status)

	// still registered, so it can only come back to itself
	err = s.engine.Bond(s.ctx, s.transcoder1, big.NewInt(0), s.transcoder2)
	s.Require().True(errors.Is(err, bonding.ErrInvalidSelfDelegation))
	s.Require().NoError(s.engine.Bond(s.ctx, s.transcoder1, big.NewInt(0), s.transcoder1))
	s.Require().Equal(int64(1300), s.delegator(s.transcoder1).DelegatedAmount.Int64())
}

func (s *EngineSuite) TestStatusIsStable() {
	s.Require().Equal(bonding.DelegatorUnbonded, s.status(s.delegator1))
	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(100), s.transcoder1))
	for i := 0; i < 3; i++ {
		s.Require().Equal(bonding.DelegatorPending, s.status(s.delegator1))
	}
	s.Require().NoError(s.node.NextRound())
	for i := 0; i < 3; i++ {
		s.Require().Equal(bonding.DelegatorBonded, s.status(s.delegator1))
	}
}

func (s *EngineSuite) TestEventsAfterCommit() {
	bonds := make(chan bonding.BondEvent, 1)
	sub := s.engine.SubscribeBondEvents(bonds)
	defer sub.Unsubscribe()
	unbonds := make(chan bonding.UnbondEvent, 1)
	usub := s.engine.SubscribeUnbondEvents(unbonds)
	defer usub.Unsubscribe()
	withdrawals := make(chan bonding.WithdrawStakeEvent, 1)
	wsub := s.engine.SubscribeWithdrawStakeEvents(withdrawals)
	defer wsub.Unsubscribe()

	// rejected calls send nothing
	s.Require().Error(s.engine.Bond(s.ctx, s.delegator1, big.NewInt(10), s.transcoder1))
	s.Require().Len(bonds, 0)

	s.Require().NoError(s.node.Bond(s.ctx, s.delegator1, big.NewInt(10), s.transcoder1))
	ev := <-bonds
	s.Require().Equal(s.delegator1, ev.Delegator)
	s.Require().Equal(bonding.NullAddress, ev.OldDelegate)
	s.Require().Equal(s.transcoder1, ev.NewDelegate)
	s.Require().Equal(int64(10), ev.BondedAmount.Int64())
	s.Require().Equal(s.round(), ev.Round)
	s.Require().Equal(uint64(1), ev.Seq)

	s.Require().NoError(s.engine.Unbond(s.ctx, s.delegator1))
	uev := <-unbonds
	s.Require().Equal(s.transcoder1, uev.Delegate)
	s.Require().Equal(ev.Seq+1, uev.Seq)
	s.Require().Equal(s.round()+s.engine.UnbondingPeriod(), uev.WithdrawRound)

	s.Require().NoError(s.node.AdvanceRounds(s.engine.UnbondingPeriod()))
	s.Require().NoError(s.engine.WithdrawStake(s.ctx, s.delegator1))
	wev := <-withdrawals
	s.Require().Equal(int64(10), wev.Amount.Int64())
	s.Require().Equal(uev.Seq+1, wev.Seq)
}

func (s *EngineSuite) TestConcurrentBondsCarryCommitOrder() {
	const workers, perWorker = 8, 10
	total := workers * perWorker

	bonds := make(chan bonding.BondEvent, total)
	sub := s.engine.SubscribeBondEvents(bonds)
	defer sub.Unsubscribe()

	s.Require().NoError(s.node.Approve(s.delegator1, big.NewInt(int64(total))))
	var wg sync.WaitGroup
	errs := make(chan error, total)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				errs <- s.engine.Bond(s.ctx, s.delegator1, big.NewInt(1), s.transcoder1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	events := make([]bonding.BondEvent, 0, total)
	for i := 0; i < total; i++ {
		events = append(events, <-bonds)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	// every bond adds one token, so commit order shows in the bonded amount
	for i, ev := range events {
		s.Require().Equal(uint64(i+1), ev.Seq)
		s.Require().Equal(int64(i+1), ev.BondedAmount.Int64())
	}
}

func (s *EngineSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := s.node.Bond(ctx, s.delegator1, big.NewInt(10), s.transcoder1)
	s.Require().True(errors.Is(err, context.Canceled))
	s.Require().Zero(s.escrow().Sign())
}
