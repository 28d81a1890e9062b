package bonding

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/videocoin/go-bonding/store"
)

const (
	bucketDelegators      = "bond/d/"
	bucketTranscoders     = "bond/t/"
	bucketTranscoderIndex = "bond/ti/"
)

var (
	keyTotalBonded     = []byte("bond/total")
	keyTranscoderCount = []byte("bond/tcount")
	keyEventSeq        = []byte("bond/seq")
)

// delegatorBody is the stored form of a Delegator.
type delegatorBody struct {
	BondedAmount    *big.Int
	Fees            *big.Int
	DelegateAddress common.Address
	DelegatedAmount *big.Int
	StartRound      uint64
	WithdrawRound   uint64
	LastClaimRound  uint64
}

func delegatorKey(address common.Address) []byte {
	return store.Key(bucketDelegators, address.Bytes())
}

func transcoderKey(address common.Address) []byte {
	return store.Key(bucketTranscoders, address.Bytes())
}

func transcoderIndexKey(index uint64) []byte {
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], index)
	return store.Key(bucketTranscoderIndex, enc[:])
}

// getDelegator returns the record of address, zero valued if it was never
// written.
func getDelegator(r store.Reader, address common.Address) (Delegator, error) {
	var body delegatorBody
	if _, err := store.GetRLP(r, delegatorKey(address), &body); err != nil {
		return Delegator{}, errors.Wrap(err, "failed to get delegator")
	}
	return Delegator{
		Address:         address,
		BondedAmount:    orZero(body.BondedAmount),
		Fees:            orZero(body.Fees),
		DelegateAddress: body.DelegateAddress,
		DelegatedAmount: orZero(body.DelegatedAmount),
		StartRound:      body.StartRound,
		WithdrawRound:   body.WithdrawRound,
		LastClaimRound:  body.LastClaimRound,
	}, nil
}

func putDelegator(w store.Writer, d *Delegator) error {
	body := &delegatorBody{
		BondedAmount:    d.BondedAmount,
		Fees:            d.Fees,
		DelegateAddress: d.DelegateAddress,
		DelegatedAmount: d.DelegatedAmount,
		StartRound:      d.StartRound,
		WithdrawRound:   d.WithdrawRound,
		LastClaimRound:  d.LastClaimRound,
	}
	if err := store.PutRLP(w, delegatorKey(d.Address), body); err != nil {
		return errors.Wrap(err, "failed to set delegator")
	}
	return nil
}

// delegatorSet holds the records touched by one operation. A caller and its
// delegate may be the same address, so every mutation goes through the same
// pointer and the set is flushed once at the end.
type delegatorSet struct {
	rw    store.ReadWriter
	recs  map[common.Address]*Delegator
	order []common.Address
}

func newDelegatorSet(rw store.ReadWriter) *delegatorSet {
	return &delegatorSet{
		rw:   rw,
		recs: make(map[common.Address]*Delegator),
	}
}

func (s *delegatorSet) get(address common.Address) (*Delegator, error) {
	if d, ok := s.recs[address]; ok {
		return d, nil
	}
	d, err := getDelegator(s.rw, address)
	if err != nil {
		return nil, err
	}
	s.recs[address] = &d
	s.order = append(s.order, address)
	return &d, nil
}

func (s *delegatorSet) addDelegated(delegate common.Address, amount *big.Int) error {
	d, err := s.get(delegate)
	if err != nil {
		return err
	}
	d.DelegatedAmount = new(big.Int).Add(d.DelegatedAmount, amount)
	return nil
}

func (s *delegatorSet) subDelegated(delegate common.Address, amount *big.Int) error {
	d, err := s.get(delegate)
	if err != nil {
		return err
	}
	left := new(big.Int).Sub(d.DelegatedAmount, amount)
	if left.Sign() < 0 {
		return errors.Wrapf(ErrDelegatedInvariant, "delegate %s has %v, removing %v", delegate.Hex(), d.DelegatedAmount, amount)
	}
	d.DelegatedAmount = left
	return nil
}

func (s *delegatorSet) flush() error {
	for _, address := range s.order {
		if err := putDelegator(s.rw, s.recs[address]); err != nil {
			return err
		}
	}
	return nil
}

func getTotalBonded(r store.Reader) (*big.Int, error) {
	total := new(big.Int)
	if _, err := store.GetRLP(r, keyTotalBonded, total); err != nil {
		return nil, errors.Wrap(err, "failed to get total bonded")
	}
	return total, nil
}

func addTotalBonded(rw store.ReadWriter, delta *big.Int) error {
	total, err := getTotalBonded(rw)
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return errors.Wrapf(ErrEscrowInvariant, "total bonded would become %v", total)
	}
	if err := store.PutRLP(rw, keyTotalBonded, total); err != nil {
		return errors.Wrap(err, "failed to set total bonded")
	}
	return nil
}

// nextEventSeq advances the commit sequence. It is written in the same
// transaction as the change it stamps, so the order of sequence numbers is
// the order of commits.
func nextEventSeq(rw store.ReadWriter) (uint64, error) {
	var seq uint64
	if _, err := store.GetRLP(rw, keyEventSeq, &seq); err != nil {
		return 0, errors.Wrap(err, "failed to get event sequence")
	}
	seq++
	if err := store.PutRLP(rw, keyEventSeq, seq); err != nil {
		return 0, errors.Wrap(err, "failed to set event sequence")
	}
	return seq, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
