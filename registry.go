package bonding

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/videocoin/go-bonding/store"
)

type transcoderBody struct {
	Status       uint8
	Index        uint64
	RewardCut    *big.Int
	FeeShare     *big.Int
	PricePerUnit *big.Int
}

// Registry tracks which addresses registered as transcoders. Registration is
// one way; the registration order is kept for enumeration.
type Registry struct{}

func (Registry) get(r store.Reader, address common.Address) (*transcoderBody, error) {
	body := new(transcoderBody)
	found, err := store.GetRLP(r, transcoderKey(address), body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transcoder")
	}
	if !found {
		return nil, nil
	}
	return body, nil
}

func (reg Registry) Status(r store.Reader, address common.Address) (TranscoderStatus, error) {
	body, err := reg.get(r, address)
	if err != nil {
		return TranscoderNotRegistered, err
	}
	if body == nil {
		return TranscoderNotRegistered, nil
	}
	return TranscoderStatus(body.Status), nil
}

// Params returns the stored registration parameters, zero for an address that
// never registered.
func (reg Registry) Params(r store.Reader, address common.Address) (TranscoderParams, error) {
	body, err := reg.get(r, address)
	if err != nil || body == nil {
		return TranscoderParams{RewardCut: new(big.Int), FeeShare: new(big.Int), PricePerUnit: new(big.Int)}, err
	}
	return TranscoderParams{
		RewardCut:    orZero(body.RewardCut),
		FeeShare:     orZero(body.FeeShare),
		PricePerUnit: orZero(body.PricePerUnit),
	}, nil
}

// Register activates address, or updates its parameters if it is already
// registered. It reports whether the address is new.
func (reg Registry) Register(rw store.ReadWriter, address common.Address, params TranscoderParams) (bool, error) {
	body, err := reg.get(rw, address)
	if err != nil {
		return false, err
	}
	isNew := body == nil
	if isNew {
		count, err := reg.Count(rw)
		if err != nil {
			return false, err
		}
		if err := store.PutRLP(rw, transcoderIndexKey(count), address); err != nil {
			return false, errors.Wrap(err, "failed to set transcoder index")
		}
		if err := store.PutRLP(rw, keyTranscoderCount, count+1); err != nil {
			return false, errors.Wrap(err, "failed to set transcoder count")
		}
		body = &transcoderBody{Index: count}
	}
	body.Status = uint8(TranscoderRegistered)
	body.RewardCut = orZero(params.RewardCut)
	body.FeeShare = orZero(params.FeeShare)
	body.PricePerUnit = orZero(params.PricePerUnit)
	if err := store.PutRLP(rw, transcoderKey(address), body); err != nil {
		return false, errors.Wrap(err, "failed to set transcoder")
	}
	return isNew, nil
}

func (Registry) Count(r store.Reader) (uint64, error) {
	var count uint64
	if _, err := store.GetRLP(r, keyTranscoderCount, &count); err != nil {
		return 0, errors.Wrap(err, "failed to get transcoder count")
	}
	return count, nil
}

// At returns the address registered at index.
func (reg Registry) At(r store.Reader, index uint64) (common.Address, error) {
	var address common.Address
	found, err := store.GetRLP(r, transcoderIndexKey(index), &address)
	if err != nil {
		return address, errors.Wrap(err, "failed to get transcoder index")
	}
	if !found {
		return address, errors.Wrapf(ErrTranscoderIndex, "index %d", index)
	}
	return address, nil
}
