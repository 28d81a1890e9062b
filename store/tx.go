package store

import (
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/pkg/errors"
)

// Tx is a write transaction. Reads see the transaction's own writes first.
type Tx struct {
	parent Reader
	batch  ethdb.Batch
	// nil value marks a deleted key
	dirty map[string][]byte
}

func newTx(parent Reader, batch ethdb.Batch) *Tx {
	return &Tx{
		parent: parent,
		batch:  batch,
		dirty:  make(map[string][]byte),
	}
}

func (tx *Tx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.dirty[string(key)]; ok {
		if v == nil {
			return nil, ErrNotFound
		}
		return copyBytes(v), nil
	}
	return tx.parent.Get(key)
}

func (tx *Tx) Has(key []byte) (bool, error) {
	if v, ok := tx.dirty[string(key)]; ok {
		return v != nil, nil
	}
	return tx.parent.Has(key)
}

func (tx *Tx) Put(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if err := tx.batch.Put(key, value); err != nil {
		return errors.Wrap(err, "failed to stage put")
	}
	tx.dirty[string(key)] = copyBytes(value)
	return nil
}

func (tx *Tx) Delete(key []byte) error {
	if err := tx.batch.Delete(key); err != nil {
		return errors.Wrap(err, "failed to stage delete")
	}
	tx.dirty[string(key)] = nil
	return nil
}

// Len returns the number of keys touched so far.
func (tx *Tx) Len() int {
	return len(tx.dirty)
}
