package store

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Key joins a bucket prefix and a key.
func Key(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+len(key))
	k = append(k, bucket...)
	return append(k, key...)
}

// GetRLP decodes the value at key into v. It returns false, leaving v
// untouched, when the key is absent.
func GetRLP(r Reader, key []byte, v interface{}) (bool, error) {
	data, err := r.Get(key)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, v); err != nil {
		return false, errors.Wrapf(err, "failed to decode %x", key)
	}
	return true, nil
}

// PutRLP encodes v and stages it at key.
func PutRLP(w Writer, key []byte, v interface{}) error {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %x", key)
	}
	return w.Put(key, data)
}
