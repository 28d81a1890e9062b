package store

import (
	"sync"

	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// DefaultCacheSize is the number of values kept in the read cache when
// the caller passes a non-positive size.
const DefaultCacheSize = 1024

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Reader reads values by key.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Writer stages writes.
type Writer interface {
	Put(key, value []byte) error
	Delete(key []byte) error
}

// ReadWriter is what an Update callback works against.
type ReadWriter interface {
	Reader
	Writer
}

// Store serializes writers over an ethdb key/value database. A single Update
// runs at a time; View callbacks run concurrently with each other but never
// with an Update.
type Store struct {
	mu    sync.RWMutex
	db    ethdb.KeyValueStore
	cache *lru.Cache
	log   log.Logger
}

// NewMemory creates a store backed by an in-memory database.
func NewMemory(cacheSize int) (*Store, error) {
	return newStore(memorydb.New(), cacheSize, log.New("pkg", "store", "backend", "memory"))
}

// Open opens (or creates) a leveldb backed store in dir.
func Open(dir string, cache, handles, cacheSize int) (*Store, error) {
	db, err := leveldb.New(dir, cache, handles, "bonding/db/")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open leveldb")
	}
	return newStore(db, cacheSize, log.New("pkg", "store", "backend", "leveldb", "dir", dir))
}

func newStore(db ethdb.KeyValueStore, cacheSize int, logger log.Logger) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create read cache")
	}
	return &Store{db: db, cache: cache, log: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	return s.db.Close()
}

// View runs fn against the committed state.
func (s *Store) View(fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(committed{s})
}

// Update runs fn inside a transaction. Writes made by fn are visible to its
// own reads and are committed in one batch only when fn returns nil.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(committed{s}, s.db.NewBatch())
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.dirty) == 0 {
		return nil
	}
	if err := tx.batch.Write(); err != nil {
		s.log.Error("Failed to commit batch", "keys", len(tx.dirty), "err", err)
		return errors.Wrap(err, "failed to commit batch")
	}
	for k, v := range tx.dirty {
		if v == nil {
			s.cache.Remove(k)
		} else {
			s.cache.Add(k, v)
		}
	}
	s.log.Trace("Committed batch", "keys", len(tx.dirty), "size", tx.batch.ValueSize())
	return nil
}

// committed reads through the cache into the database.
type committed struct {
	s *Store
}

func (c committed) Get(key []byte) ([]byte, error) {
	if v, ok := c.s.cache.Get(string(key)); ok {
		return copyBytes(v.([]byte)), nil
	}
	has, err := c.s.db.Has(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check key")
	}
	if !has {
		return nil, ErrNotFound
	}
	v, err := c.s.db.Get(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get value")
	}
	c.s.cache.Add(string(key), copyBytes(v))
	return v, nil
}

func (c committed) Has(key []byte) (bool, error) {
	if c.s.cache.Contains(string(key)) {
		return true, nil
	}
	return c.s.db.Has(key)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
