// Package rounds derives protocol rounds from a block counter.
package rounds

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

var (
	ErrZeroRoundLength  = errors.New("round length must be positive")
	ErrRoundInitialized = errors.New("current round already initialized")
)

// NewRoundEvent is sent when a round is initialized.
type NewRoundEvent struct {
	Round      uint64
	StartBlock uint64
}

// Manager is an adjustable round clock: blocks are advanced explicitly and a
// round becomes usable once InitializeRound is called for it.
type Manager struct {
	mu                   sync.RWMutex
	blockNum             uint64
	roundLength          uint64
	lastInitializedRound uint64

	feed  event.Feed
	scope event.SubscriptionScope
	log   log.Logger
}

func NewManager(roundLength, blockNum uint64) (*Manager, error) {
	if roundLength == 0 {
		return nil, ErrZeroRoundLength
	}
	return &Manager{
		blockNum:             blockNum,
		roundLength:          roundLength,
		lastInitializedRound: blockNum / roundLength,
		log:                  log.New("pkg", "rounds"),
	}, nil
}

func (m *Manager) BlockNum() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockNum
}

// MineBlocks advances the block counter by n.
func (m *Manager) MineBlocks(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockNum += n
}

// SetBlockNum moves the block counter to num. The counter never goes back.
func (m *Manager) SetBlockNum(num uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if num > m.blockNum {
		m.blockNum = num
	}
}

func (m *Manager) RoundLength() uint64 {
	return m.roundLength
}

func (m *Manager) CurrentRound() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockNum / m.roundLength
}

func (m *Manager) CurrentRoundStartBlock() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockNum / m.roundLength * m.roundLength
}

func (m *Manager) LastInitializedRound() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInitializedRound
}

func (m *Manager) CurrentRoundInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInitializedRound == m.blockNum/m.roundLength
}

// InitializeRound marks the current round as initialized and notifies
// subscribers. Rounds skipped in between are never initialized.
func (m *Manager) InitializeRound() error {
	m.mu.Lock()
	round := m.blockNum / m.roundLength
	if m.lastInitializedRound == round {
		m.mu.Unlock()
		return ErrRoundInitialized
	}
	m.lastInitializedRound = round
	ev := NewRoundEvent{Round: round, StartBlock: round * m.roundLength}
	m.mu.Unlock()

	m.log.Debug("Initialized round", "round", ev.Round, "start", ev.StartBlock)
	m.feed.Send(ev)
	return nil
}

// SubscribeNewRound registers ch for NewRoundEvent notifications.
func (m *Manager) SubscribeNewRound(ch chan<- NewRoundEvent) event.Subscription {
	return m.scope.Track(m.feed.Subscribe(ch))
}

// Close unsubscribes every subscriber.
func (m *Manager) Close() {
	m.scope.Close()
}
