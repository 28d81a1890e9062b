package testtools

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	bonding "github.com/videocoin/go-bonding"
	"github.com/videocoin/go-bonding/rounds"
	"github.com/videocoin/go-bonding/store"
	"github.com/videocoin/go-bonding/token"
)

const (
	// RoundLength and UnbondingPeriod match the defaults of bonding.Config.
	RoundLength     uint64 = 50
	UnbondingPeriod uint64 = 2
)

func DefaultNode() *Node {
	return new(Node).WithDefaultConfig()
}

// DefaultConfig keeps all state in memory.
func DefaultConfig() bonding.Config {
	return bonding.Config{
		UnbondingPeriod: UnbondingPeriod,
		RoundLength:     RoundLength,
		Escrow:          common.Address{0xe5, 0xc0},
		RecordCache:     256,
	}
}

// Node wires a store, a round manager, a token ledger and a bonding engine.
type Node struct {
	config  bonding.Config
	options []bonding.Option

	mu     sync.Mutex
	db     *store.Store
	rounds *rounds.Manager
	ledger *token.Ledger
	engine *bonding.Engine
}

func (n *Node) WithConfig(config bonding.Config) *Node {
	n.config = config
	return n
}

func (n *Node) WithDefaultConfig() *Node {
	n.config = DefaultConfig()
	return n
}

func (n *Node) WithOptions(opts ...bonding.Option) *Node {
	n.options = append(n.options, opts...)
	return n
}

// Start opens the store and positions the clock far enough from genesis
// that early rounds never collide with zero valued round fields.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.engine != nil {
		return errors.New("node already running")
	}
	db, err := n.config.OpenStore()
	if err != nil {
		return err
	}
	manager, err := rounds.NewManager(n.config.RoundLength, n.config.RoundLength*1000)
	if err != nil {
		db.Close()
		return err
	}
	ledger := token.New(db, n.config.Escrow)
	engine, err := bonding.NewEngine(db, manager, ledger, n.config.UnbondingPeriod, n.options...)
	if err != nil {
		manager.Close()
		db.Close()
		return err
	}
	n.db = db
	n.rounds = manager
	n.ledger = ledger
	n.engine = engine
	return nil
}

func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.engine == nil {
		return errors.New("node not running")
	}
	n.engine.Close()
	n.rounds.Close()
	err := n.db.Close()
	n.engine = nil
	return err
}

func (n *Node) Engine() *bonding.Engine {
	return n.engine
}

func (n *Node) Rounds() *rounds.Manager {
	return n.rounds
}

func (n *Node) Ledger() *token.Ledger {
	return n.ledger
}

func (n *Node) Store() *store.Store {
	return n.db
}

func (n *Node) Client() *bonding.Client {
	return bonding.NewClient(n.engine, n.rounds)
}

func (n *Node) FaucetService() Faucet {
	return NewFaucet(n.ledger)
}

// NextRound mines to the start of the next round and initializes it.
func (n *Node) NextRound() error {
	return n.AdvanceRounds(1)
}

// AdvanceRounds mines count full rounds and initializes the round reached.
func (n *Node) AdvanceRounds(count uint64) error {
	n.rounds.MineBlocks(count * n.rounds.RoundLength())
	return n.rounds.InitializeRound()
}

// Approve lets the escrow pull amount from owner, the step a delegator takes
// before bonding new tokens.
func (n *Node) Approve(owner common.Address, amount *big.Int) error {
	return n.ledger.Approve(owner, n.ledger.Escrow(), amount)
}

// Bond approves and bonds in one step.
func (n *Node) Bond(ctx context.Context, caller common.Address, amount *big.Int, to common.Address) error {
	if amount.Sign() > 0 {
		if err := n.Approve(caller, amount); err != nil {
			return err
		}
	}
	return n.engine.Bond(ctx, caller, amount, to)
}
