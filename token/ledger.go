// Package token is a minimal fungible token ledger. Its escrow account holds
// every token bonded in the delegation ledger.
package token

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/videocoin/go-bonding/store"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientEscrow    = errors.New("insufficient escrow")
	ErrNegativeAmount        = errors.New("negative amount")
)

const (
	bucketBalance   = "tok/b/"
	bucketAllowance = "tok/a/"
)

var keySupply = []byte("tok/supply")

// Ledger keeps balances and allowances in a store. Methods taking a
// store.ReadWriter join the caller's transaction; the rest run their own.
type Ledger struct {
	db     *store.Store
	escrow common.Address
	log    log.Logger
}

func New(db *store.Store, escrow common.Address) *Ledger {
	return &Ledger{
		db:     db,
		escrow: escrow,
		log:    log.New("pkg", "token"),
	}
}

// Escrow returns the account holding bonded tokens.
func (l *Ledger) Escrow() common.Address {
	return l.escrow
}

func (l *Ledger) BalanceOf(address common.Address) (balance *big.Int, err error) {
	err = l.db.View(func(r store.Reader) error {
		balance, err = getAmount(r, balanceKey(address))
		return err
	})
	return balance, err
}

func (l *Ledger) Allowance(owner, spender common.Address) (allowance *big.Int, err error) {
	err = l.db.View(func(r store.Reader) error {
		allowance, err = getAmount(r, allowanceKey(owner, spender))
		return err
	})
	return allowance, err
}

func (l *Ledger) TotalSupply() (supply *big.Int, err error) {
	err = l.db.View(func(r store.Reader) error {
		supply, err = getAmount(r, keySupply)
		return err
	})
	return supply, err
}

// EscrowBalance returns the escrow account balance.
func (l *Ledger) EscrowBalance() (*big.Int, error) {
	return l.BalanceOf(l.escrow)
}

// Mint creates amount new tokens for to.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return l.db.Update(func(tx *store.Tx) error {
		if err := addAmount(tx, balanceKey(to), amount); err != nil {
			return err
		}
		return addAmount(tx, keySupply, amount)
	})
}

// Approve sets the amount spender may pull from owner.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return l.db.Update(func(tx *store.Tx) error {
		return putAmount(tx, allowanceKey(owner, spender), amount)
	})
}

func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	return l.db.Update(func(tx *store.Tx) error {
		return move(tx, from, to, amount, ErrInsufficientFunds)
	})
}

// TransferIn pulls amount from the owner into escrow using the allowance
// owner granted to the escrow account.
func (l *Ledger) TransferIn(rw store.ReadWriter, from common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	key := allowanceKey(from, l.escrow)
	allowance, err := getAmount(rw, key)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientAllowance, "allowance %v, need %v", allowance, amount)
	}
	if err := move(rw, from, l.escrow, amount, ErrInsufficientFunds); err != nil {
		return err
	}
	return putAmount(rw, key, allowance.Sub(allowance, amount))
}

// TransferOut pays amount from escrow to the recipient.
func (l *Ledger) TransferOut(rw store.ReadWriter, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	if err := move(rw, l.escrow, to, amount, ErrInsufficientEscrow); err != nil {
		l.log.Error("Escrow transfer failed", "to", to, "amount", amount, "err", err)
		return err
	}
	return nil
}

func move(rw store.ReadWriter, from, to common.Address, amount *big.Int, shortfall error) error {
	fromKey := balanceKey(from)
	balance, err := getAmount(rw, fromKey)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return errors.Wrapf(shortfall, "balance %v, need %v", balance, amount)
	}
	if err := putAmount(rw, fromKey, balance.Sub(balance, amount)); err != nil {
		return err
	}
	return addAmount(rw, balanceKey(to), amount)
}

func balanceKey(address common.Address) []byte {
	return store.Key(bucketBalance, address.Bytes())
}

func allowanceKey(owner, spender common.Address) []byte {
	return store.Key(bucketAllowance, append(owner.Bytes(), spender.Bytes()...))
}

func getAmount(r store.Reader, key []byte) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := store.GetRLP(r, key, amount); err != nil {
		return nil, errors.Wrap(err, "failed to get amount")
	}
	return amount, nil
}

func putAmount(w store.Writer, key []byte, amount *big.Int) error {
	if err := store.PutRLP(w, key, amount); err != nil {
		return errors.Wrap(err, "failed to put amount")
	}
	return nil
}

func addAmount(rw store.ReadWriter, key []byte, amount *big.Int) error {
	current, err := getAmount(rw, key)
	if err != nil {
		return err
	}
	return putAmount(rw, key, current.Add(current, amount))
}
