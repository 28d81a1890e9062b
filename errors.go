package bonding

import "github.com/pkg/errors"

var (
	ErrInsufficientAllowanceOrBalance = errors.New("insufficient allowance or balance")
	ErrInvalidSelfDelegation          = errors.New("registered transcoder can only bond to itself")
	ErrNotSelfBonded                  = errors.New("transcoder must be self bonded")
	ErrUnbondingPeriodNotElapsed      = errors.New("unbonding period not elapsed")
	ErrNoActiveDelegation             = errors.New("no active delegation")
	ErrInvalidDelegate                = errors.New("delegate must not be the null address")
	ErrNothingToBond                  = errors.New("nothing to bond")
	ErrNegativeAmount                 = errors.New("negative amount")
	ErrRoundNotInitialized            = errors.New("current round is not initialized")
	ErrTranscoderIndex                = errors.New("transcoder index out of range")
	ErrZeroUnbondingPeriod            = errors.New("unbonding period must be positive")
	ErrNoRoundNotifier                = errors.New("client has no round notifier")
	ErrRoundFeedClosed                = errors.New("round feed closed")

	// ErrEscrowInvariant and ErrDelegatedInvariant mean the ledger state is
	// inconsistent. They are never caused by the caller.
	ErrEscrowInvariant    = errors.New("escrow does not cover bonded stake")
	ErrDelegatedInvariant = errors.New("delegated amount underflow")
)

// IsFatal reports whether err is an internal consistency fault rather than
// a rejection of the call.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEscrowInvariant) || errors.Is(err, ErrDelegatedInvariant)
}
