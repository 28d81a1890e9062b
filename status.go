package bonding

// DelegatorStatusAt derives the status of d as of round. It reads nothing but
// its arguments.
func DelegatorStatusAt(d Delegator, round uint64) DelegatorStatus {
	switch {
	case d.StartRound != 0 && d.StartRound > round:
		return DelegatorPending
	case d.Delegating():
		return DelegatorBonded
	case d.WithdrawRound != 0:
		return DelegatorUnbonding
	default:
		return DelegatorUnbonded
	}
}

// Withdrawable reports whether the unbonding wait of d is over at round.
func Withdrawable(d Delegator, round uint64) bool {
	return d.WithdrawRound != 0 && round >= d.WithdrawRound
}
