package bonding

import "github.com/ethereum/go-ethereum/metrics"

var (
	bondMeter     = metrics.NewRegisteredMeter("bonding/bond", nil)
	unbondMeter   = metrics.NewRegisteredMeter("bonding/unbond", nil)
	withdrawMeter = metrics.NewRegisteredMeter("bonding/withdraw", nil)
	registerMeter = metrics.NewRegisteredMeter("bonding/register", nil)
	rejectMeter   = metrics.NewRegisteredMeter("bonding/rejected", nil)
	faultCounter  = metrics.NewRegisteredCounter("bonding/faults", nil)
)
