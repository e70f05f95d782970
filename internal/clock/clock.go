// Package clock provides an injectable time source so components that stamp
// records can be tested deterministically.
package clock

import "time"

// LedgerZone is the fixed offset every persisted timestamp is recorded in.
// The ledger uses -03:00 with no daylight-saving adjustment so that audit
// timestamps compare consistently regardless of server locale.
var LedgerZone = time.FixedZone("UTC-3", -3*60*60)

// Clock allows deterministic time behavior in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock and converts it to the ledger zone.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().In(LedgerZone)
}
