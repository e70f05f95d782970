package clock

import (
	"testing"
	"time"
)

func TestRealClockUsesLedgerZone(t *testing.T) {
	now := RealClock{}.Now()
	_, offset := now.Zone()
	if offset != -3*60*60 {
		t.Fatalf("offset = %d seconds, want -10800", offset)
	}
}

func TestLedgerZoneHasNoDST(t *testing.T) {
	winter := time.Date(2025, 1, 15, 12, 0, 0, 0, LedgerZone)
	summer := time.Date(2025, 7, 15, 12, 0, 0, 0, LedgerZone)
	_, w := winter.Zone()
	_, s := summer.Zone()
	if w != s {
		t.Fatalf("offset changed across the year: %d vs %d", w, s)
	}
}
