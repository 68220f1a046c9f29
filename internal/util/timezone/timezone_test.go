package timezone

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestInitializeFallsBackToUTC(t *testing.T) {
	Initialize("Mars/Olympus_Mons")
	if Location() != time.UTC {
		t.Errorf("location = %s, want UTC", Location())
	}
}

func TestISO8601UsesConfiguredZone(t *testing.T) {
	Initialize("Europe/Berlin")
	defer Initialize("UTC")

	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if got := ISO8601(ts); got != "2024-01-15T13:00:00+01:00" {
		t.Errorf("ISO8601 = %s", got)
	}
}
