package repository

import "testing"

func TestParseTableKind(t *testing.T) {
	if k, err := ParseTableKind("bars"); err != nil || k != KindBars {
		t.Fatalf("expected bars, got %q err=%v", k, err)
	}
	if _, err := ParseTableKind("ticks"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestNormalizeInterval(t *testing.T) {
	cases := []struct {
		table, raw, want string
	}{
		{"ohlcv_daily", "", "1/day"},
		{"ohlcv_5min", "", "5/minute"},
		{"ohlcv_hourly", "1/hour", "1/hour"},
	}
	for _, c := range cases {
		got, err := NormalizeInterval(c.table, c.raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.table, err)
		}
		if got.String() != c.want {
			t.Fatalf("%s: expected %s, got %s", c.table, c.want, got)
		}
	}
	for _, bad := range []string{"day", "0/day", "x/day", "1/fortnight"} {
		if _, err := ParseInterval(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
