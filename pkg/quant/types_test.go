package quant

import "testing"

func TestToPrice4(t *testing.T) {
	t.Run("whole price", func(t *testing.T) {
		if got := ToPrice4(2345.0); got != 23450000 {
			t.Errorf("expected 23450000, got %d", got)
		}
	})

	t.Run("half tick", func(t *testing.T) {
		if got := ToPrice4(2345.5); got != 23455000 {
			t.Errorf("expected 23455000, got %d", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		p := ToPrice4(99.25)
		if p.Float() != 99.25 {
			t.Errorf("expected 99.25, got %f", p.Float())
		}
	})
}

func TestPrice4_String(t *testing.T) {
	cases := []struct {
		p    Price4
		want string
	}{
		{ToPrice4(100.0), "100"},
		{ToPrice4(101.5), "101.5"},
		{Price4(12345), "1.2345"},
		{Price4(10050), "1.005"},
		{Price4(-23455000), "-2345.5"},
		{Price4(0), "0"},
		// Beyond float64's exact integer range; must not round.
		{Price4(90071992547409931), "9007199254740.9931"},
	}
	for _, tc := range cases {
		if got := tc.p.String(); got != tc.want {
			t.Errorf("Price4(%d).String() = %q, want %q", int64(tc.p), got, tc.want)
		}
	}
}

func TestParseTimeStamp(t *testing.T) {
	ts, err := ParseTimeStamp("1700000000000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 1700000000000000 {
		t.Errorf("expected micros, got %d", ts)
	}

	if _, err := ParseTimeStamp("not-a-number"); err == nil {
		t.Error("expected error for garbage input")
	}
}
