package parser

import "testing"

func TestGuessTankUnitMetric(t *testing.T) {
	got := GuessTankUnit(12.0, 200)
	if got != 12.0 {
		t.Errorf("GuessTankUnit(12.0) = %v, want 12.0 (integral -> metric)", got)
	}
}

func TestGuessTankUnitImperial(t *testing.T) {
	got := GuessTankUnit(80.3, 200)
	want := 80.3 * cubicFeetToLiters
	if got != want {
		t.Errorf("GuessTankUnit(80.3) = %v, want %v (non-integral -> imperial)", got, want)
	}
}

func TestGuessTankUnitNoWorkPressure(t *testing.T) {
	got := GuessTankUnit(80.3, 0)
	if got != 80.3 {
		t.Errorf("GuessTankUnit with no workpressure = %v, want unchanged 80.3", got)
	}
}

func TestDisambiguateYear(t *testing.T) {
	cases := []struct {
		recovered, host, want int
	}{
		{1, 2023, 2021},    // digit 1 <= host's 3 -> current decade 2020s
		{8, 2023, 2018},    // digit 8 > host's 3 -> decrement to 2010s
		{2029, 2023, 2029}, // already a full year: untouched
	}
	for _, c := range cases {
		got := DisambiguateYear(c.recovered, c.host)
		if got != c.want {
			t.Errorf("DisambiguateYear(%d, host=%d) = %d, want %d", c.recovered, c.host, got, c.want)
		}
	}
}

func TestNormalizeEventUnknown(t *testing.T) {
	if NormalizeEvent("Some Unknown Vendor String") != 0 {
		t.Error("unknown event string should normalize to EventNone (zero value)")
	}
}

func TestBaseLazyFieldCache(t *testing.T) {
	calls := 0
	b := NewBase([]byte{1, 2, 3}, 0, func(b *Base) error {
		calls++
		b.SetField(DiveTime, 42)
		return nil
	})
	v, err := b.GetField(DiveTime, 0)
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("GetField(DiveTime) = %v, want 42", v)
	}
	if _, err := b.GetField(MaxDepth, 0); err == nil {
		t.Error("expected Unsupported for a field the parse pass never set")
	}
	b.GetDatetime()
	if calls != 1 {
		t.Errorf("parse pass ran %d times, want exactly 1 (lazy, cached)", calls)
	}
}
