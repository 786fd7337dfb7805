package fixed

import "testing"

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1234", "1234"},
		{"1234.56", "1234.56"},
		{"-1234.56", "-1234.56"},
		{"0.001", "0.001"},
		{".5", "0.5"},
		{"10.00", "10.00"}, // trailing zeros preserved
		{"+42.1", "42.1"},
	}

	for _, c := range cases {
		d, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got := d.String(); got != c.want {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "12a", "-", "."} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in     string
		places int
		want   string
	}{
		{"9999999.995", 2, "10000000.00"},
		{"1.005", 2, "1.01"},
		{"1.004", 2, "1.00"},
		{"2.5", 0, "3"},
		{"-2.5", 0, "-3"}, // half away from zero
		{"-1.005", 2, "-1.01"},
		{"7", 2, "7.00"}, // padding
		{"0.1", 4, "0.1000"},
	}

	for _, c := range cases {
		got := MustParse(c.in).Round(c.places).String()
		if got != c.want {
			t.Errorf("Round(%q, %d) = %q, want %q", c.in, c.places, got, c.want)
		}
	}
}

func TestCmpAcrossScales(t *testing.T) {
	if !MustParse("1.50").Equal(MustParse("1.5")) {
		t.Error("1.50 should equal 1.5")
	}
	if MustParse("1.51").Cmp(MustParse("1.5")) <= 0 {
		t.Error("1.51 should be greater than 1.5")
	}
	if MustParse("-0.01").Cmp(Zero(2)) >= 0 {
		t.Error("-0.01 should be less than zero")
	}
}

func TestAdd(t *testing.T) {
	got := MustParse("1.25").Add(MustParse("0.755")).String()
	if got != "2.005" {
		t.Errorf("1.25 + 0.755 = %q, want 2.005", got)
	}
	got = MustParse("10").Add(MustParse("-10.00")).String()
	if got != "0.00" {
		t.Errorf("10 + -10.00 = %q, want 0.00", got)
	}
}

func TestNoFloatDrift(t *testing.T) {
	// The classic float trap: 0.1 + 0.2 must be exactly 0.3.
	got := MustParse("0.1").Add(MustParse("0.2"))
	if !got.Equal(MustParse("0.3")) {
		t.Errorf("0.1 + 0.2 = %q, want 0.3", got)
	}
}
