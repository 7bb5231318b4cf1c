package money

import "testing"

func TestParsePositive(t *testing.T) {
	a, err := ParsePositive("100.50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.String() != "100.5000" {
		t.Fatalf("got %s", a.String())
	}
	if a.EventString() != "100.50" {
		t.Fatalf("got %s", a.EventString())
	}
}

func TestParsePositive_RejectsZeroAndNegative(t *testing.T) {
	if _, err := ParsePositive("0"); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := ParsePositive("-5.00"); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestParsePositive_RejectsTooManyFractionalDigits(t *testing.T) {
	if _, err := ParsePositive("1.23456"); err != ErrTooManyFractionalDigits {
		t.Fatalf("expected ErrTooManyFractionalDigits, got %v", err)
	}
}

func TestParsePositive_RejectsMalformed(t *testing.T) {
	if _, err := ParsePositive("not-a-number"); err == nil {
		t.Fatalf("expected malformed error")
	}
}

func TestAddSub(t *testing.T) {
	a, _ := Parse("100.0000")
	b, _ := Parse("30.0000")
	if got := a.Sub(b); got.String() != "70.0000" {
		t.Fatalf("got %s", got.String())
	}
	if got := a.Add(b); got.String() != "130.0000" {
		t.Fatalf("got %s", got.String())
	}
}

func TestComparisons(t *testing.T) {
	a, _ := Parse("10.0000")
	b, _ := Parse("20.0000")
	if !a.LessThan(b) || b.LessThan(a) {
		t.Fatalf("LessThan broken")
	}
	if !b.GreaterThan(a) {
		t.Fatalf("GreaterThan broken")
	}
	if !a.Equal(a) {
		t.Fatalf("Equal broken")
	}
}

func TestFromScaledRoundTrip(t *testing.T) {
	a := FromScaled(1005000)
	if a.String() != "100.5000" {
		t.Fatalf("got %s", a.String())
	}
}
