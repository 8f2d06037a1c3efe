package money

import (
	"encoding/json"
	"testing"
)

func TestParseAndString(t *testing.T) {
	cases := map[string]string{
		"1000.00": "1000.00",
		"10":      "10.00",
		"0.1":     "0.10",
		"0.005":   "0.01",
		"-5.50":   "-5.50",
		"+1.23":   "1.23",
		"0.999":   "1.00",
		"9.999":   "10.00",
		"-0.999":  "-1.00",
	}
	for in, want := range cases {
		a, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := a.String(); got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1e10"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error", in)
		}
	}
}

func TestOutOfRange(t *testing.T) {
	if _, err := FromCents(MaxCents + 1); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestAddSub(t *testing.T) {
	a, _ := Parse("100.00")
	b, _ := Parse("50.25")
	sum, err := a.Add(b)
	if err != nil || sum.String() != "150.25" {
		t.Fatalf("Add = %v, %v", sum, err)
	}
	diff, err := a.Sub(b)
	if err != nil || diff.String() != "49.75" {
		t.Fatalf("Sub = %v, %v", diff, err)
	}
}

func TestAllocateBpsSumsExactly(t *testing.T) {
	total, _ := Parse("100.01")
	shares, err := AllocateBps(total, []uint32{7000, 3000})
	if err != nil {
		t.Fatalf("AllocateBps: %v", err)
	}
	var sum int64
	for _, s := range shares {
		sum += s.Cents()
	}
	if sum != total.Cents() {
		t.Fatalf("shares do not sum to total: %d != %d", sum, total.Cents())
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, _ := Parse("-12.05")
	raw, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `"-12.05"` {
		t.Fatalf("Marshal = %s, want \"-12.05\"", raw)
	}
	var b Amount
	if err := json.Unmarshal(raw, &b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if b.Cents() != a.Cents() {
		t.Fatalf("round trip mismatch: %v != %v", b, a)
	}
}

func TestCurrencyValid(t *testing.T) {
	if !BBD.Valid() || !USD.Valid() {
		t.Fatal("BBD/USD should be valid")
	}
	if Currency("EUR").Valid() {
		t.Fatal("EUR should not be valid")
	}
}
