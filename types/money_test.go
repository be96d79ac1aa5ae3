package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(3) }, USD(300)},
		{"Percent", func() Money { return USD(50000).Percent(50) }, USD(25000)},
		{"Percent rounds down", func() Money { return USD(99).Percent(50) }, USD(49)},
		{"Bps", func() Money { return USD(100).Bps(8000) }, USD(80)},
		{"Bps rounds down", func() Money { return USD(7).Bps(1500) }, USD(1)},
		{"Min", func() Money { return USD(5).Min(USD(3)) }, USD(3)},
		{"Max", func() Money { return USD(5).Max(USD(3)) }, USD(5)},
		{"New lowercases", func() Money { return New(10, "USD") }, USD(10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneySplitBps(t *testing.T) {
	tests := []struct {
		name    string
		fee     int64
		weights []int64
		want    []int64
	}{
		{"even", 100, []int64{8000, 1500, 500}, []int64{80, 15, 5}},
		{"remainder to last", 7, []int64{8000, 1500, 500}, []int64{5, 1, 1}},
		{"one unit", 1, []int64{8000, 1500, 500}, []int64{0, 0, 1}},
		{"zero", 0, []int64{8000, 1500, 500}, []int64{0, 0, 0}},
		{"single weight", 33, []int64{10000}, []int64{33}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := USD(tt.fee).SplitBps(tt.weights...)
			if len(shares) != len(tt.want) {
				t.Fatalf("len: got %d, want %d", len(shares), len(tt.want))
			}
			var total int64
			for i, s := range shares {
				if s.Amount != tt.want[i] {
					t.Errorf("share %d: got %d, want %d", i, s.Amount, tt.want[i])
				}
				total += s.Amount
			}
			if total != tt.fee {
				t.Errorf("shares sum to %d, want %d", total, tt.fee)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(New(100, "eur"))
}

func TestMoneyScalingNearLimits(t *testing.T) {
	const max = int64(9223372036854775807)
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Bps above 6e15", func() Money { return USD(7_000_000_000_000_000).Bps(500) }, USD(350_000_000_000_000)},
		{"Bps of MaxAmount", func() Money { return USD(MaxAmount).Bps(10000) }, USD(MaxAmount)},
		{"Bps of int64 max", func() Money { return USD(max).Bps(10000) }, USD(max)},
		{"Bps of int64 max rounds down", func() Money { return USD(max).Bps(1) }, USD(922337203685477)},
		{"Percent of int64 max", func() Money { return USD(max).Percent(50) }, USD(4611686018427387903)},
		{"Bps of negative", func() Money { return USD(-7_000_000_000_000_000).Bps(500) }, USD(-350_000_000_000_000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
			if result.IsNegative() != tt.expected.IsNegative() {
				t.Errorf("sign flipped: %v", result)
			}
		})
	}
}

func TestMoneyScalingOverflowPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when the scaled amount exceeds int64")
		}
	}()

	_ = USD(9223372036854775807).Bps(20000)
}

func TestMoneyComparisons(t *testing.T) {
	if !USD(1).LessThan(USD(2)) {
		t.Error("1 should be less than 2")
	}
	if !USD(2).GreaterThan(USD(1)) {
		t.Error("2 should be greater than 1")
	}
	if !Zero("usd").IsZero() || USD(1).IsZero() {
		t.Error("IsZero mismatch")
	}
	if !USD(-1).IsNegative() || !USD(1).IsPositive() {
		t.Error("sign predicates mismatch")
	}
	if USD(1).SameCurrency(New(1, "eur")) {
		t.Error("usd and eur reported as same currency")
	}
}

func TestMoneyFormatting(t *testing.T) {
	tests := []struct {
		money Money
		want  string
	}{
		{USD(4900), "49.00 usd"},
		{USD(5), "0.05 usd"},
		{USD(-150), "-1.50 usd"},
		{Zero("eur"), "0.00 eur"},
	}
	for _, tt := range tests {
		if got := tt.money.String(); got != tt.want {
			t.Errorf("String(%d): got %q, want %q", tt.money.Amount, got, tt.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(1250))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if out["display"] != "12.50 usd" {
		t.Errorf("display: got %v", out["display"])
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal into Money: %v", err)
	}
	if !back.Equal(USD(1250)) {
		t.Errorf("round trip: got %v", back)
	}
}

func TestSum(t *testing.T) {
	if got := Sum("usd"); !got.Equal(Zero("usd")) {
		t.Errorf("empty sum: got %v", got)
	}
	if got := Sum("usd", USD(1), USD(2), USD(3)); !got.Equal(USD(6)) {
		t.Errorf("sum: got %v", got)
	}
}
