package x402

import (
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.00", "2000000"},
		{"2.5", "2500000"},
		{"0.000001", "1"},
		{"0", "0"},
		{"10", "10000000"},
		{".5", "500000"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, 6)
		if err != nil {
			t.Errorf("ParseUnits(%q): %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseUnits(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseUnits_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2345678", "-1.00", "1.2.3"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Errorf("ParseUnits(%q): expected error", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{2_000_000, "2"},
		{2_500_000, "2.5"},
		{1, "0.000001"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := FormatUnits(big.NewInt(tc.in), 6); got != tc.want {
			t.Errorf("FormatUnits(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseFormat_RoundTrip(t *testing.T) {
	units, err := ParseUnits("123.456789", 6)
	if err != nil {
		t.Fatal(err)
	}
	if got := FormatUnits(units, 6); got != "123.456789" {
		t.Errorf("round trip = %q", got)
	}
}

func TestChainID(t *testing.T) {
	id, err := ChainID("eip155:8453")
	if err != nil {
		t.Fatal(err)
	}
	if id.Int64() != 8453 {
		t.Errorf("chain id = %d", id.Int64())
	}
}

func TestChainID_Rejects(t *testing.T) {
	for _, in := range []string{"base", "solana:mainnet", "eip155:", "eip155:abc"} {
		if _, err := ChainID(in); err == nil {
			t.Errorf("ChainID(%q): expected error", in)
		}
	}
}
