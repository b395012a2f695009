package x402

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// USDCDecimals is the decimal count of USDC on every EVM chain.
const USDCDecimals = 6

// ParseUnits converts a human decimal amount ("2.50") into smallest units
// ("2500000" for 6 decimals). Amounts are kept as integers end to end to
// avoid floating-point ambiguity on the wire.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	if whole == "" {
		whole = "0"
	}
	units, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if units.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	return units, nil
}

// FormatUnits converts smallest units back to a human decimal string,
// trimming trailing fractional zeros.
func FormatUnits(units *big.Int, decimals int) string {
	s := units.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole, frac := s[:len(s)-decimals], s[len(s)-decimals:]
	frac = strings.TrimRight(frac, "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ChainID extracts the numeric chain ID from a CAIP-2 network identifier
// such as "eip155:8453".
func ChainID(network string) (*big.Int, error) {
	ns, ref, ok := strings.Cut(network, ":")
	if !ok || ns != "eip155" {
		return nil, fmt.Errorf("unsupported network %q (want eip155:<chainId>)", network)
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id in network %q: %w", network, err)
	}
	return big.NewInt(id), nil
}
