package math

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// BasisPoints is the denominator of fee rates expressed in basis points.
var BasisPoints = big.NewInt(10_000)

// Clone returns a copy of x. A nil x clones to zero.
func Clone(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// CloneAll copies every element of xs.
func CloneAll(xs []*big.Int) []*big.Int {
	out := make([]*big.Int, len(xs))
	for i, x := range xs {
		out[i] = Clone(x)
	}
	return out
}

// IsPositive reports whether x is non-nil and greater than zero.
func IsPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// Min returns a copy of the smaller of x and y.
func Min(x, y *big.Int) *big.Int {
	if x.Cmp(y) <= 0 {
		return Clone(x)
	}
	return Clone(y)
}

// Sum adds every element of xs.
func Sum(xs []*big.Int) *big.Int {
	total := new(big.Int)
	for _, x := range xs {
		if x != nil {
			total.Add(total, x)
		}
	}
	return total
}

// FeeFromBasisPoints calculates amount * bps / 10000, rounding down.
func FeeFromBasisPoints(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return fee.Div(fee, BasisPoints)
}

// ToFloat converts x to a float64 for metrics, losing precision past 2^53.
func ToFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

// ParseAmount parses a non-negative integer amount in base units. Besides
// plain decimals it accepts "0x" hex and "<int>e<exp>" such as "4e18".
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	amount := new(big.Int)
	var ok bool
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		_, ok = amount.SetString(s[2:], 16)
	case strings.ContainsAny(s, "eE"):
		mantissa, exponent, _ := strings.Cut(strings.ToLower(s), "e")
		exp, err := strconv.ParseUint(exponent, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid exponent in %q", s)
		}
		if _, ok = amount.SetString(mantissa, 10); ok {
			amount.Mul(amount, new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(exp), nil))
		}
	default:
		_, ok = amount.SetString(s, 10)
	}
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	return amount, nil
}
