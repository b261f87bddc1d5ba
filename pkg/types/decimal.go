package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// sign is the sentinel state of a Decimal: 0 for a finite rational value,
// +1/-1 for +Inf/-Inf. Concrete allocations must never carry a non-zero
// sign; only policy limits may.
type sign int8

const (
	signFinite sign = 0
	signPosInf sign = 1
	signNegInf sign = -1
)

// Decimal is an exact-precision, possibly-infinite resource quantity.
// The zero value is the finite decimal 0.
type Decimal struct {
	inf sign
	rat *big.Rat
}

// Zero is the finite decimal 0.
var Zero = Decimal{rat: new(big.Rat)}

// PosInf and NegInf are the two infinite sentinels legal in policy limits.
var PosInf = Decimal{inf: signPosInf}
var NegInf = Decimal{inf: signNegInf}

// NewDecimalInt builds a finite Decimal from an int64.
func NewDecimalInt(v int64) Decimal {
	return Decimal{rat: new(big.Rat).SetInt64(v)}
}

// ParseDecimal parses the raw decimal-string wire format used for
// ResourceSlot serialisation: an integer or decimal literal, or the
// literals "Infinity" / "-Infinity" (accepting the shorthand "inf"/"-inf"
// and the unicode glyphs "∞"/"-∞" for policy-limit configuration files).
func ParseDecimal(s string) (Decimal, error) {
	switch strings.TrimSpace(s) {
	case "Infinity", "inf", "+inf", "∞", "+∞":
		return PosInf, nil
	case "-Infinity", "-inf", "-∞":
		return NegInf, nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Decimal{}, fmt.Errorf("invalid decimal literal %q", s)
	}
	return Decimal{rat: r}, nil
}

// MustDecimal parses s and panics on error; for use with literal constants.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsInfinite reports whether d is +Inf or -Inf.
func (d Decimal) IsInfinite() bool {
	return d.inf != signFinite
}

// IsZero reports whether d is the finite value 0.
func (d Decimal) IsZero() bool {
	return d.inf == signFinite && (d.rat == nil || d.rat.Sign() == 0)
}

func (d Decimal) ratOrZero() *big.Rat {
	if d.rat == nil {
		return new(big.Rat)
	}
	return d.rat
}

// Add returns d + other. Adding opposite infinities is a programmer error
// in this domain (it never occurs for concrete allocations) and returns
// the finite zero rather than panicking.
func (d Decimal) Add(other Decimal) Decimal {
	if d.inf != signFinite || other.inf != signFinite {
		if d.inf != signFinite && other.inf != signFinite && d.inf != other.inf {
			return Zero
		}
		if d.inf != signFinite {
			return Decimal{inf: d.inf}
		}
		return Decimal{inf: other.inf}
	}
	return Decimal{rat: new(big.Rat).Add(d.ratOrZero(), other.ratOrZero())}
}

// Sub returns d - other.
func (d Decimal) Sub(other Decimal) Decimal {
	return d.Add(other.Negate())
}

// Negate returns -d.
func (d Decimal) Negate() Decimal {
	switch d.inf {
	case signPosInf:
		return NegInf
	case signNegInf:
		return PosInf
	default:
		return Decimal{rat: new(big.Rat).Neg(d.ratOrZero())}
	}
}

// Cmp returns -1, 0 or +1 as d is less than, equal to, or greater than other.
func (d Decimal) Cmp(other Decimal) int {
	if d.inf != other.inf {
		return int(d.inf) - int(other.inf)
	}
	if d.inf != signFinite {
		return 0
	}
	return d.ratOrZero().Cmp(other.ratOrZero())
}

// LessOrEqual reports whether d <= other.
func (d Decimal) LessOrEqual(other Decimal) bool { return d.Cmp(other) <= 0 }

// LessThan reports whether d < other.
func (d Decimal) LessThan(other Decimal) bool { return d.Cmp(other) < 0 }

// GreaterThan reports whether d > other.
func (d Decimal) GreaterThan(other Decimal) bool { return d.Cmp(other) > 0 }

// Mul returns d * other. Infinite operands propagate; multiplying by a
// finite zero collapses an infinite operand to zero, matching the policy
// convention that "0 * unlimited" means "not requested".
func (d Decimal) Mul(other Decimal) Decimal {
	if d.inf != signFinite || other.inf != signFinite {
		if d.IsZero() || other.IsZero() {
			return Zero
		}
		negative := (d.Sign() < 0) != (other.Sign() < 0)
		if negative {
			return NegInf
		}
		return PosInf
	}
	return Decimal{rat: new(big.Rat).Mul(d.ratOrZero(), other.ratOrZero())}
}

// MulInt64 returns d * n, used for resource-seconds computation
// (occupied_slots * duration-in-seconds).
func (d Decimal) MulInt64(n int64) Decimal {
	return d.Mul(NewDecimalInt(n))
}

// Sign returns -1, 0 or +1 matching the sign of d.
func (d Decimal) Sign() int {
	switch d.inf {
	case signPosInf:
		return 1
	case signNegInf:
		return -1
	default:
		return d.ratOrZero().Sign()
	}
}

// String renders the raw decimal-string wire format. Non-integral values
// render as a fixed-point decimal where that round-trips exactly; a
// rational whose expansion doesn't terminate within decimalDisplayPrecision
// digits (e.g. 1/3) falls back to big.Rat's exact "num/denom" form instead
// of silently truncating it.
func (d Decimal) String() string {
	switch d.inf {
	case signPosInf:
		return "Infinity"
	case signNegInf:
		return "-Infinity"
	default:
		if d.rat == nil {
			return "0"
		}
		if d.rat.IsInt() {
			return d.rat.RatString()
		}
		fixed := d.rat.FloatString(decimalDisplayPrecision)
		if r, ok := new(big.Rat).SetString(fixed); ok && r.Cmp(d.rat) == 0 {
			return fixed
		}
		return d.rat.RatString()
	}
}

// decimalDisplayPrecision bounds the number of fractional digits rendered
// for non-integral quantities (fractional CPU shares, primarily).
const decimalDisplayPrecision = 6

// MarshalJSON implements json.Marshaler, always as a raw string to avoid
// float64 precision loss on the wire.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decimal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
