// Package decimal implements a scaled-integer decimal value used by the
// BRC-20 and BRC-20-S engines for amounts with a per-tick decimal count.
package decimal

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Num is a fixed-point decimal: an arbitrary-precision integer together
// with the number of places it is scaled by. Two Nums are only directly
// comparable/combinable when their Decimals agree; call Rescale first.
type Num struct {
	unscaled *big.Int
	decimals uint8
}

// Zero returns the zero value at the given decimal precision.
func Zero(decimals uint8) Num {
	return Num{unscaled: big.NewInt(0), decimals: decimals}
}

// Decimals returns the number of decimal places this value is scaled by.
func (n Num) Decimals() uint8 {
	return n.decimals
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Parse parses a decimal string ("1", "1.1", "0.001") at the given
// decimal precision. The fractional part is truncated (never rounded)
// if it carries more places than decimals allows.
func Parse(s string, decimals uint8) (Num, error) {
	if s == "" {
		return Num{}, fmt.Errorf("decimal: empty amount string")
	}

	var wholeStr, fracStr string
	dot := -1
	for i, c := range s {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot >= 0 {
		wholeStr, fracStr = s[:dot], s[dot+1:]
	} else {
		wholeStr = s
	}
	if wholeStr == "" {
		wholeStr = "0"
	}
	for _, c := range wholeStr + fracStr {
		if c < '0' || c > '9' {
			return Num{}, fmt.Errorf("decimal: invalid character %q in %q", c, s)
		}
	}
	if len(fracStr) > int(decimals) {
		fracStr = fracStr[:decimals]
	}
	for len(fracStr) < int(decimals) {
		fracStr += "0"
	}

	combined := wholeStr + fracStr
	v := new(big.Int)
	if _, ok := v.SetString(combined, 10); !ok {
		return Num{}, fmt.Errorf("decimal: invalid amount %q", s)
	}
	return Num{unscaled: v, decimals: decimals}, nil
}

// FromUint64 builds a Num directly from an already-scaled integer.
func FromUint64(unscaled uint64, decimals uint8) Num {
	return Num{unscaled: new(big.Int).SetUint64(unscaled), decimals: decimals}
}

// FromBig builds a Num from an already-scaled big.Int, for callers
// doing their own multi-step big.Int arithmetic (e.g. the BRC-20-S
// pool accumulator's cross-scale multiply/divide) before wrapping the
// result back into a storable Num.
func FromBig(unscaled *big.Int, decimals uint8) Num {
	return Num{unscaled: new(big.Int).Set(unscaled), decimals: decimals}
}

// Big returns a copy of the unscaled integer for callers that need to
// do arithmetic Num doesn't expose directly.
func (n Num) Big() *big.Int {
	if n.unscaled == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(n.unscaled)
}

// MulUint64 returns n*k at n's existing scale.
func (n Num) MulUint64(k uint64) Num {
	return Num{unscaled: new(big.Int).Mul(n.Big(), new(big.Int).SetUint64(k)), decimals: n.decimals}
}

// String renders the value as a decimal string, trimming trailing
// fractional zeros.
func (n Num) String() string {
	if n.unscaled == nil {
		return "0"
	}
	divisor := pow10(n.decimals)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(n.unscaled, divisor, frac)
	if frac.Sign() == 0 || n.decimals == 0 {
		return whole.String()
	}
	fracStr := fmt.Sprintf("%0*s", int(n.decimals), frac.String())
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}
	if fracStr == "" {
		return whole.String()
	}
	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// IsZero reports whether the value is zero.
func (n Num) IsZero() bool {
	return n.unscaled == nil || n.unscaled.Sign() == 0
}

// Sign returns -1, 0 or 1.
func (n Num) Sign() int {
	if n.unscaled == nil {
		return 0
	}
	return n.unscaled.Sign()
}

// Cmp compares two same-scale Nums.
func (n Num) Cmp(o Num) int {
	return n.unscaled.Cmp(o.unscaled)
}

// Add returns n+o; both must share the same Decimals.
func (n Num) Add(o Num) Num {
	return Num{unscaled: new(big.Int).Add(n.unscaled, o.unscaled), decimals: n.decimals}
}

// Sub returns n-o; both must share the same Decimals.
func (n Num) Sub(o Num) Num {
	return Num{unscaled: new(big.Int).Sub(n.unscaled, o.unscaled), decimals: n.decimals}
}

// Uint64 returns the scaled integer as a uint64, erroring on overflow or
// a negative value.
func (n Num) Uint64() (uint64, error) {
	if n.unscaled.Sign() < 0 {
		return 0, fmt.Errorf("decimal: negative value %s", n.String())
	}
	if !n.unscaled.IsUint64() {
		return 0, fmt.Errorf("decimal: value %s overflows uint64", n.String())
	}
	return n.unscaled.Uint64(), nil
}

// CheckedAdd adds two amounts, returning (0, false) instead of wrapping on
// overflow past uint64 range.
func CheckedAdd(a, b uint64) (uint64, bool) {
	if a > ^uint64(0)-b {
		return 0, false
	}
	return a + b, true
}

// numJSON is Num's on-the-wire shape: the unscaled integer as a decimal
// string (arbitrary precision, unlike a JSON number) alongside the
// scale it's measured in, so a round trip never loses precision.
type numJSON struct {
	Unscaled string `json:"unscaled"`
	Decimals uint8  `json:"decimals"`
}

// MarshalJSON implements json.Marshaler.
func (n Num) MarshalJSON() ([]byte, error) {
	unscaled := "0"
	if n.unscaled != nil {
		unscaled = n.unscaled.String()
	}
	return json.Marshal(numJSON{Unscaled: unscaled, Decimals: n.decimals})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Num) UnmarshalJSON(data []byte) error {
	var aux numJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v := new(big.Int)
	if _, ok := v.SetString(aux.Unscaled, 10); !ok {
		return fmt.Errorf("decimal: invalid unscaled integer %q", aux.Unscaled)
	}
	n.unscaled = v
	n.decimals = aux.Decimals
	return nil
}
