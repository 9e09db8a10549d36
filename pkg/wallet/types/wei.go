package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Wei is an amount of ether in its smallest unit.
// The zero value is 0 wei. Wei values are comparable with ==.
type Wei struct {
	v uint256.Int
}

var ErrWeiOverflow = errors.New("wei amount overflows 256 bits")

func NewWei(n uint64) Wei {
	var w Wei
	w.v.SetUint64(n)
	return w
}

// WeiFromBig converts a non-negative big integer.
func WeiFromBig(b *big.Int) (Wei, error) {
	var w Wei
	if b == nil {
		return w, nil
	}
	if b.Sign() < 0 {
		return w, fmt.Errorf("negative wei amount %s", b)
	}
	if overflow := w.v.SetFromBig(b); overflow {
		return w, ErrWeiOverflow
	}
	return w, nil
}

// ParseWei parses a decimal or 0x-prefixed hex string.
func ParseWei(s string) (Wei, error) {
	var w Wei
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		if err := w.v.SetFromHex(s); err != nil {
			return w, fmt.Errorf("invalid wei amount %q: %w", s, err)
		}
		return w, nil
	}
	if err := w.v.SetFromDecimal(s); err != nil {
		return w, fmt.Errorf("invalid wei amount %q: %w", s, err)
	}
	return w, nil
}

func MustParseWei(s string) Wei {
	w, err := ParseWei(s)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Wei) IsZero() bool { return w.v.IsZero() }

func (w Wei) Cmp(o Wei) int { return w.v.Cmp(&o.v) }

func (w Wei) Big() *big.Int { return w.v.ToBig() }

func (w Wei) Uint64() (uint64, bool) {
	return w.v.Uint64(), w.v.IsUint64()
}

func (w Wei) String() string { return w.v.Dec() }

// CheckedAdd returns w+o or false on overflow.
func (w Wei) CheckedAdd(o Wei) (Wei, bool) {
	var r Wei
	_, overflow := r.v.AddOverflow(&w.v, &o.v)
	return r, !overflow
}

// CheckedSub returns w-o or false when o > w.
func (w Wei) CheckedSub(o Wei) (Wei, bool) {
	var r Wei
	_, underflow := r.v.SubOverflow(&w.v, &o.v)
	return r, !underflow
}

// SaturatingSub returns w-o, or zero when o > w.
func (w Wei) SaturatingSub(o Wei) Wei {
	r, ok := w.CheckedSub(o)
	if !ok {
		return Wei{}
	}
	return r
}

// CheckedMulUint64 returns w*n or false on overflow.
func (w Wei) CheckedMulUint64(n uint64) (Wei, bool) {
	var r, m Wei
	m.v.SetUint64(n)
	_, overflow := r.v.MulOverflow(&w.v, &m.v)
	return r, !overflow
}

// MulDivUint64 returns w*num/den rounded down, or false on overflow.
func (w Wei) MulDivUint64(num, den uint64) (Wei, bool) {
	if den == 0 {
		return Wei{}, false
	}
	r, ok := w.CheckedMulUint64(num)
	if !ok {
		return Wei{}, false
	}
	var d uint256.Int
	d.SetUint64(den)
	r.v.Div(&r.v, &d)
	return r, true
}

func MaxWei(a, b Wei) Wei {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func (w Wei) MarshalText() ([]byte, error) {
	return []byte(w.v.Dec()), nil
}

func (w *Wei) UnmarshalText(text []byte) error {
	parsed, err := ParseWei(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
