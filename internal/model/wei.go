package model

import (
	"bytes"
	"fmt"
	"math/big"
)

// Wei is a uint256 token amount carried exactly as the contract reports it.
// It encodes as a bare JSON number and decodes from a number or a decimal
// string. The zero value is 0.
type Wei struct {
	v *big.Int
}

// NewWei returns n wei.
func NewWei(n int64) Wei { return Wei{v: big.NewInt(n)} }

// WeiFromBig copies b.
func WeiFromBig(b *big.Int) Wei {
	if b == nil {
		return Wei{}
	}
	return Wei{v: new(big.Int).Set(b)}
}

// ParseWei parses a base-10 integer.
func ParseWei(s string) (Wei, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Wei{}, fmt.Errorf("invalid wei amount %q", s)
	}
	return Wei{v: b}, nil
}

// Big returns a copy of the amount.
func (w Wei) Big() *big.Int {
	if w.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(w.v)
}

func (w Wei) Sign() int {
	if w.v == nil {
		return 0
	}
	return w.v.Sign()
}

// Add returns w+o.
func (w Wei) Add(o Wei) Wei { return Wei{v: new(big.Int).Add(w.Big(), o.Big())} }

func (w Wei) Cmp(o Wei) int { return w.Big().Cmp(o.Big()) }

func (w Wei) String() string {
	if w.v == nil {
		return "0"
	}
	return w.v.String()
}

func (w Wei) MarshalJSON() ([]byte, error) { return []byte(w.String()), nil }

func (w *Wei) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*w = Wei{}
		return nil
	}
	b = bytes.Trim(b, `"`)
	parsed, err := ParseWei(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
