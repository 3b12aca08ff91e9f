package canon

import (
	"math/big"
)

// Value is a payload node. The set of implementations is closed: String,
// Integer, Bool, NullValue, Seq and Map. Floating point numbers have no
// representation.
type Value interface {
	isValue()
}

// String is a UTF-8 text value.
type String string

// Bool is a boolean value.
type Bool bool

// NullValue is the JSON null. Use Null.
type NullValue struct{}

// Null is the only NullValue.
var Null = NullValue{}

// Integer is an arbitrary precision integer. The zero Integer is 0.
type Integer struct {
	n *big.Int
}

// Seq is an ordered sequence of values. Order is significant.
type Seq []Value

// Map is a mapping from string keys to values. Iteration order of the Go map
// does not affect the canonical form.
type Map map[string]Value

func (String) isValue()    {}
func (Bool) isValue()      {}
func (NullValue) isValue() {}
func (Integer) isValue()   {}
func (Seq) isValue()       {}
func (Map) isValue()       {}

// Int returns an Integer holding v.
func Int(v int64) Integer {
	return Integer{n: big.NewInt(v)}
}

// Uint returns an Integer holding v.
func Uint(v uint64) Integer {
	return Integer{n: new(big.Int).SetUint64(v)}
}

// BigInt returns an Integer holding a copy of v. A nil v is 0.
func BigInt(v *big.Int) Integer {
	if v == nil {
		return Integer{}
	}
	return Integer{n: new(big.Int).Set(v)}
}

// Big returns a copy of the integer value.
func (i Integer) Big() *big.Int {
	if i.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.n)
}

func (i Integer) String() string {
	if i.n == nil {
		return "0"
	}
	return i.n.String()
}
