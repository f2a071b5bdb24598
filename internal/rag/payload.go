package rag

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a PayloadValue holds.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

// PayloadValue is a tagged union over the scalar payload types a point can
// carry. The zero value is KindAbsent.
type PayloadValue struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

// StringValue wraps s.
func StringValue(s string) PayloadValue { return PayloadValue{kind: KindString, s: s} }

// IntValue wraps i.
func IntValue(i int64) PayloadValue { return PayloadValue{kind: KindInt, i: i} }

// FloatValue wraps f.
func FloatValue(f float64) PayloadValue { return PayloadValue{kind: KindFloat, f: f} }

// BoolValue wraps b.
func BoolValue(b bool) PayloadValue { return PayloadValue{kind: KindBool, b: b} }

// Kind reports the held variant.
func (v PayloadValue) Kind() Kind { return v.kind }

// AsString returns the string variant.
func (v PayloadValue) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

// AsInt returns the value as an integer. Integral floats and strings holding
// a base-10 integer are accepted, since stores and older writers are not
// consistent about numeric payload types.
func (v PayloadValue) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == math.Trunc(v.f) && !math.IsInf(v.f, 0) {
			return int64(v.f), true
		}
	case KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// AsFloat returns the float variant, widening integers.
func (v PayloadValue) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsBool returns the bool variant.
func (v PayloadValue) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Payload is a point's field map.
type Payload map[string]PayloadValue

// Get returns the value for key, or an absent value. Safe on a nil Payload.
func (p Payload) Get(key string) PayloadValue {
	if p == nil {
		return PayloadValue{}
	}
	return p[key]
}
