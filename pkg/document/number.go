package document

import (
	"fmt"
	"math"
)

// IsNumber reports whether v is a normalized number
func IsNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

// Add sums two normalized numbers. Integer sums stay int64 unless they overflow.
func Add(a, b any) (any, error) {
	if !IsNumber(a) {
		return nil, fmt.Errorf("%w: cannot increment %s", ErrTypeMismatch, KindOf(a))
	}
	if !IsNumber(b) {
		return nil, fmt.Errorf("%w: increment must be a number, got %s", ErrTypeMismatch, KindOf(b))
	}

	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt {
		sum := ai + bi
		if (sum > ai) == (bi > 0) {
			return sum, nil
		}
		return float64(ai) + float64(bi), nil
	}
	sum := toFloat(a) + toFloat(b)
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return nil, fmt.Errorf("%w: increment overflows to %v", ErrUnsupportedValue, sum)
	}
	return sum, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	}
	return math.NaN()
}
