package document

// Equal reports whether two normalized values are structurally equal.
// Maps compare by key set regardless of order, sequences element by element,
// and numbers by value so that int64(2) equals float64(2).
func Equal(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int64, float64:
		return numbersEqual(a, b)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := asObject(b)
		return ok && objectsEqual(av, bv)
	case Map:
		bv, ok := asObject(b)
		return ok && objectsEqual(av, bv)
	}
	return false
}

func objectsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !Equal(av, bv) {
			return false
		}
	}
	return true
}

func numbersEqual(a, b any) bool {
	switch bv := b.(type) {
	case int64:
		if av, ok := a.(int64); ok {
			return av == bv
		}
		return a.(float64) == float64(bv)
	case float64:
		if av, ok := a.(int64); ok {
			return float64(av) == bv
		}
		return a.(float64) == bv
	}
	return false
}

// IndexOf returns the position of the first element of seq equal to v, or -1
func IndexOf(seq []any, v any) int {
	for i, item := range seq {
		if Equal(item, v) {
			return i
		}
	}
	return -1
}
