package exec

import "github.com/jmcarbo/reldb/internal/errs"

// CompareOp is one of the six relational comparison operators a
// Condition may apply.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Condition is one leaf predicate: left_column <op> right, where
// right is either another column (RightColumn, non-empty) or a
// constant (Value), per spec.md §4.5.1's "(left_column, op, either
// right_column or right_constant_value)". RightColumn is what makes an
// equi-join predicate like "L.x = R.y" (spec.md §4.5.3 / S4) possible:
// evaluated against the joined child's concatenated tuple, it compares
// two columns rather than a column against a literal.
type Condition struct {
	Column      string
	Op          CompareOp
	Value       interface{}
	RightColumn string
}

// Predicate is satisfied when every Condition in it holds for a given
// Tuple.
type Predicate struct {
	Conditions []Condition
}

// Eval reports whether t satisfies every condition in p. An empty
// Predicate (no conditions) is vacuously true, matching an
// unqualified scan. A type mismatch between operands (spec.md §4.5.1:
// anything other than two numeric operands or two strings) raises
// IncompatibleType rather than failing the condition silently -- the
// executor never catches predicate errors (spec.md §7).
func (p Predicate) Eval(t *Tuple) (bool, error) {
	for _, c := range p.Conditions {
		ok, err := evalCondition(c, t)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalCondition(c Condition, t *Tuple) (bool, error) {
	left, _ := t.Get(c.Column)
	var right interface{}
	if c.RightColumn != "" {
		right, _ = t.Get(c.RightColumn)
	} else {
		right = c.Value
	}
	return compareValues(left, right, c.Op)
}

// compareValues implements spec.md §4.5.1's comparison rules: numeric
// operands (INT32/FLOAT32) compare after promoting any INT32 operand
// to float64; STRING operands compare using the NUL-aware effective
// length from stringFromFixedField (already applied by the time
// values reach here, since decodeValue trims at the first NUL). Any
// other operand pairing (e.g. STRING vs numeric) is IncompatibleType.
func compareValues(a, b interface{}, op CompareOp) (bool, error) {
	if af, aok := asFloat64(a); aok {
		if bf, bok := asFloat64(b); bok {
			return applyOp(af, bf, op), nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return applyOp(as, bs, op), nil
	}
	return false, errs.Newf(errs.IncompatibleType, "cannot compare %T with %T", a, b)
}

func applyOp[T int | float64 | string](a, b T, op CompareOp) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	default:
		return false
	}
}
