package exec

import "math"

func float32FromBits(bits uint32) float32 {
	return math.Float32frombits(bits)
}

func float32Bits(f float32) uint32 {
	return math.Float32bits(f)
}

func toInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int:
		return int32(n)
	case float32:
		return int32(n)
	default:
		return 0
	}
}

func toFloat32(v interface{}) float32 {
	switch n := v.(type) {
	case float32:
		return n
	case int32:
		return float32(n)
	case int:
		return float32(n)
	default:
		return 0
	}
}

// asFloat64 promotes any numeric Tuple value to float64 for
// comparison purposes, per spec.md §4.5.1's INT->FLOAT promotion rule:
// when operand types differ, the INT operand is promoted to FLOAT
// before comparing.
func asFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
