package safe

import "math"

// Add performs int64 addition and panics on overflow/underflow.
// Registry volume accounting must never wrap silently.
func Add(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic("safe: add overflow")
	}
	return a + b
}

// Sub performs int64 subtraction and panics on overflow/underflow.
func Sub(a, b int64) int64 {
	if (b > 0 && a < math.MinInt64+b) || (b < 0 && a > math.MaxInt64+b) {
		panic("safe: sub overflow")
	}
	return a - b
}

// Mul performs int64 multiplication and panics on overflow/underflow.
func Mul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > 0 {
		if b > 0 {
			if a > math.MaxInt64/b {
				panic("safe: mul overflow")
			}
		} else if b < math.MinInt64/a {
			panic("safe: mul overflow")
		}
	} else {
		if b > 0 {
			if a < math.MinInt64/b {
				panic("safe: mul overflow")
			}
		} else if a < math.MaxInt64/b {
			panic("safe: mul overflow")
		}
	}
	return a * b
}

// Div performs int64 division and panics on division by zero.
func Div(a, b int64) int64 {
	if b == 0 {
		panic("safe: div by zero")
	}
	if a == math.MinInt64 && b == -1 {
		panic("safe: div overflow")
	}
	return a / b
}
