package diffdl

import "fmt"

// OverflowMode selects the weight arithmetic variant, chosen once at
// engine configuration time (spec.md §3).
type OverflowMode int

const (
	// OverflowWrapping wraps on overflow, matching native signed 32-bit
	// arithmetic.
	OverflowWrapping OverflowMode = iota
	// OverflowChecked aborts the process on overflow. Fatal by design
	// (spec.md §9); callers must not attempt to recover from the panic.
	OverflowChecked
)

// Weight is a signed difference count attached to every value flowing
// through the dataflow. The overflow behavior of +, -, and * is selected
// once, at engine construction, via OverflowMode.
type Weight struct {
	n    int32
	mode OverflowMode
}

// NewWeight constructs a Weight with the given magnitude and overflow mode.
func NewWeight(n int32, mode OverflowMode) Weight {
	return Weight{n: n, mode: mode}
}

// WeightOne returns a weight of 1 in the given mode.
func WeightOne(mode OverflowMode) Weight { return NewWeight(1, mode) }

// WeightZero returns a weight of 0 in the given mode.
func WeightZero(mode OverflowMode) Weight { return NewWeight(0, mode) }

// Int32 returns the weight's magnitude as a plain int32.
func (w Weight) Int32() int32 { return w.n }

// IsZero reports whether the weight represents no change.
func (w Weight) IsZero() bool { return w.n == 0 }

// Add returns w + other, applying the configured overflow policy. The two
// weights must share an overflow mode; mixing modes is a programming
// error caught here rather than silently picking one side's policy.
func (w Weight) Add(other Weight) Weight {
	w.mustSameMode(other)
	sum := w.n + other.n
	if w.mode == OverflowChecked && overflowsAdd(w.n, other.n, sum) {
		panic(fmt.Sprintf("diffdl: weight overflow: %d + %d", w.n, other.n))
	}
	return Weight{n: sum, mode: w.mode}
}

// Sub returns w - other under the same overflow policy as Add.
func (w Weight) Sub(other Weight) Weight {
	w.mustSameMode(other)
	diff := w.n - other.n
	if w.mode == OverflowChecked && overflowsSub(w.n, other.n, diff) {
		panic(fmt.Sprintf("diffdl: weight overflow: %d - %d", w.n, other.n))
	}
	return Weight{n: diff, mode: w.mode}
}

// Mul returns w * other under the same overflow policy as Add.
func (w Weight) Mul(other Weight) Weight {
	w.mustSameMode(other)
	prod := w.n * other.n
	if w.mode == OverflowChecked && overflowsMul(w.n, other.n, prod) {
		panic(fmt.Sprintf("diffdl: weight overflow: %d * %d", w.n, other.n))
	}
	return Weight{n: prod, mode: w.mode}
}

// Negate returns -w.
func (w Weight) Negate() Weight {
	if w.mode == OverflowChecked && w.n == -2147483648 {
		panic("diffdl: weight overflow: negate of minimum int32")
	}
	return Weight{n: -w.n, mode: w.mode}
}

func (w Weight) mustSameMode(other Weight) Weight {
	if w.mode != other.mode {
		panic("diffdl: mixing weight overflow modes")
	}
	return w
}

func (w Weight) String() string {
	return fmt.Sprintf("%d", w.n)
}

func overflowsAdd(a, b, sum int32) bool {
	return ((a ^ sum) & (b ^ sum)) < 0
}

func overflowsSub(a, b, diff int32) bool {
	return ((a ^ b) & (a ^ diff)) < 0
}

func overflowsMul(a, b, prod int32) bool {
	if a == 0 || b == 0 {
		return false
	}
	if b == -1 && a == -2147483648 {
		return true
	}
	return prod/b != a
}
