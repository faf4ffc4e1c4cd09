package dsp

import (
	"golang.org/x/sys/cpu"

	"github.com/deepteams/hevcenc/internal/types"
)

// MaxTU is the largest transform size.
const MaxTU = 32

// Kernels is the set of pixel kernels the decision core calls into. All
// methods are pure functions over already-positioned buffers: they write only
// to their output argument.
type Kernels interface {
	Name() string

	// SAD, SSE and SATD compare a w x h block of a against b.
	SAD(a []uint8, aStride int, b []uint8, bStride int, w, h int) int
	SSE(a []uint8, aStride int, b []uint8, bStride int, w, h int) int64
	SATD(a []uint8, aStride int, b []uint8, bStride int, w, h int) int

	// Residual writes src - pred for an n x n block into res (stride n).
	Residual(src []uint8, srcStride int, pred []uint8, predStride int, res []int16, n int)
	// Reconstruct writes clip(pred + res) into dst.
	Reconstruct(pred []uint8, predStride int, res []int16, dst []uint8, dstStride int, n int)

	ForwardTransform(res []int16, coeffs []int32, n int)
	InverseTransform(coeffs []int32, res []int16, n int)
	// Quantize returns the number of non-zero levels.
	Quantize(coeffs []int32, levels []int16, n, qp int, intra bool) int
	Dequantize(levels []int16, coeffs []int32, n, qp int)

	// IntraPredict fills an n x n block from a substituted reference.
	IntraPredict(mode int, ref *IntraRef, dst []uint8, dstStride int, n int)
	// MotionCompensate predicts a w x h block at (x, y) displaced by mv
	// from ref.
	MotionCompensate(ref *types.Plane, x, y, w, h int, mv types.MV, dst []uint8, dstStride int)
}

// Generic returns the straightforward reference implementation.
func Generic() Kernels { return generic{} }

// Unrolled returns the implementation with hand-unrolled row loops. Its
// results are identical to Generic.
func Unrolled() Kernels { return unrolled{} }

// Select picks the kernel set for the running CPU. The unrolled variant pays
// off only on cores with wide vector units where the compiler can keep the
// unrolled accumulators in registers.
func Select() Kernels {
	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		return Unrolled()
	}
	return Generic()
}

// Clip8 clamps v to [0, 255].
func Clip8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Log2 returns log2 of a power-of-two block size.
func Log2(n int) int {
	switch n {
	case 4:
		return 2
	case 8:
		return 3
	case 16:
		return 4
	case 32:
		return 5
	case 64:
		return 6
	}
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}
