package dsp

// Integer DCT approximations for 4..32 point transforms. Every N-point
// matrix is a sub-sampling of the 32-point one: row k of the N-point matrix
// is row k*32/N of the 32-point matrix, first N columns.

// cosTable[i] approximates 64*sqrt(2)*cos(i*pi/64), with cosTable[0]
// replaced by the DC gain 64 in row 0.
var cosTable = [33]int32{
	64, 90, 90, 90, 89, 88, 87, 85, 83, 82, 80, 78, 75, 73, 70, 67,
	64, 61, 57, 54, 50, 46, 43, 38, 36, 31, 25, 22, 18, 13, 9, 4, 0,
}

// dct32 is the 32x32 transform matrix, built once at init.
var dct32 [32][32]int32

func init() {
	for k := 0; k < 32; k++ {
		for n := 0; n < 32; n++ {
			if k == 0 {
				dct32[k][n] = 64
				continue
			}
			dct32[k][n] = cosAt(((2*n + 1) * k) % 128)
		}
	}
}

// cosAt returns the signed table entry for angle index a in [0, 128).
func cosAt(a int) int32 {
	switch {
	case a <= 32:
		return cosTable[a]
	case a <= 64:
		return -cosTable[64-a]
	case a <= 96:
		return -cosTable[a-64]
	default:
		return cosTable[128-a]
	}
}

// coef returns entry (k, i) of the n-point matrix.
func coef(n, k, i int) int32 {
	return dct32[k*(32/n)][i]
}

// forwardTransform computes the 2-D forward transform of an n x n residual
// block for 8-bit video.
func forwardTransform(res []int16, out []int32, n int) {
	log2n := Log2(n)
	shift1 := log2n - 1
	shift2 := log2n + 6
	var tmp [MaxTU * MaxTU]int32

	// Columns.
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			var s int32
			for i := 0; i < n; i++ {
				s += coef(n, k, i) * int32(res[i*n+j])
			}
			tmp[k*n+j] = (s + 1<<(shift1-1)) >> shift1
		}
	}
	// Rows.
	for k := 0; k < n; k++ {
		for l := 0; l < n; l++ {
			var s int64
			for j := 0; j < n; j++ {
				s += int64(tmp[k*n+j]) * int64(coef(n, l, j))
			}
			out[k*n+l] = int32((s + 1<<(shift2-1)) >> shift2)
		}
	}
}

// inverseTransform computes the 2-D inverse transform back to residuals.
func inverseTransform(in []int32, res []int16, n int) {
	const shift1, shift2 = 7, 12
	var tmp [MaxTU * MaxTU]int32

	for i := 0; i < n; i++ {
		for l := 0; l < n; l++ {
			var s int64
			for k := 0; k < n; k++ {
				s += int64(coef(n, k, i)) * int64(in[k*n+l])
			}
			tmp[i*n+l] = clip16((s + 1<<(shift1-1)) >> shift1)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var s int64
			for l := 0; l < n; l++ {
				s += int64(tmp[i*n+l]) * int64(coef(n, l, j))
			}
			res[i*n+j] = int16(clip16((s + 1<<(shift2-1)) >> shift2))
		}
	}
}

func clip16(v int64) int32 {
	if v < -32768 {
		return -32768
	}
	if v > 32767 {
		return 32767
	}
	return int32(v)
}
