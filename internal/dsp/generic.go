package dsp

import "github.com/deepteams/hevcenc/internal/types"

type generic struct{}

func (generic) Name() string { return "generic" }

func (generic) SAD(a []uint8, aStride int, b []uint8, bStride int, w, h int) int {
	sum := 0
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := range ra {
			sum += abs(int(ra[x]) - int(rb[x]))
		}
	}
	return sum
}

func (generic) SSE(a []uint8, aStride int, b []uint8, bStride int, w, h int) int64 {
	var sum int64
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := range ra {
			d := int64(ra[x]) - int64(rb[x])
			sum += d * d
		}
	}
	return sum
}

func (generic) SATD(a []uint8, aStride int, b []uint8, bStride int, w, h int) int {
	return satd(a, aStride, b, bStride, w, h)
}

// satd sums 8x8 Hadamard tiles when the block allows it, 4x4 otherwise.
func satd(a []uint8, aStride int, b []uint8, bStride int, w, h int) int {
	sum := 0
	if w%8 == 0 && h%8 == 0 {
		for y := 0; y < h; y += 8 {
			for x := 0; x < w; x += 8 {
				sum += hadamard8(a[y*aStride+x:], aStride, b[y*bStride+x:], bStride)
			}
		}
		return sum
	}
	for y := 0; y+4 <= h; y += 4 {
		for x := 0; x+4 <= w; x += 4 {
			sum += hadamard4(a[y*aStride+x:], aStride, b[y*bStride+x:], bStride)
		}
	}
	return sum
}

func hadamard4(a []uint8, aStride int, b []uint8, bStride int) int {
	var d [16]int
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			d[y*4+x] = int(a[y*aStride+x]) - int(b[y*bStride+x])
		}
	}
	var m [16]int
	for y := 0; y < 4; y++ {
		r := d[y*4 : y*4+4]
		s0, s1 := r[0]+r[1], r[0]-r[1]
		s2, s3 := r[2]+r[3], r[2]-r[3]
		m[y*4+0] = s0 + s2
		m[y*4+1] = s1 + s3
		m[y*4+2] = s0 - s2
		m[y*4+3] = s1 - s3
	}
	sum := 0
	for x := 0; x < 4; x++ {
		s0, s1 := m[x]+m[4+x], m[x]-m[4+x]
		s2, s3 := m[8+x]+m[12+x], m[8+x]-m[12+x]
		sum += abs(s0+s2) + abs(s1+s3) + abs(s0-s2) + abs(s1-s3)
	}
	return (sum + 1) >> 1
}

func hadamard8(a []uint8, aStride int, b []uint8, bStride int) int {
	var m [64]int
	for y := 0; y < 8; y++ {
		var d [8]int
		for x := 0; x < 8; x++ {
			d[x] = int(a[y*aStride+x]) - int(b[y*bStride+x])
		}
		butterfly8(d[:])
		copy(m[y*8:y*8+8], d[:])
	}
	sum := 0
	for x := 0; x < 8; x++ {
		var c [8]int
		for y := 0; y < 8; y++ {
			c[y] = m[y*8+x]
		}
		butterfly8(c[:])
		for _, v := range c {
			sum += abs(v)
		}
	}
	return (sum + 2) >> 2
}

func butterfly8(d []int) {
	for step := 1; step < 8; step <<= 1 {
		for i := 0; i < 8; i += step << 1 {
			for j := i; j < i+step; j++ {
				a, b := d[j], d[j+step]
				d[j], d[j+step] = a+b, a-b
			}
		}
	}
}

func (generic) Residual(src []uint8, srcStride int, pred []uint8, predStride int, res []int16, n int) {
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			res[y*n+x] = int16(src[y*srcStride+x]) - int16(pred[y*predStride+x])
		}
	}
}

func (generic) Reconstruct(pred []uint8, predStride int, res []int16, dst []uint8, dstStride int, n int) {
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dst[y*dstStride+x] = Clip8(int(pred[y*predStride+x]) + int(res[y*n+x]))
		}
	}
}

func (generic) ForwardTransform(res []int16, coeffs []int32, n int) {
	forwardTransform(res, coeffs, n)
}

func (generic) InverseTransform(coeffs []int32, res []int16, n int) {
	inverseTransform(coeffs, res, n)
}

func (generic) Quantize(coeffs []int32, levels []int16, n, qp int, intra bool) int {
	return quantize(coeffs, levels, n, qp, intra)
}

func (generic) Dequantize(levels []int16, coeffs []int32, n, qp int) {
	dequantize(levels, coeffs, n, qp)
}

func (generic) IntraPredict(mode int, ref *IntraRef, dst []uint8, dstStride int, n int) {
	intraPredict(mode, ref, dst, dstStride, n)
}

func (generic) MotionCompensate(ref *types.Plane, x, y, w, h int, mv types.MV, dst []uint8, dstStride int) {
	motionCompensate(ref, x, y, w, h, mv, dst, dstStride)
}
