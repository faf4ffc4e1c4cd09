package dsp

// unrolled shares the transform, prediction and interpolation kernels with
// generic and replaces the per-sample metric loops with 4-wide unrolled
// bodies. Widths that are not a multiple of 4 fall back to generic.
type unrolled struct {
	generic
}

func (unrolled) Name() string { return "unrolled" }

func (u unrolled) SAD(a []uint8, aStride int, b []uint8, bStride int, w, h int) int {
	if w&3 != 0 {
		return u.generic.SAD(a, aStride, b, bStride, w, h)
	}
	var s0, s1, s2, s3 int
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := 0; x < w; x += 4 {
			_ = ra[x+3]
			_ = rb[x+3]
			s0 += abs(int(ra[x]) - int(rb[x]))
			s1 += abs(int(ra[x+1]) - int(rb[x+1]))
			s2 += abs(int(ra[x+2]) - int(rb[x+2]))
			s3 += abs(int(ra[x+3]) - int(rb[x+3]))
		}
	}
	return s0 + s1 + s2 + s3
}

func (u unrolled) SSE(a []uint8, aStride int, b []uint8, bStride int, w, h int) int64 {
	if w&3 != 0 {
		return u.generic.SSE(a, aStride, b, bStride, w, h)
	}
	var s0, s1, s2, s3 int64
	for y := 0; y < h; y++ {
		ra := a[y*aStride : y*aStride+w]
		rb := b[y*bStride : y*bStride+w]
		for x := 0; x < w; x += 4 {
			_ = ra[x+3]
			_ = rb[x+3]
			d0 := int64(ra[x]) - int64(rb[x])
			d1 := int64(ra[x+1]) - int64(rb[x+1])
			d2 := int64(ra[x+2]) - int64(rb[x+2])
			d3 := int64(ra[x+3]) - int64(rb[x+3])
			s0 += d0 * d0
			s1 += d1 * d1
			s2 += d2 * d2
			s3 += d3 * d3
		}
	}
	return s0 + s1 + s2 + s3
}

func (unrolled) Residual(src []uint8, srcStride int, pred []uint8, predStride int, res []int16, n int) {
	for y := 0; y < n; y++ {
		s := src[y*srcStride : y*srcStride+n]
		p := pred[y*predStride : y*predStride+n]
		r := res[y*n : y*n+n]
		for x := 0; x < n; x += 4 {
			_ = s[x+3]
			_ = p[x+3]
			_ = r[x+3]
			r[x] = int16(s[x]) - int16(p[x])
			r[x+1] = int16(s[x+1]) - int16(p[x+1])
			r[x+2] = int16(s[x+2]) - int16(p[x+2])
			r[x+3] = int16(s[x+3]) - int16(p[x+3])
		}
	}
}

func (unrolled) Reconstruct(pred []uint8, predStride int, res []int16, dst []uint8, dstStride int, n int) {
	for y := 0; y < n; y++ {
		p := pred[y*predStride : y*predStride+n]
		r := res[y*n : y*n+n]
		d := dst[y*dstStride : y*dstStride+n]
		for x := 0; x < n; x += 4 {
			_ = p[x+3]
			_ = r[x+3]
			_ = d[x+3]
			d[x] = Clip8(int(p[x]) + int(r[x]))
			d[x+1] = Clip8(int(p[x+1]) + int(r[x+1]))
			d[x+2] = Clip8(int(p[x+2]) + int(r[x+2]))
			d[x+3] = Clip8(int(p[x+3]) + int(r[x+3]))
		}
	}
}
