package dsp

const (
	quantShift  = 14
	iquantShift = 6
)

var (
	quantScales    = [6]int64{26214, 23302, 20560, 18396, 16384, 14564}
	invQuantScales = [6]int64{40, 45, 51, 57, 64, 72}
)

// transformShift is the headroom of an n-point transform at 8-bit depth.
func transformShift(n int) int {
	return 7 - Log2(n)
}

// quantize applies flat scalar quantisation with the usual dead-zone rounding
// offsets (1/3 intra, 1/6 inter).
func quantize(coeffs []int32, levels []int16, n, qp int, intra bool) int {
	qbits := quantShift + qp/6 + transformShift(n)
	scale := quantScales[qp%6]
	var add int64 = 85 << (qbits - 9)
	if intra {
		add = 171 << (qbits - 9)
	}
	nz := 0
	for i := 0; i < n*n; i++ {
		c := int64(coeffs[i])
		sign := int64(1)
		if c < 0 {
			sign, c = -1, -c
		}
		l := (c*scale + add) >> qbits
		if l > 32767 {
			l = 32767
		}
		levels[i] = int16(sign * l)
		if l != 0 {
			nz++
		}
	}
	return nz
}

func dequantize(levels []int16, coeffs []int32, n, qp int) {
	scale := invQuantScales[qp%6]
	shift := iquantShift - transformShift(n) - qp/6
	for i := 0; i < n*n; i++ {
		l := int64(levels[i])
		var c int64
		if shift > 0 {
			c = (l*scale + 1<<(shift-1)) >> shift
		} else {
			c = (l * scale) << -shift
		}
		coeffs[i] = int32(clip16(c))
	}
}
