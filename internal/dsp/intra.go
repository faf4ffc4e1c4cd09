package dsp

// IntraRef holds the reference samples of an n x n intra block: Top[0..2n)
// is the row above (including above-right), Left[0..2n) the column to the
// left (including below-left) and Corner the above-left sample.
//
// TopAvail and LeftAvail carry one bit per 4-sample unit; a caller fills the
// samples it has, sets the bits, then calls Substitute.
type IntraRef struct {
	Top, Left   [2 * MaxTU]uint8
	Corner      uint8
	TopAvail    uint32
	LeftAvail   uint32
	CornerAvail bool
}

// Reset clears availability.
func (r *IntraRef) Reset() {
	r.TopAvail, r.LeftAvail, r.CornerAvail = 0, 0, false
}

// Substitute replaces unavailable samples following the reference sample
// substitution process: scan from the bottom of the left column up through
// the corner and along the top row, copying the last available sample.
func (r *IntraRef) Substitute(n int) {
	if r.TopAvail == 0 && r.LeftAvail == 0 && !r.CornerAvail {
		for i := 0; i < 2*n; i++ {
			r.Top[i], r.Left[i] = 128, 128
		}
		r.Corner = 128
		return
	}
	// Scan order: Left[2n-1] .. Left[0], Corner, Top[0] .. Top[2n-1].
	avail := func(i int) bool {
		switch {
		case i < 2*n:
			u := (2*n - 1 - i) / 4
			return r.LeftAvail&(1<<u) != 0
		case i == 2*n:
			return r.CornerAvail
		default:
			u := (i - 2*n - 1) / 4
			return r.TopAvail&(1<<u) != 0
		}
	}
	get := func(i int) *uint8 {
		switch {
		case i < 2*n:
			return &r.Left[2*n-1-i]
		case i == 2*n:
			return &r.Corner
		default:
			return &r.Top[i-2*n-1]
		}
	}
	total := 4*n + 1
	if !avail(0) {
		for i := 1; i < total; i++ {
			if avail(i) {
				*get(0) = *get(i)
				break
			}
		}
	}
	for i := 1; i < total; i++ {
		if !avail(i) {
			*get(i) = *get(i - 1)
		}
	}
}

// filterThreshold is the min distance from pure horizontal/vertical above
// which reference smoothing applies, per block size.
func filterThreshold(n int) int {
	switch n {
	case 8:
		return 7
	case 16:
		return 1
	case 32:
		return 0
	}
	return 100
}

func needsSmoothing(mode, n int) bool {
	if mode == 1 || n == 4 {
		return false
	}
	d := min(abs(mode-26), abs(mode-10))
	if mode == 0 {
		return n > 4
	}
	return d > filterThreshold(n)
}

// smooth applies the [1 2 1] reference filter into dst.
func smooth(src *IntraRef, dst *IntraRef, n int) {
	dst.Corner = uint8((int(src.Left[0]) + 2*int(src.Corner) + int(src.Top[0]) + 2) >> 2)
	for i := 0; i < 2*n; i++ {
		prevT, prevL := src.Corner, src.Corner
		if i > 0 {
			prevT, prevL = src.Top[i-1], src.Left[i-1]
		}
		if i == 2*n-1 {
			dst.Top[i], dst.Left[i] = src.Top[i], src.Left[i]
			continue
		}
		dst.Top[i] = uint8((int(prevT) + 2*int(src.Top[i]) + int(src.Top[i+1]) + 2) >> 2)
		dst.Left[i] = uint8((int(prevL) + 2*int(src.Left[i]) + int(src.Left[i+1]) + 2) >> 2)
	}
}

var intraPredAngle = [35]int{
	0, 0, // planar, DC
	32, 26, 21, 17, 13, 9, 5, 2, 0, -2, -5, -9, -13, -17, -21, -26,
	-32, -26, -21, -17, -13, -9, -5, -2, 0, 2, 5, 9, 13, 17, 21, 26, 32,
}

var invAngle = map[int]int{
	-2: -4096, -5: -1638, -9: -910, -13: -630, -17: -482, -21: -390, -26: -315, -32: -256,
}

func intraPredict(mode int, in *IntraRef, dst []uint8, dstStride int, n int) {
	ref := in
	var filtered IntraRef
	if needsSmoothing(mode, n) {
		smooth(in, &filtered, n)
		ref = &filtered
	}
	switch mode {
	case 0:
		predPlanar(ref, dst, dstStride, n)
	case 1:
		predDC(ref, dst, dstStride, n)
	default:
		predAngular(mode, ref, dst, dstStride, n)
	}
}

func predPlanar(r *IntraRef, dst []uint8, stride, n int) {
	shift := Log2(n) + 1
	tr, bl := int(r.Top[n]), int(r.Left[n])
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := (n-1-x)*int(r.Left[y]) + (x+1)*tr + (n-1-y)*int(r.Top[x]) + (y+1)*bl + n
			dst[y*stride+x] = uint8(v >> shift)
		}
	}
}

func predDC(r *IntraRef, dst []uint8, stride, n int) {
	sum := n
	for i := 0; i < n; i++ {
		sum += int(r.Top[i]) + int(r.Left[i])
	}
	dc := sum >> (Log2(n) + 1)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dst[y*stride+x] = uint8(dc)
		}
	}
	if n >= 32 {
		return
	}
	dst[0] = uint8((int(r.Left[0]) + 2*dc + int(r.Top[0]) + 2) >> 2)
	for x := 1; x < n; x++ {
		dst[x] = uint8((int(r.Top[x]) + 3*dc + 2) >> 2)
	}
	for y := 1; y < n; y++ {
		dst[y*stride] = uint8((int(r.Left[y]) + 3*dc + 2) >> 2)
	}
}

func predAngular(mode int, r *IntraRef, dst []uint8, stride, n int) {
	vertical := mode >= 18
	angle := intraPredAngle[mode]

	// main/side are the projected reference rows; index n is sample 0.
	var buf [3*MaxTU + 1]int
	refAt := func(i int) *int { return &buf[i+MaxTU] }
	main, side := r.Top[:], r.Left[:]
	if !vertical {
		main, side = r.Left[:], r.Top[:]
	}
	*refAt(0) = int(r.Corner)
	for x := 1; x <= 2*n; x++ {
		*refAt(x) = int(main[x-1])
	}
	if angle < 0 {
		last := (n * angle) >> 5
		if last < -1 {
			inv := invAngle[angle]
			for x := last; x <= -1; x++ {
				k := (x*inv + 128) >> 8
				if k == 0 {
					*refAt(x) = int(r.Corner)
				} else {
					*refAt(x) = int(side[k-1])
				}
			}
		}
	}

	for y := 0; y < n; y++ {
		idx := ((y + 1) * angle) >> 5
		fact := ((y + 1) * angle) & 31
		for x := 0; x < n; x++ {
			v := *refAt(x + idx + 1)
			if fact != 0 {
				next := *refAt(x + idx + 2)
				v = ((32-fact)*v + fact*next + 16) >> 5
			}
			if vertical {
				dst[y*stride+x] = uint8(v)
			} else {
				dst[x*stride+y] = uint8(v)
			}
		}
	}

	// Edge filter for the pure directions on small blocks.
	if angle == 0 && n < 32 {
		if vertical {
			for y := 0; y < n; y++ {
				dst[y*stride] = Clip8(int(r.Top[0]) + ((int(r.Left[y]) - int(r.Corner)) >> 1))
			}
		} else {
			for x := 0; x < n; x++ {
				dst[x] = Clip8(int(r.Left[0]) + ((int(r.Top[x]) - int(r.Corner)) >> 1))
			}
		}
	}
}
