package cabac

// diagScans[log2(n)-2] is the up-right diagonal scan of an n x n block,
// listing raster positions.
var diagScans [4][]uint16

func init() {
	for l := 2; l <= 5; l++ {
		n := 1 << l
		scan := make([]uint16, 0, n*n)
		for d := 0; d < 2*n-1; d++ {
			for y := min(d, n-1); y >= 0; y-- {
				x := d - y
				if x >= n {
					break
				}
				scan = append(scan, uint16(y*n+x))
			}
		}
		diagScans[l-2] = scan
	}
}

// DiagScan returns the diagonal scan of an n x n block (n in 4..32).
func DiagScan(n int) []uint16 {
	return diagScans[log2(n)-2]
}
