package dsp

import (
	"math"

	"github.com/deepteams/hevcenc/internal/types"
)

// Objective quality of a reconstruction against its source, reported with
// frame statistics. Not used by any decision.

const ssimRadius = 3

// ssimTap is the hat window; its taps sum to 16.
var ssimTap = [2*ssimRadius + 1]uint32{1, 2, 3, 4, 3, 2, 1}

// moments are the weighted sums of one SSIM window.
type moments struct {
	w             uint32
	sa, sb        uint32
	saa, sab, sbb uint32
}

func (m *moments) add(a, b uint8, w uint32) {
	x, y := uint32(a), uint32(b)
	m.w += w
	m.sa += w * x
	m.sb += w * y
	m.saa += w * x * x
	m.sab += w * x * y
	m.sbb += w * y * y
}

// ssim evaluates one window in integer arithmetic.
func (m *moments) ssim() float64 {
	n := uint64(m.w)
	if n == 0 {
		return 0
	}
	n2 := n * n
	c1, c2, dark := 20*n2, 60*n2, 64*n2
	aa := uint64(m.sa) * uint64(m.sa)
	bb := uint64(m.sb) * uint64(m.sb)
	if aa+bb < dark {
		return 1
	}
	ab := uint64(m.sa) * uint64(m.sb)
	cov := int64(uint64(m.sab)*n) - int64(ab)
	va := uint64(m.saa)*n - aa
	vb := uint64(m.sbb)*n - bb
	var pos uint64
	if cov > 0 {
		pos = uint64(cov)
	}
	num := (2*ab + c1) * ((2*pos + c2) >> 8)
	den := (aa + bb + c1) * ((va + vb + c2) >> 8)
	if den == 0 {
		return 1
	}
	return float64(num) / float64(den)
}

// SSIM returns the mean structural similarity of the luma planes a and b,
// sampling a window centred on every other sample in both directions.
func SSIM(a, b *types.Plane) float64 {
	var sum float64
	var n int
	for y := 0; y < a.Height; y += 2 {
		for x := 0; x < a.Width; x += 2 {
			var m moments
			for dy := -ssimRadius; dy <= ssimRadius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= a.Height {
					continue
				}
				for dx := -ssimRadius; dx <= ssimRadius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= a.Width {
						continue
					}
					m.add(a.At(xx, yy), b.At(xx, yy), ssimTap[dx+ssimRadius]*ssimTap[dy+ssimRadius])
				}
			}
			sum += m.ssim()
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// MaxPSNR is reported for identical planes.
const MaxPSNR = 99.0

// PSNR returns the peak signal-to-noise ratio for sse over count samples.
func PSNR(sse int64, count int) float64 {
	if sse <= 0 || count <= 0 {
		return MaxPSNR
	}
	mse := float64(sse) / float64(count)
	return min(MaxPSNR, 10*math.Log10(255*255/mse))
}
