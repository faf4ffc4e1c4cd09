// Package types holds the small value types shared by every stage of the
// CU decision pipeline: motion vectors, prediction/partition modes, slice
// types and padded picture planes.
package types

// Intra prediction mode numbers.
const (
	PlanarMode    = 0
	DCMode        = 1
	HorMode       = 10
	VerMode       = 26
	NumIntraModes = 35
)

// MinBlock is the granularity of neighbour metadata (4x4 luma samples).
const MinBlock = 4

// MV is a quarter-sample luma motion vector.
type MV struct {
	X, Y int16
}

// Add returns m + o.
func (m MV) Add(o MV) MV { return MV{m.X + o.X, m.Y + o.Y} }

// IsZero reports whether m is the zero vector.
func (m MV) IsZero() bool { return m.X == 0 && m.Y == 0 }

// SliceType selects which prediction tools are available for a frame.
type SliceType uint8

const (
	SliceI SliceType = iota
	SliceP
)

func (s SliceType) String() string {
	if s == SliceP {
		return "P"
	}
	return "I"
}

// PredMode is the prediction mode of a committed CU.
type PredMode uint8

const (
	PredIntra PredMode = iota
	PredInter
	PredSkip
)

func (p PredMode) String() string {
	switch p {
	case PredInter:
		return "inter"
	case PredSkip:
		return "skip"
	default:
		return "intra"
	}
}

// PartMode is the PU partitioning of a CU.
type PartMode uint8

const (
	Part2Nx2N PartMode = iota
	Part2NxN
	PartNx2N
	PartNxN
)

// NumParts returns the number of prediction units of p.
func (p PartMode) NumParts() int {
	switch p {
	case Part2NxN, PartNx2N:
		return 2
	case PartNxN:
		return 4
	}
	return 1
}

// PURect returns the offset and size of prediction unit idx of a CU of the
// given size.
func (p PartMode) PURect(size, idx int) (x, y, w, h int) {
	switch p {
	case Part2NxN:
		return 0, idx * size / 2, size, size / 2
	case PartNx2N:
		return idx * size / 2, 0, size / 2, size
	case PartNxN:
		return (idx & 1) * size / 2, (idx >> 1) * size / 2, size / 2, size / 2
	}
	return 0, 0, size, size
}

func (p PartMode) String() string {
	switch p {
	case Part2NxN:
		return "2NxN"
	case PartNx2N:
		return "Nx2N"
	case PartNxN:
		return "NxN"
	}
	return "2Nx2N"
}

// Plane is an 8-bit sample plane with Pad samples of margin on every side.
// Pix[Offset(x, y)] addresses sample (x, y) for -Pad <= x < Width+Pad.
type Plane struct {
	Pix           []uint8
	Stride        int
	Width, Height int
	Pad           int
}

// NewPlane allocates a zeroed plane of w x h samples with pad margin.
func NewPlane(w, h, pad int) *Plane {
	stride := w + 2*pad
	return &Plane{
		Pix:    make([]uint8, stride*(h+2*pad)),
		Stride: stride,
		Width:  w,
		Height: h,
		Pad:    pad,
	}
}

// Offset returns the index of sample (x, y) in Pix.
func (p *Plane) Offset(x, y int) int {
	return (y+p.Pad)*p.Stride + x + p.Pad
}

// At returns sample (x, y).
func (p *Plane) At(x, y int) uint8 {
	return p.Pix[p.Offset(x, y)]
}

// PlaneLen returns the length of Pix for a w x h plane with pad margin.
func PlaneLen(w, h, pad int) int { return (w + 2*pad) * (h + 2*pad) }

// WrapPlane lays a w x h plane with pad margin over pix, which must hold at
// least PlaneLen(w, h, pad) samples.
func WrapPlane(pix []uint8, w, h, pad int) *Plane {
	return &Plane{
		Pix:    pix[:PlaneLen(w, h, pad)],
		Stride: w + 2*pad,
		Width:  w,
		Height: h,
		Pad:    pad,
	}
}

// PadRows replicates the border samples of rows [y0, y1) into the left and
// right margin, and when the range touches the top or bottom edge also into
// the top or bottom margin.
func (p *Plane) PadRows(y0, y1 int) {
	p.PadEdges(y0, y1, true, true)
	if y0 == 0 {
		p.padTop()
	}
	if y1 == p.Height {
		p.padBottom()
	}
}

// PadEdges replicates the first and last sample of rows [y0, y1) into the
// left and right margin, each only when requested. A side that is not
// requested is neither read nor written, so workers owning the two picture
// edges may pad concurrently.
func (p *Plane) PadEdges(y0, y1 int, left, right bool) {
	if p.Pad == 0 {
		return
	}
	for y := y0; y < y1; y++ {
		row := p.Offset(0, y)
		if left {
			l := p.Pix[row]
			for i := 1; i <= p.Pad; i++ {
				p.Pix[row-i] = l
			}
		}
		if right {
			end := row + p.Width - 1
			r := p.Pix[end]
			for i := 1; i <= p.Pad; i++ {
				p.Pix[end+i] = r
			}
		}
	}
}

// PadVertical replicates the first and last padded rows into the top and
// bottom margin. The left and right margins must already be padded.
func (p *Plane) PadVertical() {
	p.padTop()
	p.padBottom()
}

func (p *Plane) padTop() {
	if p.Pad == 0 {
		return
	}
	src := p.Offset(-p.Pad, 0)
	for i := 1; i <= p.Pad; i++ {
		copy(p.Pix[src-i*p.Stride:src-i*p.Stride+p.Stride], p.Pix[src:src+p.Stride])
	}
}

func (p *Plane) padBottom() {
	if p.Pad == 0 {
		return
	}
	src := p.Offset(-p.Pad, p.Height-1)
	for i := 1; i <= p.Pad; i++ {
		copy(p.Pix[src+i*p.Stride:src+i*p.Stride+p.Stride], p.Pix[src:src+p.Stride])
	}
}

// Clone returns a deep copy of p.
func (p *Plane) Clone() *Plane {
	c := *p
	c.Pix = append([]uint8(nil), p.Pix...)
	return &c
}
