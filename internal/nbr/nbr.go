// Package nbr tracks what is known about already-coded neighbours of the
// CU being decided: a coded bitmap and 4x4 metadata for the CTB interior, a
// left band holding the right edge of the previous CTB, and top bands holding
// the bottom edge of the CTB row above.
//
// Top bands alternate by row parity. Row r reads band (r-1)&1 and writes
// band r&1; the CU top-right wait keeps every writer at least two CTBs
// behind the reader of the band it overwrites.
package nbr

import "github.com/deepteams/hevcenc/internal/types"

// Info is the metadata kept per 4x4 luma block once a CU is committed.
type Info struct {
	Skip      bool
	Intra     bool
	Cbf       bool
	QP        int8
	IntraMode uint8
	Depth     uint8
	TULog2    uint8
	RefIdx    int8   // -1 when the block is intra
	CU        uint16 // CU sequence number within the CTB, from 1
	MV        types.MV
}

// Band is one top band: metadata and pre-deblocking samples of the bottom
// line of a CTB row.
type Band struct {
	Info []Info
	Pix  []uint8
}

// Bands is the per-frame pair of top bands.
type Bands struct {
	b [2]Band
}

// NewBands allocates bands for a frame of the given luma width.
func NewBands(width int) *Bands {
	w4 := (width + 3) / 4
	bs := &Bands{}
	for i := range bs.b {
		bs.b[i] = Band{Info: make([]Info, w4), Pix: make([]uint8, w4*4)}
	}
	return bs
}

// ForRow returns the band row r writes.
func (bs *Bands) ForRow(r int) *Band { return &bs.b[r&1] }

// Geometry describes where the current CTB sits.
type Geometry struct {
	CTBSize       int
	CTBX, CTBY    int // in CTB units
	Width, Height int // frame luma size
	TileX0        int // first luma column of the tile
	TileX1        int // end luma column of the tile (exclusive)
}

// Map is the per-worker neighbour state for one CTB at a time.
type Map struct {
	geo   Geometry
	n4    int
	x0    int // CTB luma origin
	y0    int
	top   *Band // nil on the first row
	out   *Band
	left  [16]Info
	lpix  [64]uint8
	hasL  bool
	grid  [16 * 16]Info
	coded [16]uint16
	Recon [64 * 64]uint8 // CTB-local reconstruction, stride 64
}

// ReconStride is the stride of Map.Recon.
const ReconStride = 64

// StartRow prepares the map for the first CTB of a row segment.
func (m *Map) StartRow(geo Geometry, bands *Bands) {
	m.geo = geo
	m.n4 = geo.CTBSize / 4
	m.top = nil
	if geo.CTBY > 0 {
		m.top = bands.ForRow(geo.CTBY - 1)
	}
	m.out = bands.ForRow(geo.CTBY)
	m.hasL = false
}

// StartCTB moves to CTB column ctbX of the current row and clears the
// interior state.
func (m *Map) StartCTB(ctbX int) {
	m.geo.CTBX = ctbX
	m.x0 = ctbX * m.geo.CTBSize
	m.y0 = m.geo.CTBY * m.geo.CTBSize
	m.hasL = m.x0 > m.geo.TileX0
	m.coded = [16]uint16{}
	m.grid = [16 * 16]Info{}
}

// Geometry returns the current CTB placement.
func (m *Map) Geometry() Geometry { return m.geo }

// Origin returns the luma position of the current CTB.
func (m *Map) Origin() (x, y int) { return m.x0, m.y0 }

// Available reports whether the 4x4 block at CTB-relative unit (x4, y4)
// is coded and usable for prediction.
func (m *Map) Available(x4, y4 int) bool {
	fx, fy := m.x0+x4*4, m.y0+y4*4
	if fx < m.geo.TileX0 || fx >= m.geo.TileX1 || fy < 0 || fy >= m.geo.Height {
		return false
	}
	switch {
	case y4 < 0:
		// The row above is complete up to the top-right CTB.
		return m.top != nil && x4 < 2*m.n4
	case x4 < 0:
		return m.hasL && y4 < m.n4
	case x4 >= m.n4 || y4 >= m.n4:
		return false
	}
	return m.coded[y4]&(1<<x4) != 0
}

// At returns the metadata at CTB-relative unit (x4, y4) and whether it is
// available.
func (m *Map) At(x4, y4 int) (Info, bool) {
	if !m.Available(x4, y4) {
		return Info{}, false
	}
	switch {
	case y4 < 0:
		return m.top.Info[m.x0/4+x4], true
	case x4 < 0:
		return m.left[y4], true
	}
	return m.grid[y4*16+x4], true
}

// Pixel returns the reconstructed luma sample at CTB-relative (x, y). The
// caller must have checked availability of the enclosing 4x4 block.
// Samples left of the CTB come from the left band and samples above it from
// the top band, never from the frame buffer, which may already be
// deblocked.
func (m *Map) Pixel(x, y int) uint8 {
	switch {
	case y < 0:
		return m.top.Pix[m.x0+x]
	case x < 0:
		return m.lpix[y]
	}
	return m.Recon[y*ReconStride+x]
}

// Set writes info for a w4 x h4 area at (x4, y4) and marks it coded.
func (m *Map) Set(x4, y4, w4, h4 int, info Info) {
	for y := y4; y < y4+h4; y++ {
		for x := x4; x < x4+w4; x++ {
			m.grid[y*16+x] = info
		}
		m.coded[y] |= uint16((1<<w4)-1) << x4
	}
}

// Clear marks a w4 x h4 area uncoded again, undoing a speculative Set.
func (m *Map) Clear(x4, y4, w4, h4 int) {
	for y := y4; y < y4+h4; y++ {
		m.coded[y] &^= uint16((1<<w4)-1) << x4
	}
}

// Coded reports whether the interior unit (x4, y4) is coded.
func (m *Map) Coded(x4, y4 int) bool {
	return m.coded[y4]&(1<<x4) != 0
}

// FinishCTB copies the bottom line of the CTB into the top band written by
// this row and the right column into the left band for the next CTB. w and h
// are the valid (clipped) CTB dimensions.
func (m *Map) FinishCTB(w, h int) {
	last4 := (h+3)/4 - 1
	for x4 := 0; x4 < (w+3)/4; x4++ {
		m.out.Info[m.x0/4+x4] = m.grid[last4*16+x4]
	}
	copy(m.out.Pix[m.x0:m.x0+w], m.Recon[(h-1)*ReconStride:(h-1)*ReconStride+w])
	r4 := (w+3)/4 - 1
	for y4 := 0; y4 < m.n4; y4++ {
		m.left[y4] = m.grid[y4*16+r4]
	}
	for y := 0; y < h; y++ {
		m.lpix[y] = m.Recon[y*ReconStride+w-1]
	}
}
