package frame

import (
	"github.com/deepteams/hevcenc/internal/cabac"
	"github.com/deepteams/hevcenc/internal/recursion"
	"github.com/deepteams/hevcenc/internal/types"
)

// Stats accumulates what rate control reads back after a frame.
type Stats struct {
	CTBs    int
	CUs     int
	Intra   int
	Inter   int
	Skip    int
	SAD     int64  // source against pre-filter reconstruction
	Dist    int64  // SSE of the decided CUs
	Bits    uint64 // Q15
	Cost    int64
	SAOCTBs int
}

func (s *Stats) addCTB(r *recursion.CTBResult, sad int) {
	s.CTBs++
	s.SAD += int64(sad)
	s.Dist += r.Dist
	s.Bits += r.Bits
	s.Cost += r.Cost
	for i := range r.CUs {
		s.CUs++
		switch r.CUs[i].Mode {
		case types.PredIntra:
			s.Intra++
		case types.PredInter:
			s.Inter++
		case types.PredSkip:
			s.Skip++
		}
	}
}

// Add merges o into s.
func (s *Stats) Add(o *Stats) {
	s.CTBs += o.CTBs
	s.CUs += o.CUs
	s.Intra += o.Intra
	s.Inter += o.Inter
	s.Skip += o.Skip
	s.SAD += o.SAD
	s.Dist += o.Dist
	s.Bits += o.Bits
	s.Cost += o.Cost
	s.SAOCTBs += o.SAOCTBs
}

// EstimatedBits returns Bits in whole bits.
func (s *Stats) EstimatedBits() float64 { return float64(s.Bits) / cabac.BitScale }
