package modedec

import (
	"math"

	"github.com/deepteams/hevcenc/internal/cabac"
)

// DistScale is the fixed-point weight of distortion in RD costs.
const DistScale = 256

// MaxCost is the initial best cost. Every real CU cost stays far below it.
const MaxCost int64 = math.MaxInt64 >> 2

// RDCost combines distortion and Q15 bits into a fixed-point cost:
// DistScale*dist + lambda*bits, with lambda in Q8.
func RDCost(dist int64, bits uint64, lambda int64) int64 {
	return dist*DistScale + lambda*int64(bits)/cabac.BitScale
}
