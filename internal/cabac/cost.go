package cabac

import "math"

// BitScale is the fixed-point scale of fractional bit counts (Q15).
const BitScale = 1 << 15

// entropyBits[state<<1 | isLPS] is the cost of coding one bin in Q15 bits.
var entropyBits [128]uint32

func init() {
	alpha := math.Pow(0.01875/0.5, 1.0/63)
	for s := 0; s < 64; s++ {
		pLPS := 0.5 * math.Pow(alpha, float64(s))
		entropyBits[s<<1] = uint32(math.Round(-math.Log2(1-pLPS) * BitScale))
		entropyBits[s<<1|1] = uint32(math.Round(-math.Log2(pLPS) * BitScale))
	}
}

// BinCost returns the Q15 cost of coding bin with model ctx without
// updating it.
func (c *Contexts) BinCost(ctx Ctx, bin int) uint32 {
	state, mps := c.State(ctx)
	lps := 0
	if bin != mps {
		lps = 1
	}
	return entropyBits[state<<1|lps]
}
