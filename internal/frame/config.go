// Package frame drives the encode of one picture: it splits the picture
// into CTB row jobs per tile column and runs analysis, CU decision,
// deblocking and SAO along a diagonal wavefront synchronised by the
// progress counters of package sched.
package frame

import (
	"errors"
	"fmt"

	"github.com/deepteams/hevcenc/internal/sched"
	"github.com/deepteams/hevcenc/internal/sift"
	"github.com/deepteams/hevcenc/internal/types"
)

// ErrConfig reports an invalid frame configuration.
var ErrConfig = errors.New("frame: invalid configuration")

// RefPad is the margin of reconstructed pictures, enough for the motion
// search range of every preset plus the interpolation taps.
const RefPad = 32

// Config is the immutable per-frame configuration shared by all workers.
type Config struct {
	Width, Height int
	CTBSize       int
	MinCU         int
	QP            int
	Lambda        int64 // Q8
	SATDLambda    int   // Q8
	Slice         types.SliceType
	Preset        int
	Wait          sched.WaitMode
	TileCols      int
	ZeroCbf       bool
	Deblock       bool
	SAO           bool
	Metric        sift.Metric
}

// Validate checks cfg.
func (c *Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0 || c.Width%8 != 0 || c.Height%8 != 0:
		return fmt.Errorf("%w: picture %dx%d is not a positive multiple of 8", ErrConfig, c.Width, c.Height)
	case c.CTBSize != 16 && c.CTBSize != 32 && c.CTBSize != 64:
		return fmt.Errorf("%w: CTB size %d", ErrConfig, c.CTBSize)
	case c.MinCU != 8 && c.MinCU != 16 || c.MinCU > c.CTBSize:
		return fmt.Errorf("%w: minimum CU size %d with CTB size %d", ErrConfig, c.MinCU, c.CTBSize)
	case c.Width%c.MinCU != 0 || c.Height%c.MinCU != 0:
		return fmt.Errorf("%w: picture %dx%d is not a multiple of the minimum CU size %d", ErrConfig, c.Width, c.Height, c.MinCU)
	case c.QP < 0 || c.QP > 51:
		return fmt.Errorf("%w: QP %d", ErrConfig, c.QP)
	case c.Lambda < 0 || c.SATDLambda < 0:
		return fmt.Errorf("%w: negative lambda", ErrConfig)
	case c.Preset < 0 || c.Preset > 2:
		return fmt.Errorf("%w: preset %d", ErrConfig, c.Preset)
	case c.TileCols < 1 || c.TileCols > c.CTBCols():
		return fmt.Errorf("%w: %d tile columns for %d CTB columns", ErrConfig, c.TileCols, c.CTBCols())
	case c.Slice != types.SliceI && c.Slice != types.SliceP:
		return fmt.Errorf("%w: slice type %d", ErrConfig, c.Slice)
	}
	return nil
}

// CTBCols returns the number of CTB columns.
func (c *Config) CTBCols() int { return (c.Width + c.CTBSize - 1) / c.CTBSize }

// CTBRows returns the number of CTB rows.
func (c *Config) CTBRows() int { return (c.Height + c.CTBSize - 1) / c.CTBSize }

// Tile returns the CTB column range [x0, x1) of tile column t. Tiles are
// spread uniformly.
func (c *Config) Tile(t int) (x0, x1 int) {
	cols := c.CTBCols()
	return t * cols / c.TileCols, (t + 1) * cols / c.TileCols
}

// tileLuma returns the luma column range of tile column t.
func (c *Config) tileLuma(t int) (x0, x1 int) {
	a, b := c.Tile(t)
	return a * c.CTBSize, min(b*c.CTBSize, c.Width)
}
