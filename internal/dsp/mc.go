package dsp

import "github.com/deepteams/hevcenc/internal/types"

// lumaFilter holds the 8-tap interpolation filters for quarter positions.
var lumaFilter = [4][8]int{
	{0, 0, 0, 64, 0, 0, 0, 0},
	{-1, 4, -10, 58, 17, -5, 1, 0},
	{-1, 4, -11, 40, 40, -11, 4, -1},
	{0, 1, -5, 17, 58, -10, 4, -1},
}

// ClampMV limits mv so that a w x h block at (x, y) plus the filter taps
// stays inside the padded reference plane.
func ClampMV(ref *types.Plane, x, y, w, h int, mv types.MV) types.MV {
	lo := func(pos int) int { return (-ref.Pad + 3 - pos) * 4 }
	hiX := (ref.Width + ref.Pad - w - 5 - x) * 4
	hiY := (ref.Height + ref.Pad - h - 5 - y) * 4
	mx := min(max(int(mv.X), lo(x)), hiX)
	my := min(max(int(mv.Y), lo(y)), hiY)
	return types.MV{X: int16(mx), Y: int16(my)}
}

func motionCompensate(ref *types.Plane, x, y, w, h int, mv types.MV, dst []uint8, dstStride int) {
	mv = ClampMV(ref, x, y, w, h, mv)
	ix, iy := x+int(mv.X>>2), y+int(mv.Y>>2)
	fx, fy := int(mv.X&3), int(mv.Y&3)
	src := ref.Pix
	stride := ref.Stride
	base := ref.Offset(ix, iy)

	switch {
	case fx == 0 && fy == 0:
		for j := 0; j < h; j++ {
			copy(dst[j*dstStride:j*dstStride+w], src[base+j*stride:base+j*stride+w])
		}
	case fy == 0:
		c := &lumaFilter[fx]
		for j := 0; j < h; j++ {
			row := base + j*stride - 3
			for i := 0; i < w; i++ {
				s := 0
				for k := 0; k < 8; k++ {
					s += c[k] * int(src[row+i+k])
				}
				dst[j*dstStride+i] = Clip8((s + 32) >> 6)
			}
		}
	case fx == 0:
		c := &lumaFilter[fy]
		for j := 0; j < h; j++ {
			col := base + (j-3)*stride
			for i := 0; i < w; i++ {
				s := 0
				for k := 0; k < 8; k++ {
					s += c[k] * int(src[col+i+k*stride])
				}
				dst[j*dstStride+i] = Clip8((s + 32) >> 6)
			}
		}
	default:
		ch, cv := &lumaFilter[fx], &lumaFilter[fy]
		var tmp [(64 + 7) * 64]int32
		for j := 0; j < h+7; j++ {
			row := base + (j-3)*stride - 3
			for i := 0; i < w; i++ {
				s := 0
				for k := 0; k < 8; k++ {
					s += ch[k] * int(src[row+i+k])
				}
				tmp[j*w+i] = int32(s)
			}
		}
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				s := 0
				for k := 0; k < 8; k++ {
					s += cv[k] * int(tmp[(j+k)*w+i])
				}
				dst[j*dstStride+i] = Clip8((s + 2048) >> 12)
			}
		}
	}
}
