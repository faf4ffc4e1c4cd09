// Package hevcenc is the CU decision and row-parallel scheduling core of an
// HEVC encoder, written in pure Go.
//
// For every coding tree block (CTB) the encoder runs a pre-analysis pass,
// sifts the inter and intra candidates of each coding unit (CU), compares
// them by rate-distortion cost with CABAC rate estimates and recurses over
// the CU quad-tree. CTB rows run in parallel along a diagonal wavefront;
// deblocking and SAO follow the decisions on the same workers.
//
// The package covers:
//   - 8-bit luma, CTB sizes 16, 32 and 64, minimum CU size 8 or 16
//   - I and P slices, P slices predicting from the previous reconstruction
//   - uniform tile columns, each decided independently
//   - several bitrate instances of the same picture sharing one worker pool
//   - a compressed trace of every CU decision
//
// Entropy bit writing is not part of the package: the committed CUs of a
// frame are returned for a bitstream writer to consume.
//
// Basic usage:
//
//	opts := hevcenc.DefaultOptions()
//	opts.Width, opts.Height = 1280, 720
//	enc, err := hevcenc.NewEncoder(opts)
//	if err != nil {
//		return err
//	}
//	results, err := enc.Encode(&hevcenc.Picture{Width: 1280, Height: 720, Y: luma})
package hevcenc
