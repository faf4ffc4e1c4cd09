// Command hevccu runs the HEVC CU decision core over raw video and inspects
// decision traces.
//
// Usage:
//
//	hevccu enc [options] <input.yuv>   Encode raw I420 and print per-frame statistics
//	hevccu trace [-cus] <trace.zst>    Dump a decision trace
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deepteams/hevcenc"
	"github.com/deepteams/hevcenc/internal/trace"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "enc":
		err = runEnc(os.Args[2:], os.Stdout, os.Stderr)
	case "trace":
		err = runTrace(os.Args[2:], os.Stdout)
	case "-h", "-help", "--help", "help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "hevccu: unknown command %q\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hevccu: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage:
  hevccu enc [options] <input.yuv>   Encode raw 8-bit I420 and print per-frame statistics
  hevccu trace [-cus] <trace.zst>    Dump a decision trace written by "enc -trace"

Use "-" as input to read from stdin.

Run "hevccu <command> -h" for command-specific options.
`)
}

// openInput returns the file at path, or stdin for "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// --- enc ---

func runEnc(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("enc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	width := fs.Int("width", 0, "picture width (multiple of 8)")
	height := fs.Int("height", 0, "picture height (multiple of 8)")
	ctb := fs.Int("ctb", 64, "CTB size: 16, 32 or 64")
	minCU := fs.Int("mincu", 8, "minimum CU size: 8 or 16")
	preset := fs.String("preset", "fast", "preset: fastest/fast/thorough")
	qps := fs.String("qp", "32", "comma separated QPs, one bitrate instance each")
	threads := fs.Int("threads", 0, "worker count (0=GOMAXPROCS)")
	tiles := fs.Int("tiles", 1, "uniform tile columns")
	spin := fs.Bool("spin", false, "spin instead of blocking while waiting for the row above")
	intraPeriod := fs.Int("intra-period", 0, "force an I slice every N pictures (0=first only)")
	frames := fs.Int("frames", 0, "stop after N pictures (0=all)")
	noZeroCbf := fs.Bool("nozerocbf", false, "do not try inter candidates without residual")
	fastMetric := fs.Bool("fast-metric", false, "order inter candidates by motion search SAD")
	noDeblock := fs.Bool("nodeblock", false, "disable the deblocking filter")
	noSAO := fs.Bool("nosao", false, "disable SAO")
	tracePath := fs.String("trace", "", "write a compressed decision trace to this path")
	reconPath := fs.String("o", "", "write the reconstructed luma of the first instance to this path")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("enc: missing input file\nUsage: hevccu enc [options] <input.yuv>")
	}

	opts := hevcenc.DefaultOptions()
	opts.Width, opts.Height = *width, *height
	opts.CTBSize = *ctb
	opts.MinCUSize = *minCU
	opts.Threads = *threads
	opts.TileColumns = *tiles
	opts.Spin = *spin
	opts.IntraPeriod = *intraPeriod
	opts.DisableZeroCbf = *noZeroCbf
	opts.FastMetric = *fastMetric
	opts.DisableDeblock = *noDeblock
	opts.DisableSAO = *noSAO
	p, err := parsePreset(*preset)
	if err != nil {
		return err
	}
	opts.Preset = p
	if opts.QPs, err = parseQPs(*qps); err != nil {
		return err
	}
	enc, err := hevcenc.NewEncoder(opts)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}

	in, err := openInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()

	var tw *hevcenc.TraceWriter
	if *tracePath != "" {
		f, err := os.Create(*tracePath)
		if err != nil {
			return err
		}
		defer f.Close()
		if tw, err = hevcenc.NewTraceWriter(f); err != nil {
			return err
		}
	}
	var (
		recon io.Writer
		rbuf  *bufio.Writer
	)
	if *reconPath != "" {
		f, err := os.Create(*reconPath)
		if err != nil {
			return err
		}
		defer f.Close()
		rbuf = bufio.NewWriter(f)
		recon = rbuf
	}

	n, elapsed, err := encodeStream(enc, opts, in, *frames, stdout, tw, recon)
	if err != nil {
		return fmt.Errorf("enc: %w", err)
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return fmt.Errorf("enc: trace: %w", err)
		}
	}
	if rbuf != nil {
		if err := rbuf.Flush(); err != nil {
			return err
		}
	}
	fps := 0.0
	if elapsed > 0 {
		fps = float64(n) / elapsed.Seconds()
	}
	fmt.Fprintf(stderr, "Encoded %d pictures x %d instances with %s kernels in %v (%.1f fps)\n",
		n, len(opts.QPs), enc.Kernels(), elapsed.Round(time.Millisecond), fps)
	return nil
}

// encodeStream encodes I420 pictures from r until EOF or limit pictures and
// prints one statistics line per picture and instance.
func encodeStream(enc *hevcenc.Encoder, opts *hevcenc.Options, r io.Reader, limit int, stdout io.Writer,
	tw *hevcenc.TraceWriter, recon io.Writer) (int, time.Duration, error) {
	w, h := opts.Width, opts.Height
	luma := make([]uint8, w*h)
	chroma := make([]uint8, 2*((w+1)/2)*((h+1)/2))
	br := bufio.NewReaderSize(r, 1<<20)

	fmt.Fprintln(stdout, "pic inst type qp   ctbs   cus intra inter  skip      bits       psnr   ssim")
	var elapsed time.Duration
	n := 0
	for limit <= 0 || n < limit {
		if _, err := io.ReadFull(br, luma); err != nil {
			if err == io.EOF {
				break
			}
			return n, elapsed, fmt.Errorf("picture %d: %w", n, err)
		}
		if _, err := io.ReadFull(br, chroma); err != nil {
			return n, elapsed, fmt.Errorf("picture %d chroma: %w", n, err)
		}
		start := time.Now()
		results, err := enc.Encode(&hevcenc.Picture{Width: w, Height: h, Y: luma})
		elapsed += time.Since(start)
		if err != nil {
			return n, elapsed, err
		}
		for i := range results {
			res := &results[i]
			s := &res.Stats
			typ := "P"
			if res.Intra {
				typ = "I"
			}
			fmt.Fprintf(stdout, "%3d %4d %4s %2d %6d %5d %5d %5d %5d %9.0f %7.2fdB %6.4f\n",
				res.Index, res.Instance, typ, res.QP, s.CTBs, s.CUs, s.IntraCUs, s.InterCUs, s.SkipCUs, s.Bits, s.PSNR, s.SSIM)
			if tw != nil {
				if err := tw.Write(res); err != nil {
					return n, elapsed, err
				}
			}
		}
		if recon != nil {
			if _, err := recon.Write(results[0].Recon); err != nil {
				return n, elapsed, err
			}
		}
		n++
	}
	return n, elapsed, nil
}

func parsePreset(s string) (hevcenc.Preset, error) {
	switch strings.ToLower(s) {
	case "fastest":
		return hevcenc.PresetFastest, nil
	case "fast":
		return hevcenc.PresetFast, nil
	case "thorough":
		return hevcenc.PresetThorough, nil
	default:
		return 0, fmt.Errorf("enc: unknown preset %q", s)
	}
}

func parseQPs(s string) ([]int, error) {
	var qps []int
	for _, f := range strings.Split(s, ",") {
		qp, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("enc: bad QP %q", f)
		}
		qps = append(qps, qp)
	}
	return qps, nil
}

// --- trace ---

func runTrace(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	cus := fs.Bool("cus", false, "list every CU")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("trace: missing input file\nUsage: hevccu trace [-cus] <trace.zst>")
	}

	in, err := openInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()

	r, err := trace.NewReader(in)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	defer r.Close()

	for {
		f, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		var modes [3]int
		var cost int64
		for i := range f.CUs {
			modes[f.CUs[i].Mode]++
			cost += f.CUs[i].Cost
		}
		fmt.Fprintf(stdout, "picture %d instance %d %s QP %d: %d CUs (intra %d, inter %d, skip %d), cost %d\n",
			f.Index, f.Instance, f.Slice, f.QP, len(f.CUs), modes[0], modes[1], modes[2], cost)
		if !*cus {
			continue
		}
		for i := range f.CUs {
			cu := &f.CUs[i]
			fmt.Fprintf(stdout, "  (%4d,%4d) %2d %-5s %-4s", cu.X, cu.Y, cu.Size, cu.Mode, cu.Part)
			switch cu.Mode {
			case hevcenc.PredIntra:
				fmt.Fprintf(stdout, " modes %v", cu.Intra[:cu.Part.NumParts()])
			case hevcenc.PredSkip:
				fmt.Fprintf(stdout, " merge %d", cu.Merge)
			default:
				fmt.Fprintf(stdout, " mv %v", cu.MV[:min(cu.Part.NumParts(), len(cu.MV))])
			}
			fmt.Fprintf(stdout, " cbf=%v cost %d\n", cu.Cbf, cu.Cost)
		}
	}
}
