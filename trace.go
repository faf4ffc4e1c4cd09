package hevcenc

import (
	"errors"
	"fmt"
	"io"

	"github.com/deepteams/hevcenc/internal/trace"
)

// TraceWriter records the CU decisions of encoded frames as a compressed
// stream, one record per FrameResult. The stream can be dumped with
// "hevccu trace".
type TraceWriter struct {
	w *trace.Writer
}

// NewTraceWriter starts a trace on w.
func NewTraceWriter(w io.Writer) (*TraceWriter, error) {
	tw, err := trace.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("hevcenc: %w", err)
	}
	return &TraceWriter{w: tw}, nil
}

// Write appends the decisions of r.
func (t *TraceWriter) Write(r *FrameResult) error {
	if r.res == nil {
		return errors.New("hevcenc: frame result not produced by an Encoder")
	}
	return t.w.WriteFrame(trace.FromResult(r.Index, r.Instance, r.cfg, r.res))
}

// Close flushes the trace. It does not close the underlying writer.
func (t *TraceWriter) Close() error { return t.w.Close() }
