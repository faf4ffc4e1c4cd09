package sched

import "github.com/deepteams/hevcenc/internal/assert"

// Manager is a grid of counters, one per CTB row and tile column. Values
// are luma sample columns.
type Manager struct {
	rows, cols int
	c          []Counter
}

// NewManager returns a manager for rows x cols counters.
func NewManager(rows, cols int, mode WaitMode) *Manager {
	m := &Manager{rows: rows, cols: cols, c: make([]Counter, rows*cols)}
	for i := range m.c {
		m.c[i].init(mode)
	}
	return m
}

func (m *Manager) at(row, col int) *Counter {
	assert.That(row >= 0 && row < m.rows && col >= 0 && col < m.cols,
		"sched: counter (%d,%d) outside %dx%d", row, col, m.rows, m.cols)
	return &m.c[row*m.cols+col]
}

// Advance raises the counter of (row, col) to v.
func (m *Manager) Advance(row, col, v int) { m.at(row, col).Advance(v) }

// Value returns the counter of (row, col).
func (m *Manager) Value(row, col int) int { return m.at(row, col).Value() }

// WaitUntil blocks until the counter of (rowDep, col) reaches
// position+offset. A negative offset or rowDep means there is nothing to
// wait for.
func (m *Manager) WaitUntil(col, position, offset, rowDep int) {
	if offset < 0 || rowDep < 0 {
		return
	}
	m.at(rowDep, col).WaitAtLeast(position + offset)
}

// Reset zeroes every counter. Call it before the first row of a frame
// starts.
func (m *Manager) Reset() {
	for i := range m.c {
		m.c[i].Reset()
	}
}

// Abort releases every waiter for good.
func (m *Manager) Abort() {
	for i := range m.c {
		m.c[i].Advance(Done)
	}
}

// FrameSync is the set of managers of one frame of one bitrate instance.
type FrameSync struct {
	// CU counts decided luma columns. Row y waits for row y-1 to cover the
	// top-right CTB.
	CU *Manager
	// Deblock counts luma columns that no longer change by deblocking of
	// their own row.
	Deblock *Manager
	// SAO counts luma columns with the sample adaptive offset applied.
	SAO *Manager
}

// NewFrameSync allocates the three managers.
func NewFrameSync(rows, cols int, mode WaitMode) *FrameSync {
	return &FrameSync{
		CU:      NewManager(rows, cols, mode),
		Deblock: NewManager(rows, cols, mode),
		SAO:     NewManager(rows, cols, mode),
	}
}

// Fits reports whether fs can serve a rows x cols frame in mode.
func (fs *FrameSync) Fits(rows, cols int, mode WaitMode) bool {
	return fs.CU.rows == rows && fs.CU.cols == cols && fs.CU.c[0].mode == mode
}

// Reset zeroes every counter.
func (fs *FrameSync) Reset() {
	fs.CU.Reset()
	fs.Deblock.Reset()
	fs.SAO.Reset()
}

// Abort releases every waiter of the frame.
func (fs *FrameSync) Abort() {
	fs.CU.Abort()
	fs.Deblock.Abort()
	fs.SAO.Abort()
}
