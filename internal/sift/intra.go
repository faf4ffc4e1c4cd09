package sift

import (
	"github.com/deepteams/hevcenc/internal/cutree"
	"github.com/deepteams/hevcenc/internal/dsp"
	"github.com/deepteams/hevcenc/internal/nbr"
	"github.com/deepteams/hevcenc/internal/types"
)

// SizeClass is an intra partition/transform arrangement.
type SizeClass uint8

const (
	// ClassCUEqTU predicts and transforms the CU as one block.
	ClassCUEqTU SizeClass = iota
	// ClassNxN splits a minimum-size CU into four PUs with their own modes.
	ClassNxN
	// ClassDiv2TU keeps one mode but codes four half-size transforms.
	ClassDiv2TU
	NumClasses
)

func (c SizeClass) String() string {
	return [...]string{"cu=tu", "nxn", "tu/2"}[c]
}

// MaxIntraCands is the capacity of one class list.
const MaxIntraCands = types.NumIntraModes

// IntraCand is one intra mode of a class list.
type IntraCand struct {
	Mode  int
	Class SizeClass
	Eval  bool
	Cost  int // analysis SATD; zero for modes added by policy
}

// ClassList holds the candidates of one size class.
type ClassList struct {
	Allowed bool
	Cands   [MaxIntraCands]IntraCand
	N       int
}

// Has reports whether mode is already listed.
func (c *ClassList) Has(mode int) bool {
	for i := 0; i < c.N; i++ {
		if c.Cands[i].Mode == mode {
			return true
		}
	}
	return false
}

// Add appends mode unless it is already listed.
func (c *ClassList) Add(mode int, class SizeClass, eval bool) {
	if c.N == MaxIntraCands || c.Has(mode) {
		return
	}
	c.Cands[c.N] = IntraCand{Mode: mode, Class: class, Eval: eval}
	c.N++
}

// Evaluated returns the number of marked candidates.
func (c *ClassList) Evaluated() int {
	n := 0
	for i := 0; i < c.N; i++ {
		if c.Cands[i].Eval {
			n++
		}
	}
	return n
}

// IntraList is the sifted intra candidate set of a CU.
type IntraList struct {
	Classes [NumClasses]ClassList
	MPM     [3]int
}

// Evaluated returns the number of marked candidates over all classes.
func (l *IntraList) Evaluated() int {
	n := 0
	for ci := range l.Classes {
		if l.Classes[ci].Allowed {
			n += l.Classes[ci].Evaluated()
		}
	}
	return n
}

// MPMFilter adjusts the eval marks of one class list using the most probable
// modes. It only affects compression efficiency.
type MPMFilter interface {
	Filter(c *ClassList, class SizeClass, mpm [3]int, slice types.SliceType)
}

// MPMPrefilter adds the most probable modes, which are cheap to signal, to
// every class at the slower presets. At the fastest preset in P slices it
// keeps only the best analysed mode and the modes that are also MPMs.
type MPMPrefilter struct {
	Preset int
}

func (f MPMPrefilter) Filter(c *ClassList, class SizeClass, mpm [3]int, slice types.SliceType) {
	if f.Preset == 0 {
		if slice != types.SliceP {
			return
		}
		for i := 1; i < c.N; i++ {
			if !isMPM(c.Cands[i].Mode, mpm) {
				c.Cands[i].Eval = false
			}
		}
		return
	}
	for _, m := range mpm {
		c.Add(m, class, true)
	}
}

// NoMPMFilter leaves the lists unchanged.
type NoMPMFilter struct{}

func (NoMPMFilter) Filter(*ClassList, SizeClass, [3]int, types.SliceType) {}

func isMPM(mode int, mpm [3]int) bool {
	return mode == mpm[0] || mode == mpm[1] || mode == mpm[2]
}

// neighbourMode returns the intra mode of a neighbour for MPM derivation:
// DC when it is unavailable, not intra, or above the CTB.
func neighbourMode(m *nbr.Map, x4, y4 int) int {
	if y4 < 0 {
		return types.DCMode
	}
	info, ok := m.At(x4, y4)
	if !ok || !info.Intra {
		return types.DCMode
	}
	return int(info.IntraMode)
}

// MPM derives the three most probable modes of the block whose top-left
// 4x4 unit is (x4, y4), CTB-relative.
func MPM(m *nbr.Map, x4, y4 int) [3]int {
	a := neighbourMode(m, x4-1, y4)
	b := neighbourMode(m, x4, y4-1)
	if a == b {
		if a < 2 {
			return [3]int{types.PlanarMode, types.DCMode, types.VerMode}
		}
		return [3]int{a, 2 + (a+29)%32, 2 + (a-2+1)%32}
	}
	c := types.VerMode
	switch {
	case a != types.PlanarMode && b != types.PlanarMode:
		c = types.PlanarMode
	case a != types.DCMode && b != types.DCMode:
		c = types.DCMode
	}
	return [3]int{a, b, c}
}

// Intra sifts the intra candidates of cu from the analysed mode ranking of
// node.
func (s *Sifter) Intra(cu CU, node *cutree.Node, m *nbr.Map, slice types.SliceType) IntraList {
	var l IntraList
	l.MPM = MPM(m, cu.X/4, cu.Y/4)
	limit := maxIntraEval[s.preset()]

	allowed := [NumClasses]bool{
		ClassCUEqTU: cu.Size <= dsp.MaxTU,
		ClassNxN:    cu.Size == s.cfg.MinCU && cu.Size == 8,
		ClassDiv2TU: cu.Size >= 16 && (s.preset() > 0 || cu.Size > dsp.MaxTU),
	}
	for ci := range l.Classes {
		c := &l.Classes[ci]
		c.Allowed = allowed[ci]
		if !c.Allowed {
			continue
		}
		class := SizeClass(ci)
		n := limit
		if class != ClassCUEqTU {
			n = max(limit/2, 1)
		}
		for i := 0; i < node.NumIntra; i++ {
			c.Cands[c.N] = IntraCand{
				Mode:  int(node.IntraModes[i]),
				Class: class,
				Eval:  i < n,
				Cost:  node.IntraSATD[i],
			}
			c.N++
		}
		if c.N == 0 {
			c.Add(types.PlanarMode, class, true)
		}
		s.cfg.MPM.Filter(c, class, l.MPM, slice)
	}
	return l
}
