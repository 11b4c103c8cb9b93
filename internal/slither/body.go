package slither

import (
	"math"

	"github.com/siohaza/slither/internal/geom"
)

const (
	// MassPerCell is how much mass one body cell represents.
	MassPerCell = 20.0

	compressedFactor = 0.5
	stretchedFactor  = 1.2

	// relative slack within which a link counts as exactly at its target length
	linkTolerance = 1e-3
)

// Body is the cell chain of a slither. cells[0] is the head.
type Body struct {
	cells []geom.Pos2
	mass  float32
	dir   float32
}

// NewBody lays out a straight body behind head, pointing at dir.
func NewBody(head geom.Pos2, dir, mass float32) *Body {
	b := &Body{mass: mass, dir: geom.WrapAngle(dir)}

	back := geom.FromAngle(b.dir).Scale(-b.CellsDist())
	b.cells = make([]geom.Pos2, b.Size())
	for i := range b.cells {
		b.cells[i] = head.Add(back.Scale(float32(i)))
	}

	return b
}

// RestoreBody rebuilds a body from its wire representation.
func RestoreBody(cells []geom.Pos2, mass, dir float32) *Body {
	c := make([]geom.Pos2, len(cells))
	copy(c, cells)
	return &Body{cells: c, mass: mass, dir: dir}
}

func (b *Body) Cells() []geom.Pos2 {
	return b.cells
}

func (b *Body) Head() geom.Pos2 {
	return b.cells[0]
}

func (b *Body) Tail() geom.Pos2 {
	return b.cells[len(b.cells)-1]
}

func (b *Body) Mass() float32 {
	return b.mass
}

func (b *Body) Dir() float32 {
	return b.dir
}

func (b *Body) ChangeMassBy(delta float32) {
	b.mass += delta
}

// Size is the target number of cells for the current mass.
func (b *Body) Size() int {
	n := int(math.Floor(float64(b.mass / MassPerCell)))
	if n < 1 {
		return 1
	}
	return n
}

func (b *Body) CellRadius() float32 {
	return float32(math.Sqrt(float64(b.mass)))
}

func (b *Body) CellsDist() float32 {
	return b.CellRadius()
}

// Resize grows or shrinks the cell list to Size(). New cells duplicate the tail.
func (b *Body) Resize() {
	size := b.Size()
	switch {
	case len(b.cells) > size:
		b.cells = b.cells[:size]
	case len(b.cells) < size:
		tail := b.Tail()
		for len(b.cells) < size {
			b.cells = append(b.cells, tail)
		}
	}
}

// ChangeDir turns toward newDir by at most maxDelta radians along the shorter arc.
func (b *Body) ChangeDir(newDir, maxDelta float32) {
	delta := geom.AngleDelta(b.dir, newDir)
	if delta >= -maxDelta && delta <= maxDelta {
		b.dir = geom.WrapAngle(newDir)
		return
	}
	delta = geom.Clamp(delta, -maxDelta, maxDelta)
	b.dir = geom.WrapAngle(b.dir + delta)
}

// MoveOn advances the head by distance and drags the rest of the chain after it.
//
// A link shorter than CellsDist lets its trailing cell travel half the distance,
// a longer one lets it travel 1.2 times the distance. Each cell walks toward the
// head along the already moved cells in front of it.
func (b *Body) MoveOn(distance float32) {
	target := b.CellsDist()
	slack := target * linkTolerance

	gaps := make([]float32, len(b.cells))
	for n := 1; n < len(b.cells); n++ {
		gaps[n] = b.cells[n-1].Distance(b.cells[n])
	}

	heading := geom.FromAngle(b.dir)
	b.cells[0] = b.cells[0].Add(heading.Scale(distance))

	for n := 1; n < len(b.cells); n++ {
		travel := distance
		switch {
		case gaps[n] < target-slack:
			travel *= compressedFactor
		case gaps[n] > target+slack:
			travel *= stretchedFactor
		}
		b.cells[n] = b.walk(n, travel, heading)
	}
}

func (b *Body) walk(n int, budget float32, heading geom.Vec2) geom.Pos2 {
	for k := n; k >= 1; k-- {
		seg := b.cells[k-1].Sub(b.cells[k])
		length := seg.Length()
		if budget > length {
			budget -= length
			continue
		}
		return b.cells[k].Add(seg.Normalized().Scale(budget))
	}
	return b.cells[0].Add(heading.Scale(budget))
}

// CrashedInto reports whether this head touches any cell of other.
func (b *Body) CrashedInto(other *Body) bool {
	head := b.Head()
	reach := b.CellRadius() + other.CellRadius()
	for _, cell := range other.cells {
		if head.Distance(cell) < reach {
			return true
		}
	}
	return false
}
