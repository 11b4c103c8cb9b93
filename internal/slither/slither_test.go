package slither

import (
	"math"
	"testing"

	"github.com/siohaza/slither/internal/geom"
)

func newTestBody(mass float32) *Body {
	return NewBody(geom.Pos2{X: 500, Y: 500}, 0, mass)
}

func TestNewBodyLayout(t *testing.T) {
	b := newTestBody(100)

	if got := len(b.Cells()); got != 5 {
		t.Fatalf("expected 5 cells for mass 100, got %d", got)
	}
	for n := 1; n < len(b.Cells()); n++ {
		gap := b.Cells()[n-1].Distance(b.Cells()[n])
		if math.Abs(float64(gap-b.CellsDist())) > 1e-3 {
			t.Fatalf("link %d has length %f, want %f", n, gap, b.CellsDist())
		}
		if b.Cells()[n].X >= b.Cells()[n-1].X {
			t.Fatalf("cell %d is not behind its predecessor", n)
		}
	}
}

func TestResizeIdempotent(t *testing.T) {
	b := newTestBody(100)
	b.ChangeMassBy(45)

	b.Resize()
	first := append([]geom.Pos2(nil), b.Cells()...)
	b.Resize()

	if len(first) != len(b.Cells()) {
		t.Fatalf("second resize changed cell count %d -> %d", len(first), len(b.Cells()))
	}
	for i := range first {
		if first[i] != b.Cells()[i] {
			t.Fatalf("second resize moved cell %d", i)
		}
	}
}

func TestResizeGrowsFromTail(t *testing.T) {
	b := newTestBody(100)
	tail := b.Tail()

	b.ChangeMassBy(40)
	b.Resize()

	if len(b.Cells()) != 7 {
		t.Fatalf("expected 7 cells, got %d", len(b.Cells()))
	}
	for _, c := range b.Cells()[5:] {
		if c != tail {
			t.Fatalf("grown cell %v does not duplicate tail %v", c, tail)
		}
	}

	b.ChangeMassBy(-100)
	b.Resize()
	if len(b.Cells()) != 2 {
		t.Fatalf("expected 2 cells after shrinking, got %d", len(b.Cells()))
	}
}

func TestChangeDirClamp(t *testing.T) {
	cases := []struct {
		name     string
		from, to float32
		dt       float32
	}{
		{"small turn", 0, 0.05, 0.1},
		{"large turn", 0, 2.5, 1.0 / 60},
		{"wraparound", 3.0, -3.0, 1.0 / 60},
		{"u-turn", math.Pi / 2, -math.Pi / 2, 0.02},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBody(geom.Pos2{}, tc.from, 100)
			limit := 4 * tc.dt
			remaining := math.Abs(float64(geom.AngleDelta(b.Dir(), tc.to)))

			for i := 0; i < 1000; i++ {
				before := b.Dir()
				b.ChangeDir(tc.to, limit)

				step := math.Abs(float64(geom.AngleDelta(before, b.Dir())))
				if step > float64(limit)+1e-5 {
					t.Fatalf("turned %f, limit %f", step, limit)
				}

				left := math.Abs(float64(geom.AngleDelta(b.Dir(), tc.to)))
				if left > remaining+1e-5 {
					t.Fatalf("moved away from target: %f > %f", left, remaining)
				}
				remaining = left
				if remaining < 1e-6 {
					return
				}
			}
			t.Fatalf("did not converge, %f left", remaining)
		})
	}
}

func TestChangeDirWrapsShortWay(t *testing.T) {
	b := NewBody(geom.Pos2{}, 3.0, 100)
	b.ChangeDir(-3.0, 0.1)

	// -3.0 is 0.28 rad away through π, so the heading must increase past 3.0
	if b.Dir() <= 3.0 && b.Dir() > 0 {
		t.Fatalf("turned the long way: dir %f", b.Dir())
	}
}

func TestMoveOnRigidChain(t *testing.T) {
	b := newTestBody(100)
	before := append([]geom.Pos2(nil), b.Cells()...)

	b.MoveOn(3)

	for i, c := range b.Cells() {
		dx := c.X - before[i].X
		if math.Abs(float64(dx-3)) > 1e-3 || math.Abs(float64(c.Y-before[i].Y)) > 1e-3 {
			t.Fatalf("cell %d moved by (%f, %f), want (3, 0)", i, dx, c.Y-before[i].Y)
		}
	}
}

func TestMoveOnCompressedLinkCatchesUpSlowly(t *testing.T) {
	b := newTestBody(100)
	b.ChangeMassBy(20)
	b.Resize()

	tail := b.Tail()
	b.MoveOn(4)

	moved := b.Tail().Distance(tail)
	if math.Abs(float64(moved-2)) > 1e-3 {
		t.Fatalf("compressed tail moved %f, want 2", moved)
	}
}

func TestMoveOnStretchedLinkCatchesUpFaster(t *testing.T) {
	cells := []geom.Pos2{{X: 100, Y: 0}, {X: 85, Y: 0}}
	b := RestoreBody(cells, 100, 0)

	b.MoveOn(5)

	if got := b.Cells()[0].X; math.Abs(float64(got-105)) > 1e-3 {
		t.Fatalf("head at %f, want 105", got)
	}
	if got := b.Cells()[1].X; math.Abs(float64(got-91)) > 1e-3 {
		t.Fatalf("stretched cell at %f, want 91", got)
	}
}

func TestMoveOnCascadesPastHead(t *testing.T) {
	cells := []geom.Pos2{{X: 10, Y: 0}, {X: 9, Y: 0}, {X: 0, Y: 0}}
	b := RestoreBody(cells, 4, 0)

	// budget exceeds the whole chain, so the last cell lands ahead of the head
	b.MoveOn(60)

	if got := b.Cells()[2].X; math.Abs(float64(got-72)) > 1e-3 {
		t.Fatalf("cell placed at %f, want 72", got)
	}
}

func TestCrashedInto(t *testing.T) {
	a := NewBody(geom.Pos2{X: 100, Y: 100}, 0, 100)
	b := NewBody(geom.Pos2{X: 115, Y: 100}, math.Pi, 100)
	far := NewBody(geom.Pos2{X: 400, Y: 400}, 0, 100)

	if !a.CrashedInto(b) || !b.CrashedInto(a) {
		t.Fatalf("expected head-to-head crash both ways")
	}
	if a.CrashedInto(far) {
		t.Fatalf("unexpected crash with a distant body")
	}
}

func TestMoveBoostedBurnsMass(t *testing.T) {
	s := New(DefaultTuning(), geom.RGB(255, 0, 0), geom.Pos2{X: 500, Y: 500}, 0, 100, "")
	normal := s.Speed()

	lost := s.MoveBoosted(0.5)

	if math.Abs(float64(lost-2.5)) > 1e-4 {
		t.Fatalf("burned %f, want 2.5", lost)
	}
	if math.Abs(float64(s.Body.Mass()-97.5)) > 1e-4 {
		t.Fatalf("mass %f, want 97.5", s.Body.Mass())
	}
	if got := s.Body.Head().X - 500; math.Abs(float64(got-normal)) > 1e-2 {
		t.Fatalf("boosted head moved %f, want %f", got, normal)
	}
}

func TestSpeedDecreasesWithMass(t *testing.T) {
	for _, model := range []SpeedModel{SpeedModelCbrt, SpeedModelLinear} {
		tuning := DefaultTuning()
		tuning.SpeedModel = model

		light := New(tuning, geom.Color{}, geom.Pos2{}, 0, 100, "")
		heavy := New(tuning, geom.Color{}, geom.Pos2{}, 0, 800, "")
		if heavy.Speed() >= light.Speed() {
			t.Fatalf("%s: heavy speed %f >= light speed %f", model, heavy.Speed(), light.Speed())
		}
	}
}

func TestChangeDirTurnsOncePerCall(t *testing.T) {
	s := New(DefaultTuning(), geom.Color{}, geom.Pos2{X: 500, Y: 500}, 0, 100, "")
	step := DefaultTuning().MaxChangeDirSpeed / 60

	s.ChangeDir(1, 1.0/60)
	if d := s.Body.Dir() - step; d > 1e-5 || d < -1e-5 {
		t.Fatalf("first turn: dir %f, want %f", s.Body.Dir(), step)
	}

	s.DoMove(1.0 / 60)
	if d := s.Body.Dir() - step; d > 1e-5 || d < -1e-5 {
		t.Fatalf("moving without a new message turned the slither to %f", s.Body.Dir())
	}

	s.ChangeDir(1, 1.0/60)
	if d := s.Body.Dir() - 2*step; d > 1e-5 || d < -1e-5 {
		t.Fatalf("second turn: dir %f, want %f", s.Body.Dir(), 2*step)
	}
}
