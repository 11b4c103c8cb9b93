package world

import (
	"math"
	"testing"

	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/slither"
)

func newTestWorld(initialMass float32) *World {
	return New(Options{Width: 2000, Height: 2000, InitialMass: initialMass, Seed: 42})
}

func TestSeedClots(t *testing.T) {
	w := newTestWorld(2000)

	var total float32
	for _, c := range w.Clots() {
		if c.Amount < DefaultMinClotMass || c.Amount >= DefaultMaxClotMass {
			t.Fatalf("clot amount %f out of range", c.Amount)
		}
		if c.Pos.X < 0 || c.Pos.X > w.Width || c.Pos.Y < 0 || c.Pos.Y > w.Height {
			t.Fatalf("clot %v outside the world", c.Pos)
		}
		total += c.Amount
	}

	// seeding stops once no more than one minimum clot of budget is left
	if total < 2000-DefaultMinClotMass || total >= 2000+DefaultMaxClotMass {
		t.Fatalf("seeded %f mass, want close to 2000", total)
	}
}

func TestAddRemoveKeepsOrder(t *testing.T) {
	w := newTestWorld(0)
	for _, id := range []SlitherID{5, 1, 3} {
		s := slither.New(slither.DefaultTuning(), geom.Color{}, w.Center(), 0, 100, "")
		if err := w.Add(id, s); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}

	if err := w.Add(3, slither.New(slither.DefaultTuning(), geom.Color{}, w.Center(), 0, 100, "")); err == nil {
		t.Fatalf("expected duplicate add to fail")
	}

	var seen []SlitherID
	w.Each(func(id SlitherID, _ *slither.Slither) { seen = append(seen, id) })
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 3 || seen[2] != 5 {
		t.Fatalf("unexpected iteration order %v", seen)
	}

	if _, ok := w.Remove(3); !ok {
		t.Fatalf("remove 3 failed")
	}
	if _, ok := w.Remove(3); ok {
		t.Fatalf("second remove of 3 succeeded")
	}
	if ids := w.IDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 5 {
		t.Fatalf("unexpected ids after remove %v", ids)
	}
}

func TestDistributeSlitherMassConserves(t *testing.T) {
	for _, mass := range []float32{7, 25, 100, 333.3, 5000} {
		w := newTestWorld(0)
		s := slither.New(slither.DefaultTuning(), geom.RGB(10, 20, 30), w.Center(), 0, mass, "")

		w.DistributeSlitherMass(s)

		var total float64
		for _, c := range w.Clots() {
			if c.Color != s.Color {
				t.Fatalf("clot color %v, want slither color %v", c.Color, s.Color)
			}
			if c.Amount <= 0 || c.Amount > DefaultMaxClotMass {
				t.Fatalf("clot amount %f out of range", c.Amount)
			}
			total += float64(c.Amount)
		}
		if math.Abs(total-float64(mass)) > 1e-2 {
			t.Fatalf("mass %f distributed as %f", mass, total)
		}
	}
}

func TestDistributeScattersNearBody(t *testing.T) {
	w := newTestWorld(0)
	s := slither.New(slither.DefaultTuning(), geom.Color{}, w.Center(), 0, 400, "")
	w.DistributeSlitherMass(s)

	radius := s.Body.CellRadius()
	for _, c := range w.Clots() {
		near := false
		for _, cell := range s.Body.Cells() {
			if cell.Distance(c.Pos) <= radius+1e-3 {
				near = true
				break
			}
		}
		if !near {
			t.Fatalf("clot %v not within a cell radius of the body", c.Pos)
		}
	}
}

func TestRetainClots(t *testing.T) {
	w := newTestWorld(0)
	for i := 0; i < 5; i++ {
		w.AddClot(MassClot{Amount: float32(i + 1)})
	}

	w.RetainClots(func(c MassClot) bool { return int(c.Amount)%2 == 1 })

	if len(w.Clots()) != 3 {
		t.Fatalf("expected 3 clots, got %d", len(w.Clots()))
	}
	if w.TotalMass() != 9 {
		t.Fatalf("expected total mass 9, got %f", w.TotalMass())
	}
}
