package world

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/slither"
)

const (
	DefaultMinClotMass = 10.0
	DefaultMaxClotMass = 25.0
)

type SlitherID uint32

type MassClot struct {
	Pos    geom.Pos2
	Amount float32
	Color  geom.Color
}

func (c MassClot) Radius() float32 {
	return float32(math.Sqrt(float64(c.Amount)))
}

type Options struct {
	Width       float32
	Height      float32
	InitialMass float32 // mass seeded as random clots
	MinClotMass float32
	MaxClotMass float32
	Seed        int64 // zero seeds from the clock
}

type World struct {
	Width  float32
	Height float32

	minClotMass float32
	maxClotMass float32

	slithers map[SlitherID]*slither.Slither
	order    []SlitherID
	clots    []MassClot
	rng      *rand.Rand
}

func New(opts Options) *World {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	minClot, maxClot := opts.MinClotMass, opts.MaxClotMass
	if minClot <= 0 {
		minClot = DefaultMinClotMass
	}
	if maxClot <= minClot {
		maxClot = minClot + (DefaultMaxClotMass - DefaultMinClotMass)
	}

	w := &World{
		Width:       opts.Width,
		Height:      opts.Height,
		minClotMass: minClot,
		maxClotMass: maxClot,
		slithers:    make(map[SlitherID]*slither.Slither),
		rng:         rand.New(rand.NewSource(seed)),
	}

	w.seedClots(opts.InitialMass)
	return w
}

func (w *World) seedClots(total float32) {
	if total <= 0 {
		return
	}

	w.clots = make([]MassClot, 0, int(total*2/(w.maxClotMass-w.minClotMass)))
	for total > w.minClotMass {
		amount := w.clotAmount()
		total -= amount

		pos := geom.Pos2{
			X: w.rng.Float32() * w.Width,
			Y: w.rng.Float32() * w.Height,
		}
		w.clots = append(w.clots, MassClot{Pos: pos, Amount: amount, Color: w.RandomColor(128)})
	}
}

func (w *World) clotAmount() float32 {
	return w.minClotMass + w.rng.Float32()*(w.maxClotMass-w.minClotMass)
}

// RandomColor returns an opaque color with every channel in [base, 255).
func (w *World) RandomColor(base uint8) geom.Color {
	span := 255 - int(base)
	if span <= 0 {
		return geom.RGB(base, base, base)
	}
	return geom.RGB(
		base+uint8(w.rng.Intn(span)),
		base+uint8(w.rng.Intn(span)),
		base+uint8(w.rng.Intn(span)),
	)
}

func (w *World) Center() geom.Pos2 {
	return geom.Pos2{X: w.Width / 2, Y: w.Height / 2}
}

func (w *World) Add(id SlitherID, s *slither.Slither) error {
	if _, exists := w.slithers[id]; exists {
		return fmt.Errorf("slither %d already exists", id)
	}

	w.slithers[id] = s
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= id })
	w.order = append(w.order, 0)
	copy(w.order[i+1:], w.order[i:])
	w.order[i] = id

	return nil
}

func (w *World) Remove(id SlitherID) (*slither.Slither, bool) {
	s, ok := w.slithers[id]
	if !ok {
		return nil, false
	}

	delete(w.slithers, id)
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= id })
	w.order = append(w.order[:i], w.order[i+1:]...)

	return s, true
}

func (w *World) Get(id SlitherID) (*slither.Slither, bool) {
	s, ok := w.slithers[id]
	return s, ok
}

func (w *World) Len() int {
	return len(w.slithers)
}

// IDs returns the live slither IDs in ascending order.
func (w *World) IDs() []SlitherID {
	return w.order
}

// Each visits slithers in ascending ID order.
func (w *World) Each(fn func(id SlitherID, s *slither.Slither)) {
	for _, id := range w.order {
		fn(id, w.slithers[id])
	}
}

func (w *World) Clots() []MassClot {
	return w.clots
}

func (w *World) AddClot(c MassClot) {
	w.clots = append(w.clots, c)
}

// RetainClots keeps only the clots for which keep returns true.
func (w *World) RetainClots(keep func(c MassClot) bool) {
	kept := w.clots[:0]
	for _, c := range w.clots {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(w.clots); i++ {
		w.clots[i] = MassClot{}
	}
	w.clots = kept
}

func (w *World) TotalMass() float64 {
	var total float64
	for _, s := range w.slithers {
		total += float64(s.Body.Mass())
	}
	for _, c := range w.clots {
		total += float64(c.Amount)
	}
	return total
}

// DistributeSlitherMass scatters the whole mass of a removed slither along its
// former body as clots. The amounts sum to the slither's mass.
func (w *World) DistributeSlitherMass(s *slither.Slither) {
	cells := s.Body.Cells()
	radius := s.Body.CellRadius()
	remaining := s.Body.Mass()

	for remaining > w.maxClotMass {
		amount := w.clotAmount()
		remaining -= amount
		w.AddClot(MassClot{Pos: w.scatter(cells, radius), Amount: amount, Color: s.Color})
	}

	if remaining > 0 {
		w.AddClot(MassClot{Pos: w.scatter(cells, radius), Amount: remaining, Color: s.Color})
	}
}

func (w *World) scatter(cells []geom.Pos2, radius float32) geom.Pos2 {
	cell := cells[w.rng.Intn(len(cells))]
	offset := geom.FromAngle(w.rng.Float32() * 2 * math.Pi).Scale(w.rng.Float32() * radius)
	pos := cell.Add(offset)

	return geom.Pos2{
		X: geom.Clamp(pos.X, 0, w.Width),
		Y: geom.Clamp(pos.Y, 0, w.Height),
	}
}
