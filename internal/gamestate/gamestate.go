package gamestate

import (
	"sort"

	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/slither"
	"github.com/siohaza/slither/internal/world"
)

const DefaultLeaderboardSize = 10

// Crash describes a slither eliminated during the last tick.
type Crash struct {
	ID       world.SlitherID
	Nickname string
	Mass     float32
}

type GameState struct {
	World *world.World

	// Crashed is rebuilt by every Update and only valid until the next one.
	Crashed []Crash
}

func New(w *world.World) *GameState {
	return &GameState{World: w}
}

// Update runs one tick: move, eat, collide, then resolve deaths.
func (gs *GameState) Update(dt float32) {
	gs.moving(dt)
	gs.eating()
	gs.crashings()
	gs.resolveDeaths()
}

func (gs *GameState) moving(dt float32) {
	gs.World.Each(func(_ world.SlitherID, s *slither.Slither) {
		s.Body.Resize()

		if !s.CanBoost() {
			s.DoMove(dt)
			return
		}

		lost := s.MoveBoosted(dt)
		if lost > 0 {
			gs.World.AddClot(world.MassClot{Pos: s.Body.Tail(), Amount: lost, Color: s.Color})
		}
	})
}

type mouth struct {
	slither *slither.Slither
	head    geom.Pos2
	radius  float32
}

func (gs *GameState) eating() {
	if gs.World.Len() == 0 {
		return
	}

	// radii are frozen for the whole pass; growth shows up next tick
	mouths := make([]mouth, 0, gs.World.Len())
	gs.World.Each(func(_ world.SlitherID, s *slither.Slither) {
		mouths = append(mouths, mouth{slither: s, head: s.Body.Head(), radius: s.Body.CellRadius()})
	})

	gs.World.RetainClots(func(c world.MassClot) bool {
		for _, m := range mouths {
			if m.head.Distance(c.Pos) < m.radius+c.Radius() {
				m.slither.Body.ChangeMassBy(c.Amount)
				return false
			}
		}
		return true
	})
}

func (gs *GameState) crashings() {
	gs.Crashed = gs.Crashed[:0]

	w := gs.World
	w.Each(func(id world.SlitherID, s *slither.Slither) {
		if !gs.inBounds(s) {
			gs.markCrashed(id, s)
			return
		}

		for _, otherID := range w.IDs() {
			if otherID == id {
				continue
			}
			other, _ := w.Get(otherID)
			if s.Body.CrashedInto(other.Body) {
				gs.markCrashed(id, s)
				return
			}
		}
	})
}

func (gs *GameState) inBounds(s *slither.Slither) bool {
	head := s.Body.Head()
	r := s.Body.CellRadius()
	w, h := gs.World.Width, gs.World.Height

	return head.X >= r && head.X <= w-r && head.Y >= r && head.Y <= h-r
}

func (gs *GameState) markCrashed(id world.SlitherID, s *slither.Slither) {
	gs.Crashed = append(gs.Crashed, Crash{ID: id, Nickname: s.Nickname, Mass: s.Body.Mass()})
}

func (gs *GameState) resolveDeaths() {
	for _, c := range gs.Crashed {
		if s, ok := gs.World.Remove(c.ID); ok {
			gs.World.DistributeSlitherMass(s)
		}
	}
}

// CrashedIDs returns the IDs eliminated during the last tick.
func (gs *GameState) CrashedIDs() []world.SlitherID {
	ids := make([]world.SlitherID, len(gs.Crashed))
	for i, c := range gs.Crashed {
		ids[i] = c.ID
	}
	return ids
}

// RemoveSlither takes a slither out of the world outside of a tick (for example on
// disconnect) and scatters its mass. It reports false when the slither is already gone.
func (gs *GameState) RemoveSlither(id world.SlitherID) (*slither.Slither, bool) {
	s, ok := gs.World.Remove(id)
	if !ok {
		return nil, false
	}
	gs.World.DistributeSlitherMass(s)
	return s, true
}

// Top returns up to n slither IDs ordered from heaviest to lightest.
func (gs *GameState) Top(n int) []world.SlitherID {
	ids := append([]world.SlitherID(nil), gs.World.IDs()...)
	sort.SliceStable(ids, func(i, j int) bool {
		a, _ := gs.World.Get(ids[i])
		b, _ := gs.World.Get(ids[j])
		return a.Body.Mass() > b.Body.Mass()
	})

	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
