package server

import (
	"github.com/siohaza/slither/internal/protocol"
	"github.com/siohaza/slither/internal/slither"
	"github.com/siohaza/slither/internal/world"
)

// snapshot builds the wire form of the world. It shares cell slices with the
// bodies, so it must be encoded before the next tick. Slithers come out in ID order.
func snapshot(w *world.World) protocol.WorldState {
	ws := protocol.WorldState{
		Slithers: make([]protocol.SlitherState, 0, w.Len()),
		Clots:    make([]protocol.ClotState, 0, len(w.Clots())),
		Width:    w.Width,
		Height:   w.Height,
	}

	w.Each(func(id world.SlitherID, s *slither.Slither) {
		ws.Slithers = append(ws.Slithers, protocol.SlitherState{
			ID:       uint32(id),
			Color:    s.Color,
			Boost:    s.Boost,
			Nickname: s.Nickname,
			Dir:      s.Body.Dir(),
			Mass:     s.Body.Mass(),
			Cells:    s.Body.Cells(),
		})
	})

	for _, c := range w.Clots() {
		ws.Clots = append(ws.Clots, protocol.ClotState{
			Pos:    c.Pos,
			Amount: c.Amount,
			Color:  c.Color,
		})
	}

	return ws
}

func playersTop(ids []world.SlitherID) protocol.PlayersTop {
	top := make(protocol.PlayersTop, len(ids))
	for i, id := range ids {
		top[i] = uint32(id)
	}
	return top
}
