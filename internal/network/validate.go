package network

import (
	"errors"
	"math"

	"github.com/siohaza/slither/internal/protocol"
)

var ErrInvalidUpdate = errors.New("invalid client update")

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// validateUpdate rejects updates that decode cleanly but carry values the
// simulation cannot use.
func validateUpdate(u protocol.ClientUpdate) error {
	switch u.Kind {
	case protocol.ClientUpdateDirection:
		if !isFinite(u.Direction) {
			return ErrInvalidUpdate
		}
	case protocol.ClientUpdateDisconnect, protocol.ClientUpdateBoost:
	default:
		return ErrInvalidUpdate
	}
	return nil
}
