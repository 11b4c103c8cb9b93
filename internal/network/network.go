package network

import (
	"io"
	"net"
	"time"

	"github.com/siohaza/slither/internal/world"
)

// Stream is the byte stream under one peer: a TCP connection or a websocket adapter.
type Stream interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

type EventType int

const (
	EventTypeConnected EventType = iota
	EventTypeDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventTypeConnected:
		return "connected"
	case EventTypeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification sent from the network side to the simulation.
type Event struct {
	Type EventType
	ID   world.SlitherID
	// Peer is set for EventTypeConnected only.
	Peer *Peer
}

type IntentKind int

const (
	IntentDirection IntentKind = iota
	IntentBoost
)

// Intent is a player's request, applied by the simulation on its next tick.
type Intent struct {
	ID    world.SlitherID
	Kind  IntentKind
	Dir   float32
	Boost bool
}
