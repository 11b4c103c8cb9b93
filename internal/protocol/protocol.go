package protocol

import (
	"errors"

	"github.com/siohaza/slither/internal/geom"
)

const (
	// MaxFrameSize bounds frames accepted from clients.
	MaxFrameSize = 64 * 1024

	// MaxNicknameLen is counted in runes after normalisation.
	MaxNicknameLen = 16
)

var (
	ErrFrameTooLarge = errors.New("frame too large")
	ErrUnknownTag    = errors.New("unknown message tag")
	ErrUnknownType   = errors.New("unsupported message type")
)

// PlayerJoin is the handshake a client sends once before any update.
type PlayerJoin struct {
	Color    *geom.Color `msgpack:"color"`
	Nickname string      `msgpack:"nickname"`
}

type ClientUpdateKind uint32

const (
	ClientUpdateDirection  ClientUpdateKind = 0
	ClientUpdateDisconnect ClientUpdateKind = 1
	ClientUpdateBoost      ClientUpdateKind = 2
)

func (k ClientUpdateKind) String() string {
	switch k {
	case ClientUpdateDirection:
		return "direction"
	case ClientUpdateDisconnect:
		return "disconnect"
	case ClientUpdateBoost:
		return "boost"
	default:
		return "unknown"
	}
}

// ClientUpdate is a tagged union; only the field matching Kind is meaningful.
type ClientUpdate struct {
	Kind      ClientUpdateKind `msgpack:"kind"`
	Direction float32          `msgpack:"direction,omitempty"`
	Boost     bool             `msgpack:"boost,omitempty"`
}

func Direction(rad float32) ClientUpdate {
	return ClientUpdate{Kind: ClientUpdateDirection, Direction: rad}
}

func Disconnect() ClientUpdate {
	return ClientUpdate{Kind: ClientUpdateDisconnect}
}

func Boost(on bool) ClientUpdate {
	return ClientUpdate{Kind: ClientUpdateBoost, Boost: on}
}

// SessionStart answers PlayerJoin. WorldSize carries width in X and height in Y.
type SessionStart struct {
	WorldSize geom.Pos2 `msgpack:"world_size"`
	SelfID    uint32    `msgpack:"self_id"`
}

// ServerUpdate is the framed tag of every server message after SessionStart.
// World and PlayersTop are followed by an unframed WorldState or PlayersTop value.
type ServerUpdate uint32

const (
	ServerUpdateGameOver   ServerUpdate = 0
	ServerUpdateWorld      ServerUpdate = 1
	ServerUpdatePlayersTop ServerUpdate = 2
)

func (u ServerUpdate) String() string {
	switch u {
	case ServerUpdateGameOver:
		return "game_over"
	case ServerUpdateWorld:
		return "world"
	case ServerUpdatePlayersTop:
		return "players_top"
	default:
		return "unknown"
	}
}

type SlitherState struct {
	ID       uint32      `msgpack:"id"`
	Color    geom.Color  `msgpack:"color"`
	Boost    bool        `msgpack:"boost"`
	Nickname string      `msgpack:"nickname"`
	Dir      float32     `msgpack:"dir"`
	Mass     float32     `msgpack:"mass"`
	Cells    []geom.Pos2 `msgpack:"cells"`
}

type ClotState struct {
	Pos    geom.Pos2  `msgpack:"pos"`
	Amount float32    `msgpack:"amount"`
	Color  geom.Color `msgpack:"color"`
}

// WorldState is the full snapshot broadcast every tick. Slithers are sorted by ID.
type WorldState struct {
	Slithers []SlitherState `msgpack:"slithers"`
	Clots    []ClotState    `msgpack:"clots"`
	Width    float32        `msgpack:"width"`
	Height   float32        `msgpack:"height"`
}

// PlayersTop lists slither IDs from heaviest to lightest.
type PlayersTop []uint32
