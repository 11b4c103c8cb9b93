package server

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/siohaza/slither/internal/callbacks"
	"github.com/siohaza/slither/internal/gamestate"
	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/network"
	"github.com/siohaza/slither/internal/protocol"
	"github.com/siohaza/slither/internal/slither"
	"github.com/siohaza/slither/internal/world"
)

const (
	spawnDir       = math.Pi / 2
	spawnColorBase = 200
)

type UpdaterConfig struct {
	Tuning          slither.Tuning
	InitialMass     float32
	TickInterval    time.Duration
	LeaderboardSize int
	Codec           protocol.Codec
}

// StateUpdater is the only goroutine touching the game state. It owns the
// registry of joined peers and drives the tick.
type StateUpdater struct {
	cfg       UpdaterConfig
	state     *gamestate.GameState
	peers     map[world.SlitherID]*network.Peer
	events    <-chan network.Event
	intents   <-chan network.Intent
	callbacks callbacks.Callbacks
	logger    *slog.Logger

	gameOver []byte
	players  atomic.Int32
	ticks    uint64
}

func NewStateUpdater(cfg UpdaterConfig, state *gamestate.GameState, events <-chan network.Event, intents <-chan network.Intent, cb callbacks.Callbacks, logger *slog.Logger) (*StateUpdater, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cb == nil {
		cb = &callbacks.DefaultCallbacks{}
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.Bincode{}
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = gamestate.DefaultLeaderboardSize
	}

	gameOver, err := protocol.AppendServerUpdate(nil, cfg.Codec, protocol.ServerUpdateGameOver, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode game over: %w", err)
	}

	return &StateUpdater{
		cfg:       cfg,
		state:     state,
		peers:     make(map[world.SlitherID]*network.Peer),
		events:    events,
		intents:   intents,
		callbacks: cb,
		logger:    logger,
		gameOver:  gameOver,
	}, nil
}

// Players is the number of registered peers. Safe for concurrent use.
func (u *StateUpdater) Players() int {
	return int(u.players.Load())
}

// Run ticks until ctx is cancelled. Each tick is followed by a sleep of what
// is left of the tick interval; dt is the time between tick starts.
func (u *StateUpdater) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulation panic: %v", r)
		}
		u.releaseAll()
	}()

	u.logger.Info("simulation started", "tick_interval", u.cfg.TickInterval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			u.logger.Info("simulation stopped", "ticks", u.ticks)
			return nil
		case <-timer.C:
		}

		start := time.Now()
		dt := float32(start.Sub(last).Seconds())
		last = start

		u.tick(dt)

		timer.Reset(max(0, u.cfg.TickInterval-time.Since(start)))
	}
}

func (u *StateUpdater) tick(dt float32) {
	u.ticks++
	u.drainEvents()
	u.drainIntents(dt)

	u.state.Update(dt)
	top := u.state.Top(u.cfg.LeaderboardSize)

	dropped := u.broadcast(top)
	u.finishCrashes()
	for _, id := range dropped {
		u.logger.Warn("peer outbox full, disconnecting", "id", id)
		u.remove(id)
	}
}

func (u *StateUpdater) drainEvents() {
	for {
		select {
		case ev := <-u.events:
			switch ev.Type {
			case network.EventTypeConnected:
				u.join(ev.Peer)
			case network.EventTypeDisconnected:
				u.remove(ev.ID)
			}
		default:
			return
		}
	}
}

// drainIntents applies every queued intent. Each direction message turns its
// slither once, limited by the turn rate over dt.
func (u *StateUpdater) drainIntents(dt float32) {
	for {
		select {
		case in := <-u.intents:
			s, ok := u.state.World.Get(in.ID)
			if !ok {
				continue
			}
			switch in.Kind {
			case network.IntentDirection:
				s.ChangeDir(in.Dir, dt)
			case network.IntentBoost:
				s.Boost = in.Boost
			}
		default:
			return
		}
	}
}

func (u *StateUpdater) join(peer *network.Peer) {
	if _, exists := u.peers[peer.ID]; exists {
		u.logger.Error("peer registered twice", "id", peer.ID)
		peer.Release()
		return
	}

	nickname := network.SanitizeNickname(u.callbacks.OnJoin(peer.ID, peer.Nickname))

	w := u.state.World
	color := w.RandomColor(spawnColorBase)
	if peer.Color != nil {
		color = *peer.Color
	}

	s := slither.New(u.cfg.Tuning, color, w.Center(), spawnDir, u.cfg.InitialMass, nickname)
	if err := w.Add(peer.ID, s); err != nil {
		u.logger.Error("failed to spawn slither", "id", peer.ID, "error", err)
		peer.Release()
		return
	}

	var buf bytes.Buffer
	start := protocol.SessionStart{
		WorldSize: geom.Pos2{X: w.Width, Y: w.Height},
		SelfID:    uint32(peer.ID),
	}
	if err := protocol.WriteMessage(&buf, u.cfg.Codec, start); err != nil {
		u.logger.Error("failed to encode session start", "id", peer.ID, "error", err)
		w.Remove(peer.ID)
		peer.Release()
		return
	}
	if !peer.Send(buf.Bytes()) || peer.Dropped() {
		u.logger.Warn("failed to queue session start", "id", peer.ID)
		w.Remove(peer.ID)
		peer.Release()
		return
	}

	u.peers[peer.ID] = peer
	u.players.Store(int32(len(u.peers)))

	u.logger.Info("player joined", "id", peer.ID, "nickname", nickname, "addr", peer.Addr)
}

// remove takes a peer out of the game outside of a crash. It is a no-op for
// IDs that are already gone.
func (u *StateUpdater) remove(id world.SlitherID) {
	if peer, ok := u.peers[id]; ok {
		peer.Release()
		delete(u.peers, id)
		u.players.Store(int32(len(u.peers)))
	}

	s, ok := u.state.RemoveSlither(id)
	if !ok {
		return
	}
	u.logger.Info("player left", "id", id, "nickname", s.Nickname, "mass", s.Body.Mass())
	u.callbacks.OnDisconnect(id, s.Nickname, s.Body.Mass())
}

// broadcast sends GameOver to this tick's crashed peers, then the world and
// leaderboard to every registered peer, crashed ones included. It returns the
// peers whose outbox overflowed.
func (u *StateUpdater) broadcast(top []world.SlitherID) []world.SlitherID {
	for _, c := range u.state.Crashed {
		if peer, ok := u.peers[c.ID]; ok {
			peer.Send(u.gameOver)
		}
	}

	if len(u.peers) == 0 {
		return nil
	}

	chunk, err := protocol.AppendServerUpdate(nil, u.cfg.Codec, protocol.ServerUpdateWorld, snapshot(u.state.World))
	if err == nil {
		chunk, err = protocol.AppendServerUpdate(chunk, u.cfg.Codec, protocol.ServerUpdatePlayersTop, playersTop(top))
	}
	if err != nil {
		u.logger.Error("failed to encode world update", "error", err)
		return nil
	}

	var dropped []world.SlitherID
	for id, peer := range u.peers {
		if !peer.Send(chunk) || peer.Dropped() {
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (u *StateUpdater) finishCrashes() {
	for _, c := range u.state.Crashed {
		if peer, ok := u.peers[c.ID]; ok {
			peer.Release()
			delete(u.peers, c.ID)
		}
		u.logger.Info("slither crashed", "id", c.ID, "nickname", c.Nickname, "mass", c.Mass)
		u.callbacks.OnCrash(c.ID, c.Nickname, c.Mass)
	}
	u.players.Store(int32(len(u.peers)))
}

func (u *StateUpdater) releaseAll() {
	for id, peer := range u.peers {
		peer.Release()
		delete(u.peers, id)
	}
	u.players.Store(0)
}
