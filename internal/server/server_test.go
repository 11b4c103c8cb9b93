package server

import (
	"bufio"
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/siohaza/slither/internal/callbacks"
	"github.com/siohaza/slither/internal/gamestate"
	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/network"
	"github.com/siohaza/slither/internal/protocol"
	"github.com/siohaza/slither/internal/slither"
	"github.com/siohaza/slither/internal/world"
	"github.com/siohaza/slither/pkg/config"
)

type lifecycle struct {
	callbacks.DefaultCallbacks
	crashed chan world.SlitherID
	left    chan world.SlitherID
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		crashed: make(chan world.SlitherID, 4),
		left:    make(chan world.SlitherID, 4),
	}
}

func (l *lifecycle) OnCrash(id world.SlitherID, nickname string, mass float32) {
	l.crashed <- id
}

func (l *lifecycle) OnDisconnect(id world.SlitherID, nickname string, mass float32) {
	l.left <- id
}

type arena struct {
	addr    string
	updater *StateUpdater
}

// startArena runs a listener and a simulation on loopback without the rest of the server.
func startArena(t *testing.T, opts world.Options, cb callbacks.Callbacks) *arena {
	t.Helper()

	events := make(chan network.Event, 8)
	intents := make(chan network.Intent, 8)

	u, err := NewStateUpdater(UpdaterConfig{
		Tuning:       slither.DefaultTuning(),
		InitialMass:  100,
		TickInterval: time.Second / 60,
	}, gamestate.New(world.New(opts)), events, intents, cb, nil)
	if err != nil {
		t.Fatalf("new updater: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := network.NewListener(network.ListenerConfig{HandshakeTimeout: time.Second}, events, intents, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.Serve(ctx, ln)
	}()
	go func() {
		defer wg.Done()
		if err := u.Run(ctx); err != nil {
			t.Errorf("simulation: %v", err)
		}
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &arena{addr: ln.Addr().String(), updater: u}
}

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func join(t *testing.T, addr string, pj protocol.PlayerJoin) (*client, protocol.SessionStart) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.WriteMessage(conn, protocol.Bincode{}, pj); err != nil {
		t.Fatalf("send join: %v", err)
	}

	c := &client{conn: conn, r: bufio.NewReader(conn)}
	var start protocol.SessionStart
	if err := protocol.ReadMessage(c.r, protocol.Bincode{}, &start, 0); err != nil {
		t.Fatalf("read session start: %v", err)
	}
	return c, start
}

func (c *client) next(t *testing.T) (protocol.ServerUpdate, protocol.WorldState, protocol.PlayersTop) {
	t.Helper()

	var ws protocol.WorldState
	var top protocol.PlayersTop
	tag, err := protocol.ReadServerUpdate(c.r, protocol.Bincode{}, &ws, &top)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	return tag, ws, top
}

func TestJoinWithEmptyNickname(t *testing.T) {
	a := startArena(t, world.Options{Width: 2000, Height: 2000, Seed: 1}, nil)

	c, start := join(t, a.addr, protocol.PlayerJoin{})
	if start.SelfID != 0 {
		t.Fatalf("first player should get id 0, got %d", start.SelfID)
	}
	if start.WorldSize != (geom.Pos2{X: 2000, Y: 2000}) {
		t.Fatalf("unexpected world size %+v", start.WorldSize)
	}

	tag, ws, _ := c.next(t)
	if tag != protocol.ServerUpdateWorld {
		t.Fatalf("expected world update, got %s", tag)
	}
	if len(ws.Slithers) != 1 {
		t.Fatalf("expected 1 slither, got %d", len(ws.Slithers))
	}
	self := ws.Slithers[0]
	if self.ID != start.SelfID || self.Nickname != "" || self.Mass != 100 {
		t.Fatalf("unexpected self state %+v", self)
	}
	if self.Color.R < spawnColorBase || self.Color.A != 255 {
		t.Fatalf("spawn color should be bright and opaque, got %+v", self.Color)
	}

	tag, _, top := c.next(t)
	if tag != protocol.ServerUpdatePlayersTop || len(top) != 1 || top[0] != start.SelfID {
		t.Fatalf("unexpected leaderboard %s %v", tag, top)
	}
}

func TestRequestedColorIsKept(t *testing.T) {
	a := startArena(t, world.Options{Width: 2000, Height: 2000, Seed: 1}, nil)

	want := geom.Color{R: 1, G: 2, B: 3, A: 4}
	c, _ := join(t, a.addr, protocol.PlayerJoin{Color: &want, Nickname: "blue"})
	_, ws, _ := c.next(t)
	if ws.Slithers[0].Color != want || ws.Slithers[0].Nickname != "blue" {
		t.Fatalf("unexpected slither %+v", ws.Slithers[0])
	}
}

func TestCrashSendsGameOverAndFinalWorldThenCloses(t *testing.T) {
	lc := newLifecycle()
	a := startArena(t, world.Options{Width: 300, Height: 300, Seed: 1}, lc)

	c, start := join(t, a.addr, protocol.PlayerJoin{Nickname: "doomed"})

	for {
		tag, _, _ := c.next(t)
		if tag == protocol.ServerUpdateGameOver {
			break
		}
	}

	tag, last, _ := c.next(t)
	if tag != protocol.ServerUpdateWorld {
		t.Fatalf("expected the final world after game over, got %s", tag)
	}
	for _, s := range last.Slithers {
		if s.ID == start.SelfID {
			t.Fatalf("crashed slither still in final world")
		}
	}
	if tag, _, _ := c.next(t); tag != protocol.ServerUpdatePlayersTop {
		t.Fatalf("expected leaderboard after final world, got %s", tag)
	}

	var ws protocol.WorldState
	var top protocol.PlayersTop
	if _, err := protocol.ReadServerUpdate(c.r, protocol.Bincode{}, &ws, &top); err == nil {
		t.Fatalf("stream should close after game over")
	}

	select {
	case id := <-lc.crashed:
		if uint32(id) != start.SelfID {
			t.Fatalf("crash reported for %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("crash callback not called")
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.updater.Players() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("crashed player still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDisconnectRemovesSlither(t *testing.T) {
	lc := newLifecycle()
	a := startArena(t, world.Options{Width: 2000, Height: 2000, Seed: 1}, lc)

	first, _ := join(t, a.addr, protocol.PlayerJoin{Nickname: "leaver"})
	if err := protocol.WriteMessage(first.conn, protocol.Bincode{}, protocol.Disconnect()); err != nil {
		t.Fatalf("send disconnect: %v", err)
	}

	select {
	case id := <-lc.left:
		if id != 0 {
			t.Fatalf("disconnect reported for %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("disconnect callback not called")
	}

	second, start := join(t, a.addr, protocol.PlayerJoin{Nickname: "stayer"})
	if start.SelfID != 1 {
		t.Fatalf("ids must not be reused, got %d", start.SelfID)
	}
	_, ws, _ := second.next(t)
	if len(ws.Slithers) != 1 || ws.Slithers[0].ID != 1 {
		t.Fatalf("leaver still in world: %+v", ws.Slithers)
	}
}

func TestUndeliverableSessionStartIsNotRegistered(t *testing.T) {
	listenerEvents := make(chan network.Event, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l := network.NewListener(network.ListenerConfig{HandshakeTimeout: time.Second}, listenerEvents, make(chan network.Intent, 1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		l.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := protocol.WriteMessage(conn, protocol.Bincode{}, protocol.PlayerJoin{Nickname: "ghost"}); err != nil {
		t.Fatalf("send join: %v", err)
	}

	var ev network.Event
	select {
	case ev = <-listenerEvents:
	case <-time.After(2 * time.Second):
		t.Fatalf("no connected event")
	}
	ev.Peer.Release()

	events := make(chan network.Event, 1)
	events <- ev
	state := gamestate.New(world.New(world.Options{Width: 2000, Height: 2000, Seed: 1}))
	u, err := NewStateUpdater(UpdaterConfig{Tuning: slither.DefaultTuning(), InitialMass: 100}, state, events, nil, nil, nil)
	if err != nil {
		t.Fatalf("new updater: %v", err)
	}
	u.tick(0.01)

	if u.Players() != 0 {
		t.Fatalf("peer without session start was registered")
	}
	if _, ok := state.World.Get(ev.ID); ok {
		t.Fatalf("slither spawned for a peer that never got its session start")
	}
}

func TestDirectionIntentsTurnOncePerMessage(t *testing.T) {
	intents := make(chan network.Intent, 4)
	state := gamestate.New(world.New(world.Options{Width: 2000, Height: 2000, Seed: 1}))
	u, err := NewStateUpdater(UpdaterConfig{Tuning: slither.DefaultTuning()}, state, nil, intents, nil, nil)
	if err != nil {
		t.Fatalf("new updater: %v", err)
	}

	s := slither.New(slither.DefaultTuning(), geom.RGB(200, 200, 200), state.World.Center(), math.Pi/2, 100, "")
	if err := state.World.Add(5, s); err != nil {
		t.Fatalf("add: %v", err)
	}

	intents <- network.Intent{ID: 5, Kind: network.IntentBoost, Boost: true}
	intents <- network.Intent{ID: 5, Kind: network.IntentDirection, Dir: 0}
	intents <- network.Intent{ID: 5, Kind: network.IntentDirection, Dir: 0}
	intents <- network.Intent{ID: 9, Kind: network.IntentBoost, Boost: true}
	u.tick(0.1)

	if !s.Boost {
		t.Fatalf("boost intent not applied")
	}
	want := float32(math.Pi/2 - 0.8)
	if d := s.Body.Dir() - want; d > 1e-3 || d < -1e-3 {
		t.Fatalf("expected two limited turns to %.3f, got %.3f", want, s.Body.Dir())
	}
	if len(intents) != 0 {
		t.Fatalf("intents not drained")
	}

	u.tick(0.1)
	if d := s.Body.Dir() - want; d > 1e-3 || d < -1e-3 {
		t.Fatalf("tick without a direction message turned to %.3f", s.Body.Dir())
	}
}

func TestSnapshotOrdering(t *testing.T) {
	w := world.New(world.Options{Width: 1000, Height: 1000, Seed: 3})
	for _, id := range []world.SlitherID{7, 2, 4} {
		head := geom.Pos2{X: 100 * float32(id), Y: 500}
		if err := w.Add(id, slither.New(slither.DefaultTuning(), geom.RGB(220, 220, 220), head, 0, 100, "")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	w.AddClot(world.MassClot{Pos: geom.Pos2{X: 10, Y: 10}, Amount: 12})

	ws := snapshot(w)
	if len(ws.Slithers) != 3 || ws.Slithers[0].ID != 2 || ws.Slithers[1].ID != 4 || ws.Slithers[2].ID != 7 {
		t.Fatalf("slithers not in id order: %+v", ws.Slithers)
	}
	if len(ws.Clots) != 1 || ws.Clots[0].Amount != 12 || ws.Width != 1000 {
		t.Fatalf("unexpected snapshot %+v", ws)
	}

	if top := playersTop([]world.SlitherID{7, 2}); len(top) != 2 || top[0] != 7 {
		t.Fatalf("unexpected top %v", top)
	}
}

func TestServerStartStop(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	cfg := config.Default()
	cfg.Server.Port = port
	cfg.Server.PingPort = port
	cfg.World.InitialMass = 0
	cfg.Bans.File = ""
	cfg.Journal.Enabled = true
	cfg.Journal.Dir = t.TempDir()

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	c, start := join(t, srv.Addr().String(), protocol.PlayerJoin{Nickname: "smoke"})
	if start.SelfID != 0 {
		t.Fatalf("unexpected self id %d", start.SelfID)
	}
	if tag, _, _ := c.next(t); tag != protocol.ServerUpdateWorld {
		t.Fatalf("expected world update, got %s", tag)
	}

	srv.Stop()
	select {
	case <-srv.Done():
	default:
		t.Fatalf("simulation still running after stop")
	}
	if err := srv.Err(); err != nil {
		t.Fatalf("unexpected simulation error: %v", err)
	}
}
