package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siohaza/slither/internal/bans"
	"github.com/siohaza/slither/internal/protocol"
	"github.com/siohaza/slither/internal/world"

	"golang.org/x/time/rate"
)

var (
	ErrBanned     = errors.New("banned")
	ErrServerFull = errors.New("server full")
)

// BanList is consulted before (address) and after (nickname) the handshake.
type BanList interface {
	IsBanned(ip string) (bool, *bans.Ban)
	IsBannedByName(name string) (bool, *bans.Ban)
}

type ListenerConfig struct {
	Codec            protocol.Codec
	MaxFrameSize     uint32
	MaxPlayers       int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendQueue        int

	// IntentsPerSecond paces direction updates; zero disables it. Boost
	// toggles are never limited.
	IntentsPerSecond float64
	IntentBurst      int

	Bans BanList
}

// Listener accepts streams, runs the join handshake and hands joined peers to
// the simulation. It owns the SlitherID counter.
type Listener struct {
	cfg    ListenerConfig
	logger *slog.Logger

	events  chan<- Event
	intents chan<- Intent

	nextID atomic.Uint32
	active atomic.Int32
	wg     sync.WaitGroup
}

func NewListener(cfg ListenerConfig, events chan<- Event, intents chan<- Intent, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Codec == nil {
		cfg.Codec = protocol.Bincode{}
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = protocol.MaxFrameSize
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 32
	}

	return &Listener{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		intents: intents,
	}
}

// Active is the number of peers past the handshake whose connection is still running.
func (l *Listener) Active() int {
	return int(l.active.Load())
}

func (l *Listener) newID() world.SlitherID {
	return world.SlitherID(l.nextID.Add(1) - 1)
}

// Serve accepts TCP connections one at a time until ctx is cancelled or ln fails.
// The handshake runs on the accept path, bounded by HandshakeTimeout.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.logger.Info("listening", "address", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				l.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetNoDelay(true)
		}

		peer, err := l.join(ctx, conn)
		if err != nil {
			l.logger.Info("join rejected", "addr", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.run(ctx, peer)
		}()
	}
}

// join performs the handshake on a fresh stream and announces the peer to the simulation.
func (l *Listener) join(ctx context.Context, stream Stream) (*Peer, error) {
	if l.cfg.Bans != nil {
		if banned, ban := l.cfg.Bans.IsBanned(hostOf(stream.RemoteAddr())); banned {
			return nil, fmt.Errorf("%w: %s", ErrBanned, ban.Reason)
		}
	}

	if l.cfg.MaxPlayers > 0 && l.Active() >= l.cfg.MaxPlayers {
		return nil, ErrServerFull
	}

	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	reader := bufio.NewReader(stream)

	if l.cfg.HandshakeTimeout > 0 {
		if err := stream.SetReadDeadline(time.Now().Add(l.cfg.HandshakeTimeout)); err != nil {
			return nil, err
		}
	}
	var join protocol.PlayerJoin
	if err := protocol.ReadMessage(reader, l.cfg.Codec, &join, l.cfg.MaxFrameSize); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if err := stream.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}

	nickname := SanitizeNickname(join.Nickname)
	if l.cfg.Bans != nil && nickname != "" {
		if banned, ban := l.cfg.Bans.IsBannedByName(nickname); banned {
			return nil, fmt.Errorf("%w: %s", ErrBanned, ban.Reason)
		}
	}

	peer := newPeer(l.newID(), stream, reader, l.cfg.SendQueue, l.cfg.WriteTimeout, l.logger)
	peer.Nickname = nickname
	peer.Color = join.Color

	select {
	case l.events <- Event{Type: EventTypeConnected, ID: peer.ID, Peer: peer}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	l.active.Add(1)

	l.logger.Debug("handshake complete", "id", peer.ID, "nickname", nickname, "addr", peer.Addr)
	return peer, nil
}

// run drives both halves of a joined peer and returns when its connection ends.
func (l *Listener) run(ctx context.Context, peer *Peer) {
	defer l.active.Add(-1)

	go peer.WriteLoop()

	var limiter *rate.Limiter
	if l.cfg.IntentsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.IntentsPerSecond), max(1, l.cfg.IntentBurst))
	}

	conn := &Connection{
		peer:     peer,
		codec:    l.cfg.Codec,
		maxFrame: l.cfg.MaxFrameSize,
		limiter:  limiter,
		intents:  l.intents,
		events:   l.events,
		logger:   peer.logger,
	}
	conn.Run(ctx)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
