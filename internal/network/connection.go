package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"github.com/siohaza/slither/internal/protocol"

	"golang.org/x/time/rate"
)

// Connection reads one peer's client updates and turns them into intents.
type Connection struct {
	peer     *Peer
	codec    protocol.Codec
	maxFrame uint32
	limiter  *rate.Limiter
	intents  chan<- Intent
	events   chan<- Event
	logger   *slog.Logger

	mu         sync.Mutex
	latestDir  float32
	hasDir     bool
	dirPending chan struct{}
}

// Run blocks until the client disconnects, the stream fails, the peer is
// released by the simulation, or ctx is cancelled.
//
// Once the peer is released its write loop owns the stream, so queued
// messages such as GameOver still reach the client.
func (c *Connection) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, c.peer.Close)
	defer stop()

	if c.limiter != nil {
		paceCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		c.dirPending = make(chan struct{}, 1)
		go c.paceDirections(paceCtx)
	}

	for {
		var update protocol.ClientUpdate
		err := protocol.ReadMessage(c.peer.reader, c.codec, &update, c.maxFrame)
		if err == nil {
			err = validateUpdate(update)
		}
		if err != nil {
			if c.peer.released() || ctx.Err() != nil {
				return
			}
			if isClosedErr(err) {
				c.logger.Info("connection closed", "error", err)
			} else {
				c.logger.Warn("dropping connection", "error", err)
			}
			c.peer.Close()
			c.disconnect(ctx)
			return
		}

		switch update.Kind {
		case protocol.ClientUpdateDisconnect:
			c.logger.Debug("client disconnected")
			c.disconnect(ctx)
			return

		case protocol.ClientUpdateDirection:
			if c.limiter != nil {
				c.offerDirection(update.Direction)
				continue
			}
			if !c.forward(ctx, Intent{ID: c.peer.ID, Kind: IntentDirection, Dir: update.Direction}) {
				return
			}

		case protocol.ClientUpdateBoost:
			if !c.forward(ctx, Intent{ID: c.peer.ID, Kind: IntentBoost, Boost: update.Boost}) {
				return
			}
		}
	}
}

// offerDirection replaces any direction still waiting for the limiter.
func (c *Connection) offerDirection(dir float32) {
	c.mu.Lock()
	if c.hasDir {
		c.logger.Debug("direction coalesced")
	}
	c.latestDir = dir
	c.hasDir = true
	c.mu.Unlock()

	select {
	case c.dirPending <- struct{}{}:
	default:
	}
}

func (c *Connection) takeDirection() (float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, ok := c.latestDir, c.hasDir
	c.hasDir = false
	return dir, ok
}

// paceDirections forwards the most recent direction each time the limiter
// grants a token. Directions arriving in between overwrite each other.
func (c *Connection) paceDirections(ctx context.Context) {
	for {
		select {
		case <-c.dirPending:
		case <-c.peer.done:
			return
		case <-ctx.Done():
			return
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		dir, ok := c.takeDirection()
		if !ok {
			continue
		}
		if !c.forward(ctx, Intent{ID: c.peer.ID, Kind: IntentDirection, Dir: dir}) {
			return
		}
	}
}

// forward blocks while the intents queue is full. It returns false when the
// connection should stop.
func (c *Connection) forward(ctx context.Context, intent Intent) bool {
	select {
	case c.intents <- intent:
		return true
	case <-c.peer.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Connection) disconnect(ctx context.Context) {
	select {
	case c.events <- Event{Type: EventTypeDisconnected, ID: c.peer.ID}:
	case <-c.peer.done:
	case <-ctx.Done():
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
