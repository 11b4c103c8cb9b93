package network

import (
	"bufio"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siohaza/slither/internal/geom"
	"github.com/siohaza/slither/internal/world"
)

// Peer is one joined player as seen by the simulation: identity from the
// handshake plus a bounded outbox drained by its own write loop.
type Peer struct {
	ID       world.SlitherID
	Addr     string
	Nickname string
	Color    *geom.Color

	stream       Stream
	reader       *bufio.Reader
	writeTimeout time.Duration
	logger       *slog.Logger

	sendCh  chan []byte
	dropped atomic.Bool

	// done is closed by the simulation once the peer is out of the game.
	done     chan struct{}
	doneOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
}

func newPeer(id world.SlitherID, stream Stream, reader *bufio.Reader, sendQueue int, writeTimeout time.Duration, logger *slog.Logger) *Peer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Peer{
		ID:           id,
		Addr:         stream.RemoteAddr().String(),
		stream:       stream,
		reader:       reader,
		writeTimeout: writeTimeout,
		logger:       logger.With("peer", id),
		sendCh:       make(chan []byte, sendQueue),
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
	}
}

// Send queues an already encoded chunk. It never blocks and reports false when
// the outbox is full or the peer has been released.
func (p *Peer) Send(data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.sendCh <- data:
		return true
	default:
		p.dropped.Store(true)
		return false
	}
}

// Dropped reports whether a Send ever failed on a full outbox.
func (p *Peer) Dropped() bool {
	return p.dropped.Load()
}

// Done is closed when the simulation has removed the peer.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Release tells the connection and the write loop that the peer is gone.
// Chunks already queued are still flushed before the stream closes.
func (p *Peer) Release() {
	p.doneOnce.Do(func() {
		close(p.done)
	})
}

func (p *Peer) released() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close shuts the underlying stream down, unblocking any pending read.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.stream.Close()
	})
}

func (p *Peer) write(data []byte) error {
	if p.writeTimeout > 0 {
		if err := p.stream.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := p.stream.Write(data)
	return err
}

// WriteLoop sends queued chunks until the peer is released or a write fails.
func (p *Peer) WriteLoop() {
	defer p.Close()

	for {
		select {
		case data := <-p.sendCh:
			if err := p.write(data); err != nil {
				p.logger.Debug("write failed", "error", err)
				return
			}
		case <-p.done:
			p.flush()
			return
		case <-p.closed:
			return
		}
	}
}

func (p *Peer) flush() {
	for {
		select {
		case data := <-p.sendCh:
			if err := p.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
