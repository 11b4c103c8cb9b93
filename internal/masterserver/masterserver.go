package masterserver

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/codecat/go-enet"
)

const serviceInterval = 100 * time.Millisecond

// Listing is what the master server shows for this arena.
type Listing struct {
	Name        string
	Port        uint16
	WSPort      uint16
	MaxPlayers  uint16
	WorldWidth  float32
	WorldHeight float32
	Codec       string
}

// encodeListing lays out a full listing update: u16 max players, u16 port,
// u16 ws port, f32 width, f32 height, then NUL-terminated name and codec.
// All integers are little endian.
func encodeListing(l Listing) []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.LittleEndian, l.MaxPlayers)
	binary.Write(&buf, binary.LittleEndian, l.Port)
	binary.Write(&buf, binary.LittleEndian, l.WSPort)
	binary.Write(&buf, binary.LittleEndian, l.WorldWidth)
	binary.Write(&buf, binary.LittleEndian, l.WorldHeight)
	buf.WriteString(l.Name)
	buf.WriteByte(0)
	buf.WriteString(l.Codec)
	buf.WriteByte(0)

	return buf.Bytes()
}

func encodePlayerCount(count uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, count)
}

// Client keeps an ENet session to one master server. The session is owned by
// the Run goroutine; other goroutines only publish the player count.
type Client struct {
	host       enet.Host
	peer       enet.Peer
	domain     string
	domainPort uint16
	listing    Listing
	connected  bool
	players    atomic.Int32
	sent       int32
	logger     *slog.Logger
}

func New(domain string, domainPort int, listing Listing, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	host, err := enet.NewHost(nil, 1, 1, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}

	if err := host.CompressWithRangeCoder(); err != nil {
		host.Destroy()
		return nil, err
	}

	return &Client{
		host:       host,
		domain:     domain,
		domainPort: uint16(domainPort),
		listing:    listing,
		sent:       -1,
		logger:     logger.With("master", fmt.Sprintf("%s:%d", domain, domainPort)),
	}, nil
}

// SetPlayerCount publishes the current player count. Safe for concurrent use.
func (c *Client) SetPlayerCount(count int) {
	c.players.Store(int32(count))
}

func (c *Client) send(data []byte) {
	packet, err := enet.NewPacket(data, enet.PacketFlagReliable)
	if err != nil {
		c.logger.Error("failed to create master server packet", "error", err)
		return
	}

	if err := c.peer.SendPacket(packet, 0); err != nil {
		c.logger.Error("failed to send master server packet", "error", err)
	}
}

func (c *Client) service() {
	if c.peer == nil {
		peer, err := c.host.Connect(enet.NewAddress(c.domain, c.domainPort), 1, 0)
		if err != nil {
			c.logger.Error("failed to connect to master server", "error", err)
			return
		}
		c.peer = peer
		c.connected = false
	}

	event := c.host.Service(0)
	switch event.GetType() {
	case enet.EventConnect:
		c.logger.Info("connected to master server")
		c.connected = true
		c.send(encodeListing(c.listing))
		c.sent = -1

	case enet.EventDisconnect:
		c.logger.Warn("disconnected from master server")
		c.connected = false
		c.peer = nil

	case enet.EventReceive:
		event.GetPacket().Destroy()
	}

	if c.connected {
		if count := c.players.Load(); count != c.sent {
			c.send(encodePlayerCount(uint16(count)))
			c.sent = count
		}
	}
}

// Run services the session until ctx is done, then disconnects and frees the host.
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(serviceInterval)
	defer ticker.Stop()
	defer c.destroy()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.service()
		}
	}
}

func (c *Client) destroy() {
	if c.peer != nil && c.connected {
		c.peer.Disconnect(0)
		time.Sleep(serviceInterval)
		c.host.Service(0)
	}
	c.host.Destroy()
}
