package ping

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

const (
	pingRequest = "HELLO"
	infoRequest = "HELLOLAN"
	pingReply   = "HI"
)

// Handler answers UDP discovery probes: "HELLO" gets "HI", "HELLOLAN" gets the
// current ServerInfo as JSON.
type Handler struct {
	conn          *net.UDPConn
	info          func() ServerInfo
	logger        *slog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	listenAddress string
}

type ServerInfo struct {
	Name           string  `json:"name"`
	PlayersCurrent int     `json:"players_current"`
	PlayersMax     int     `json:"players_max"`
	WorldWidth     float32 `json:"world_width"`
	WorldHeight    float32 `json:"world_height"`
	Codec          string  `json:"codec"`
	WebSocketPort  int     `json:"ws_port,omitempty"`
	GameVersion    string  `json:"game_version"`
}

// NewHandler creates a handler for address. info is called once per
// "HELLOLAN" probe and must be safe for concurrent use.
func NewHandler(address string, info func() ServerInfo, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		info:          info,
		logger:        logger,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
		listenAddress: address,
	}
}

func (h *Handler) Start() error {
	addr, err := net.ResolveUDPAddr("udp", h.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	h.conn = conn
	h.logger.Info("ping handler started", "address", conn.LocalAddr().String())

	go h.handlePackets()

	return nil
}

// Addr reports the bound address once Start has succeeded.
func (h *Handler) Addr() net.Addr {
	if h.conn == nil {
		return nil
	}
	return h.conn.LocalAddr()
}

func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
		if h.conn != nil {
			h.conn.Close()
			<-h.done
		}
		h.logger.Info("ping handler stopped")
	})
}

func (h *Handler) handlePackets() {
	defer close(h.done)
	buffer := make([]byte, 64)

	for {
		n, addr, err := h.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-h.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			h.logger.Error("failed to read UDP packet", "error", err)
			continue
		}

		h.handlePacket(buffer[:n], addr)
	}
}

func (h *Handler) handlePacket(data []byte, addr *net.UDPAddr) {
	var reply []byte

	switch string(data) {
	case pingRequest:
		reply = []byte(pingReply)
	case infoRequest:
		b, err := json.Marshal(h.info())
		if err != nil {
			h.logger.Error("failed to marshal server info", "error", err)
			return
		}
		reply = b
	default:
		return
	}

	if _, err := h.conn.WriteToUDP(reply, addr); err != nil {
		h.logger.Error("failed to send ping response", "error", err, "addr", addr)
		return
	}
	h.logger.Debug("sent ping response", "addr", addr, "request", string(data))
}
