package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/siohaza/slither/internal/bans"
	"github.com/siohaza/slither/internal/callbacks"
	"github.com/siohaza/slither/internal/gamestate"
	"github.com/siohaza/slither/internal/journal"
	"github.com/siohaza/slither/internal/masterserver"
	"github.com/siohaza/slither/internal/network"
	"github.com/siohaza/slither/internal/ping"
	"github.com/siohaza/slither/internal/protocol"
	"github.com/siohaza/slither/internal/slither"
	"github.com/siohaza/slither/internal/world"
	"github.com/siohaza/slither/pkg/config"
)

const (
	Version = "0.1.0"

	announceInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

type Server struct {
	config        *config.Config
	logger        *slog.Logger
	codec         protocol.Codec
	gameState     *gamestate.GameState
	updater       *StateUpdater
	listener      *network.Listener
	banManager    *bans.Manager
	callbacks     *callbacks.CallbackChain
	journal       *journal.Journal
	pingHandler   *ping.Handler
	masterServers []*masterserver.Client
	tcp           net.Listener
	httpServer    *http.Server
	startTime     time.Time

	events  chan network.Event
	intents chan network.Intent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running  bool
	done     chan struct{}
	err      error
	stopOnce sync.Once
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	codec, err := protocol.CodecByName(cfg.Wire.Codec)
	if err != nil {
		return nil, err
	}

	speedModel, err := slither.ParseSpeedModel(cfg.Slither.SpeedModel)
	if err != nil {
		return nil, err
	}

	w := world.New(world.Options{
		Width:       cfg.World.Width,
		Height:      cfg.World.Height,
		InitialMass: cfg.World.InitialMass,
		MinClotMass: cfg.World.MinClotMass,
		MaxClotMass: cfg.World.MaxClotMass,
		Seed:        cfg.World.Seed,
	})

	srv := &Server{
		config:    cfg,
		logger:    logger,
		codec:     codec,
		gameState: gamestate.New(w),
		callbacks: callbacks.NewCallbackChain(),
		events:    make(chan network.Event, cfg.Server.EventQueue),
		intents:   make(chan network.Intent, cfg.Server.IntentQueue),
		done:      make(chan struct{}),
	}

	if cfg.Bans.File != "" {
		srv.banManager, err = bans.NewManager(cfg.Bans.File)
		if err != nil {
			return nil, err
		}
		if err := srv.banManager.Load(); err != nil {
			logger.Warn("failed to load bans", "error", err)
		}
	}

	if cfg.Scripts.Hooks != "" {
		hooks, err := callbacks.LoadLuaCallbacks(cfg.Scripts.Hooks, logger)
		if err != nil {
			return nil, err
		}
		srv.callbacks.Register(hooks)
		logger.Info("loaded lua hooks", "path", cfg.Scripts.Hooks, "name", hooks.Name())
	}

	srv.updater, err = NewStateUpdater(UpdaterConfig{
		Tuning: slither.Tuning{
			SpeedCoef:         cfg.Slither.SpeedCoef,
			SpeedModel:        speedModel,
			MaxChangeDirSpeed: cfg.Slither.MaxChangeDirSpeed,
			BoostLossRate:     cfg.Slither.BoostLossRate,
			MinBoostMass:      cfg.Slither.MinBoostMass,
		},
		InitialMass:     cfg.Slither.InitialMass,
		TickInterval:    cfg.TickInterval(),
		LeaderboardSize: cfg.Tick.LeaderboardSize,
		Codec:           codec,
	}, srv.gameState, srv.events, srv.intents, srv.callbacks, logger.With("component", "simulation"))
	if err != nil {
		return nil, err
	}

	listenerCfg := network.ListenerConfig{
		Codec:            codec,
		MaxFrameSize:     uint32(cfg.Wire.MaxFrameSize),
		MaxPlayers:       cfg.Server.MaxPlayers,
		HandshakeTimeout: cfg.HandshakeTimeout(),
		WriteTimeout:     cfg.WriteTimeout(),
		SendQueue:        cfg.Server.SendQueue,
	}
	if cfg.RateLimit.Enabled {
		listenerCfg.IntentsPerSecond = float64(cfg.RateLimit.IntentsPerSecond)
		listenerCfg.IntentBurst = cfg.RateLimit.BurstSize
	}
	if srv.banManager != nil {
		listenerCfg.Bans = srv.banManager
	}
	srv.listener = network.NewListener(listenerCfg, srv.events, srv.intents, logger.With("component", "network"))

	pingPort := cfg.Server.PingPort
	if pingPort == 0 {
		pingPort = cfg.Server.Port + 1
	}
	srv.pingHandler = ping.NewHandler(fmt.Sprintf(":%d", pingPort), srv.serverInfo, logger)

	return srv, nil
}

// RegisterCallbacks adds lifecycle hooks. It must be called before Start.
func (s *Server) RegisterCallbacks(cb callbacks.Callbacks) {
	s.callbacks.Register(cb)
}

func (s *Server) serverInfo() ping.ServerInfo {
	return ping.ServerInfo{
		Name:           s.config.Server.Name,
		PlayersCurrent: s.updater.Players(),
		PlayersMax:     s.config.Server.MaxPlayers,
		WorldWidth:     s.config.World.Width,
		WorldHeight:    s.config.World.Height,
		Codec:          s.codec.Name(),
		WebSocketPort:  s.config.Server.WSPort,
		GameVersion:    Version,
	}
}

func (s *Server) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.config.Journal.Enabled {
		s.journal = journal.New(s.config.Journal.Dir, s.logger.With("component", "journal"))
		s.callbacks.Register(s.journal)
	}

	tcp, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.Port))
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.tcp = tcp

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.listener.Serve(s.ctx, tcp); err != nil {
			s.logger.Error("tcp listener stopped", "error", err)
		}
	}()

	if s.config.Server.WSPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/ws", s.listener.WebSocketHandler(s.ctx))
		s.httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.Server.WSPort),
			Handler:           mux,
			ReadHeaderTimeout: s.config.HandshakeTimeout(),
		}

		ln, err := net.Listen("tcp", s.httpServer.Addr)
		if err != nil {
			s.cancel()
			tcp.Close()
			return fmt.Errorf("failed to listen for websockets: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.logger.Info("websocket listening", "address", ln.Addr().String())
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("websocket server stopped", "error", err)
			}
		}()
	}

	if err := s.pingHandler.Start(); err != nil {
		s.logger.Warn("failed to start ping handler", "error", err)
	}

	if s.config.Master.Enabled {
		s.startMasterServers()
	}

	s.startTime = time.Now()
	s.running = true

	go func() {
		defer close(s.done)
		s.err = s.updater.Run(s.ctx)
		if s.err != nil {
			s.logger.Error("simulation failed", "error", s.err)
		}
	}()

	s.logger.Info("server started", "name", s.config.Server.Name, "port", s.config.Server.Port, "codec", s.codec.Name())

	return nil
}

func (s *Server) startMasterServers() {
	listing := masterserver.Listing{
		Name:        s.config.Server.Name,
		Port:        uint16(s.config.Server.Port),
		WSPort:      uint16(s.config.Server.WSPort),
		MaxPlayers:  uint16(s.config.Server.MaxPlayers),
		WorldWidth:  s.config.World.Width,
		WorldHeight: s.config.World.Height,
		Codec:       s.codec.Name(),
	}

	for _, host := range s.config.Master.Hosts {
		ms, err := masterserver.New(host.Host, host.Port, listing, s.logger)
		if err != nil {
			s.logger.Error("failed to create master server client", "host", host.Host, "error", err)
			continue
		}
		s.masterServers = append(s.masterServers, ms)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ms.Run(s.ctx)
		}()
		s.logger.Info("master server integration enabled", "host", host.Host)
	}

	if len(s.masterServers) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(announceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				n := s.updater.Players()
				for _, ms := range s.masterServers {
					ms.SetPlayerCount(n)
				}
			}
		}
	}()
}

// Addr is the bound game address, valid after Start.
func (s *Server) Addr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// Done is closed when the simulation goroutine has returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Err reports why the simulation returned once Done is closed. It is nil
// after a clean Stop.
func (s *Server) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// ReloadBans re-reads the ban file, picking up edits made while running.
func (s *Server) ReloadBans() error {
	if s.banManager == nil {
		return nil
	}
	if err := s.banManager.Load(); err != nil {
		return err
	}
	s.logger.Info("bans reloaded", "count", len(s.banManager.List()))
	return nil
}

func (s *Server) Players() int {
	return s.updater.Players()
}

func (s *Server) GetUptime() time.Duration {
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *Server) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Server) stop() {
	s.logger.Info("stopping server")

	if !s.running {
		if s.cancel != nil {
			s.cancel()
		}
		return
	}
	s.cancel()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("websocket shutdown", "error", err)
		}
		cancel()
	}

	<-s.done
	s.wg.Wait()

	s.pingHandler.Stop()

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Error("failed to close journal", "error", err)
		}
	}

	s.logger.Info("server stopped", "uptime", s.GetUptime().Round(time.Second))
}
