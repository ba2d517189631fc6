package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/media"
	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/signaling"
	"github.com/keiu-jiyu/VideoChat/internal/webrtc"
)

const handshakeTimeout = 10 * time.Second

// RoomSession bundles everything one participant holds while in a room.
type RoomSession struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Manager *peer.Manager
	Source  *media.Source
	Sink    *media.Sink
	Config  *config.Config

	RoomID string
	Name   string
}

// NewRoomSession connects to the relay and wires the mesh to it. The source
// is owned by the returned session and closed with it.
func NewRoomSession(ctx context.Context, cfg *config.Config, source *media.Source, onChange func(), logger *slog.Logger) (*RoomSession, error) {
	sink := media.NewSink(logger)
	factory, err := webrtc.NewFactory(cfg, source, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("create peer factory: %w", err)
	}

	client := signaling.NewClient(cfg.ServerURL)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to relay: %w", err)
	}

	manager := peer.NewManager(peer.Config{
		Factory:  factory,
		Signaler: client,
		Source:   source,
		Logger:   logger,
		OnChange: onChange,
	})
	handler := signaling.NewHandler(client, manager, logger)
	go handler.Start()

	s := &RoomSession{
		Client:  client,
		Handler: handler,
		Manager: manager,
		Source:  source,
		Sink:    sink,
		Config:  cfg,
	}

	if err := s.waitWelcome(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *RoomSession) waitWelcome(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	select {
	case <-s.Handler.Welcome:
		return nil
	case <-s.Client.Done():
		return fmt.Errorf("connect to relay: %w", signaling.ErrClosed)
	case <-ctx.Done():
		return fmt.Errorf("connect to relay: %w", ctx.Err())
	}
}

// Join enters roomID and returns the members that were already present.
func (s *RoomSession) Join(ctx context.Context, roomID, name string) ([]room.Member, error) {
	if err := s.Client.Join(roomID, name); err != nil {
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	select {
	case members := <-s.Handler.Joined:
		s.RoomID, s.Name = roomID, name
		return members, nil
	case reason := <-s.Handler.Error:
		return nil, fmt.Errorf("join %s: relay refused: %s", roomID, reason)
	case <-s.Client.Done():
		return nil, fmt.Errorf("join %s: %w", roomID, signaling.ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("join %s: %w", roomID, ctx.Err())
	}
}

// Summary captures per-peer receive totals before the sessions are torn
// down.
func (s *RoomSession) Summary() ([]peer.SessionInfo, map[string][2]uint64) {
	sessions := s.Manager.Snapshot()
	totals := make(map[string][2]uint64, len(sessions))
	for _, info := range sessions {
		packets, bytes := s.Sink.Totals(info.RemoteID)
		totals[info.RemoteID] = [2]uint64{packets, bytes}
	}
	return sessions, totals
}

// Close leaves the room and releases every peer connection and the local
// media.
func (s *RoomSession) Close() {
	if s.RoomID != "" {
		s.Client.Leave()
	}
	s.Manager.Close()
	s.Client.Close()
}
