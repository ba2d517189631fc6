package webrtc

import (
	"log/slog"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/logging"
	"github.com/keiu-jiyu/VideoChat/internal/media"
	"github.com/keiu-jiyu/VideoChat/internal/netutil"
	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// LocalMedia is the shared source whose tracks every connection sends.
type LocalMedia interface {
	Tracks() []pion.TrackLocal
	VideoEnabled() bool
	AudioEnabled() bool
}

// Factory builds one pion peer connection per session. It implements
// peer.TransportFactory.
type Factory struct {
	api    *pion.API
	config pion.Configuration
	local  LocalMedia
	sink   *media.Sink
	log    *slog.Logger
}

// NewFactory prepares the pion API and ICE configuration. local and sink may
// be nil.
func NewFactory(cfg *config.Config, local LocalMedia, sink *media.Sink, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}
	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, NewError("register interceptors", err)
	}

	settings := pion.SettingEngine{LoggerFactory: logging.NewPionFactory(logger)}

	return &Factory{
		api: pion.NewAPI(
			pion.WithMediaEngine(m),
			pion.WithInterceptorRegistry(registry),
			pion.WithSettingEngine(settings),
		),
		config: Configuration(cfg, netutil.ShouldForceRelay()),
		local:  local,
		sink:   sink,
		log:    logger,
	}, nil
}

// Configuration builds the ICE configuration. Relay-only policy applies when
// TURN is configured and either requested or suggested by the local network.
func Configuration(cfg *config.Config, tunneled bool) pion.Configuration {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || tunneled) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// NewTransport implements peer.TransportFactory.
func (f *Factory) NewTransport(remote room.Member, role peer.Role, events peer.TransportEvents) (peer.Transport, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	t := newTransport(remote, role, pc, events, f.local, f.sink, f.log)

	if f.local != nil {
		for _, track := range f.local.Tracks() {
			sender, err := pc.AddTrack(track)
			if err != nil {
				pc.Close()
				return nil, NewError("add track", err)
			}
			go drainRTCP(sender)
		}
	}

	t.bind()
	return t, nil
}

// drainRTCP reads incoming RTCP so pion's interceptors keep running.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
