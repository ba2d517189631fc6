package media

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"
)

const pliInterval = 3 * time.Second

// RTCPWriter sends feedback to a remote sender. *webrtc.PeerConnection
// implements it.
type RTCPWriter interface {
	WriteRTCP(pkts []rtcp.Packet) error
}

// TrackStats counts what one remote track delivered.
type TrackStats struct {
	Remote  string
	Kind    string
	Codec   string
	Packets uint64
	Bytes   uint64
	Last    time.Time
}

// Sink consumes remote tracks. It does not decode or render; it keeps
// per-track counters for the room view.
type Sink struct {
	log *slog.Logger

	mu     sync.Mutex
	tracks map[string]map[string]*TrackStats // remote -> track ID -> stats
}

func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		log:    logger.With("component", "sink"),
		tracks: make(map[string]map[string]*TrackStats),
	}
}

// Consume reads track until it ends. Video tracks get a keyframe request up
// front and then periodically through w.
func (s *Sink) Consume(remoteID string, track *pion.TrackRemote, w RTCPWriter) {
	kind := track.Kind().String()
	codec := track.Codec().MimeType
	trackID := track.ID()
	s.add(remoteID, trackID, kind, codec)
	s.log.Info("remote track", "remote", remoteID, "kind", kind, "codec", codec)

	done := make(chan struct{})
	defer close(done)
	if track.Kind() == pion.RTPCodecTypeVideo && w != nil {
		go requestKeyframes(w, uint32(track.SSRC()), done)
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("remote track ended", "remote", remoteID, "err", err)
			}
			return
		}
		s.record(remoteID, trackID, pkt.MarshalSize())
	}
}

func requestKeyframes(w RTCPWriter, ssrc uint32, done <-chan struct{}) {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		if err := w.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (s *Sink) add(remoteID, trackID, kind, codec string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTrack, ok := s.tracks[remoteID]
	if !ok {
		byTrack = make(map[string]*TrackStats)
		s.tracks[remoteID] = byTrack
	}
	byTrack[trackID] = &TrackStats{Remote: remoteID, Kind: kind, Codec: codec}
}

func (s *Sink) record(remoteID, trackID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[remoteID][trackID]
	if !ok {
		return
	}
	st.Packets++
	st.Bytes += uint64(n)
	st.Last = time.Now()
}

// Forget drops the counters of a remote that went away.
func (s *Sink) Forget(remoteID string) {
	s.mu.Lock()
	delete(s.tracks, remoteID)
	s.mu.Unlock()
}

// Stats returns the tracks received from remoteID ordered by kind.
func (s *Sink) Stats(remoteID string) []TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackStats, 0, len(s.tracks[remoteID]))
	for _, st := range s.tracks[remoteID] {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Totals sums packets and bytes received from remoteID.
func (s *Sink) Totals(remoteID string) (packets, bytes uint64) {
	for _, st := range s.Stats(remoteID) {
		packets += st.Packets
		bytes += st.Bytes
	}
	return packets, bytes
}
