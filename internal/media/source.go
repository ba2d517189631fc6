package media

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	streamID = "meshroom"

	defaultFrameDuration = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
	opusSampleRate       = 48000
)

// Options selects the files a Source plays. Empty paths leave the track
// silent; it is still negotiated.
type Options struct {
	VideoFile string // IVF (VP8, VP9 or AV1)
	AudioFile string // Ogg/Opus
	Logger    *slog.Logger
}

// Source is the participant's local audio and video. Its two tracks are
// added to every peer connection, so toggling them affects all remotes at
// once and never needs renegotiation.
type Source struct {
	video *pion.TrackLocalStaticSample
	audio *pion.TrackLocalStaticSample
	log   *slog.Logger

	videoOn atomic.Bool
	audioOn atomic.Bool

	written atomic.Uint64
	dropped atomic.Uint64

	files     []*os.File
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// OpenSource acquires the local media. Every failure wraps ErrAcquisition
// and leaves nothing open.
func OpenSource(opts Options) (*Source, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Source{
		log:  logger.With("component", "media"),
		done: make(chan struct{}),
	}

	videoMime := pion.MimeTypeVP8
	var ivf *ivfreader.IVFReader
	var ivfHeader *ivfreader.IVFFileHeader
	if opts.VideoFile != "" {
		f, err := os.Open(opts.VideoFile)
		if err != nil {
			return nil, acquisitionError("video", opts.VideoFile, err)
		}
		s.files = append(s.files, f)

		ivf, ivfHeader, err = ivfreader.NewWith(f)
		if err != nil {
			s.closeFiles()
			return nil, acquisitionError("video", opts.VideoFile, err)
		}
		videoMime, err = mimeForFourCC(ivfHeader.FourCC)
		if err != nil {
			s.closeFiles()
			return nil, acquisitionError("video", opts.VideoFile, err)
		}
	}

	var ogg *oggreader.OggReader
	if opts.AudioFile != "" {
		f, err := os.Open(opts.AudioFile)
		if err != nil {
			s.closeFiles()
			return nil, acquisitionError("audio", opts.AudioFile, err)
		}
		s.files = append(s.files, f)

		ogg, _, err = oggreader.NewWith(f)
		if err != nil {
			s.closeFiles()
			return nil, acquisitionError("audio", opts.AudioFile, err)
		}
	}

	var err error
	s.video, err = pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: videoMime}, "video", streamID)
	if err != nil {
		s.closeFiles()
		return nil, acquisitionError("video", "track", err)
	}
	s.audio, err = pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		s.closeFiles()
		return nil, acquisitionError("audio", "track", err)
	}

	s.videoOn.Store(true)
	s.audioOn.Store(true)

	if ivf != nil {
		s.wg.Add(1)
		go s.playIVF(s.files[0], ivf, ivfHeader)
	}
	if ogg != nil {
		s.wg.Add(1)
		go s.playOgg(s.files[len(s.files)-1], ogg)
	}
	return s, nil
}

func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return pion.MimeTypeVP8, nil
	case "VP90":
		return pion.MimeTypeVP9, nil
	case "AV01":
		return pion.MimeTypeAV1, nil
	default:
		return "", errors.New("unsupported codec " + fourcc)
	}
}

// Tracks returns the tracks to add to each peer connection.
func (s *Source) Tracks() []pion.TrackLocal {
	return []pion.TrackLocal{s.video, s.audio}
}

func (s *Source) SetVideoEnabled(enabled bool) { s.videoOn.Store(enabled) }
func (s *Source) SetAudioEnabled(enabled bool) { s.audioOn.Store(enabled) }
func (s *Source) VideoEnabled() bool           { return s.videoOn.Load() }
func (s *Source) AudioEnabled() bool           { return s.audioOn.Load() }

// WriteVideoSample sends one encoded video frame to every remote. It is
// dropped while video is disabled.
func (s *Source) WriteVideoSample(sample pionmedia.Sample) error {
	return s.write(s.video, &s.videoOn, sample)
}

// WriteAudioSample sends one encoded audio frame to every remote. It is
// dropped while audio is disabled.
func (s *Source) WriteAudioSample(sample pionmedia.Sample) error {
	return s.write(s.audio, &s.audioOn, sample)
}

func (s *Source) write(track *pion.TrackLocalStaticSample, on *atomic.Bool, sample pionmedia.Sample) error {
	if !on.Load() {
		s.dropped.Add(1)
		return nil
	}
	if err := track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	s.written.Add(1)
	return nil
}

// Counts returns how many samples were sent and how many were dropped
// because their track was disabled.
func (s *Source) Counts() (written, dropped uint64) {
	return s.written.Load(), s.dropped.Load()
}

// Close stops playback and releases the files. It is safe to call more than
// once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.closeFiles()
	})
	return nil
}

func (s *Source) closeFiles() {
	for _, f := range s.files {
		f.Close()
	}
	s.files = nil
}

func (s *Source) playIVF(f *os.File, reader *ivfreader.IVFReader, header *ivfreader.IVFFileHeader) {
	defer s.wg.Done()

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if reader, err = rewindIVF(f); err != nil {
				s.log.Warn("rewind video", "err", err)
				return
			}
			continue
		}
		if err != nil {
			s.log.Warn("read video frame", "err", err)
			return
		}

		if err := s.WriteVideoSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			s.log.Debug("write video sample", "err", err)
		}
	}
}

func rewindIVF(f *os.File) (*ivfreader.IVFReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	reader, _, err := ivfreader.NewWith(f)
	return reader, err
}

func (s *Source) playOgg(f *os.File, reader *oggreader.OggReader) {
	defer s.wg.Done()

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				s.log.Warn("rewind audio", "err", err)
				return
			}
			if reader, _, err = oggreader.NewWith(f); err != nil {
				s.log.Warn("rewind audio", "err", err)
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			s.log.Warn("read audio page", "err", err)
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		if err := s.WriteAudioSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			s.log.Debug("write audio sample", "err", err)
		}
	}
}
