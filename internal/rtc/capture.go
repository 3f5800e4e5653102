package rtc

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Capture is the local media source. One capture is shared by every
// outgoing peer connection; closing it stops the outgoing tracks
// everywhere at once.
type Capture interface {
	StreamID() string
	Tracks() []webrtc.TrackLocal
	WriteVideoSample(s media.Sample) error
	Close()
}

// sampleCapture publishes one VP8 video track and one Opus audio track
// under a shared stream id. Actual frame production is the caller's
// concern; headless clients push samples in, browsers never reach this
// code path.
type sampleCapture struct {
	streamID string
	video    *webrtc.TrackLocalStaticSample
	audio    *webrtc.TrackLocalStaticSample
	closed   chan struct{}
}

func NewSampleCapture() (Capture, error) {
	streamID := uuid.NewString()
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}
	return &sampleCapture{
		streamID: streamID,
		video:    video,
		audio:    audio,
		closed:   make(chan struct{}),
	}, nil
}

func (c *sampleCapture) StreamID() string { return c.streamID }

func (c *sampleCapture) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.video, c.audio}
}

func (c *sampleCapture) WriteVideoSample(s media.Sample) error {
	select {
	case <-c.closed:
		return nil
	default:
	}
	if s.Duration == 0 {
		s.Duration = time.Second / 30
	}
	return c.video.WriteSample(s)
}

func (c *sampleCapture) Close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
