package webrtc

import (
	"time"

	"github.com/gofrs/uuid"
	pion "github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"

	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/media"
)

// Outbound is a local track handle the Transport knows how to attach.
type Outbound struct {
	kind   media.Kind
	stream string
	track  *pion.TrackLocalStaticSample
	stop   chan struct{}
}

func (o *Outbound) Kind() media.Kind { return o.kind }
func (o *Outbound) StreamId() string { return o.stream }

// SyntheticCapture stands in for real devices on a headless client.
// The mic track carries Opus silence, the video tracks stay idle.
type SyntheticCapture struct {
	log *logger.Logger
}

func NewSyntheticCapture(log *logger.Logger) *SyntheticCapture { return &SyntheticCapture{log: log} }

// opusSilence is a DTX frame, enough to keep the track alive.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func (c *SyntheticCapture) Acquire(comp media.Composition) ([]media.Track, error) {
	stream := uuid.Must(uuid.NewV4()).String()
	var tracks []media.Track
	fail := func(err error) ([]media.Track, error) {
		c.Release(tracks)
		return nil, err
	}

	if comp.Mic {
		t, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus}, "audio", stream)
		if err != nil {
			return fail(err)
		}
		out := &Outbound{kind: media.Audio, stream: stream, track: t, stop: make(chan struct{})}
		go c.feedSilence(out)
		tracks = append(tracks, out)
	}
	if comp.Camera {
		t, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "camera", stream)
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, &Outbound{kind: media.Camera, stream: stream, track: t})
	}
	if comp.Screen {
		t, err := pion.NewTrackLocalStaticSample(
			pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8}, "screen", stream)
		if err != nil {
			return fail(err)
		}
		tracks = append(tracks, &Outbound{kind: media.Screen, stream: stream, track: t})
	}
	return tracks, nil
}

func (c *SyntheticCapture) Release(tracks []media.Track) {
	for _, t := range tracks {
		if out, ok := t.(*Outbound); ok && out.stop != nil {
			select {
			case <-out.stop:
			default:
				close(out.stop)
			}
		}
	}
}

func (c *SyntheticCapture) feedSilence(out *Outbound) {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-out.stop:
			return
		case <-tick.C:
			err := out.track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
			if err != nil {
				c.log.Debug().Err(err).Msg("silence feed stopped")
				return
			}
		}
	}
}
