package webrtc

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	pion "github.com/pion/webrtc/v3"

	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/media"
	"github.com/rockypaper/metachat/pkg/mesh"
)

// Transport builds pion peer connections for the session mesh.
type Transport struct {
	factory *ApiFactory
	log     *logger.Logger
}

func NewTransport(conf config.Webrtc, log *logger.Logger) (*Transport, error) {
	factory, err := NewApiFactory(conf, log, nil)
	if err != nil {
		return nil, err
	}
	return &Transport{factory: factory, log: log}, nil
}

func (t *Transport) CreateSession(role mesh.Role, tracks []media.Track, cb mesh.SessionCallbacks) (mesh.Session, error) {
	pc, err := t.factory.NewPeer()
	if err != nil {
		return nil, err
	}
	s := &Session{pc: pc, role: role, cb: cb, log: t.log}

	for _, track := range tracks {
		out, ok := track.(*Outbound)
		if !ok {
			t.log.Warn().Msgf("foreign %s track skipped", track.Kind())
			continue
		}
		if _, err := pc.AddTrack(out.track); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		kind := media.Audio
		if track.Kind() == pion.RTPCodecTypeVideo {
			kind = media.Camera
		}
		if cb.OnRemoteMedia != nil {
			cb.OnRemoteMedia(kind)
		}
		// drain the track, sinks attach out of band
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				if !errors.Is(err, io.EOF) {
					t.log.Debug().Err(err).Msg("remote track read stopped")
				}
				return
			}
		}
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		switch state {
		case pion.PeerConnectionStateConnected:
			if cb.OnConnected != nil {
				cb.OnConnected()
			}
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			s.failOnce.Do(func() {
				if cb.OnError != nil {
					cb.OnError(fmt.Errorf("peer connection %s", state))
				}
			})
		}
	})

	if role == mesh.Initiator {
		go s.offer()
	}
	return s, nil
}

// Session negotiates with whole-description signals: candidates are
// gathered in full before the description goes out, there is no
// trickle over the relay.
type Session struct {
	pc   *pion.PeerConnection
	role mesh.Role
	cb   mesh.SessionCallbacks
	log  *logger.Logger

	closeOnce sync.Once
	failOnce  sync.Once
}

func (s *Session) Signal(data []byte) error {
	var sd pion.SessionDescription
	if err := json.Unmarshal(data, &sd); err != nil {
		return err
	}
	switch {
	case s.role == mesh.Initiator && sd.Type == pion.SDPTypeAnswer:
		return s.pc.SetRemoteDescription(sd)
	case s.role == mesh.Receiver && sd.Type == pion.SDPTypeOffer:
		if err := s.pc.SetRemoteDescription(sd); err != nil {
			return err
		}
		go s.answer()
		return nil
	}
	return fmt.Errorf("unexpected %s for the %s", sd.Type, s.role)
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.pc.Close(); err != nil {
			s.log.Error().Err(err).Msg("peer connection close failed")
		}
	})
}

func (s *Session) offer() {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.fail(err)
		return
	}
	s.emit(offer)
}

func (s *Session) answer() {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.fail(err)
		return
	}
	s.emit(answer)
}

// emit applies the local description, waits the ICE gathering out, and
// hands the complete description to the signal callback.
func (s *Session) emit(sd pion.SessionDescription) {
	gathered := pion.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(sd); err != nil {
		s.fail(err)
		return
	}
	<-gathered
	local := s.pc.LocalDescription()
	if local == nil {
		s.fail(errors.New("no local description after gathering"))
		return
	}
	data, err := json.Marshal(local)
	if err != nil {
		s.fail(err)
		return
	}
	if s.cb.OnLocalSignal != nil {
		s.cb.OnLocalSignal(data)
	}
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	})
}
