package mesh

import (
	"errors"
	"sync"
	"time"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/media"
)

var ErrSignalingLost = errors.New("signaling connection lost")

// Orchestrator owns the full meeting state of one participant: the
// roster, the pairwise sessions, and the shared media composition.
//
// It is a single-threaded dispatch loop. Every external stimulus, relay
// notifications and transport callbacks alike, is posted onto the ops
// channel and handled in order, so session state never needs locks.
type Orchestrator struct {
	conf      config.Client
	signaler  Signaler
	transport Transport
	capture   media.Capture
	present   media.Presenter
	log       *logger.Logger

	id          com.Uid
	composition media.Composition
	tracks      []media.Track
	sessions    map[com.Uid]*peerSession
	roster      map[com.Uid]string
	epoch       int

	ops       chan func()
	done      chan struct{}
	err       error
	closeOnce sync.Once
	leaveOnce sync.Once
}

func NewOrchestrator(conf config.Client, sig Signaler, t Transport, capture media.Capture,
	p media.Presenter, log *logger.Logger) *Orchestrator {
	if p == nil {
		p = media.NopPresenter{}
	}
	return &Orchestrator{
		conf:      conf,
		signaler:  sig,
		transport: t,
		capture:   capture,
		present:   p,
		log:       log,
		sessions:  make(map[com.Uid]*peerSession, 4),
		roster:    make(map[com.Uid]string, 4),
		ops:       make(chan func(), 64),
		done:      make(chan struct{}),
	}
}

// Run captures the initial devices, joins the room, and opens an
// initiator session towards every member already present.
// Capture happens before anything touches the signaling channel, so a
// slow device never stalls signal delivery.
func (o *Orchestrator) Run() error {
	want := media.Composition{Mic: o.conf.Mic, Camera: o.conf.Camera}
	tracks, err := o.capture.Acquire(want)
	if err != nil {
		o.log.Warn().Err(err).Msg("capture failed, joining with no media")
		want, tracks = media.Composition{}, nil
	}
	o.composition, o.tracks = want, tracks

	go o.loop()
	o.signaler.Listen(o)
	go func() {
		<-o.signaler.Done()
		o.dispatch(func() { o.fatal(ErrSignalingLost) })
	}()

	joined, err := o.signaler.Join(o.conf.Room, o.conf.UserName)
	if err != nil {
		o.fail(err)
		return err
	}
	o.id = joined.Id
	o.log.Info().Msgf("joined room %v as %s (%d present)",
		o.conf.Room, o.id.Short(), len(joined.Users))

	o.dispatch(func() {
		for _, u := range joined.Users {
			o.roster[u.Id] = u.UserName
			o.present.AddTile(u.Id.String(), u.UserName)
			o.openSession(u, Initiator)
		}
	})
	return nil
}

// Wait blocks until the meeting ends and reports why.
// Returns nil after a deliberate Leave.
func (o *Orchestrator) Wait() error {
	<-o.done
	return o.err
}

// Leave tears down all sessions, then the signaling connection.
// The teardown is synchronous: when Leave returns, every peer
// connection is closed.
func (o *Orchestrator) Leave() {
	o.leaveOnce.Do(func() {
		flushed := make(chan struct{})
		o.dispatch(func() {
			o.destroyAll("leaving")
			if o.tracks != nil {
				o.capture.Release(o.tracks)
				o.tracks = nil
			}
			close(flushed)
		})
		select {
		case <-flushed:
		case <-o.done:
		}
		o.signaler.Close()
		o.fail(nil)
	})
}

// SetComposition switches the shared sources. Since sessions cannot
// swap tracks in place, every session is destroyed and, after the
// settling delay, re-initiated with the new tracks.
func (o *Orchestrator) SetComposition(next media.Composition) {
	o.dispatch(func() {
		if next.Screen {
			// screen share takes the camera's place
			next.Camera = false
		}
		if o.composition.Equal(next) {
			return
		}
		o.epoch++
		epoch := o.epoch
		prev := o.composition
		o.broadcastChanges(prev, next)
		o.destroyAll("media change")

		old := o.tracks
		o.tracks = nil
		go func() {
			o.capture.Release(old)
			applied, tracks := o.reacquire(prev, next)
			taken := o.dispatch(func() {
				if epoch != o.epoch {
					o.capture.Release(tracks)
					return
				}
				o.composition, o.tracks = applied, tracks
				if !applied.Equal(next) {
					// capture fell back, undo the optimistic hints
					o.broadcastChanges(next, applied)
				}
				time.AfterFunc(o.conf.SettleDelay(), func() {
					o.dispatch(func() {
						if epoch == o.epoch {
							o.reinitiate()
						}
					})
				})
			})
			if !taken {
				// the meeting ended mid-acquire
				o.capture.Release(tracks)
			}
		}()
	})
}

// reacquire opens devices for the next composition, falling back to
// the previous one when the new set cannot be opened.
func (o *Orchestrator) reacquire(prev, next media.Composition) (media.Composition, []media.Track) {
	tracks, err := o.capture.Acquire(next)
	if err == nil {
		return next, tracks
	}
	o.log.Error().Err(err).Msg("capture failed, rolling back")
	tracks, err = o.capture.Acquire(prev)
	if err != nil {
		o.log.Error().Err(err).Msg("rollback capture failed, going dark")
		return media.Composition{}, nil
	}
	return prev, tracks
}

func (o *Orchestrator) Composition() media.Composition {
	out := make(chan media.Composition, 1)
	o.dispatch(func() { out <- o.composition })
	select {
	case c := <-out:
		return c
	case <-o.done:
		return media.Composition{}
	}
}

// relay notifications, called from the connection read pump

func (o *Orchestrator) OnUserJoined(n api.UserJoinedNotice) {
	o.dispatch(func() {
		o.roster[n.Id] = n.UserName
		o.present.AddTile(n.Id.String(), n.UserName)
		// the joiner initiates towards us, stand by for its offer
		o.openSession(n.User, Receiver)
	})
}

func (o *Orchestrator) OnSignalReceived(n api.SignalReceivedNotice) {
	signal := []byte(n.Signal)
	o.dispatch(func() {
		s := o.sessions[n.CallerId]
		if s != nil && s.state == destroyed {
			o.log.Debug().Msgf("stale signal from %s dropped", n.CallerId.Short())
			return
		}
		if s != nil && s.role == Initiator && s.state == negotiating {
			// both ends initiated at once, the lexically lower id yields
			if o.id.String() < n.CallerId.String() {
				o.closeSession(n.CallerId, "glare, yielding")
			} else {
				o.log.Info().Msgf("glare with %s, holding initiator", n.CallerId.Short())
				return
			}
			s = nil
		}
		if s == nil {
			peer := api.User{Id: n.CallerId, UserName: o.roster[n.CallerId]}
			if s = o.openSession(peer, Receiver); s == nil {
				return
			}
		}
		if err := s.link.Signal(signal); err != nil {
			o.log.Error().Err(err).Msgf("signal from %s rejected", n.CallerId.Short())
		}
	})
}

func (o *Orchestrator) OnSignalReturned(n api.SignalReturnedNotice) {
	signal := []byte(n.Signal)
	o.dispatch(func() {
		s := o.sessions[n.Id]
		if s == nil || s.state == destroyed {
			o.log.Debug().Msgf("stale return from %s dropped", n.Id.Short())
			return
		}
		if err := s.link.Signal(signal); err != nil {
			o.log.Error().Err(err).Msgf("return from %s rejected", n.Id.Short())
		}
	})
}

func (o *Orchestrator) OnUserLeft(n api.UserLeftNotice) {
	o.dispatch(func() {
		o.closeSession(n.Id, "user left")
		delete(o.roster, n.Id)
		o.present.RemoveTile(n.Id.String())
	})
}

func (o *Orchestrator) OnStreamNotice(n api.StreamNotice) {
	o.dispatch(func() {
		o.present.OnStreamHint(n.FromUserId.String(), kindOf(n.StreamType), n.Enabled)
		// the peer tears its sessions down and re-offers shortly,
		// drop ours so the fresh offer lands on a clean slate
		o.closeSession(n.FromUserId, "peer media change")
	})
}

// loop internals

func (o *Orchestrator) loop() {
	for {
		select {
		case fn := <-o.ops:
			fn()
		case <-o.done:
			return
		}
	}
}

// dispatch posts fn onto the loop and reports whether it was taken.
// After teardown nothing runs and the caller cleans up itself.
func (o *Orchestrator) dispatch(fn func()) bool {
	select {
	case o.ops <- fn:
		return true
	case <-o.done:
		return false
	}
}

// openSession wires a transport session for the peer and registers it
// in the ledger. A live session for the same peer is destroyed first,
// the ledger never holds two sessions per peer. Runs on the loop.
func (o *Orchestrator) openSession(peer api.User, role Role) *peerSession {
	if _, ok := o.sessions[peer.Id]; ok {
		o.closeSession(peer.Id, "superseded")
	}
	s := &peerSession{peer: peer, role: role, state: negotiating}
	cb := SessionCallbacks{
		OnLocalSignal: func(signal []byte) {
			o.dispatch(func() {
				if o.sessions[peer.Id] != s || s.state == destroyed {
					return
				}
				var err error
				if role == Initiator {
					err = o.signaler.Send(peer.Id, signal)
				} else {
					err = o.signaler.Return(peer.Id, signal)
				}
				if err != nil {
					o.log.Error().Err(err).Msgf("signal to %s failed", peer.Id.Short())
				}
			})
		},
		OnRemoteMedia: func(kind media.Kind) {
			o.dispatch(func() {
				if o.sessions[peer.Id] == s {
					o.present.OnStreamHint(peer.Id.String(), kind, true)
				}
			})
		},
		OnConnected: func() {
			o.dispatch(func() {
				if o.sessions[peer.Id] == s && s.state == negotiating {
					s.state = connected
					o.log.Info().Msgf("connected to %s (%s)", peer.Id.Short(), role)
				}
			})
		},
		OnError: func(err error) {
			o.dispatch(func() {
				if o.sessions[peer.Id] == s {
					o.log.Warn().Err(err).Msgf("session with %s failed", peer.Id.Short())
					o.closeSession(peer.Id, "transport failure")
				}
			})
		},
	}
	link, err := o.transport.CreateSession(role, o.tracks, cb)
	if err != nil {
		o.log.Error().Err(err).Msgf("session with %s not created", peer.Id.Short())
		return nil
	}
	s.link = link
	o.sessions[peer.Id] = s
	o.log.Debug().Msgf("session with %s opened (%s)", peer.Id.Short(), role)
	return s
}

func (o *Orchestrator) closeSession(id com.Uid, reason string) {
	if s, ok := o.sessions[id]; ok {
		s.destroy()
		delete(o.sessions, id)
		o.log.Debug().Msgf("session with %s destroyed, %s", id.Short(), reason)
	}
}

func (o *Orchestrator) destroyAll(reason string) {
	for id, s := range o.sessions {
		s.destroy()
		delete(o.sessions, id)
	}
	if reason != "" && len(o.roster) > 0 {
		o.log.Debug().Msgf("all sessions destroyed, %s", reason)
	}
}

// reinitiate re-opens an initiator session towards every known peer.
func (o *Orchestrator) reinitiate() {
	for id, name := range o.roster {
		o.openSession(api.User{Id: id, UserName: name}, Initiator)
	}
}

func (o *Orchestrator) broadcastChanges(prev, next media.Composition) {
	notify := func(kind string, was, is bool) {
		if was != is {
			if err := o.signaler.StreamUpdate(kind, is); err != nil {
				o.log.Error().Err(err).Msgf("stream update %s failed", kind)
			}
		}
	}
	notify(api.StreamMic, prev.Mic, next.Mic)
	notify(api.StreamCamera, prev.Camera, next.Camera)
	notify(api.StreamScreen, prev.Screen, next.Screen)
}

// fatal ends the meeting from inside the loop.
func (o *Orchestrator) fatal(err error) {
	o.destroyAll("fatal")
	o.fail(err)
}

func (o *Orchestrator) fail(err error) {
	o.closeOnce.Do(func() {
		o.err = err
		if o.tracks != nil {
			o.capture.Release(o.tracks)
			o.tracks = nil
		}
		close(o.done)
	})
}

func kindOf(streamType string) media.Kind {
	switch streamType {
	case api.StreamMic:
		return media.Audio
	case api.StreamScreen:
		return media.Screen
	default:
		return media.Camera
	}
}
