package mesh

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rockypaper/metachat/pkg/api"
	"github.com/rockypaper/metachat/pkg/com"
	"github.com/rockypaper/metachat/pkg/config"
	"github.com/rockypaper/metachat/pkg/logger"
	"github.com/rockypaper/metachat/pkg/media"
)

type sent struct {
	to      com.Uid
	returns bool
	signal  []byte
}

type fakeSignaler struct {
	mu      sync.Mutex
	handler Events
	joined  api.AllUsersResponse
	outbox  []sent
	updates map[string]bool
	done    chan struct{}
	once    sync.Once
}

func newFakeSignaler(users ...api.User) *fakeSignaler {
	return &fakeSignaler{
		joined:  api.AllUsersResponse{Id: com.NewUid(), Users: users},
		updates: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

func (f *fakeSignaler) Listen(h Events) { f.mu.Lock(); f.handler = h; f.mu.Unlock() }
func (f *fakeSignaler) Join(string, string) (api.AllUsersResponse, error) {
	return f.joined, nil
}
func (f *fakeSignaler) Send(to com.Uid, signal []byte) error {
	f.mu.Lock()
	f.outbox = append(f.outbox, sent{to: to, signal: signal})
	f.mu.Unlock()
	return nil
}
func (f *fakeSignaler) Return(to com.Uid, signal []byte) error {
	f.mu.Lock()
	f.outbox = append(f.outbox, sent{to: to, returns: true, signal: signal})
	f.mu.Unlock()
	return nil
}
func (f *fakeSignaler) StreamUpdate(kind string, enabled bool) error {
	f.mu.Lock()
	f.updates[kind] = enabled
	f.mu.Unlock()
	return nil
}
func (f *fakeSignaler) Close()              { f.once.Do(func() { close(f.done) }) }
func (f *fakeSignaler) Done() chan struct{} { return f.done }

func (f *fakeSignaler) events() Events {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeSignaler) sentTo(to com.Uid, returns bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.outbox {
		if s.to == to && s.returns == returns {
			return true
		}
	}
	return false
}

type fakeSession struct {
	mu     sync.Mutex
	role   Role
	tracks []media.Track
	cb     SessionCallbacks
	fed    [][]byte
	closed bool
}

func (s *fakeSession) Signal(data []byte) error {
	s.mu.Lock()
	s.fed = append(s.fed, data)
	s.mu.Unlock()
	return nil
}
func (s *fakeSession) Close() { s.mu.Lock(); s.closed = true; s.mu.Unlock() }

func (s *fakeSession) isClosed() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.closed }
func (s *fakeSession) fedCount() int  { s.mu.Lock(); defer s.mu.Unlock(); return len(s.fed) }

type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
}

func (t *fakeTransport) CreateSession(role Role, tracks []media.Track, cb SessionCallbacks) (Session, error) {
	s := &fakeSession{role: role, tracks: tracks, cb: cb}
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	return s, nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

type fakeTrack struct{ kind media.Kind }

func (f fakeTrack) Kind() media.Kind { return f.kind }
func (f fakeTrack) StreamId() string { return "s" }

type fakeCapture struct {
	mu       sync.Mutex
	acquires []media.Composition
	releases int
	failOn   *media.Composition
	gate     chan struct{}
}

// setGate makes further acquires block until the gate channel closes.
func (c *fakeCapture) setGate(gate chan struct{}) { c.mu.Lock(); c.gate = gate; c.mu.Unlock() }

func (c *fakeCapture) counts() (acquires, releases int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.acquires), c.releases
}

func (c *fakeCapture) Acquire(comp media.Composition) ([]media.Track, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn != nil && comp.Equal(*c.failOn) {
		return nil, errors.New("devices are busy")
	}
	c.acquires = append(c.acquires, comp)
	var tracks []media.Track
	if comp.Mic {
		tracks = append(tracks, fakeTrack{kind: media.Audio})
	}
	if comp.Camera {
		tracks = append(tracks, fakeTrack{kind: media.Camera})
	}
	if comp.Screen {
		tracks = append(tracks, fakeTrack{kind: media.Screen})
	}
	return tracks, nil
}

func (c *fakeCapture) Release([]media.Track) { c.mu.Lock(); c.releases++; c.mu.Unlock() }

func testConf() config.Client {
	return config.Client{Room: "room", UserName: "tester", Mic: true, SettleDelayMs: 10}
}

func run(t *testing.T, sig *fakeSignaler) (*Orchestrator, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	o := NewOrchestrator(testConf(), sig, tr, &fakeCapture{}, nil, logger.Default())
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Leave)
	return o, tr
}

func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestJoinerInitiates(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	bob := api.User{Id: com.NewUid(), UserName: "bob"}
	sig := newFakeSignaler(alice, bob)

	_, tr := run(t, sig)

	eventually(t, "no sessions towards the present members", func() bool { return tr.count() == 2 })
	for i := 0; i < 2; i++ {
		if s := tr.session(i); s.role != Initiator {
			t.Errorf("session %d is %s, not initiator", i, s.role)
		}
	}

	// a local signal of a live session goes out as send-signal
	tr.session(0).cb.OnLocalSignal([]byte("offer"))
	eventually(t, "offer not sent", func() bool {
		return sig.sentTo(alice.Id, false) || sig.sentTo(bob.Id, false)
	})
}

func TestExistingMemberReceives(t *testing.T) {
	sig := newFakeSignaler()
	_, tr := run(t, sig)

	bob := api.User{Id: com.NewUid(), UserName: "bob"}
	sig.events().OnUserJoined(api.UserJoinedNotice{User: bob})

	eventually(t, "no receiver session on user-joined", func() bool {
		return tr.count() == 1 && tr.session(0).role == Receiver
	})

	sig.events().OnSignalReceived(api.SignalReceivedNotice{
		CallerId: bob.Id, Signal: []byte(`{"type":"offer"}`),
	})
	eventually(t, "offer not fed", func() bool { return tr.session(0).fedCount() == 1 })
	if tr.count() != 1 {
		t.Errorf("the offer spawned a duplicate session")
	}
}

func TestAdHocReceiver(t *testing.T) {
	sig := newFakeSignaler()
	_, tr := run(t, sig)

	stranger := com.NewUid()
	sig.events().OnSignalReceived(api.SignalReceivedNotice{
		CallerId: stranger,
		Signal:   []byte(`{"type":"offer"}`),
	})

	eventually(t, "no ad-hoc session", func() bool { return tr.count() == 1 })
	s := tr.session(0)
	if s.role != Receiver {
		t.Errorf("ad-hoc session is %s", s.role)
	}
	eventually(t, "offer not fed", func() bool { return s.fedCount() == 1 })

	s.cb.OnLocalSignal([]byte("answer"))
	eventually(t, "answer not returned", func() bool { return sig.sentTo(stranger, true) })
}

func TestStaleSignalsDropped(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	_, tr := run(t, sig)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	s := tr.session(0)

	sig.events().OnUserLeft(api.UserLeftNotice{Id: alice.Id})
	eventually(t, "session not destroyed", s.isClosed)

	sig.events().OnSignalReturned(api.SignalReturnedNotice{Id: alice.Id, Signal: []byte(`{}`)})
	time.Sleep(20 * time.Millisecond)
	if s.fedCount() != 0 {
		t.Errorf("stale signal was fed into a destroyed session")
	}
	if tr.count() != 1 {
		t.Errorf("stale return spawned a session")
	}
}

func TestLeaveIsSynchronous(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	o, tr := run(t, sig)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	o.Leave()

	if !tr.session(0).isClosed() {
		t.Errorf("session survived the leave")
	}
	select {
	case <-sig.done:
	default:
		t.Errorf("signaling connection survived the leave")
	}
	if err := o.Wait(); err != nil {
		t.Errorf("deliberate leave reported %v", err)
	}
}

func TestSignalingLossIsFatal(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	o, tr := run(t, sig)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	sig.Close()

	if err := o.Wait(); !errors.Is(err, ErrSignalingLost) {
		t.Errorf("got %v", err)
	}
	eventually(t, "sessions survived the loss", tr.session(0).isClosed)
}

func TestMediaChangeRenegotiates(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	o, tr := run(t, sig)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	old := tr.session(0)

	o.SetComposition(media.Composition{Mic: true, Camera: true})

	eventually(t, "old session survived", old.isClosed)
	eventually(t, "no re-initiated session", func() bool { return tr.count() == 2 })
	fresh := tr.session(1)
	if fresh.role != Initiator {
		t.Errorf("re-initiated session is %s", fresh.role)
	}
	if len(fresh.tracks) != 2 {
		t.Errorf("fresh session carries %d tracks", len(fresh.tracks))
	}

	sig.mu.Lock()
	camera, ok := sig.updates[api.StreamCamera]
	sig.mu.Unlock()
	if !ok || !camera {
		t.Errorf("camera stream-update not broadcast")
	}
}

// A peer joining inside the settle window gets a receiver session
// first, and the timer's re-initiation must supersede it cleanly:
// one live session per peer, the old transport closed.
func TestJoinDuringSettleWindow(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	tr := &fakeTransport{}
	conf := testConf()
	conf.SettleDelayMs = 100
	o := NewOrchestrator(conf, sig, tr, &fakeCapture{}, nil, logger.Default())
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Leave)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	o.SetComposition(media.Composition{Mic: true, Camera: true})

	bob := api.User{Id: com.NewUid(), UserName: "bob"}
	sig.events().OnUserJoined(api.UserJoinedNotice{User: bob})
	eventually(t, "no receiver for the mid-window joiner", func() bool { return tr.count() == 2 })
	receiver := tr.session(1)
	if receiver.role != Receiver {
		t.Fatalf("mid-window joiner got a %s session", receiver.role)
	}

	eventually(t, "no re-initiated sessions", func() bool { return tr.count() == 4 })
	eventually(t, "the superseded receiver was left live", receiver.isClosed)

	open := 0
	for i := 0; i < tr.count(); i++ {
		if !tr.session(i).isClosed() {
			open++
		}
	}
	if open != 2 {
		t.Errorf("%d live sessions for 2 peers", open)
	}
}

// Leaving while a composition-change acquire is still in flight must
// not leak the freshly acquired devices.
func TestLeaveDuringCaptureChange(t *testing.T) {
	sig := newFakeSignaler()
	tr := &fakeTransport{}
	capture := &fakeCapture{}
	o := NewOrchestrator(testConf(), sig, tr, capture, nil, logger.Default())
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}

	gate := make(chan struct{})
	capture.setGate(gate)
	o.SetComposition(media.Composition{Mic: true, Camera: true})
	eventually(t, "old tracks not released", func() bool {
		_, releases := capture.counts()
		return releases == 1
	})

	o.Leave()
	close(gate)

	eventually(t, "in-flight capture leaked", func() bool {
		acquires, releases := capture.counts()
		return acquires == 2 && releases == 2
	})
}

func TestCaptureRollback(t *testing.T) {
	sig := newFakeSignaler()
	tr := &fakeTransport{}
	next := media.Composition{Mic: true, Camera: true}
	capture := &fakeCapture{failOn: &next}
	o := NewOrchestrator(testConf(), sig, tr, capture, nil, logger.Default())
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Leave)

	o.SetComposition(next)

	// the optimistic camera hint must be withdrawn on rollback
	eventually(t, "rollback hint not sent", func() bool {
		sig.mu.Lock()
		defer sig.mu.Unlock()
		camera, ok := sig.updates[api.StreamCamera]
		return ok && !camera
	})
	want := media.Composition{Mic: true}
	if got := o.Composition(); !got.Equal(want) {
		t.Errorf("composition did not roll back: %+v", got)
	}
}

func TestScreenShareReplacesCamera(t *testing.T) {
	sig := newFakeSignaler()
	tr := &fakeTransport{}
	capture := &fakeCapture{}
	o := NewOrchestrator(testConf(), sig, tr, capture, nil, logger.Default())
	if err := o.Run(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(o.Leave)

	o.SetComposition(media.Composition{Mic: true, Camera: true, Screen: true})

	want := media.Composition{Mic: true, Screen: true}
	eventually(t, "camera not replaced by the screen", func() bool {
		return o.Composition().Equal(want)
	})
}

func TestPeerMediaChangeDropsSession(t *testing.T) {
	alice := api.User{Id: com.NewUid(), UserName: "alice"}
	sig := newFakeSignaler(alice)
	_, tr := run(t, sig)

	eventually(t, "no session", func() bool { return tr.count() == 1 })
	s := tr.session(0)

	sig.events().OnStreamNotice(api.StreamNotice{
		FromUserId: alice.Id, StreamType: api.StreamCamera, Enabled: true,
	})
	eventually(t, "session survived the peer media change", s.isClosed)
}

// On renegotiation glare the end with the lexically lower id yields
// its initiator role, so exactly one offer wins on both sides.
func TestGlare(t *testing.T) {
	low, high := com.NewUid(), com.NewUid()
	if low.String() > high.String() {
		low, high = high, low
	}

	for _, yields := range []bool{true, false} {
		self, peer := low, high
		if !yields {
			self, peer = high, low
		}
		sig := newFakeSignaler(api.User{Id: peer, UserName: "alice"})
		sig.joined.Id = self
		_, tr := run(t, sig)

		eventually(t, "no session", func() bool { return tr.count() == 1 })
		first := tr.session(0)

		sig.events().OnSignalReceived(api.SignalReceivedNotice{
			CallerId: peer, Signal: []byte(`{"type":"offer"}`),
		})
		if yields {
			eventually(t, "initiator did not yield", func() bool {
				return first.isClosed() && tr.count() == 2 && tr.session(1).role == Receiver
			})
		} else {
			time.Sleep(20 * time.Millisecond)
			if first.isClosed() || tr.count() != 1 {
				t.Errorf("the higher id should hold its initiator session")
			}
		}
	}
}
