// Package media models what a participant shares into a meeting: which
// capture devices are on, the tracks they produce, and where remote
// streams get rendered.
package media

// Kind tags a track with the device it came from.
type Kind string

const (
	Audio  Kind = "audio"
	Camera Kind = "camera"
	Screen Kind = "screen"
)

// Composition is the set of sources a participant currently shares.
// The zero value shares nothing.
type Composition struct {
	Mic    bool
	Camera bool
	Screen bool
}

func (c Composition) Equal(o Composition) bool { return c == o }

// Track is a single outbound media source handle. Implementations wrap
// whatever produces the samples; consumers only need identity.
type Track interface {
	Kind() Kind
	// StreamId groups tracks of one participant on the wire.
	StreamId() string
}

// Capture acquires and releases local devices. Acquire may block on
// device warm-up, so callers keep it off their dispatch path.
type Capture interface {
	// Acquire opens the devices named by the composition and returns
	// their tracks. On error no devices stay open.
	Acquire(c Composition) ([]Track, error)
	// Release closes previously acquired tracks. Idempotent.
	Release(tracks []Track)
}

// Presenter renders the meeting to whatever surface the client has.
// The orchestrator calls it from its own loop, so implementations
// should return quickly.
type Presenter interface {
	AddTile(userId string, userName string)
	RemoveTile(userId string)
	// OnStreamHint reports a peer toggling a source, so the surface can
	// show a muted mic or a paused camera before media catches up.
	OnStreamHint(userId string, kind Kind, enabled bool)
}

// NopPresenter discards every presentation event.
type NopPresenter struct{}

func (NopPresenter) AddTile(string, string)          {}
func (NopPresenter) RemoveTile(string)               {}
func (NopPresenter) OnStreamHint(string, Kind, bool) {}
