package relay

import (
	"path/filepath"
	"testing"

	"github.com/rockypaper/metachat/pkg/logger"
)

func TestMeetTokens(t *testing.T) {
	store := filepath.Join(t.TempDir(), "meetings.json")
	reg, err := NewMeetRegistry(store, logger.Default())
	if err != nil {
		t.Fatal(err)
	}

	id, err := reg.Create()
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 32 {
		t.Errorf("token %q is not 32 hex chars", id)
	}
	if !reg.Check(id) {
		t.Errorf("created token not found")
	}
	if reg.Check("deadbeef") {
		t.Errorf("bogus token found")
	}

	id2, err := reg.Create()
	if err != nil {
		t.Fatal(err)
	}
	if id == id2 {
		t.Errorf("tokens collide")
	}
}

// Tokens survive a registry restart through the backing file.
func TestMeetPersistence(t *testing.T) {
	store := filepath.Join(t.TempDir(), "meetings.json")
	reg, err := NewMeetRegistry(store, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	id, err := reg.Create()
	if err != nil {
		t.Fatal(err)
	}

	reborn, err := NewMeetRegistry(store, logger.Default())
	if err != nil {
		t.Fatal(err)
	}
	if !reborn.Check(id) {
		t.Errorf("token lost on restart")
	}
}
