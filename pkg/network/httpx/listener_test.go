package httpx

import "testing"

func TestListenerPortRoll(t *testing.T) {
	first, err := NewListener("127.0.0.1:0", false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Close() }()
	busy := first.Addr().String()

	second, err := NewListener(busy, true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = second.Close() }()

	if second.GetPort() == first.GetPort() {
		t.Errorf("both listeners share port %d", first.GetPort())
	}
	if second.GetPort() == 0 {
		t.Errorf("rolled listener has no port")
	}
}

func TestListenerNoRoll(t *testing.T) {
	first, err := NewListener("127.0.0.1:0", false)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = first.Close() }()

	if _, err = NewListener(first.Addr().String(), false); err == nil {
		t.Errorf("a busy address bound twice")
	}
}
