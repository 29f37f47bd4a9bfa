package natsadapter

import "testing"

func TestPublisher_ReconnectHook(t *testing.T) {
	var p Publisher

	// Before any hook is installed the callback is a no-op; the
	// connection can reconnect during the startup wiring window.
	p.handleReconnect(nil)

	calls := 0
	p.OnReconnect(func() { calls++ })
	p.handleReconnect(nil)
	p.handleReconnect(nil)
	if calls != 2 {
		t.Fatalf("expected hook to fire once per reconnect, got %d", calls)
	}
}

func TestPublisher_ReconnectHookSwap(t *testing.T) {
	var p Publisher

	first, second := 0, 0
	p.OnReconnect(func() { first++ })
	p.OnReconnect(func() { second++ })
	p.handleReconnect(nil)

	if first != 0 {
		t.Errorf("replaced hook must not fire, got %d calls", first)
	}
	if second != 1 {
		t.Errorf("expected current hook to fire, got %d calls", second)
	}
}
