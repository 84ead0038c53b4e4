package app

import "testing"

func TestHealthPhases(t *testing.T) {
	h := NewHealth()
	if h.IsReady() || h.Phase() != PhaseStarting {
		t.Fatalf("new health: phase %v ready %v", h.Phase(), h.IsReady())
	}

	h.Serving()
	if !h.IsReady() {
		t.Fatalf("phase %v not ready", h.Phase())
	}

	h.Draining()
	h.Serving()
	if h.IsReady() || h.Phase().String() != "draining" {
		t.Errorf("draining is not final: phase %v", h.Phase())
	}
}
