package app

import (
	"sync/atomic"

	"github.com/florianilch/claudine-bridge/internal/proxy"
)

// Phase is a step of the application lifecycle.
type Phase int32

const (
	PhaseStarting Phase = iota
	PhaseServing
	PhaseDraining
)

func (p Phase) String() string {
	switch p {
	case PhaseServing:
		return "serving"
	case PhaseDraining:
		return "draining"
	default:
		return "starting"
	}
}

// Health records the lifecycle phase and answers readiness probes from it:
// only a serving application accepts new traffic.
type Health struct {
	phase atomic.Int32
}

var _ proxy.ReadinessChecker = (*Health)(nil)

func NewHealth() *Health {
	return &Health{}
}

// Serving marks the listener as up.
func (h *Health) Serving() {
	h.phase.CompareAndSwap(int32(PhaseStarting), int32(PhaseServing))
}

// Draining marks the application as shutting down. It is final.
func (h *Health) Draining() {
	h.phase.Store(int32(PhaseDraining))
}

func (h *Health) Phase() Phase {
	return Phase(h.phase.Load())
}

// IsReady reports whether the application is serving.
func (h *Health) IsReady() bool {
	return h.Phase() == PhaseServing
}
