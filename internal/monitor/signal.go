// Package monitor watches the environment signal and drives state
// transitions: the first observed state triggers a reconciliation pass,
// every later change swaps all titles from the old state to the new one.
package monitor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// SignalSource reports the binary environment signal. known is false until
// the signal has been determined.
type SignalSource interface {
	Current(ctx context.Context) (value bool, known bool, err error)
}

const (
	signalUnknown int32 = iota
	signalOff
	signalOn
)

// Signal is a shared, concurrency-safe signal value written by a producer
// loop and read by the StateMonitor.
type Signal struct {
	v atomic.Int32
}

// Set stores the signal value.
func (s *Signal) Set(on bool) {
	if on {
		s.v.Store(signalOn)
		return
	}
	s.v.Store(signalOff)
}

// Reset forgets the value.
func (s *Signal) Reset() {
	s.v.Store(signalUnknown)
}

// Current implements SignalSource.
func (s *Signal) Current(context.Context) (bool, bool, error) {
	switch s.v.Load() {
	case signalOn:
		return true, true, nil
	case signalOff:
		return false, true, nil
	default:
		return false, false, nil
	}
}

// States names the two environment states. A is used while the signal is
// off, B while it is on.
type States struct {
	A domain.StateKey
	B domain.StateKey
}

// DefaultStates returns the undocked/docked pair.
func DefaultStates() States {
	return States{A: "undocked", B: "docked"}
}

// Validate checks that both states are set and distinct.
func (s States) Validate() error {
	if s.A.IsZero() || s.B.IsZero() {
		return fmt.Errorf("both states must be named (a=%q, b=%q)", s.A, s.B)
	}
	if s.A == s.B {
		return fmt.Errorf("states must differ, both are %q", s.A)
	}
	return nil
}

// Key maps a signal value to its state.
func (s States) Key(on bool) domain.StateKey {
	if on {
		return s.B
	}
	return s.A
}

// Opposite returns the other state, or "" when key is neither.
func (s States) Opposite(key domain.StateKey) domain.StateKey {
	switch key {
	case s.A:
		return s.B
	case s.B:
		return s.A
	default:
		return ""
	}
}

// Parse maps a state name, "a"/"b" or "0"/"1" to its signal value.
func (s States) Parse(raw string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "a", "0", "off", "false", strings.ToLower(string(s.A)):
		return false, nil
	case "b", "1", "on", "true", strings.ToLower(string(s.B)):
		return true, nil
	default:
		return false, fmt.Errorf("unknown state %q", raw)
	}
}

// FileSignalSource reads the signal from a file holding a state name. A
// missing or empty file means the signal is unknown.
type FileSignalSource struct {
	Path   string
	States States
}

// Current implements SignalSource.
func (f FileSignalSource) Current(context.Context) (bool, bool, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("reading signal file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return false, false, nil
	}
	on, err := f.States.Parse(string(data))
	if err != nil {
		return false, false, fmt.Errorf("signal file %s: %w", f.Path, err)
	}
	return on, true, nil
}
