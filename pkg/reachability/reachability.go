// Package reachability provides predicates telling the supervisor whether
// the network path to the peer is plausibly usable.
//
// Every Checker must answer immediately: the supervisor polls it from its
// event loop. Checks that need I/O run in the background (see Prober) and
// expose a cached result.
package reachability

import (
	"net"
	"sync/atomic"
)

// Checker reports whether a reconnection attempt is worth making.
type Checker interface {
	Reachable() bool
}

// Func adapts a function to the Checker interface.
type Func func() bool

// Reachable implements Checker.
func (f Func) Reachable() bool { return f() }

// Always reports the network as reachable. It is the supervisor's default.
var Always Checker = Func(func() bool { return true })

// Switch is a manually toggled Checker.
type Switch struct {
	up atomic.Bool
}

// NewSwitch returns a Switch in the given position.
func NewSwitch(up bool) *Switch {
	s := &Switch{}
	s.up.Store(up)
	return s
}

// Set flips the switch.
func (s *Switch) Set(up bool) { s.up.Store(up) }

// Reachable implements Checker.
func (s *Switch) Reachable() bool { return s.up.Load() }

// Interfaces reports the network as reachable when at least one
// non-loopback interface is up and has an address assigned.
var Interfaces Checker = Func(hasActiveInterface)

// interfaceLister is replaced in tests.
var interfaceLister = net.Interfaces

func hasActiveInterface() bool {
	ifaces, err := interfaceLister()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}
