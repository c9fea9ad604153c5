// Package hal defines the contract between a USB class function and the
// endpoint transport beneath it.
//
// The transport is whatever moves packets for an already configured function:
// a device controller driver on hardware, or the in-memory
// [github.com/ardnew/softacm/device/hal/loopback] bus in tests and
// simulations. The class function calls [Transport] methods and receives
// [EventHandler] callbacks; neither side ever blocks the other.
//
// # Design Principles
//
// The interface is:
//
//   - Minimal: only the packet-level operations a class function needs
//   - Non-blocking: busy endpoints are reported, never waited on
//   - Asynchronous: completions arrive as events, never as re-entrant calls
//
// # Event Context
//
// Events are delivered from one context at a time, either an interrupt-style
// dispatcher goroutine or the caller of [Poller.Poll]. Handlers run there and
// must not block.
//
// # Example
//
//	type controller struct {
//	    // Platform-specific fields
//	}
//
//	func (c *controller) EnqueueTransmit(addr uint8, data []byte, t hal.Toggle) bool {
//	    if !c.inFree(addr) {
//	        return false
//	    }
//	    c.copyToBank(addr, data, t)
//	    return true
//	}
//
//	// ... implement remaining Transport methods
package hal
