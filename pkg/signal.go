package pkg

import "sync"

// Signal is a broadcast wake-up for goroutines parked on a condition that is
// guarded by some other lock.
//
// A waiter obtains the channel from C while holding the condition's lock,
// releases the lock, and then blocks on the channel. A writer changes the
// condition under the same lock and calls Broadcast, which closes every
// channel handed out so far. Because the channel is taken before the lock is
// released, a Broadcast can never be missed.
//
// The zero value is ready to use.
type Signal struct {
	mutex sync.Mutex
	ch    chan struct{}
}

// C returns a channel that is closed by the next Broadcast.
func (s *Signal) C() <-chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

// Broadcast wakes every goroutine waiting on a channel from C.
func (s *Signal) Broadcast() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
}
