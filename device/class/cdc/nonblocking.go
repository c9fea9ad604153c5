package cdc

// NonBlocking is the subset of an ACM that never waits. It is what the
// receive callback gets: code running in the transport's event context must
// not block, and with only a *NonBlocking in hand it cannot.
type NonBlocking struct {
	acm *ACM
}

// NonBlocking returns the non-blocking view of the function.
func (a *ACM) NonBlocking() *NonBlocking {
	return &a.nb
}

// HasData reports whether a receive frame is held.
func (n *NonBlocking) HasData() bool { return n.acm.HasData() }

// Buffered returns the number of unread bytes in the held frame.
func (n *NonBlocking) Buffered() int { return n.acm.Buffered() }

// TryReadByte returns the next received byte if a frame is held.
func (n *NonBlocking) TryReadByte() (byte, bool) { return n.acm.TryReadByte() }

// Discard drops the held frame and re-arms the OUT endpoint.
func (n *NonBlocking) Discard() { n.acm.Discard() }

// AvailableSpace returns the number of bytes the staging buffer can accept.
func (n *NonBlocking) AvailableSpace() int { return n.acm.AvailableSpace() }

// WriteFast stages b under the configured overflow policy.
func (n *NonBlocking) WriteFast(b byte) bool { return n.acm.WriteFast(b) }

// WriteBlock sends p as one packet or returns pkg.ErrBusy.
func (n *NonBlocking) WriteBlock(p []byte) (int, error) { return n.acm.WriteBlock(p) }

// Flush hands up to one packet of staged data to the transport.
func (n *NonBlocking) Flush() error { return n.acm.Flush() }

// SendSerialState sends a SERIAL_STATE notification if the endpoint is free.
func (n *NonBlocking) SendSerialState(state SerialState) bool { return n.acm.SendSerialState(state) }

// LineCoding returns the current line coding configuration.
func (n *NonBlocking) LineCoding() LineCoding { return n.acm.LineCoding() }
