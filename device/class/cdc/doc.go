// Package cdc implements the device side of the USB Communications Device
// Class (CDC) Abstract Control Model (ACM), the class behind USB virtual COM
// ports.
//
// # Architecture
//
// An [ACM] owns everything a CDC-ACM function needs beyond enumeration:
//
//   - Control requests on EP0: SET/GET_LINE_CODING, SET_CONTROL_LINE_STATE,
//     SEND_BREAK and the encapsulated command pair
//   - A single held receive frame on the bulk OUT endpoint. The endpoint is
//     re-armed only when the frame is drained, so the host is NAKed meanwhile
//   - A transmit staging buffer flushed to the bulk IN endpoint one packet at
//     a time, never more than max packet size minus one bytes
//   - SERIAL_STATE notifications on the interrupt endpoint
//
// Packets move through a [hal.Transport]; the transport reports events to the
// handler returned by [ACM.Events].
//
// # Blocking and Event Context
//
// ReadByte, Read, WriteByte, Write and Drain wait for the transport. They park
// until an event changes their condition, or in polled mode call the
// transport's Poll on every iteration. They must never run in the transport's
// event context, which is why the receive callback is handed a [NonBlocking]
// rather than the ACM.
//
// # Zero-Allocation Design
//
// Buffers are allocated once by [NewACM]; packet paths do not allocate:
//
//   - Fixed-size arrays for control responses and notifications
//   - Caller-provided buffers for Read
//   - MarshalTo(buf) serialization for wire structures
//
// # Usage
//
//	cfg := cdc.DefaultConfig(device.SpeedFull)
//	acm, err := cdc.NewACM(transport, cfg)
//	if err != nil {
//	    return err
//	}
//	acm.SetOnLineCodingChange(func(lc cdc.LineCoding) {
//	    uart.Configure(lc.DTERate)
//	})
//	transport.Attach(acm.Events())
//
//	for {
//	    b, err := acm.ReadByte(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    acm.WriteByte(ctx, b)
//	}
package cdc
