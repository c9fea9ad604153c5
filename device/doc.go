// Package device holds the USB primitives shared by the CDC-ACM engine and
// its transports.
//
// It deliberately stops short of a full device stack. Enumeration, descriptor
// delivery and standard requests belong to the controller driver that sits
// behind a [github.com/ardnew/softacm/device/hal.Transport]; this package only
// supplies what a class function needs to interpret the traffic it is handed:
//
//   - [SetupPacket] parses and builds the 8-byte SETUP stage
//   - [Endpoint] describes a bulk or interrupt endpoint and validates it
//   - [Speed] reports per-speed packet size limits
//
// # Zero-Allocation Design
//
// The types are designed for bare-metal and TinyGo targets:
//
//   - Serialization via MarshalTo(buf) instead of allocating Bytes()
//   - Parse functions with output parameters instead of returning pointers
//   - Value types for endpoints so configuration can live in flash
//
// # Example
//
//	var setup device.SetupPacket
//	if err := device.ParseSetupPacket(raw, &setup); err != nil {
//	    return err
//	}
//	if setup.IsClassInterface() {
//	    // dispatch to the class function
//	}
//
// The class function itself lives in
// [github.com/ardnew/softacm/device/class/cdc].
package device
