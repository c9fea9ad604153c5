// Package pkg provides shared utilities for the softacm CDC-ACM stack.
//
// This package contains common functionality used by the protocol engine,
// the transports and the host tooling, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for USB protocol and configuration errors
//   - Component identifiers for log filtering
//   - [Signal], a broadcast wake-up used to park blocking callers
//
// # Logging
//
// The logging subsystem wraps [log/slog] with per-component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentControl, "line coding set", "baud", 115200)
//
// Packet paths call [LogEnabled] before formatting expensive attributes.
//
// # Errors
//
// Common errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrBusy) {
//	    // Retry after the endpoint drains
//	}
package pkg
