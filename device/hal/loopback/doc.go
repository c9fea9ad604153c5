// Package loopback provides an in-memory [hal.Transport] for running a USB
// class function against a simulated host.
//
// A [Bus] holds the endpoint state a device controller would: IN packet banks
// with DATA0/DATA1 tracking, OUT endpoints that NAK until re-armed, and the
// EP0 control pipe. The device side uses the [hal.Transport] methods; the host
// side uses [Host]:
//
//	bus := loopback.New()
//	bus.Configure(notify, dataIn, dataOut)
//	bus.Attach(acm.Events())
//	if err := bus.Start(ctx); err != nil {
//	    return err
//	}
//	defer bus.Stop()
//
//	host := bus.Host()
//	host.Write(ctx, 0x02, []byte("hello"))
//	reply, err := host.ReadFull(ctx, 0x82, 5)
//
// # Event Delivery
//
// By default a dispatcher goroutine delivers events as they are posted,
// playing the role of the controller interrupt. With [WithPolling] nothing is
// delivered until someone calls [Bus.Poll], which is how a polled firmware
// main loop services its controller.
package loopback
