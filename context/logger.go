package context

import "log"

// Logger is the subset of *log.Logger this package needs for the soft
// failures §7 says to log rather than propagate (dropped requests for
// unknown groups, ack-enqueue errors other than BUSY/COMMS,
// process_events errors other than BUSY).
//
// Grounded on soc/imx6/usb's log.Printf("imx6_usb: ...") convention
// (teacher pack): this module uses the same stdlib log package with an
// "rpmi_context: " prefix rather than a third-party structured logger,
// since nothing in the pack reaches for one either.
type Logger interface {
	Printf(format string, args ...any)
}

var _ Logger = (*log.Logger)(nil)

func defaultLogger() Logger {
	return log.New(log.Writer(), "rpmi_context: ", log.LstdFlags)
}
