package line

import (
	"bytepump-go/errcode"

	"tinygo.org/x/drivers"
)

// UART adapts a TinyGo drivers.UART (machine.UART, uartx.UART, ...) to Line.
// Receive readiness is Buffered() > 0.
//
// Drivers with a non-blocking TryWrite (uartx) get a one-byte holding
// register: a byte the driver has no room for is held and TxReady reports
// busy until a later check hands it over. Other drivers are written
// directly and are always transmit-ready.
type UART struct {
	u   drivers.UART
	try tryWriter
	rxb [1]byte // receive context only
	txb [1]byte // transmit context only

	hold byte
	held bool
}

type tryWriter interface {
	TryWrite(p []byte) int
}

// FromUART wraps u.
func FromUART(u drivers.UART) *UART {
	l := &UART{u: u}
	l.try, _ = u.(tryWriter)
	return l
}

func (l *UART) RxReady() bool { return l.u.Buffered() > 0 }

func (l *UART) TxReady() bool {
	if !l.held {
		return true
	}
	l.txb[0] = l.hold
	if l.try.TryWrite(l.txb[:]) == 1 {
		l.held = false
		return true
	}
	return false
}

func (l *UART) ReadByte() (byte, error) {
	n, err := l.u.Read(l.rxb[:])
	if n == 1 {
		return l.rxb[0], nil
	}
	if err != nil {
		return 0, mapErr("uart.read", err)
	}
	return 0, errcode.Empty
}

func (l *UART) WriteByte(b byte) error {
	if l.try != nil {
		if l.held {
			return errcode.Busy
		}
		l.txb[0] = b
		if l.try.TryWrite(l.txb[:]) == 0 {
			l.hold, l.held = b, true
		}
		return nil
	}
	l.txb[0] = b
	n, err := l.u.Write(l.txb[:])
	if err != nil {
		return mapErr("uart.write", err)
	}
	if n != 1 {
		return errcode.Busy
	}
	return nil
}

// Readable forwards the driver's receive notification when it has one.
// Without it the channel is nil and never fires.
func (l *UART) Readable() <-chan struct{} {
	if n, ok := l.u.(interface{ Readable() <-chan struct{} }); ok {
		return n.Readable()
	}
	return nil
}

// Writable forwards the driver's transmit-progress notification, if any.
func (l *UART) Writable() <-chan struct{} {
	if n, ok := l.u.(interface{ Writable() <-chan struct{} }); ok {
		return n.Writable()
	}
	return nil
}
