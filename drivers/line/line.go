// Package line abstracts an asynchronous duplex byte line (a UART or
// anything that behaves like one) down to two readiness conditions and two
// single-byte primitives.
package line

import (
	"context"
	"time"

	"bytepump-go/errcode"
	"bytepump-go/x/spin"
)

// Line is the hardware view the pump works against. ReadByte and WriteByte
// are only required to be non-blocking and fixed-cost while their readiness
// condition holds. ReadByte on a line that is not receive-ready returns
// errcode.Empty.
type Line interface {
	RxReady() bool
	TxReady() bool
	ReadByte() (byte, error)
	WriteByte(b byte) error
}

// Notifier is implemented by lines that can wake a waiter instead of being
// polled. Channels are level-coalesced; callers re-check readiness.
type Notifier interface {
	Readable() <-chan struct{}
	Writable() <-chan struct{}
}

// TxInterrupter is implemented by lines with a maskable "transmit ready"
// interrupt source.
type TxInterrupter interface {
	EnableTxInterrupt()
	DisableTxInterrupt()
}

// ReadByteBlocking spins on RxReady and then reads one byte.
// timeout <= 0 waits until ctx is done.
func ReadByteBlocking(ctx context.Context, l Line, timeout time.Duration) (byte, error) {
	if err := spin.Until(ctx, l.RxReady, timeout); err != nil {
		return 0, err
	}
	return l.ReadByte()
}

// WriteByteBlocking spins on TxReady and then writes b.
func WriteByteBlocking(ctx context.Context, l Line, b byte, timeout time.Duration) error {
	if err := spin.Until(ctx, l.TxReady, timeout); err != nil {
		return err
	}
	return l.WriteByte(b)
}

// WriteStringBlocking writes s one byte per readiness check. timeout applies
// to each byte. It returns the number of bytes written.
func WriteStringBlocking(ctx context.Context, l Line, s string, timeout time.Duration) (int, error) {
	for i := 0; i < len(s); i++ {
		if err := WriteByteBlocking(ctx, l, s[i], timeout); err != nil {
			return i, err
		}
	}
	return len(s), nil
}

func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errcode.Wrap(errcode.MapDriverErr(err), op, err)
}
