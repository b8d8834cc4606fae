//go:build linux

package line

import (
	"context"
	"sync"

	"bytepump-go/errcode"
	"bytepump-go/types"

	"golang.org/x/sys/unix"
)

var baudRates = map[uint32]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// TTY is a raw, non-blocking serial device. Readiness is sampled with a
// zero-timeout poll.
type TTY struct {
	fd  int
	rxb [1]byte
	txb [1]byte

	closeOnce sync.Once
}

// OpenTTY opens path in raw 8N1 mode. baud 0 keeps the device's current rate.
func OpenTTY(path string, baud uint32) (*TTY, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errcode.Wrap(errcode.LineError, "tty.open", err)
	}
	if err := makeRaw(fd, baud); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &TTY{fd: fd}, nil
}

func makeRaw(fd int, baud uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return errcode.Wrap(errcode.LineError, "tty.tcgets", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if baud != 0 {
		rate, ok := baudRates[baud]
		if !ok {
			return &errcode.E{C: errcode.InvalidParams, Op: "tty.baud", Msg: "unsupported baud rate"}
		}
		t.Cflag &^= unix.CBAUD
		t.Cflag |= rate
		t.Ispeed = rate
		t.Ospeed = rate
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return errcode.Wrap(errcode.LineError, "tty.tcsets", err)
	}
	return nil
}

func (l *TTY) ready(events int16) bool {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: events}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&events != 0
}

func (l *TTY) RxReady() bool { return l.ready(unix.POLLIN) }
func (l *TTY) TxReady() bool { return l.ready(unix.POLLOUT) }

func (l *TTY) ReadByte() (byte, error) {
	n, err := unix.Read(l.fd, l.rxb[:])
	if n == 1 {
		return l.rxb[0], nil
	}
	if err == nil || err == unix.EAGAIN || err == unix.EINTR {
		return 0, errcode.Empty
	}
	return 0, errcode.Wrap(errcode.LineError, "tty.read", err)
}

func (l *TTY) WriteByte(b byte) error {
	l.txb[0] = b
	n, err := unix.Write(l.fd, l.txb[:])
	if err == unix.EAGAIN || (err == nil && n == 0) {
		return errcode.Busy
	}
	if err != nil {
		return errcode.Wrap(errcode.LineError, "tty.write", err)
	}
	return nil
}

func (l *TTY) Close() error {
	var err error
	l.closeOnce.Do(func() { err = unix.Close(l.fd) })
	return err
}

func init() {
	Register("tty", func(_ context.Context, cfg types.LineConfig) (Line, error) {
		if cfg.Device == "" {
			return nil, &errcode.E{C: errcode.InvalidParams, Op: "tty.open", Msg: "device path required"}
		}
		return OpenTTY(cfg.Device, cfg.Baud)
	})
}
