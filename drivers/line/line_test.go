package line

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"bytepump-go/errcode"
	"bytepump-go/types"
)

func TestSim_ReceiveFIFO(t *testing.T) {
	s := NewSim(SimConfig{RxDepth: 3})
	if s.RxReady() {
		t.Fatal("fresh sim is rx-ready")
	}
	if _, err := s.ReadByte(); !errors.Is(err, errcode.Empty) {
		t.Fatalf("ReadByte on empty: %v", err)
	}
	if n := s.Inject([]byte("abcde")); n != 3 {
		t.Fatalf("Inject accepted %d", n)
	}
	if s.Overruns() != 2 {
		t.Fatalf("overruns = %d", s.Overruns())
	}
	select {
	case <-s.Readable():
	default:
		t.Fatal("no readable edge")
	}
	var got []byte
	for s.RxReady() {
		b, err := s.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte: %v", err)
		}
		got = append(got, b)
	}
	if string(got) != "abc" {
		t.Fatalf("read %q", got)
	}
}

func TestSim_TxLatencyAndInterrupt(t *testing.T) {
	s := NewSim(SimConfig{TxLatency: 2})
	s.EnableTxInterrupt()
	if s.TxInterrupts() != 1 {
		t.Fatalf("enable on idle fired %d", s.TxInterrupts())
	}
	<-s.Writable()

	if err := s.WriteByte('x'); err != nil {
		t.Fatalf("WriteByte: %v", err)
	}
	if err := s.WriteByte('y'); !errors.Is(err, errcode.Busy) {
		t.Fatalf("write while busy: %v", err)
	}
	if s.TxReady() {
		t.Fatal("ready one check after write")
	}
	if s.TxReady() {
		t.Fatal("ready on the completing check")
	}
	if s.TxInterrupts() != 2 {
		t.Fatalf("completion did not interrupt: %d", s.TxInterrupts())
	}
	if !s.TxReady() {
		t.Fatal("not ready after latency")
	}

	s.DisableTxInterrupt()
	_ = s.WriteByte('z')
	s.TxReady()
	s.TxReady()
	if s.TxInterrupts() != 2 {
		t.Fatal("interrupt fired while disabled")
	}
	if got := string(s.TakeTransmitted()); got != "xz" {
		t.Fatalf("wire = %q", got)
	}
	if len(s.Transmitted()) != 0 {
		t.Fatal("TakeTransmitted did not clear")
	}
}

func TestSim_SinkAndClose(t *testing.T) {
	var buf bytes.Buffer
	s := NewSim(SimConfig{Sink: &buf})
	_ = s.WriteByte('o')
	_ = s.WriteByte('k')
	if buf.String() != "ok" {
		t.Fatalf("sink = %q", buf.String())
	}
	_ = s.Close()
	if s.TxReady() {
		t.Fatal("closed line is tx-ready")
	}
	if err := s.WriteByte('!'); !errors.Is(err, errcode.LineError) {
		t.Fatalf("write after close: %v", err)
	}
	if s.Inject([]byte("x")) != 0 {
		t.Fatal("inject after close accepted bytes")
	}
}

func TestConsole_Feed(t *testing.T) {
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewConsole(ctx, strings.NewReader("hi"), &out)
	b, err := ReadByteBlocking(ctx, s, time.Second)
	if err != nil || b != 'h' {
		t.Fatalf("first byte %q, %v", b, err)
	}
	b, err = ReadByteBlocking(ctx, s, time.Second)
	if err != nil || b != 'i' {
		t.Fatalf("second byte %q, %v", b, err)
	}
}

// cancelReader hands out one byte per Read and cancels ctx on the first.
type cancelReader struct {
	cancel context.CancelFunc
	reads  int
}

func (c *cancelReader) Read(p []byte) (int, error) {
	c.reads++
	c.cancel()
	p[0] = 'x'
	return 1, nil
}

func TestFeed_ChecksContextBetweenReads(t *testing.T) {
	s := NewSim(SimConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	r := &cancelReader{cancel: cancel}
	if err := s.Feed(ctx, r); !errors.Is(err, context.Canceled) {
		t.Fatalf("Feed = %v", err)
	}
	if r.reads != 1 {
		t.Fatalf("reads after cancel: %d", r.reads)
	}
	// The byte read before the check is still delivered.
	if b, err := s.ReadByte(); err != nil || b != 'x' {
		t.Fatalf("ReadByte = %q, %v", b, err)
	}
	if err := s.Feed(ctx, strings.NewReader("never")); !errors.Is(err, context.Canceled) || s.RxReady() {
		t.Fatalf("Feed on done ctx = %v", err)
	}
}

func TestBlockingHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewSim(SimConfig{TxLatency: 3})
	n, err := WriteStringBlocking(ctx, s, "abc", time.Second)
	if err != nil || n != 3 {
		t.Fatalf("WriteStringBlocking = %d, %v", n, err)
	}
	if got := string(s.Transmitted()); got != "abc" {
		t.Fatalf("wire = %q", got)
	}
	if _, err := ReadByteBlocking(ctx, s, 5*time.Millisecond); !errors.Is(err, errcode.Timeout) {
		t.Fatalf("read on idle line: %v", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := ReadByteBlocking(cctx, s, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("read with cancelled ctx: %v", err)
	}
}

// fakeUART is a drivers.UART over two buffers.
type fakeUART struct {
	rx       bytes.Buffer
	tx       bytes.Buffer
	readErr  error
	writeErr error
	short    bool
}

func (f *fakeUART) Buffered() int { return f.rx.Len() }

func (f *fakeUART) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(p)
}

func (f *fakeUART) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.short {
		return 0, nil
	}
	return f.tx.Write(p)
}

func TestUART_Adapter(t *testing.T) {
	f := &fakeUART{}
	l := FromUART(f)
	if l.RxReady() {
		t.Fatal("rx-ready with nothing buffered")
	}
	if _, err := l.ReadByte(); !errors.Is(err, errcode.Empty) {
		t.Fatalf("ReadByte empty: %v", err)
	}
	f.rx.WriteString("q")
	if !l.RxReady() {
		t.Fatal("not rx-ready")
	}
	if b, err := l.ReadByte(); err != nil || b != 'q' {
		t.Fatalf("ReadByte = %q, %v", b, err)
	}
	if !l.TxReady() {
		t.Fatal("not tx-ready")
	}
	if err := l.WriteByte('w'); err != nil || f.tx.String() != "w" {
		t.Fatalf("WriteByte: %v, wire %q", err, f.tx.String())
	}
	if l.Readable() != nil || l.Writable() != nil {
		t.Fatal("plain driver should not notify")
	}

	f.short = true
	if err := l.WriteByte('x'); !errors.Is(err, errcode.Busy) {
		t.Fatalf("short write: %v", err)
	}
	f.writeErr = io.ErrClosedPipe
	if err := l.WriteByte('x'); !errors.Is(err, errcode.LineError) || !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("write error: %v", err)
	}
	f.rx.WriteString("z")
	f.readErr = errcode.Timeout
	if _, err := l.ReadByte(); !errors.Is(err, errcode.Timeout) {
		t.Fatalf("read error: %v", err)
	}
}

// tryUART adds uartx's non-blocking write with a bounded TX buffer.
type tryUART struct {
	fakeUART
	room     int
	writable chan struct{}
}

func (f *tryUART) TryWrite(p []byte) int {
	n := len(p)
	if n > f.room {
		n = f.room
	}
	f.room -= n
	f.tx.Write(p[:n])
	return n
}

func (f *tryUART) Writable() <-chan struct{} { return f.writable }

func TestUART_HoldingRegister(t *testing.T) {
	f := &tryUART{room: 1, writable: make(chan struct{}, 1)}
	l := FromUART(f)
	if l.Writable() == nil {
		t.Fatal("driver notification not forwarded")
	}
	if err := l.WriteByte('a'); err != nil || !l.TxReady() {
		t.Fatalf("first write: %v", err)
	}
	if err := l.WriteByte('b'); err != nil {
		t.Fatalf("held write: %v", err)
	}
	if l.TxReady() {
		t.Fatal("ready while holding a byte")
	}
	if err := l.WriteByte('c'); !errors.Is(err, errcode.Busy) {
		t.Fatalf("write while holding: %v", err)
	}
	f.room = 4
	if !l.TxReady() {
		t.Fatal("held byte not handed over")
	}
	if got := f.tx.String(); got != "ab" {
		t.Fatalf("wire = %q", got)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, types.LineConfig{})
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := l.(*Sim); !ok {
		t.Fatalf("default line is %T", l)
	}
	if _, err := Open(ctx, types.LineConfig{Type: "nope"}); !errors.Is(err, errcode.UnknownLine) {
		t.Fatalf("unknown type: %v", err)
	}

	want := NewSim(SimConfig{})
	Register("test-fixed", func(context.Context, types.LineConfig) (Line, error) { return want, nil })
	got, err := Open(ctx, types.LineConfig{Type: "test-fixed"})
	if err != nil || got != Line(want) {
		t.Fatalf("Open registered = %v, %v", got, err)
	}
	found := false
	for _, n := range Types() {
		found = found || n == "console"
	}
	if !found {
		t.Fatalf("Types() = %v", Types())
	}
}
