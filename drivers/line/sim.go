package line

import (
	"context"
	"io"
	"os"
	"sync"

	"bytepump-go/errcode"
	"bytepump-go/types"

	"github.com/eapache/queue"
)

// SimConfig shapes the simulated hardware.
type SimConfig struct {
	// RxDepth bounds the receive FIFO; bytes arriving while it is full are
	// lost and counted as overruns. Zero means unbounded.
	RxDepth int
	// TxLatency is how many TxReady checks report busy after each write,
	// modelling a byte in flight on the wire.
	TxLatency int
	// Sink, when set, receives every transmitted byte instead of the
	// in-memory wire log.
	Sink io.Writer
}

// Sim is a bounded software model of a UART. Tests and the host console use
// it where no hardware exists. It is safe for one receiving and one
// transmitting goroutine plus any number of injectors.
type Sim struct {
	cfg SimConfig

	mu       sync.Mutex
	rx       *queue.Queue // wire -> RX FIFO
	tx       *queue.Queue // transmitted wire log
	busy     int
	txIRQ    bool
	fired    uint64
	overruns uint64
	closed   bool

	readable chan struct{}
	writable chan struct{}
}

// NewSim returns an idle simulated line.
func NewSim(cfg SimConfig) *Sim {
	if cfg.RxDepth < 0 {
		cfg.RxDepth = 0
	}
	if cfg.TxLatency < 0 {
		cfg.TxLatency = 0
	}
	return &Sim{
		cfg:      cfg,
		rx:       queue.New(),
		tx:       queue.New(),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// Inject places bytes on the receive side of the wire. It returns how many
// were accepted by the RX FIFO.
func (s *Sim) Inject(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	wasEmpty := s.rx.Length() == 0
	n := 0
	for _, b := range p {
		if s.cfg.RxDepth > 0 && s.rx.Length() >= s.cfg.RxDepth {
			s.overruns++
			continue
		}
		s.rx.Add(b)
		n++
	}
	if wasEmpty && n > 0 {
		notify(s.readable)
	}
	return n
}

// Feed copies r onto the receive side until EOF or a read error. ctx is
// checked between reads; a Read that blocks is not interrupted.
func (s *Sim) Feed(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			s.Inject(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *Sim) RxReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Length() > 0
}

func (s *Sim) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rx.Length() == 0 {
		return 0, errcode.Empty
	}
	return s.rx.Remove().(byte), nil
}

// TxReady reports whether the transmitter accepts a byte. Each check made
// while a byte is in flight advances the simulated wire by one step.
func (s *Sim) TxReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.busy > 0 {
		s.busy--
		if s.busy == 0 {
			s.fireTx()
		}
		return false
	}
	return true
}

func (s *Sim) WriteByte(b byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &errcode.E{C: errcode.LineError, Op: "sim.write", Msg: "closed"}
	}
	if s.busy > 0 {
		return errcode.Busy
	}
	if s.cfg.Sink != nil {
		if _, err := s.cfg.Sink.Write([]byte{b}); err != nil {
			return mapErr("sim.write", err)
		}
	} else {
		s.tx.Add(b)
	}
	s.busy = s.cfg.TxLatency
	if s.busy == 0 {
		s.fireTx()
	}
	return nil
}

// fireTx raises the transmit-ready interrupt if its source is enabled.
// Caller holds mu.
func (s *Sim) fireTx() {
	if !s.txIRQ {
		return
	}
	s.fired++
	notify(s.writable)
}

func (s *Sim) EnableTxInterrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txIRQ {
		return
	}
	s.txIRQ = true
	if s.busy == 0 {
		s.fireTx()
	}
}

func (s *Sim) DisableTxInterrupt() {
	s.mu.Lock()
	s.txIRQ = false
	s.mu.Unlock()
}

// TxInterruptEnabled reports the state of the transmit interrupt source.
func (s *Sim) TxInterruptEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txIRQ
}

// TxInterrupts counts transmit-ready interrupts raised so far.
func (s *Sim) TxInterrupts() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Overruns counts bytes lost because the RX FIFO was full.
func (s *Sim) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}

// Transmitted returns a copy of the wire log (empty when a Sink is set).
func (s *Sim) Transmitted() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, s.tx.Length())
	for i := range out {
		out[i] = s.tx.Get(i).(byte)
	}
	return out
}

// TakeTransmitted returns and clears the wire log.
func (s *Sim) TakeTransmitted() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, s.tx.Length())
	for s.tx.Length() > 0 {
		out = append(out, s.tx.Remove().(byte))
	}
	return out
}

func (s *Sim) Readable() <-chan struct{} { return s.readable }
func (s *Sim) Writable() <-chan struct{} { return s.writable }

func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// NewConsole returns a Sim fed from in and transmitting to out. The feeder
// goroutine stops at EOF; ctx is checked between reads.
func NewConsole(ctx context.Context, in io.Reader, out io.Writer) *Sim {
	s := NewSim(SimConfig{Sink: out})
	go func() { _ = s.Feed(ctx, in) }()
	return s
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func init() {
	Register("console", func(ctx context.Context, _ types.LineConfig) (Line, error) {
		return NewConsole(ctx, os.Stdin, os.Stdout), nil
	})
}
