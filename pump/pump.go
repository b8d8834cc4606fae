// Package pump moves bytes between a line and a channel pair.
//
// A received byte is read from the line, pushed into Inbound, popped back
// out, run through the transform, and the transform's output is pushed into
// Outbound. A drainer pops Outbound and writes one byte per transmit-ready
// check. Two execution contexts share the work: the interrupt context
// (HandleInterrupt) and the foreground context (Foreground). Which steps run
// where depends on the Mode; every ring always has exactly one producer
// context and one consumer context.
//
//	mode       interrupt context             foreground context
//	polled     -                             receive, deliver, drain
//	interrupt  receive, deliver, drain       -
//	deferred   receive                       deliver, drain
//
// Bytes that do not fit are dropped, counted, and reported through
// Config.OnDrop; nothing blocks and nothing is overwritten.
package pump

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bytepump-go/drivers/line"
	"bytepump-go/errcode"
	"bytepump-go/pump/transform"
)

// Mode selects how the work is split between contexts.
type Mode uint8

const (
	ModePolled Mode = iota
	ModeInterrupt
	ModeDeferred
)

func (m Mode) String() string {
	switch m {
	case ModePolled:
		return "polled"
	case ModeInterrupt:
		return "interrupt"
	case ModeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// ParseMode accepts "polled" (the default for ""), "interrupt" and
// "deferred".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "polled":
		return ModePolled, nil
	case "interrupt", "irq":
		return ModeInterrupt, nil
	case "deferred":
		return ModeDeferred, nil
	}
	return 0, &errcode.E{C: errcode.InvalidParams, Op: "pump.mode", Msg: "unknown mode " + s}
}

// Side names the ring a byte was dropped from.
type Side uint8

const (
	Inbound Side = iota
	Outbound
)

func (s Side) String() string {
	if s == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Drop describes one byte lost to backpressure or a failed line write.
type Drop struct {
	Side Side
	Byte byte
	Err  error
}

// DefaultIdlePoll is how long a loop sleeps when nothing can wake it sooner.
const DefaultIdlePoll = time.Millisecond

// Config tunes a Pump.
type Config struct {
	Mode Mode
	// IdlePoll bounds a wait when the line has no notification for the
	// condition being waited on. Zero selects DefaultIdlePoll.
	IdlePoll time.Duration
	// OnDrop runs in the context that dropped the byte. It must not block.
	OnDrop func(Drop)
}

// Stats is a snapshot of the pump counters.
type Stats struct {
	Mode       Mode
	RxBytes    uint64 // read from the line
	Delivered  uint64 // popped from Inbound into the transform
	TxBytes    uint64 // written to the line
	RxDropped  uint64 // Inbound full
	TxDropped  uint64 // Outbound full or line write failed
	LineErrors uint64
	Inbound    int
	Outbound   int
	TxArmed    bool
}

// Pump runs the byte pump protocol over one channel pair and one line.
type Pump struct {
	pair *Pair
	line line.Line
	xf   transform.Transform
	cfg  Config

	notifier line.Notifier      // nil when the line cannot notify
	irq      line.TxInterrupter // nil when the line has no TX interrupt

	armed atomic.Bool
	out   []byte // transform scratch, owned by the delivering context

	rxBytes   atomic.Uint64
	delivered atomic.Uint64
	txBytes   atomic.Uint64
	rxDropped atomic.Uint64
	txDropped atomic.Uint64
	lineErrs  atomic.Uint64
}

// New builds a pump. A nil transform echoes. The line's TX interrupt, if
// any, starts disabled.
func New(pair *Pair, l line.Line, xf transform.Transform, cfg Config) (*Pump, error) {
	if pair == nil || l == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "pump.New", Msg: "pair and line are required"}
	}
	if cfg.Mode > ModeDeferred {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "pump.New", Msg: "unknown mode"}
	}
	if xf == nil {
		xf = transform.Echo{}
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = DefaultIdlePoll
	}
	p := &Pump{pair: pair, line: l, xf: xf, cfg: cfg, out: make([]byte, 0, 64)}
	p.notifier, _ = l.(line.Notifier)
	p.irq, _ = l.(line.TxInterrupter)
	if p.irq != nil {
		p.irq.DisableTxInterrupt()
	}
	return p, nil
}

func (p *Pump) Mode() Mode                     { return p.cfg.Mode }
func (p *Pump) Pair() *Pair                    { return p.pair }
func (p *Pump) Transform() transform.Transform { return p.xf }

// TxArmed reports whether the drainer is armed (TX interrupt enabled).
func (p *Pump) TxArmed() bool { return p.armed.Load() }

func (p *Pump) Stats() Stats {
	return Stats{
		Mode:       p.cfg.Mode,
		RxBytes:    p.rxBytes.Load(),
		Delivered:  p.delivered.Load(),
		TxBytes:    p.txBytes.Load(),
		RxDropped:  p.rxDropped.Load(),
		TxDropped:  p.txDropped.Load(),
		LineErrors: p.lineErrs.Load(),
		Inbound:    p.pair.Inbound.Len(),
		Outbound:   p.pair.Outbound.Len(),
		TxArmed:    p.armed.Load(),
	}
}

// HandleInterrupt is the interrupt service routine body. It must only be
// called from the interrupt context. It reports whether any byte moved.
func (p *Pump) HandleInterrupt() bool {
	switch p.cfg.Mode {
	case ModeInterrupt:
		n := p.receive(true)
		n += p.drain()
		return n > 0
	case ModeDeferred:
		return p.receive(false) > 0
	}
	return false
}

// Foreground is one pass of the main loop. It must only be called from the
// foreground context. It reports whether any byte moved.
func (p *Pump) Foreground() bool {
	switch p.cfg.Mode {
	case ModePolled:
		n := p.receive(true)
		n += p.drain()
		return n > 0
	case ModeDeferred:
		n := p.deliver()
		n += p.drain()
		return n > 0
	}
	return false
}

// Poll runs both contexts' work once from the calling goroutine. It is for
// single-goroutine use (tests, simple main loops); it must not be mixed with
// Run or concurrent HandleInterrupt/Foreground calls.
func (p *Pump) Poll() bool {
	a := p.HandleInterrupt()
	b := p.Foreground()
	return a || b
}

// Run drives the pump until ctx is done. In deferred mode it starts the
// interrupt context on its own goroutine and waits for it before returning.
func (p *Pump) Run(ctx context.Context) error {
	switch p.cfg.Mode {
	case ModeInterrupt:
		p.interruptLoop(ctx)
	case ModeDeferred:
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.interruptLoop(ctx)
		}()
		p.foregroundLoop(ctx)
		wg.Wait()
	default:
		p.foregroundLoop(ctx)
	}
	return ctx.Err()
}

// ---- protocol steps ----

// receive moves bytes from the line into Inbound. With inline set, each
// byte is delivered straight away so Inbound never accumulates. At most
// Inbound's capacity is read per call.
func (p *Pump) receive(inline bool) int {
	in := p.pair.Inbound
	budget := in.Cap()
	n := 0
	for n < budget && p.line.RxReady() {
		b, err := p.line.ReadByte()
		if err != nil {
			if !errors.Is(err, errcode.Empty) {
				p.lineErrs.Add(1)
			}
			break
		}
		n++
		p.rxBytes.Add(1)
		if err := in.Push(b); err != nil {
			p.rxDropped.Add(1)
			p.dropped(Drop{Side: Inbound, Byte: b, Err: err})
		}
		if inline {
			p.deliver()
		}
	}
	return n
}

// deliver pops what Inbound holds now, runs the transform, and queues the
// output on Outbound.
func (p *Pump) deliver() int {
	in, out := p.pair.Inbound, p.pair.Outbound
	budget := in.Len()
	queued := false
	n := 0
	for ; n < budget; n++ {
		b, err := in.Pop()
		if err != nil {
			break
		}
		p.delivered.Add(1)
		p.out = p.xf.Apply(b, p.out[:0])
		for _, ob := range p.out {
			if err := out.Push(ob); err != nil {
				p.txDropped.Add(1)
				p.dropped(Drop{Side: Outbound, Byte: ob, Err: err})
				continue
			}
			queued = true
		}
	}
	if queued {
		p.arm()
	}
	return n
}

// drain writes queued bytes while the line is ready, one byte per readiness
// check, at most what Outbound held on entry.
func (p *Pump) drain() int {
	if !p.armed.Load() {
		return 0
	}
	out := p.pair.Outbound
	budget := out.Len()
	n := 0
	for n < budget && p.line.TxReady() {
		b, err := out.Pop()
		if err != nil {
			break
		}
		n++
		if err := p.line.WriteByte(b); err != nil {
			p.lineErrs.Add(1)
			p.txDropped.Add(1)
			p.dropped(Drop{Side: Outbound, Byte: b, Err: err})
			continue
		}
		p.txBytes.Add(1)
	}
	if out.IsEmpty() {
		p.disarm()
	}
	return n
}

// arm enables the transmitter after bytes were queued.
func (p *Pump) arm() {
	if !p.armed.Swap(true) && p.irq != nil {
		p.irq.EnableTxInterrupt()
	}
}

// disarm stops transmit interrupts once Outbound is empty. A byte queued
// between the emptiness check and the disable is caught by the re-check.
func (p *Pump) disarm() {
	p.armed.Store(false)
	if p.irq != nil {
		p.irq.DisableTxInterrupt()
	}
	if !p.pair.Outbound.IsEmpty() {
		p.armed.Store(true)
		if p.irq != nil {
			p.irq.EnableTxInterrupt()
		}
	}
}

func (p *Pump) dropped(d Drop) {
	if p.cfg.OnDrop != nil {
		p.cfg.OnDrop(d)
	}
}

// ---- loops ----

func (p *Pump) interruptLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if p.HandleInterrupt() {
			continue
		}
		var rd, wr <-chan struct{}
		if p.notifier != nil {
			rd = p.notifier.Readable()
			if p.cfg.Mode == ModeInterrupt && p.armed.Load() {
				wr = p.notifier.Writable()
			}
		}
		tick := rd == nil || (p.cfg.Mode == ModeInterrupt && p.pendingTx())
		if !p.wait(ctx, rd, wr, tick) {
			return
		}
	}
}

func (p *Pump) foregroundLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if p.Foreground() {
			continue
		}
		var a, wr <-chan struct{}
		if p.notifier != nil && p.armed.Load() {
			wr = p.notifier.Writable()
		}
		tick := p.pendingTx()
		switch p.cfg.Mode {
		case ModeDeferred:
			a = p.pair.Inbound.Readable()
		case ModePolled:
			if p.notifier != nil {
				a = p.notifier.Readable()
			}
			tick = tick || a == nil
		default:
			<-ctx.Done()
			return
		}
		if !p.wait(ctx, a, wr, tick) {
			return
		}
	}
}

// pendingTx reports queued output the line was not ready for.
func (p *Pump) pendingTx() bool {
	return p.armed.Load() && !p.pair.Outbound.IsEmpty()
}

// wait blocks until a or b fires, the idle tick elapses (when tick is set)
// or ctx is done. Nil channels never fire.
func (p *Pump) wait(ctx context.Context, a, b <-chan struct{}, tick bool) bool {
	var tc <-chan time.Time
	if tick {
		t := time.NewTimer(p.cfg.IdlePoll)
		defer t.Stop()
		tc = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-a:
	case <-b:
	case <-tc:
	}
	return true
}
