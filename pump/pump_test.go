package pump

import (
	"context"
	"errors"
	"testing"
	"time"

	"bytepump-go/drivers/line"
	"bytepump-go/errcode"
	"bytepump-go/pump/transform"
)

func newTestPump(t *testing.T, rx, tx int, sim *line.Sim, xf transform.Transform, cfg Config) *Pump {
	t.Helper()
	pair, err := NewPair(rx, tx)
	if err != nil {
		t.Fatalf("NewPair: %v", err)
	}
	p, err := New(pair, sim, xf, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// settle polls until nothing moves or the iteration bound is hit.
func settle(p *Pump, max int) {
	idle := 0
	for i := 0; i < max && idle < 4; i++ {
		if p.Poll() {
			idle = 0
		} else {
			idle++
		}
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModePolled, "polled": ModePolled, "interrupt": ModeInterrupt, "irq": ModeInterrupt, "deferred": ModeDeferred}
	for s, want := range cases {
		got, err := ParseMode(s)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v", s, got, err)
		}
		if s != "" && s != "irq" && got.String() != s {
			t.Fatalf("String() = %q, want %q", got.String(), s)
		}
	}
	if _, err := ParseMode("dma"); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("ParseMode(dma) err=%v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	pair, _ := NewPair(4, 4)
	if _, err := New(nil, line.NewSim(line.SimConfig{}), nil, Config{}); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("nil pair err=%v", err)
	}
	if _, err := New(pair, nil, nil, Config{}); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("nil line err=%v", err)
	}
	if _, err := New(pair, line.NewSim(line.SimConfig{}), nil, Config{Mode: 9}); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("bad mode err=%v", err)
	}
}

func TestEcho_AllModes(t *testing.T) {
	for _, m := range []Mode{ModePolled, ModeInterrupt, ModeDeferred} {
		sim := line.NewSim(line.SimConfig{})
		p := newTestPump(t, 8, 8, sim, nil, Config{Mode: m})
		sim.Inject([]byte("hello"))
		settle(p, 100)

		if got := string(sim.Transmitted()); got != "hello" {
			t.Fatalf("%v: transmitted %q", m, got)
		}
		st := p.Stats()
		if st.RxBytes != 5 || st.Delivered != 5 || st.TxBytes != 5 {
			t.Fatalf("%v: stats %+v", m, st)
		}
		if st.Inbound != 0 || st.Outbound != 0 || p.TxArmed() || sim.TxInterruptEnabled() {
			t.Fatalf("%v: not idle after drain: %+v irq=%v", m, st, sim.TxInterruptEnabled())
		}
	}
}

func TestReport_Polled(t *testing.T) {
	sim := line.NewSim(line.SimConfig{})
	p := newTestPump(t, 4, 64, sim, &transform.Report{Digits: 3}, Config{})
	sim.Inject([]byte("aa"))
	settle(p, 100)
	want := "a\r\na - 001\r\na\r\na - 002\r\n"
	if got := string(sim.Transmitted()); got != want {
		t.Fatalf("transmitted %q, want %q", got, want)
	}
}

func TestTxLatency_OneBytePerReadyCheck(t *testing.T) {
	sim := line.NewSim(line.SimConfig{TxLatency: 3})
	p := newTestPump(t, 8, 8, sim, nil, Config{Mode: ModeInterrupt})
	sim.Inject([]byte("xyz"))

	// First pass: receive all three, write one, the rest wait for the wire.
	p.HandleInterrupt()
	if got := string(sim.Transmitted()); got != "x" {
		t.Fatalf("after first pass transmitted %q", got)
	}
	if !p.TxArmed() || !sim.TxInterruptEnabled() {
		t.Fatal("expected transmitter armed while output is pending")
	}
	settle(p, 100)
	if got := string(sim.Transmitted()); got != "xyz" {
		t.Fatalf("transmitted %q", got)
	}
	if p.TxArmed() || sim.TxInterruptEnabled() {
		t.Fatal("transmitter still armed with empty outbound")
	}
}

func TestNoInterruptStormWhenIdle(t *testing.T) {
	sim := line.NewSim(line.SimConfig{})
	p := newTestPump(t, 4, 4, sim, nil, Config{Mode: ModeInterrupt})
	sim.Inject([]byte("ok"))
	settle(p, 50)
	fired := sim.TxInterrupts()
	for i := 0; i < 100; i++ {
		if p.HandleInterrupt() {
			t.Fatal("idle interrupt reported progress")
		}
	}
	if sim.TxInterrupts() != fired || sim.TxInterruptEnabled() {
		t.Fatalf("interrupts kept firing: %d -> %d enabled=%v", fired, sim.TxInterrupts(), sim.TxInterruptEnabled())
	}
}

func TestDeferred_InboundFullDrops(t *testing.T) {
	sim := line.NewSim(line.SimConfig{})
	var drops []Drop
	p := newTestPump(t, 4, 16, sim, nil, Config{
		Mode:   ModeDeferred,
		OnDrop: func(d Drop) { drops = append(drops, d) },
	})
	sim.Inject([]byte("abcdefghij"))

	// Interrupt context only: the foreground never runs, so inbound fills.
	for i := 0; i < 3; i++ {
		p.HandleInterrupt()
	}
	st := p.Stats()
	if st.RxBytes != 10 || st.RxDropped != 6 || st.Inbound != 4 {
		t.Fatalf("stats %+v", st)
	}
	if len(drops) != 6 || drops[0].Side != Inbound || drops[0].Byte != 'e' || !errors.Is(drops[0].Err, errcode.Full) {
		t.Fatalf("drops %+v", drops)
	}

	p.Foreground()
	settle(p, 50)
	if got := string(sim.Transmitted()); got != "abcd" {
		t.Fatalf("transmitted %q", got)
	}
}

func TestOutboundFullDrops(t *testing.T) {
	sim := line.NewSim(line.SimConfig{})
	n := 0
	p := newTestPump(t, 4, 4, sim, &transform.Report{Digits: 3}, Config{
		OnDrop: func(d Drop) {
			if d.Side != Outbound {
				t.Errorf("drop side %v", d.Side)
			}
			n++
		},
	})
	sim.Inject([]byte("a"))
	settle(p, 50)
	// "a\r\na - 001\r\n" is 12 bytes; 4 fit.
	if got := string(sim.Transmitted()); got != "a\r\na" {
		t.Fatalf("transmitted %q", got)
	}
	if st := p.Stats(); st.TxDropped != 8 || n != 8 {
		t.Fatalf("TxDropped=%d hook=%d", st.TxDropped, n)
	}
}

func TestReceiveBudgetIsInboundCapacity(t *testing.T) {
	sim := line.NewSim(line.SimConfig{})
	p := newTestPump(t, 2, 16, sim, nil, Config{Mode: ModeDeferred})
	sim.Inject([]byte("abcde"))
	p.HandleInterrupt()
	if st := p.Stats(); st.RxBytes != 2 {
		t.Fatalf("first pass read %d bytes", st.RxBytes)
	}
	if !sim.RxReady() {
		t.Fatal("line drained past the budget")
	}
}

func TestRun_AllModes(t *testing.T) {
	for _, m := range []Mode{ModePolled, ModeInterrupt, ModeDeferred} {
		sim := line.NewSim(line.SimConfig{TxLatency: 1})
		p := newTestPump(t, 16, 16, sim, nil, Config{Mode: m, IdlePoll: 100 * time.Microsecond})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()

		sim.Inject([]byte("ping"))
		deadline := time.Now().Add(2 * time.Second)
		for string(sim.Transmitted()) != "ping" {
			if time.Now().After(deadline) {
				cancel()
				t.Fatalf("%v: transmitted %q", m, sim.Transmitted())
			}
			time.Sleep(time.Millisecond)
		}
		sim.Inject([]byte("!"))
		for string(sim.Transmitted()) != "ping!" {
			if time.Now().After(deadline) {
				cancel()
				t.Fatalf("%v: transmitted %q", m, sim.Transmitted())
			}
			time.Sleep(time.Millisecond)
		}

		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("%v: Run err=%v", m, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("%v: Run did not stop", m)
		}
	}
}
