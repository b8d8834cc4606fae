// Command pump runs the byte pump on a host line (console, tty or sim).
//
//	pump -line tty -device /dev/ttyUSB0 -baud 115200 -mode deferred -transform "report --digits 3"
//	pump -selftest 4096
package main

import (
	"context"
	"flag"
	"hash/fnv"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bytepump-go/bus"
	"bytepump-go/drivers/line"
	"bytepump-go/pump"
	"bytepump-go/services/serial"
	"bytepump-go/types"
	"bytepump-go/x/conv"
)

func main() {
	var (
		lineType  = flag.String("line", "console", "line type: "+typesList())
		device    = flag.String("device", "", "device path or id (tty, uartx)")
		baud      = flag.Uint("baud", 115200, "baud rate (tty, uartx)")
		mode      = flag.String("mode", "deferred", "polled | interrupt | deferred")
		rx        = flag.Int("rx", 256, "inbound ring capacity (power of two)")
		tx        = flag.Int("tx", 1024, "outbound ring capacity (power of two)")
		xf        = flag.String("transform", "echo", "transform spec, eg. \"report --digits 3\" or \"table\"")
		statsMS   = flag.Int("stats", 0, "stats interval in ms (0: only on exit)")
		banner    = flag.String("banner", "", "written to the line before the pump starts")
		selftest  = flag.Int("selftest", 0, "push N bytes through a simulated line and verify, then exit")
		quietLogs = flag.Bool("q", false, "do not print state changes")
	)
	flag.Parse()

	if *selftest > 0 {
		if !integrity(*selftest, *mode) {
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(8)
	svcConn := b.NewConnection("serial")
	ui := b.NewConnection("ui")

	stateSub := ui.Subscribe(bus.T("serial", "state"))
	statsSub := ui.Subscribe(bus.T("serial", "stats"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		serial.Start(ctx, svcConn)
	}()

	interval := *statsMS
	if interval <= 0 {
		interval = int(time.Hour / time.Millisecond)
	}
	ui.Publish(ui.NewMessage(bus.T("config", "serial"), types.SerialConfig{
		Line:            types.LineConfig{Type: *lineType, Device: *device, Baud: uint32(*baud)},
		Mode:            *mode,
		RXSize:          *rx,
		TXSize:          *tx,
		Transform:       *xf,
		StatsIntervalMS: interval,
		Banner:          *banner,
	}, true))

	var last types.SerialStats
	for {
		select {
		case m := <-stateSub.Channel():
			if p, ok := m.Payload.(map[string]any); ok && !*quietLogs {
				s, _ := p["status"].(string)
				l, _ := p["level"].(string)
				e, _ := p["error"].(string)
				println("[pump] state", l, s, e)
				if l == "error" {
					stop()
				}
			}
		case m := <-statsSub.Channel():
			if st, ok := m.Payload.(types.SerialStats); ok {
				last = st
				if *statsMS > 0 {
					printStats(st)
				}
			}
		case <-done:
			// The link publishes its final stats before the service returns.
			last = drainStats(statsSub, last)
			printStats(last)
			return
		}
	}
}

func drainStats(sub *bus.Subscription, last types.SerialStats) types.SerialStats {
	for {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.SerialStats); ok {
				last = st
			}
		default:
			return last
		}
	}
}

func typesList() string {
	out := ""
	for i, t := range line.Types() {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}

func printStats(st types.SerialStats) {
	buf := make([]byte, 0, 160)
	buf = append(buf, "[pump] "...)
	buf = append(buf, st.Mode...)
	buf = append(buf, " rx="...)
	buf = conv.AppendUint(buf, st.RxBytes, 0)
	buf = append(buf, " delivered="...)
	buf = conv.AppendUint(buf, st.Delivered, 0)
	buf = append(buf, " tx="...)
	buf = conv.AppendUint(buf, st.TxBytes, 0)
	buf = append(buf, " rx_dropped="...)
	buf = conv.AppendUint(buf, st.RxDropped, 0)
	buf = append(buf, " tx_dropped="...)
	buf = conv.AppendUint(buf, st.TxDropped, 0)
	buf = append(buf, " line_errors="...)
	buf = conv.AppendUint(buf, st.LineErrs, 0)
	println(string(buf))
}

// integrity pushes total pattern bytes through an echo pump over a
// simulated line, comparing FNV-1a of what was injected with what was
// transmitted.
func integrity(total int, modeName string) bool {
	mode, err := pump.ParseMode(modeName)
	if err != nil {
		println("[selftest] " + err.Error())
		return false
	}
	pair, err := pump.NewPair(256, 256)
	if err != nil {
		println("[selftest] " + err.Error())
		return false
	}
	defer pair.Release()

	txHash := fnv.New32a()
	rxHash := fnv.New32a()
	sim := line.NewSim(line.SimConfig{RxDepth: 64, TxLatency: 1, Sink: rxHash})
	p, err := pump.New(pair, sim, nil, pump.Config{Mode: mode})
	if err != nil {
		println("[selftest] " + err.Error())
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = p.Run(ctx)
	}()

	start := time.Now()
	var g byte = 0x5a
	chunk := make([]byte, 0, 32)
	var pending []byte
	sent := 0
	for sent < total && ctx.Err() == nil {
		if len(pending) == 0 {
			chunk = chunk[:0]
			for len(chunk) < cap(chunk) && sent+len(chunk) < total {
				g = g*31 + 7
				chunk = append(chunk, g)
			}
			pending = chunk
		}
		// Only count what the simulated FIFO took; offer the rest again.
		n := sim.Inject(pending)
		txHash.Write(pending[:n])
		sent += n
		pending = pending[n:]
		if len(pending) > 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
	for p.Stats().TxBytes < uint64(sent) && ctx.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-runDone

	st := p.Stats()
	el := time.Since(start)
	ok := st.TxBytes == uint64(total) && txHash.Sum32() == rxHash.Sum32()
	verdict := "PASS"
	if !ok {
		verdict = "FAIL"
	}
	println("[selftest]", verdict, "bytes=", int(st.TxBytes), "ms=", int(el/time.Millisecond),
		"rx_dropped=", int(st.RxDropped), "tx_dropped=", int(st.TxDropped), "overruns=", int(sim.Overruns()))
	if !ok {
		print("[selftest] inbound ", string(pair.Inbound.Dump(nil)))
		print("[selftest] outbound ", string(pair.Outbound.Dump(nil)))
	}
	return ok
}
