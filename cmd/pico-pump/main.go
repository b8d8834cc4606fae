//go:build rp2040 || rp2350

// Firmware that answers on uart0: every byte is echoed and each line ending
// prints the character frequency table.
package main

import (
	"context"
	"time"

	"bytepump-go/drivers/line"
	"bytepump-go/pump"
	"bytepump-go/pump/transform"
	"bytepump-go/x/conv"
)

const (
	baud   = 115200
	rxSize = 256
	txSize = 4096 // a full table is at most about 3 KiB
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[pico] boot")

	l, err := line.OpenUARTX("uart0", baud)
	if err != nil {
		println("[pico] uart0: " + err.Error())
		return
	}
	pair, err := pump.NewPair(rxSize, txSize)
	if err != nil {
		println("[pico] rings: " + err.Error())
		return
	}
	xf := &transform.TableReport{Title: transform.DefaultTitle, Digits: transform.DefaultDigits}
	p, err := pump.New(pair, l, xf, pump.Config{Mode: pump.ModeInterrupt})
	if err != nil {
		println("[pico] pump: " + err.Error())
		return
	}

	ctx := context.Background()
	if _, err := line.WriteStringBlocking(ctx, l, "\r\nbytepump\r\n", time.Second); err != nil {
		println("[pico] banner: " + err.Error())
	}
	go p.Run(ctx)

	tick := time.NewTicker(10 * time.Second)
	defer tick.Stop()
	buf := make([]byte, 0, 96)
	for range tick.C {
		st := p.Stats()
		buf = append(buf[:0], "[pico] rx="...)
		buf = conv.AppendUint(buf, st.RxBytes, 0)
		buf = append(buf, " tx="...)
		buf = conv.AppendUint(buf, st.TxBytes, 0)
		buf = append(buf, " dropped="...)
		buf = conv.AppendUint(buf, st.RxDropped+st.TxDropped, 0)
		buf = append(buf, " distinct="...)
		buf = conv.AppendUint(buf, uint64(xf.Table().Distinct()), 0)
		println(string(buf))
	}
}
