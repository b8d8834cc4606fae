package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bytepump-go/bus"
	"bytepump-go/services/config"
	"bytepump-go/services/serial"
	"bytepump-go/x/strx"
)

func main() {
	println("boot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	device := strx.Coalesce(os.Getenv("PUMP_DEVICE"), "host")
	ctx = context.WithValue(ctx, config.CtxDeviceKey, device)

	b := bus.NewBus(8)
	mon := b.NewConnection("monitor").Subscribe(bus.T("serial", "state"))
	go func() {
		for m := range mon.Channel() {
			if p, ok := m.Payload.(map[string]any); ok {
				l, _ := p["level"].(string)
				s, _ := p["status"].(string)
				println("[main] serial", l, s)
			}
		}
	}()

	config.NewConfigService().Start(ctx, b.NewConnection("config"))
	serial.Start(ctx, b.NewConnection("serial"))
	println("[main] stopped")
}
