//go:build rp2040 || rp2350

package line

import (
	"context"

	"bytepump-go/errcode"
	"bytepump-go/types"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// OpenUARTX configures uart0 or uart1 and returns it as a Line. The uartx
// ISR fills its own receive ring; RxReady is that ring being non-empty and
// Readable forwards its wake-up channel.
func OpenUARTX(id string, baud uint32) (*UART, error) {
	var hw *uartx.UART
	switch id {
	case "", "uart0":
		hw = uartx.UART0
	case "uart1":
		hw = uartx.UART1
	default:
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "uartx.open", Msg: "unknown uart " + id}
	}
	// Pins default inside uartx when zero.
	if err := hw.Configure(uartx.UARTConfig{BaudRate: baud}); err != nil {
		return nil, errcode.Wrap(errcode.LineError, "uartx.configure", err)
	}
	return FromUART(hw), nil
}

func init() {
	Register("uartx", func(_ context.Context, cfg types.LineConfig) (Line, error) {
		return OpenUARTX(cfg.Device, cfg.Baud)
	})
}
