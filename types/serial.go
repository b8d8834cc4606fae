package types

// ------------------------
// Serial
// ------------------------

// LineConfig selects and opens a byte line.
type LineConfig struct {
	Type    string `json:"type"`               // "sim" | "console" | "tty" | "uartx"
	Device  string `json:"device,omitempty"`   // eg. "/dev/ttyUSB0", "uart0"
	Baud    uint32 `json:"baud,omitempty"`     // 0 keeps the line's default
	RxDepth int    `json:"rx_depth,omitempty"` // sim only: hardware RX FIFO depth
}

// SerialConfig is the payload on "config/serial".
type SerialConfig struct {
	Line LineConfig `json:"line"`

	Mode string `json:"mode,omitempty"` // "polled" | "interrupt" | "deferred"

	// Power-of-two ring capacities. Zero selects the default.
	RXSize int `json:"rx_size,omitempty"`
	TXSize int `json:"tx_size,omitempty"`

	// Transform spec, eg. "echo", "report --digits 3", "table".
	Transform string `json:"transform,omitempty"`

	StatsIntervalMS int    `json:"stats_interval_ms,omitempty"`
	Banner          string `json:"banner,omitempty"`
}

// SerialStats is published retained on "serial/stats".
type SerialStats struct {
	Mode      string `json:"mode"`
	RxBytes   uint64 `json:"rx_bytes"`
	Delivered uint64 `json:"delivered"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
	LineErrs  uint64 `json:"line_errors"`
	Inbound   int    `json:"inbound_len"`
	Outbound  int    `json:"outbound_len"`
	TxArmed   bool   `json:"tx_armed"`
	Distinct  int    `json:"distinct,omitempty"`
	TsMs      int64  `json:"ts_ms"`
}
