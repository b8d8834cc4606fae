package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// cfgHost runs the pump against the process console.
const cfgHost = `{
  "serial": {
    "line": {"type": "console"},
    "mode": "deferred",
    "rx_size": 256,
    "tx_size": 1024,
    "transform": "report --digits 3",
    "stats_interval_ms": 5000,
    "banner": "bytepump ready\r\n"
  }
}`

// cfgPico drives uart0 from its interrupt and prints the full table on
// each line ending.
const cfgPico = `{
  "serial": {
    "line": {"type": "uartx", "device": "uart0", "baud": 115200},
    "mode": "interrupt",
    "rx_size": 256,
    "tx_size": 4096,
    "transform": "table",
    "stats_interval_ms": 10000,
    "banner": "\r\nbytepump\r\n"
  }
}`

// cfgSim runs against an in-memory line.
const cfgSim = `{
  "serial": {
    "line": {"type": "sim", "rx_depth": 32},
    "mode": "polled",
    "rx_size": 64,
    "tx_size": 256,
    "transform": "echo"
  }
}`

var embeddedConfigs = map[string][]byte{
	"host": []byte(cfgHost),
	"pico": []byte(cfgPico),
	"sim":  []byte(cfgSim),
}
