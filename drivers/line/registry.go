package line

import (
	"context"
	"sync"

	"bytepump-go/errcode"
	"bytepump-go/types"
	"bytepump-go/x/strx"
)

// DefaultType is used when a config leaves the line type empty.
const DefaultType = "sim"

// Factory opens a line from its configuration. Lines that hold OS or
// hardware resources also implement io.Closer.
type Factory func(ctx context.Context, cfg types.LineConfig) (Line, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register adds or replaces a line type (eg. platform files register
// "tty" or "uartx" from init).
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// Types lists the registered line types.
func Types() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// Open resolves cfg.Type in the registry and opens the line.
func Open(ctx context.Context, cfg types.LineConfig) (Line, error) {
	name := strx.Coalesce(cfg.Type, DefaultType)
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownLine, Op: "line.Open", Msg: name}
	}
	return f(ctx, cfg)
}

func init() {
	Register("sim", func(_ context.Context, cfg types.LineConfig) (Line, error) {
		return NewSim(SimConfig{RxDepth: cfg.RxDepth}), nil
	})
}
