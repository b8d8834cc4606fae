// Package serial supervises one byte pump: it waits for "config/serial",
// opens the configured line, runs the pump and reports state and counters
// on the bus.
package serial

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"bytepump-go/bus"
	"bytepump-go/drivers/line"
	"bytepump-go/pump"
	"bytepump-go/pump/transform"
	"bytepump-go/types"
	"bytepump-go/x/mathx"
	"bytepump-go/x/timex"
)

var (
	topicConfig   = bus.T("config", "serial")
	topicState    = bus.T("serial", "state")
	topicStats    = bus.T("serial", "stats")
	topicStatsGet = bus.T("serial", "stats", "get")
)

const (
	defaultRXSize = 256
	defaultTXSize = 1024

	defaultStatsMS = 5000
	minStatsMS     = 100
	maxStatsMS     = 60000

	bannerTimeout = 500 * time.Millisecond
)

// OpenLine resolves a line config. Platform code and tests may replace it.
var OpenLine = line.Open

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start runs the serial service. It blocks until ctx is cancelled.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{conn: conn}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn *bus.Connection

	mu      sync.Mutex
	curRun  context.CancelFunc
	curDone chan struct{}
	cur     atomic.Pointer[link]
}

// link is one configured pump and its line.
type link struct {
	cfg  types.SerialConfig
	pump *pump.Pump
	// dropNoted limits drop logging to once per stats period.
	dropNoted atomic.Bool
}

func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfig)
	defer s.conn.Unsubscribe(cfgSub)
	getSub := s.conn.Subscribe(topicStatsGet)
	defer s.conn.Unsubscribe(getSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				s.stopCurrent()
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		case msg, ok := <-getSub.Channel():
			if !ok {
				continue
			}
			if l := s.cur.Load(); l != nil {
				s.conn.Reply(msg, l.stats(), false)
			} else {
				s.conn.Reply(msg, map[string]any{"error": "not_running"}, false)
			}
		}
	}
}

// stopCurrent cancels the running link and waits until it has released
// its line, so a new config can reopen the same device.
func (s *Service) stopCurrent() {
	s.mu.Lock()
	cancel, done := s.curRun, s.curDone
	s.curRun, s.curDone = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Service) reconfigure(parent context.Context, cfg types.SerialConfig) {
	s.stopCurrent()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	s.mu.Lock()
	s.curRun, s.curDone = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.runLink(ctx, cfg)
	}()
}

// -----------------------------------------------------------------------------
// Link lifetime
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg types.SerialConfig) {
	l, err := OpenLine(ctx, cfg.Line)
	if err != nil {
		s.publishState("error", "line_open_failed", err)
		return
	}
	up := false
	defer func() {
		closeLine(l)
		if up {
			s.publishState("stopped", "link_closed", nil)
		}
	}()

	lk := &link{cfg: cfg}
	p, pair, err := buildPump(cfg, l, lk.noteDrop)
	if err != nil {
		s.publishState("error", "pump_init_failed", err)
		return
	}
	defer pair.Release()
	lk.pump = p

	if cfg.Banner != "" {
		if _, err := line.WriteStringBlocking(ctx, l, cfg.Banner, bannerTimeout); err != nil {
			println("[serial] banner: " + err.Error())
		}
	}

	s.cur.Store(lk)
	defer s.cur.Store(nil)
	s.publishState("up", "link_established", nil)
	up = true
	println("[serial] " + lineName(cfg.Line) + " up, mode " + p.Mode().String())

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	interval := time.Duration(mathx.Clamp(mathx.OrDefault(cfg.StatsIntervalMS, defaultStatsMS), minStatsMS, maxStatsMS)) * time.Millisecond
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-runDone:
			s.publishStats(lk)
			return
		case <-tick.C:
			s.publishStats(lk)
			lk.dropNoted.Store(false)
		}
	}
}

// buildPump wires a pair, transform and pump from cfg. The caller owns the
// returned pair.
func buildPump(cfg types.SerialConfig, l line.Line, onDrop func(pump.Drop)) (*pump.Pump, *pump.Pair, error) {
	mode, err := pump.ParseMode(cfg.Mode)
	if err != nil {
		return nil, nil, err
	}
	xf, err := transform.Parse(cfg.Transform)
	if err != nil {
		return nil, nil, err
	}
	pair, err := pump.NewPair(mathx.OrDefault(cfg.RXSize, defaultRXSize), mathx.OrDefault(cfg.TXSize, defaultTXSize))
	if err != nil {
		return nil, nil, err
	}
	p, err := pump.New(pair, l, xf, pump.Config{Mode: mode, OnDrop: onDrop})
	if err != nil {
		pair.Release()
		return nil, nil, err
	}
	return p, pair, nil
}

func (l *link) noteDrop(d pump.Drop) {
	if !l.dropNoted.Swap(true) {
		println("[serial] dropping " + d.Side.String() + " bytes")
	}
}

func (l *link) stats() types.SerialStats {
	st := l.pump.Stats()
	out := types.SerialStats{
		Mode:      st.Mode.String(),
		RxBytes:   st.RxBytes,
		Delivered: st.Delivered,
		TxBytes:   st.TxBytes,
		RxDropped: st.RxDropped,
		TxDropped: st.TxDropped,
		LineErrs:  st.LineErrors,
		Inbound:   st.Inbound,
		Outbound:  st.Outbound,
		TxArmed:   st.TxArmed,
		TsMs:      timex.NowMs(),
	}
	if c, ok := l.pump.Transform().(transform.Counter); ok {
		out.Distinct = c.Table().Distinct()
	}
	return out
}

func closeLine(l line.Line) {
	if c, ok := l.(io.Closer); ok {
		_ = c.Close()
	}
}

func lineName(c types.LineConfig) string {
	if c.Device != "" {
		return c.Type + ":" + c.Device
	}
	if c.Type == "" {
		return line.DefaultType
	}
	return c.Type
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (types.SerialConfig, error) {
	var cfg types.SerialConfig
	switch v := p.(type) {
	case types.SerialConfig:
		return v, nil
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already decoded (eg. from the config service); re-marshal.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishStats(l *link) {
	s.conn.Publish(s.conn.NewMessage(topicStats, l.stats(), true))
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "stopped", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
		println("[serial] " + status + ": " + err.Error())
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}
