// Package ring provides a bounded single-producer, single-consumer byte ring.
//
// Capacity is a power of two so a slot is addressed with idx&mask. The
// producer and consumer counters are uint32 values that only ever increase
// (wrapping at 2^32); they are never reduced modulo capacity. The occupied
// count is wr-rd in wrapping unsigned arithmetic, which is exact for any
// capacity up to MaxCapacity, so head==tail never has to be disambiguated.
//
// One goroutine may call the producer methods (Push) and one goroutine the
// consumer methods (Pop). Len, Cap, IsEmpty, IsFull, Free and Indices may be
// called from either side.
package ring

import (
	"sync/atomic"

	"bytepump-go/errcode"
	"bytepump-go/x/conv"

	"golang.org/x/sys/cpu"
)

// MaxCapacity is the largest accepted capacity. It keeps the occupancy well
// inside the uint32 counter difference and fits a 32-bit int.
const MaxCapacity = 1 << 30

// Ring is a single-producer, single-consumer byte ring.
type Ring struct {
	wr atomic.Uint32 // producer index (monotonic)
	_  cpu.CacheLinePad
	rd atomic.Uint32 // consumer index (monotonic)
	_  cpu.CacheLinePad

	buf      []byte
	mask     uint32
	capacity uint32
	released atomic.Bool

	readable chan struct{} // empty -> non-empty edge
	writable chan struct{} // full -> non-full edge
}

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// New allocates a ring of the given capacity. Capacity must be a power of
// two in [1, MaxCapacity]; anything else is refused with
// errcode.InvalidCapacity rather than rounded.
func New(capacity int) (*Ring, error) {
	if !IsPow2(capacity) || capacity > MaxCapacity {
		return nil, &errcode.E{C: errcode.InvalidCapacity, Op: "ring.New", Msg: "capacity must be a power of two"}
	}
	return &Ring{
		buf:      make([]byte, capacity),
		mask:     uint32(capacity - 1),
		capacity: uint32(capacity),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}, nil
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return int(r.capacity) }

// Len returns the number of bytes currently queued, in [0, Cap()]. From a
// goroutine that is neither producer nor consumer it is a momentary estimate.
func (r *Ring) Len() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	used := wr - rd
	if used > r.capacity {
		// rd moved past the wr we loaded; the ring was empty in between.
		return 0
	}
	return int(used)
}

// Free returns the space left for the producer.
func (r *Ring) Free() int { return r.Cap() - r.Len() }

func (r *Ring) IsEmpty() bool { return r.Len() == 0 }
func (r *Ring) IsFull() bool  { return r.Len() == r.Cap() }

// Push appends b. It never overwrites and never blocks: a full ring returns
// errcode.Full and leaves state untouched.
func (r *Ring) Push(b byte) error {
	if r.released.Load() {
		return errcode.Released
	}
	wr := r.wr.Load()
	rd := r.rd.Load() // acquire consumer progress
	used := wr - rd
	if used == r.capacity {
		return errcode.Full
	}
	r.buf[wr&r.mask] = b // 1) write slot
	r.wr.Store(wr + 1)   // 2) publish
	// The consumer may have drained to empty after rd was loaded; if it has
	// caught up with this byte it may already be waiting on Readable.
	if used == 0 || r.rd.Load() == wr {
		notify(r.readable)
	}
	return nil
}

// Pop removes the oldest byte. An empty ring returns errcode.Empty.
func (r *Ring) Pop() (byte, error) {
	if r.released.Load() {
		return 0, errcode.Released
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire producer publication
	if wr == rd {
		return 0, errcode.Empty
	}
	b := r.buf[rd&r.mask] // 1) read slot
	r.rd.Store(rd + 1)    // 2) publish consumption
	if wr-rd == r.capacity || r.wr.Load() == rd+r.capacity {
		notify(r.writable)
	}
	return b, nil
}

// Indices returns the raw producer and consumer counters.
func (r *Ring) Indices() (rd, wr uint32) {
	return r.rd.Load(), r.wr.Load()
}

// Dump appends a slot-by-slot view of the storage to dst, one line per slot,
// marking the consumer (r) and producer (w) positions. It is for debugging
// and must be called from the consumer or with both sides quiet.
func (r *Ring) Dump(dst []byte) []byte {
	rd, wr := r.Indices()
	dst = append(dst, "rd="...)
	dst = conv.AppendUint(dst, uint64(rd), 0)
	dst = append(dst, " wr="...)
	dst = conv.AppendUint(dst, uint64(wr), 0)
	dst = append(dst, " len="...)
	dst = conv.AppendUint(dst, uint64(r.Len()), 0)
	dst = append(dst, '\n')
	buf := r.buf
	for i := range buf {
		dst = append(dst, '[')
		dst = conv.AppendUint(dst, uint64(i), 0)
		dst = append(dst, "] 0x"...)
		dst = conv.AppendHexByte(dst, buf[i])
		if uint32(i) == rd&r.mask {
			dst = append(dst, " r"...)
		}
		if uint32(i) == wr&r.mask {
			dst = append(dst, " w"...)
		}
		dst = append(dst, '\n')
	}
	return dst
}

// Readable fires (coalesced) when the ring goes from empty to non-empty.
// Consumers must re-check Len after waking.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable fires (coalesced) when the ring goes from full to non-full.
func (r *Ring) Writable() <-chan struct{} { return r.writable }

// Release drops the storage. Neither side may be inside Push or Pop when it
// is called; afterwards both return errcode.Released.
func (r *Ring) Release() {
	if r.released.Swap(true) {
		return
	}
	r.buf = nil
}

// Released reports whether Release has been called.
func (r *Ring) Released() bool { return r.released.Load() }

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
