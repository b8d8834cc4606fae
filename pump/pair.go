package pump

import (
	"bytepump-go/x/ring"
)

// Pair is the channel pair of one endpoint: bytes received from the line
// wait in Inbound, bytes waiting to be sent wait in Outbound. The two rings
// know nothing about each other.
type Pair struct {
	Inbound  *ring.Ring
	Outbound *ring.Ring
}

// NewPair allocates both rings. Capacities follow ring.New's rules.
func NewPair(rxCap, txCap int) (*Pair, error) {
	in, err := ring.New(rxCap)
	if err != nil {
		return nil, err
	}
	out, err := ring.New(txCap)
	if err != nil {
		in.Release()
		return nil, err
	}
	return &Pair{Inbound: in, Outbound: out}, nil
}

// Release frees both rings. No pump may be running on the pair.
func (p *Pair) Release() {
	p.Inbound.Release()
	p.Outbound.Release()
}
