// Package transform holds the application step of the byte pump: a function
// from one received byte to zero or more bytes to send back.
package transform

import (
	"bytepump-go/x/conv"
)

// Transform maps one received byte to output. Apply appends to out and
// returns the extended slice; it must not retain out.
type Transform interface {
	Apply(b byte, out []byte) []byte
}

// Func adapts a plain function to Transform.
type Func func(b byte, out []byte) []byte

func (f Func) Apply(b byte, out []byte) []byte { return f(b, out) }

// Counter is implemented by transforms that keep a frequency table.
type Counter interface {
	Table() *Table
}

// Echo sends every byte straight back.
type Echo struct{}

func (Echo) Apply(b byte, out []byte) []byte { return append(out, b) }

// DefaultDigits is the minimum width of a printed count.
const DefaultDigits = 3

// Report echoes each byte and follows it with its running count:
//
//	a\r\na - 001\r\n
type Report struct {
	Digits int
	NoEcho bool

	table Table
}

func (r *Report) Table() *Table { return &r.table }

func (r *Report) Apply(b byte, out []byte) []byte {
	n := r.table.Add(b)
	if !r.NoEcho {
		out = append(out, b, '\r', '\n')
	}
	out = appendSymbol(out, b)
	out = append(out, " - "...)
	out = conv.AppendUint(out, uint64(n), r.Digits)
	return append(out, '\r', '\n')
}

// DefaultTitle heads a full table report.
const DefaultTitle = "\r\nCharacters\r\n"

// TableReport echoes bytes and, on CR or LF, emits the whole frequency table:
// the title, then one "<c> - <count>" line per byte value seen, in byte order.
// Line terminators themselves are not counted.
type TableReport struct {
	Title  string
	Digits int
	NoEcho bool

	table Table
}

func (r *TableReport) Table() *Table { return &r.table }

func (r *TableReport) Apply(b byte, out []byte) []byte {
	if b != '\r' && b != '\n' {
		r.table.Add(b)
		if !r.NoEcho {
			out = append(out, b)
		}
		return out
	}
	out = append(out, r.Title...)
	for i := 0; i < 256; i++ {
		n := r.table.Count(byte(i))
		if n == 0 {
			continue
		}
		out = appendSymbol(out, byte(i))
		out = append(out, " - "...)
		out = conv.AppendUint(out, uint64(n), r.Digits)
		out = append(out, '\r', '\n')
	}
	return out
}

// appendSymbol prints b as itself when printable ASCII, else as 0xNN.
func appendSymbol(out []byte, b byte) []byte {
	if b >= 0x20 && b < 0x7f {
		return append(out, b)
	}
	out = append(out, '0', 'x')
	return conv.AppendHexByte(out, b)
}
