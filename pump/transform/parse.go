package transform

import (
	"flag"
	"io"
	"sort"
	"sync"

	"bytepump-go/errcode"
	"bytepump-go/x/mathx"

	"github.com/google/shlex"
)

// Factory builds a transform from the arguments that followed its name.
type Factory func(args []string) (Transform, error)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{
		"echo":   func(args []string) (Transform, error) { return Echo{}, noArgs("echo", args) },
		"report": newReport,
		"table":  newTableReport,
	}
)

// Register adds or replaces a named transform.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// Names lists registered transforms, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse builds a transform from a shell-style spec such as
//
//	report --digits 4
//	table -title 'Counts\r\n' -echo=false
//
// An empty spec is "echo".
func Parse(spec string) (Transform, error) {
	words, err := shlex.Split(spec)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "transform.parse", err)
	}
	if len(words) == 0 {
		return Echo{}, nil
	}
	regMu.RLock()
	f, ok := registry[words[0]]
	regMu.RUnlock()
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "transform.parse", Msg: "unknown transform " + words[0]}
	}
	return f(words[1:])
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errcode.Wrap(errcode.InvalidParams, "transform."+fs.Name(), err)
	}
	return noArgs(fs.Name(), fs.Args())
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return &errcode.E{C: errcode.InvalidParams, Op: "transform." + name, Msg: "unexpected argument " + args[0]}
	}
	return nil
}

func newReport(args []string) (Transform, error) {
	fs := newFlags("report")
	digits := fs.Int("digits", DefaultDigits, "minimum count width")
	echo := fs.Bool("echo", true, "echo the received byte")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	return &Report{Digits: mathx.Clamp(*digits, 0, 10), NoEcho: !*echo}, nil
}

func newTableReport(args []string) (Transform, error) {
	fs := newFlags("table")
	title := fs.String("title", DefaultTitle, "table heading")
	digits := fs.Int("digits", DefaultDigits, "minimum count width")
	echo := fs.Bool("echo", true, "echo received bytes")
	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	return &TableReport{Title: unescape(*title), Digits: mathx.Clamp(*digits, 0, 10), NoEcho: !*echo}, nil
}

// unescape turns the two-character sequences \r, \n and \t into control
// bytes, so titles can be written in JSON or on a command line.
func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'r':
				out = append(out, '\r')
				i++
				continue
			case 'n':
				out = append(out, '\n')
				i++
				continue
			case 't':
				out = append(out, '\t')
				i++
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
