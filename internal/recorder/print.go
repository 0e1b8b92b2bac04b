package recorder

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// PrintRecorder writes a human readable transcript of every exchange,
// the moral equivalent of a server access log for the crawl.
type PrintRecorder struct {
	mu  sync.Mutex
	out io.Writer
	// Bodies additionally dumps the response body, for debugging.
	Bodies bool
}

func NewPrint(out io.Writer) *PrintRecorder {
	return &PrintRecorder{out: out}
}

// Record implements Recorder.
func (p *PrintRecorder) Record(_ context.Context, t Transcript) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s %s\n", t.Method, t.URL.URL)
	if t.StatusCode == 0 {
		fmt.Fprintf(p.out, "  error: %s (%s)\n", t.Err, t.Duration)
		return nil
	}
	fmt.Fprintf(p.out, "  %s [%d bytes, %s]\n", t.StatusLine, len(t.Body), t.Duration)
	if p.Bodies {
		if _, err := p.out.Write(t.Body); err != nil {
			return err
		}
		fmt.Fprintln(p.out)
	}
	return nil
}

// Close implements Recorder.
func (p *PrintRecorder) Close(context.Context) error { return nil }
