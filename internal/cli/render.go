package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/nextos/nextiso/internal/progress"
)

// Prints build events for a person at a terminal.
//
// Percent events drive one progress bar per stage. Log lines are printed
// above the bar. Plain mode prints every event as a line instead, for
// output that is not a terminal.
type renderer struct {
	mu    sync.Mutex
	out   io.Writer
	plain bool // No progress bars.
	quiet bool // Drop log events.
	bar   *progressbar.ProgressBar
	stage string // Stage the current bar belongs to.
}

func newRenderer(out io.Writer, plain, quiet bool) *renderer {
	return &renderer{out: out, plain: plain, quiet: quiet}
}

func (r *renderer) Send(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case progress.KindPercent:
		if r.plain {
			fmt.Fprintln(r.out, e.String())
			return
		}
		if r.bar == nil || r.stage != e.Stage {
			r.finishBar()
			r.bar = progressbar.NewOptions(100,
				progressbar.OptionSetWriter(r.out),
				progressbar.OptionSetDescription(e.Stage),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionSetPredictTime(false),
				progressbar.OptionClearOnFinish(),
			)
			r.stage = e.Stage
		}
		r.bar.Set(int(e.Percent))

	case progress.KindLog:
		if r.quiet {
			return
		}
		if r.bar != nil {
			r.bar.Clear()
		}
		fmt.Fprintln(r.out, e.String())

	default:
		r.finishBar()
		fmt.Fprintln(r.out, e.String())
	}
}

func (r *renderer) finishBar() {
	if r.bar == nil {
		return
	}
	r.bar.Finish()
	r.bar = nil
	r.stage = ""
}

// Writes each event as one JSON line, for programs driving the CLI.
type jsonSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONSink(out io.Writer) *jsonSink {
	return &jsonSink{enc: json.NewEncoder(out)}
}

func (s *jsonSink) Send(e progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enc.Encode(e)
}
