package printer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/slok/wdeploy/internal/model"
)

const (
	progressBarWidth        = 40
	defaultProgressInterval = 700 * time.Millisecond
)

// ProgressPrinter redraws a single progress line for a deploy run while it is
// running. The run state is polled from a state getter on every tick.
type ProgressPrinter struct {
	writer   io.Writer
	state    func() model.DeployRun
	interval time.Duration

	mu      sync.Mutex
	last    string
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewProgressPrinter returns a progress printer. A zero interval uses the
// default redraw interval.
func NewProgressPrinter(w io.Writer, interval time.Duration, state func() model.DeployRun) *ProgressPrinter {
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &ProgressPrinter{
		writer:   w,
		state:    state,
		interval: interval,
	}
}

// Start starts redrawing in background until Stop is called.
func (p *ProgressPrinter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				p.draw()
			}
		}
	}()
}

// Stop stops redrawing, draws the final state and ends the line.
func (p *ProgressPrinter) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()

	<-done
	p.draw()
	fmt.Fprintln(p.writer)
}

func (p *ProgressPrinter) draw() {
	line := RenderProgress(p.state())

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintf(p.writer, "\r\033[2K%s", line)
}

// RenderProgress renders the progress line of a run.
// Example: "  [================                        ]  40% 10/25 ok=8 failed=2".
func RenderProgress(run model.DeployRun) string {
	pct := run.ProgressPercentage()
	filled := pct * progressBarWidth / 100
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled)

	line := fmt.Sprintf("  [%s] %3d%% %d/%d ok=%d failed=%d",
		bar, pct, run.Progress(), run.WorkerCount(), run.SuccessCount, len(run.FailedItems))
	if run.Stopped {
		line += " (stopped)"
	}
	return line
}
