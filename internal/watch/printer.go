package watch

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	activeStatus  = color.New(color.FgCyan).SprintFunc()
	settledStatus = color.New(color.FgGreen).SprintFunc()
	failedStatus  = color.New(color.FgRed, color.Bold).SprintFunc()
	resourceText  = color.New(color.Faint).SprintFunc()
)

type tone int

const (
	toneActive tone = iota
	toneSettled
	toneFailed
)

// line is one rendered transition.
type line struct {
	resource string
	status   string
	message  string
	tone     tone
}

// printer writes transition lines, skipping repeats of the last line printed
// for the same resource.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	now  func() time.Time
	last map[string]line
}

func newPrinter(w io.Writer, now func() time.Time) *printer {
	if w == nil {
		w = io.Discard
	}
	if now == nil {
		now = time.Now
	}
	return &printer{w: w, now: now, last: make(map[string]line)}
}

func (p *printer) print(l line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.last[l.resource]; ok && prev == l {
		return
	}
	p.last[l.resource] = l

	var status string
	switch l.tone {
	case toneFailed:
		status = failedStatus(l.status)
	case toneSettled:
		status = settledStatus(l.status)
	default:
		status = activeStatus(l.status)
	}
	text := fmt.Sprintf("%s %s %s", p.now().Format("15:04:05"), resourceText(l.resource), status)
	if msg := strings.TrimSpace(l.message); msg != "" {
		text += "  " + msg
	}
	fmt.Fprintln(p.w, text)
}

func (p *printer) note(resource, message string) {
	p.print(line{resource: resource, status: "-", message: message})
}
