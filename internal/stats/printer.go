package stats

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dray-io/brokerstats/internal/logging"
)

// Separator delimits fields in a report line.
const Separator = "|"

// Printer receives report lines. Print is called from scheduler workers
// and should not block for long.
type Printer interface {
	Print(reporter string, inc Snapshot, interceptor, brief string)
}

// FormatSnapshot renders "kind|object|invokes|v1|v2|...".
func FormatSnapshot(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString(s.Kind)
	sb.WriteString(Separator)
	sb.WriteString(s.Object)
	sb.WriteString(Separator)
	sb.WriteString(strconv.FormatInt(s.InvokeTimes, 10))
	for _, v := range s.Values {
		sb.WriteString(Separator)
		sb.WriteString(strconv.FormatInt(v, 10))
	}
	return sb.String()
}

// FormatLine renders a full report line: the reporter name, a space, the
// snapshot fields, then the interceptor and sample brief suffixes.
func FormatLine(reporter string, inc Snapshot, interceptor, brief string) string {
	return reporter + " " + FormatSnapshot(inc) + interceptor + brief
}

// LinePrinter writes one formatted line per report to w.
type LinePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLinePrinter(w io.Writer) *LinePrinter {
	return &LinePrinter{w: w}
}

func (p *LinePrinter) Print(reporter string, inc Snapshot, interceptor, brief string) {
	line := FormatLine(reporter, inc, interceptor, brief)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, line)
}

// LogPrinter emits each report as a structured log entry.
type LogPrinter struct {
	logger *logging.Logger
}

func NewLogPrinter(logger *logging.Logger) *LogPrinter {
	return &LogPrinter{logger: logger}
}

func (p *LogPrinter) Print(reporter string, inc Snapshot, interceptor, brief string) {
	fields := map[string]any{
		"reporter": reporter,
		"kind":     inc.Kind,
		"object":   inc.Object,
		"invokes":  inc.InvokeTimes,
		"line":     FormatLine(reporter, inc, interceptor, brief),
	}
	for i, name := range inc.Names {
		if i < len(inc.Values) {
			fields[name] = inc.Values[i]
		}
	}
	p.logger.Infof("stats increment", fields)
}
