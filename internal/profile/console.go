package profile

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// ConsoleFormatter renders Events as human-readable, latency-colorized
// lines, the same shape as the teacher's annotations.OutputFormatter
// (green/yellow/red by latency bucket).
type ConsoleFormatter struct {
	writer   io.Writer
	useColor bool
}

// NewConsoleFormatter returns a formatter writing to w (os.Stdout if nil).
func NewConsoleFormatter(w io.Writer) *ConsoleFormatter {
	if w == nil {
		w = os.Stdout
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = f.Fd() == uintptr(1) || f.Fd() == uintptr(2)
	}
	return &ConsoleFormatter{writer: w, useColor: useColor}
}

// Handle implements Handler: format and print event.
func (f *ConsoleFormatter) Handle(event Event) {
	fmt.Fprintln(f.writer, f.Format(event))
}

// Format renders one event as a single colorized line.
func (f *ConsoleFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	switch event.Name {
	case CPUEvalComplete:
		return fmt.Sprintf("%s eval complete: %v", latency, event.Data)
	case TimelyFlushComplete:
		return fmt.Sprintf("%s %s flush to epoch %v acknowledged by all workers",
			latency, f.colorize("flush", color.FgGreen), event.Data["to"])
	case TimelyQuery:
		return fmt.Sprintf("%s query on %v merged %v values", latency, event.Data["arr"], event.Data["count"])
	case ChangeEmit:
		return fmt.Sprintf("%s relation %v changed: %v", latency, event.Data["rel"], event.Data["delta"])
	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

func (f *ConsoleFormatter) formatLatency(d time.Duration) string {
	us := d.Microseconds()
	s := fmt.Sprintf("[%dµs]", us)
	if !f.useColor {
		return s
	}
	switch {
	case us < 1000:
		return color.GreenString(s)
	case us < 50000:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func (f *ConsoleFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}
