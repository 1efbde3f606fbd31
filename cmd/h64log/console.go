package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/h64log/internal/logsink"
	"github.com/srg/h64log/internal/session"
	"golang.org/x/term"
)

const scanBanner = "Scanning... (wear the strap so H64 is awake)"

// isTerminal reports whether w is a terminal. Colors and the scan countdown
// are only shown on terminals.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// console prints session events, one line each:
//
//	2025-03-14T09:26:53  BPM=72  Battery=85%
type console struct {
	w        io.Writer
	progress *ProgressPrinter

	info *color.Color
	good *color.Color
	bad  *color.Color
}

func newConsole(w io.Writer, colors bool, progress *ProgressPrinter) *console {
	c := &console{
		w:        w,
		progress: progress,
		info:     color.New(color.FgCyan),
		good:     color.New(color.FgGreen),
		bad:      color.New(color.FgRed),
	}
	for _, col := range []*color.Color{c.info, c.good, c.bad} {
		if colors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// run prints events until the channel is closed.
func (c *console) run(events <-chan session.Event) {
	for e := range events {
		c.print(e)
	}
}

func (c *console) print(e session.Event) {
	switch e.Kind {
	case session.EventSample:
		ts := e.Sample.Timestamp.Local().Format(logsink.TimestampLayout)
		fmt.Fprintf(c.w, "%s  BPM=%d  Battery=%s%%\n", ts, e.Sample.BPM, e.Battery)
	case session.EventBattery:
		fmt.Fprintln(c.w, c.info.Sprintf("Battery: %d%%", e.Battery.Percent))
	case session.EventStatus:
		c.status(e.Status)
	}
}

func (c *console) status(msg string) {
	switch {
	case msg == session.StatusScanning:
		// The scan banner and countdown already say so.
		return
	case strings.HasPrefix(msg, "scan "):
		c.progress.Stop()
	}

	col := c.info
	switch {
	case strings.HasPrefix(msg, "connected:"):
		col = c.good
	case isFailureStatus(msg):
		col = c.bad
	}
	fmt.Fprintln(c.w, col.Sprint(msg))
}

func isFailureStatus(msg string) bool {
	switch msg {
	case session.StatusConnectionLost, session.StatusAlreadyConnected, session.StatusLoggingStopped:
		return true
	}
	for _, marker := range []string{"error", "failed", "no address"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
