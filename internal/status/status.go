// Package status repaints one terminal line per controller in place.
package status

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ANSI escape codes
const (
	clearLine  = "\033[2K"
	moveUp     = "\033[A"
	moveToCol0 = "\r"
	reset      = "\033[0m"
	bold       = "\033[1m"
	dim        = "\033[2m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	cyan       = "\033[36m"
	red        = "\033[31m"
)

// Tries bar characters
const (
	barFilled = "█"
	barEmpty  = "░"
	barWidth  = 10
)

// maxDetail bounds the data/error excerpt shown on a line.
const maxDetail = 60

// Entry is the state of one controller as shown on its line.
type Entry struct {
	Name             string
	Phase            string
	Tries            int
	MaxTries         int
	IsInRetryTimeout bool
	Error            string
	Data             string
}

// Writer handles in-place status updates to the terminal
type Writer struct {
	w            io.Writer
	mu           sync.Mutex
	linesWritten int
}

// New creates a status writer that outputs to stdout
func New() *Writer {
	return &Writer{w: os.Stdout}
}

// NewWithWriter creates a status writer with a custom output
func NewWithWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Clear erases any previously written status lines
func (s *Writer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Writer) clearLocked() {
	for i := 0; i < s.linesWritten; i++ {
		fmt.Fprint(s.w, moveUp+clearLine)
	}
	fmt.Fprint(s.w, moveToCol0)
	s.linesWritten = 0
}

// Update clears previous status and writes new status
func (s *Writer) Update(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	for _, line := range lines {
		fmt.Fprintln(s.w, line)
	}
	s.linesWritten = len(lines)
}

// Render repaints one line per entry, ordered by name.
func (s *Writer) Render(entries []Entry) {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	width := 0
	for _, e := range sorted {
		if len(e.Name) > width {
			width = len(e.Name)
		}
	}

	lines := make([]string, 0, len(sorted))
	for _, e := range sorted {
		lines = append(lines, Line(e, width))
	}
	s.Update(lines...)
}

// Persist prints a line that survives the next repaint, e.g. a reload error.
func (s *Writer) Persist(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	fmt.Fprintln(s.w, line)
}

// Line formats a single entry, padding the name to width.
func Line(e Entry, width int) string {
	icon, color := phaseStyle(e)
	name := fmt.Sprintf("%-*s", width, e.Name)
	line := fmt.Sprintf("%s%s%s %s%s%s %s %s%d/%d%s",
		color, icon, reset, bold, name, reset,
		triesBar(e.Tries, e.MaxTries), dim, e.Tries, e.MaxTries, reset)

	switch {
	case e.Phase == "loading":
		line += fmt.Sprintf(" %sloading%s", cyan, reset)
	case e.IsInRetryTimeout:
		line += fmt.Sprintf(" %sretrying: %s%s", yellow, excerpt(e.Error), reset)
	case e.Error != "":
		line += fmt.Sprintf(" %s%s%s", red, excerpt(e.Error), reset)
	case e.Data != "":
		line += fmt.Sprintf(" %s%s%s", dim, excerpt(e.Data), reset)
	}
	return line
}

func phaseStyle(e Entry) (string, string) {
	switch {
	case e.Phase == "loading":
		return "⟳", cyan
	case e.Phase == "done":
		return "✓", green
	case e.IsInRetryTimeout:
		return "⏳", yellow
	case e.Phase == "errored":
		return "✗", red
	default:
		return "·", dim
	}
}

// triesBar fills one cell per try used.
func triesBar(tries, max int) string {
	if max <= 0 {
		return strings.Repeat(barEmpty, barWidth)
	}

	filled := (tries * barWidth) / max
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}

	return green + strings.Repeat(barFilled, filled) + reset +
		dim + strings.Repeat(barEmpty, barWidth-filled) + reset
}

// excerpt keeps the first line of s, truncated to maxDetail runes.
func excerpt(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	r := []rune(s)
	if len(r) > maxDetail {
		return string(r[:maxDetail-1]) + "…"
	}
	return s
}
