// Package banner prints the startup box listing the configured controllers.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/chr1sbest/refetch/internal/config"
)

// ANSI color codes
const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"
	cyan  = "\033[36m"
	blue  = "\033[34m"
)

// Box drawing characters
const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
	bullet      = "●"
	arrow       = "→"
)

// Banner handles pretty startup output
type Banner struct {
	writer io.Writer
	width  int
}

// New creates a new Banner that writes to stdout
func New() *Banner {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Banner with a custom writer (for testing)
func NewWithWriter(w io.Writer) *Banner {
	return &Banner{
		writer: w,
		width:  60,
	}
}

// Print displays the startup banner with config information
func (b *Banner) Print(cfg *config.Config, version string) {
	b.border(topLeft, topRight)
	b.row(bold+blue, "refetch "+version)
	b.row(dim, cfg.Name)
	b.separator()

	enabled := 0
	for _, c := range cfg.Controllers {
		if !c.IsEnabled() {
			continue
		}
		enabled++
		b.row(cyan, fmt.Sprintf("%s %s %s %s", bullet, c.Name, arrow, describe(c)))
	}
	b.row(dim, fmt.Sprintf("%d controller%s", enabled, pluralize(enabled)))
	b.border(bottomLeft, bottomRight)
	fmt.Fprintln(b.writer)
}

func describe(c config.ControllerConfig) string {
	parts := []string{}
	if d := c.GetInterval(); d > 0 {
		parts = append(parts, "every "+d.String())
	} else {
		parts = append(parts, "once")
	}
	if p := c.RetryPolicy(); p.MaxTries > 1 {
		parts = append(parts, fmt.Sprintf("%d tries", p.MaxTries))
	}
	if len(c.Dependencies) > 0 {
		parts = append(parts, fmt.Sprintf("%d dep%s", len(c.Dependencies), pluralize(len(c.Dependencies))))
	}
	return strings.Join(parts, ", ")
}

func (b *Banner) border(left, right string) {
	fmt.Fprintf(b.writer, "%s%s%s%s%s\n", dim, left, strings.Repeat(horizontal, b.width-2), right, reset)
}

func (b *Banner) separator() {
	fmt.Fprintf(b.writer, "%s%s%s%s%s\n", dim, vertical, strings.Repeat(horizontal, b.width-2), vertical, reset)
}

// row writes text inside the box, truncating it to fit.
func (b *Banner) row(color, text string) {
	max := b.width - 4
	if visualLen(text) > max {
		r := []rune(text)
		text = string(r[:max-3]) + "..."
	}
	padding := b.width - visualLen(text) - 4
	fmt.Fprintf(b.writer, "%s%s%s  %s%s%s%s%s\n",
		dim, vertical, reset, color, text, reset, strings.Repeat(" ", padding), dim+vertical+reset)
}

// visualLen returns the visual length of a string (excluding ANSI codes)
func visualLen(s string) int {
	return utf8.RuneCountInString(s)
}

func pluralize(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
