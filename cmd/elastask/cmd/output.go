package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// outputMode represents how command results are printed.
type outputMode int

const (
	// modePretty draws bordered, colored tables.
	modePretty outputMode = iota
	// modePlain prints aligned columns without decoration.
	modePlain
	// modeJSON prints one indented JSON document.
	modeJSON
)

// detectOutput picks the mode for w from the --output flag, CI variables
// and whether w is a terminal.
func detectOutput(w io.Writer) outputMode {
	switch outputFormat {
	case "json":
		return modeJSON
	case "plain":
		return modePlain
	}
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return modePlain
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return modePretty
	}
	return modePlain
}

// Color palette
var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#9CA3AF") // Muted gray
	colorBorder  = lipgloss.Color("#374151") // Dark gray
)

// printer renders command results to one writer.
type printer struct {
	w    io.Writer
	mode outputMode
	r    *lipgloss.Renderer
}

func newPrinter(w io.Writer) *printer {
	return newPrinterMode(w, detectOutput(w))
}

func newPrinterMode(w io.Writer, mode outputMode) *printer {
	r := lipgloss.NewRenderer(w)
	if noColor || mode != modePretty {
		r.SetColorProfile(termenv.Ascii)
	}
	return &printer{w: w, mode: mode, r: r}
}

// JSON reports whether results should be encoded as JSON.
func (p *printer) JSON() bool {
	return p.mode == modeJSON
}

// Encode writes v as indented JSON.
func (p *printer) Encode(v interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Title prints a section heading.
func (p *printer) Title(s string) {
	style := p.r.NewStyle().Bold(true).Foreground(colorPrimary)
	fmt.Fprintln(p.w, style.Render(s))
}

// Line prints a plain line.
func (p *printer) Line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

// Muted prints a de-emphasized line.
func (p *printer) Muted(format string, args ...interface{}) {
	fmt.Fprintln(p.w, p.r.NewStyle().Foreground(colorMuted).Render(fmt.Sprintf(format, args...)))
}

// Success, Warn and Error color a short status word.
func (p *printer) Success(s string) string {
	return p.r.NewStyle().Foreground(colorSuccess).Render(s)
}

func (p *printer) Warn(s string) string {
	return p.r.NewStyle().Foreground(colorWarning).Render(s)
}

func (p *printer) Error(s string) string {
	return p.r.NewStyle().Foreground(colorError).Render(s)
}

// Table prints rows under headers. Pretty mode draws a rounded border;
// plain mode separates columns with spaces only.
func (p *printer) Table(headers []string, rows [][]string) {
	t := table.New().Headers(headers...).Rows(rows...)

	headerStyle := p.r.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := p.r.NewStyle().Padding(0, 1)
	if p.mode == modePretty {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(p.r.NewStyle().Foreground(colorBorder))
		headerStyle = headerStyle.Foreground(colorPrimary)
	} else {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).
			BorderBottom(false).
			BorderLeft(false).
			BorderRight(false).
			BorderHeader(false).
			BorderColumn(false)
		headerStyle = p.r.NewStyle().PaddingRight(2)
		cellStyle = p.r.NewStyle().PaddingRight(2)
	}
	t = t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})

	for _, line := range strings.Split(t.Render(), "\n") {
		fmt.Fprintln(p.w, strings.TrimRight(line, " "))
	}
}
