// Package report renders the human-readable output of the commands: banners, key/value lines and
// tables, styled with lipgloss.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	keyStyle     = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)

	// Level styles.
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// Level of a status line.
type Level int

const (
	Info Level = iota
	OK
	Warning
	Error
)

func (l Level) style() lipgloss.Style {
	switch l {
	case OK:
		return okStyle
	case Warning:
		return warnStyle
	case Error:
		return errorStyle
	}
	return lipgloss.NewStyle()
}

// Printer writes reports to w.
type Printer struct {
	w io.Writer
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

// Title prints a banner: the text between two rules of "=".
func (p *Printer) Title(text string) {
	rule := strings.Repeat("=", max(40, lipgloss.Width(text)))
	p.println("")
	p.println(rule)
	p.println(titleStyle.Render(text))
	p.println(rule)
}

// Section prints a section heading.
func (p *Printer) Section(text string) {
	p.println("")
	p.println(sectionStyle.Render(text))
}

// KV prints "key: value", with value formatted by fmt.Sprint.
func (p *Printer) KV(key string, value any) {
	p.println(keyStyle.Render(key+":") + " " + fmt.Sprint(value))
}

// Line prints a formatted line.
func (p *Printer) Line(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

// Status prints a line styled by its level.
func (p *Printer) Status(level Level, format string, args ...any) {
	p.println(level.style().Render(fmt.Sprintf(format, args...)))
}

// Table prints the rows under the headers. Cells of a column named "status" are coloured:
// "OK" in green, anything else in yellow.
func (p *Printer) Table(headers []string, rows [][]string) {
	statusCol := -1
	for i, h := range headers {
		if strings.EqualFold(h, "status") {
			statusCol = i
		}
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusCol && row >= 0 && row < len(rows) && col < len(rows[row]) {
				level := Warning
				if rows[row][col] == "OK" {
					level = OK
				}
				return cellStyle.Inherit(level.style())
			}
			return cellStyle
		})
	p.println(t.String())
}

// List formats a list of strings the way the reports show tokens: ['pa', '##ranã'].
func List(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + s + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Ints formats a list of ids: [123, 456].
func Ints(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
