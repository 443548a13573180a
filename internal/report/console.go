// Package report renders the pipeline results: a colored console report and
// an HTML chart page.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/banshee-data/reading.report/internal/metrics"
)

// ANSI escape codes for the console renderer
const colorReset = "\033[0m"
const colorCyan = "\033[36m"
const colorMagenta = "\033[35m"
const colorBoldGreen = "\033[1;32m"
const colorBoldBlue = "\033[1;34m"
const colorBoldRed = "\033[1;31m"
const styleBold = "\033[1m"
const styleItalic = "\033[3m"

// Section titles.
const (
	TitleSummary = "Reading Report"
	TitleBest    = "Top-3 Best Ranked Books This Year"
	TitleLast    = "Last Book Read"
	TitleNew     = "New Book Additions"
)

// Renderer writes the console report. Colors are optional so output stays
// readable when piped to a file.
type Renderer struct {
	out   io.Writer
	color bool
}

// NewRenderer creates a Renderer. A nil writer defaults to stdout.
func NewRenderer(out io.Writer, color bool) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out, color: color}
}

// Render prints the full report.
func (r *Renderer) Render(res *metrics.Result) {
	r.printTable(r.summaryTable(res))
	fmt.Fprintln(r.out)
	r.printTable(r.bestTable(res.Best))
	fmt.Fprintln(r.out)
	r.printTable(r.lastTable(res.Last))
	fmt.Fprintln(r.out)
	r.renderNewEntries(res)
}

// boxTable is one drawn table. Column styles apply to body cells; an empty
// headers slice draws a borderless-header single block.
type boxTable struct {
	title       string
	headers     []string
	rows        [][]string
	headerStyle string
	colStyles   []string
}

func (r *Renderer) summaryTable(res *metrics.Result) boxTable {
	return boxTable{
		title:       TitleSummary,
		headers:     []string{"Metric", "Value"},
		headerStyle: styleBold,
		colStyles:   []string{colorCyan, colorMagenta},
		rows: [][]string{
			{"Total books read", strconv.Itoa(res.OverallTotal)},
			{"Books completed this year", strconv.Itoa(res.TotalCurrent)},
			{"Currently reading", strconv.Itoa(res.Ongoing)},
			{"Books dropped", strconv.Itoa(res.Dropped)},
			{"Avg pages/day (overall)", formatFloat(res.MeanPagesPerDay)},
			{"Avg days/book (overall)", formatFloat(res.MeanTimeReading)},
			{"Avg pages/day (this year)", formatFloat(res.MeanPagesPerDayCurrent)},
			{"Avg days/book (this year)", formatFloat(res.MeanTimeReadingCurrent)},
			{"Days since last book finished", formatDays(res.DaysSinceLast)},
		},
	}
}

func (r *Renderer) bestTable(best []metrics.RankedBook) boxTable {
	t := boxTable{
		title:       TitleBest,
		headers:     []string{"Book Name", "Author", "Score"},
		headerStyle: colorBoldGreen,
	}
	for _, b := range best {
		t.rows = append(t.rows, []string{b.Name, b.Author, formatFloat(b.Score)})
	}
	return t
}

func (r *Renderer) lastTable(last *metrics.LastCompleted) boxTable {
	t := boxTable{
		title:       TitleLast,
		headers:     []string{"Book Name", "Author", "Score", "End Date"},
		headerStyle: colorBoldBlue,
	}
	if last != nil {
		score := "n/a"
		if last.Score != nil {
			score = formatFloat(*last.Score)
		}
		t.rows = append(t.rows, []string{last.Name, last.Author, score, last.EndDate.Format("2006-01-02")})
	}
	return t
}

func (r *Renderer) renderNewEntries(res *metrics.Result) {
	if len(res.NewEntries) == 0 {
		r.printTable(boxTable{
			title:     TitleNew,
			rows:      [][]string{{res.FeedbackNew}},
			colStyles: []string{styleItalic},
		})
		fmt.Fprintln(r.out)
		return
	}

	t := boxTable{
		title:       TitleNew,
		headers:     []string{"Book Name", "Author"},
		headerStyle: colorBoldRed,
	}
	for _, e := range res.NewEntries {
		t.rows = append(t.rows, []string{e.Name, e.Author})
	}
	r.printTable(t)
	fmt.Fprintln(r.out, res.FeedbackNew)
	fmt.Fprintln(r.out)
}

func (r *Renderer) printTable(t boxTable) {
	cols := len(t.headers)
	for _, row := range t.rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}

	widths := make([]int, cols)
	for i, h := range t.headers {
		if w := utf8.RuneCountInString(h); w > widths[i] {
			widths[i] = w
		}
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := utf8.RuneCountInString(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	total := 1
	for _, w := range widths {
		total += w + 3
	}

	if t.title != "" {
		pad := (total - utf8.RuneCountInString(t.title)) / 2
		if pad < 0 {
			pad = 0
		}
		fmt.Fprintln(r.out, strings.Repeat(" ", pad)+t.title)
	}

	fmt.Fprintln(r.out, borderLine("┌", "┬", "┐", widths))

	if len(t.headers) > 0 {
		cells := make([]string, cols)
		for i := range cells {
			h := ""
			if i < len(t.headers) {
				h = t.headers[i]
			}
			cells[i] = r.paint(t.headerStyle, padCell(h, widths[i]))
		}
		fmt.Fprintln(r.out, "│ "+strings.Join(cells, " │ ")+" │")
		fmt.Fprintln(r.out, borderLine("├", "┼", "┤", widths))
	}

	for _, row := range t.rows {
		cells := make([]string, cols)
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			style := ""
			if i < len(t.colStyles) {
				style = t.colStyles[i]
			}
			cells[i] = r.paint(style, padCell(cell, widths[i]))
		}
		fmt.Fprintln(r.out, "│ "+strings.Join(cells, " │ ")+" │")
	}

	fmt.Fprintln(r.out, borderLine("└", "┴", "┘", widths))
}

// paint wraps s in an ANSI style when colors are enabled.
func (r *Renderer) paint(style, s string) string {
	if !r.color || style == "" {
		return s
	}
	return style + s + colorReset
}

func padCell(s string, width int) string {
	gap := width - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}

func borderLine(left, mid, right string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(parts, mid) + right
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDays(v *int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.Itoa(*v)
}
