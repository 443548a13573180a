package report

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/reading.report/internal/books"
	domainerrors "github.com/banshee-data/reading.report/internal/errors"
	"github.com/banshee-data/reading.report/internal/fsutil"
	"github.com/banshee-data/reading.report/internal/metrics"
)

// ChartFileName is the HTML page written next to the snapshots.
const ChartFileName = "reading_report.html"

// WriteCharts renders the chart page for the resolved year and returns the
// path written. Books without the plotted fields are skipped, not zeroed.
func WriteCharts(fs fsutil.FileSystem, dir string, res *metrics.Result, records []books.Book) (string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	var completed []books.Book
	for _, b := range records {
		if b.Completed() && b.Year == res.ResolvedYear {
			completed = append(completed, b)
		}
	}

	page := components.NewPage()
	page.AddCharts(
		pagesPerDayChart(completed, res.ResolvedYear),
		scoreVsDaysChart(completed, res.ResolvedYear),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeLoad, "rendering report charts")
	}

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeLoad, "creating report directory")
	}

	path := filepath.Join(dir, ChartFileName)
	if err := fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeLoad, "writing report page")
	}

	return path, nil
}

func pagesPerDayChart(completed []books.Book, year int) *charts.Bar {
	x := make([]string, 0, len(completed))
	y := make([]opts.BarData, 0, len(completed))
	for _, b := range completed {
		if b.PagesPerDay == nil {
			continue
		}
		x = append(x, b.Name)
		y = append(y, opts.BarData{Value: *b.PagesPerDay})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: TitleSummary, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pages per Day", Subtitle: fmt.Sprintf("completed in %d", year)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("pages/day", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	return bar
}

func scoreVsDaysChart(completed []books.Book, year int) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(completed))
	for _, b := range completed {
		if b.Days == nil || b.Score == nil {
			continue
		}
		data = append(data, opts.ScatterData{Name: b.Name, Value: []interface{}{*b.Days, *b.Score}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Score vs Days to Finish", Subtitle: fmt.Sprintf("completed in %d", year)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Days"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Score"}),
	)
	scatter.AddSeries("books", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	return scatter
}
