// Package report renders analyses: a console report, a markdown bundle
// and an HTML chart page.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"dvsorder/internal/run"
	"dvsorder/internal/verdict"
)

// HTML writes one stacked bar chart per analysis: ballots per tabulator
// split into vulnerable, safe and undetermined.
func HTML(w io.Writer, analyses []*run.Analysis) error {
	page := components.NewPage().SetPageTitle("DVSorder ballot order analysis")
	for _, a := range analyses {
		page.AddCharts(tabulatorChart(a))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

// ballotSplit is one tabulator's ballots by verdict status.
type ballotSplit struct {
	vulnerable, safe, undetermined int
}

func splitBallots(verdicts []verdict.Verdict) map[int]*ballotSplit {
	out := make(map[int]*ballotSplit)
	for _, v := range verdicts {
		s, ok := out[v.Key.Tabulator]
		if !ok {
			s = &ballotSplit{}
			out[v.Key.Tabulator] = s
		}
		switch v.Status {
		case verdict.Vulnerable:
			s.vulnerable += v.Matched
			s.safe += v.Records - v.Matched
		case verdict.NotVulnerable:
			s.safe += v.Records
		default:
			s.undetermined += v.Records
		}
	}
	return out
}

func tabulatorChart(a *run.Analysis) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    filepath.Base(a.Export.Path),
			Subtitle: "approximately " + a.Summary.String(),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tabulator"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ballots"}),
	)

	ids := tabulatorIDs(a.Verdicts)
	split := splitBallots(a.Verdicts)
	labels := make([]string, len(ids))
	vulnerable := make([]opts.BarData, len(ids))
	safe := make([]opts.BarData, len(ids))
	undetermined := make([]opts.BarData, len(ids))
	for i, id := range ids {
		labels[i] = strconv.Itoa(id)
		s := split[id]
		vulnerable[i] = opts.BarData{Value: s.vulnerable}
		safe[i] = opts.BarData{Value: s.safe}
		undetermined[i] = opts.BarData{Value: s.undetermined}
	}

	stack := charts.WithBarChartOpts(opts.BarChart{Stack: "ballots"})
	bar.SetXAxis(labels).
		AddSeries("vulnerable", vulnerable, stack, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ef4444"})).
		AddSeries("safe", safe, stack, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#22c55e"})).
		AddSeries("undetermined", undetermined, stack, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#eab308"}))
	return bar
}
