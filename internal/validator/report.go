package validator

import (
	"fmt"
	"io"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
)

// Render writes the report as text tables.
func (r *Report) Render(w io.Writer) error {
	p := &printer{w: w}
	p.printf("Ranking validation report (%s)\n\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))

	d := r.Distribution
	p.printf("Score distribution\n")
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Count", "Mean", "Median", "StdDev", "Min", "P10", "P25", "P75", "P90", "Max", "Normal"})
	t.Append([]string{
		strconv.Itoa(d.Count), f1(d.Mean), f1(d.Median), f1(d.StdDev), f1(d.Min),
		f1(d.P10), f1(d.P25), f1(d.P75), f1(d.P90), f1(d.Max), yesNo(d.Normal),
	})
	t.Render()

	if d.Count > 0 {
		series := make([]float64, len(d.Histogram))
		for i, c := range d.Histogram {
			series[i] = float64(c)
		}
		p.printf("\n%s\n", asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Caption("businesses per 10-point score band (0-9 ... 90-100)")))
	}

	p.printf("\nKnown business spot checks\n")
	t = tablewriter.NewWriter(w)
	t.SetHeader([]string{"Business", "Expected", "Position", "Result"})
	for _, sc := range r.SpotChecks {
		pos, res := "-", "missing"
		if sc.Found {
			pos = strconv.Itoa(sc.Position)
			res = "fail"
			if sc.Passed {
				res = "pass"
			}
		}
		t.Append([]string{sc.Name, string(sc.Expected), pos, res})
	}
	t.Render()

	p.printf("\nAnomalies (%d)\n", len(r.Anomalies))
	if len(r.Anomalies) > 0 {
		t = tablewriter.NewWriter(w)
		t.SetHeader([]string{"Business", "ID", "Kind", "Value"})
		for _, a := range r.Anomalies {
			t.Append([]string{a.Name, a.BusinessID, string(a.Kind), f1(a.Value)})
		}
		t.Render()
	}

	for _, g := range []struct {
		title string
		rows  []GroupBalance
	}{{"Category balance", r.Categories}, {"City balance", r.Cities}} {
		p.printf("\n%s\n", g.title)
		t = tablewriter.NewWriter(w)
		t.SetHeader([]string{"Group", "Businesses", "Average", "Deviation", "Flagged"})
		for _, b := range g.rows {
			t.Append([]string{b.Group, strconv.Itoa(b.Count), f1(b.Average), fmt.Sprintf("%+.1f", b.Deviation), yesNo(b.Flagged)})
		}
		t.Render()
	}

	p.printf("\nPlan tiers in the top %d\n", TopN)
	t = tablewriter.NewWriter(w)
	t.SetHeader([]string{"Tier", "Top count", "Top share %", "Population %", "Flagged"})
	for _, ts := range r.Tiers {
		t.Append([]string{string(ts.Tier), strconv.Itoa(ts.TopCount), f1(ts.TopShare), f1(ts.PopulationShare), yesNo(ts.Flagged)})
	}
	t.Render()

	p.printf("\nRecommendations\n")
	for i, rec := range r.Recommendations {
		p.printf("%d. [%s] %s\n", i+1, rec.Priority, rec.Text)
	}
	result := "PASS"
	if r.Failed() {
		result = "FAIL"
	}
	p.printf("\nResult: %s\n", result)
	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
