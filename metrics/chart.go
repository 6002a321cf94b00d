package metrics

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"text/template"
	"time"
)

// chartMargin pads the x range on both sides.
const chartMargin = 30 * 24 * time.Hour

var chartTemplate = template.Must(template.New("chart").Parse(`set title "BIBFRAME2.0 changes by date"
set border
set grid
set tics in
set ticslevel 0.5

set xlabel "Date"
set timefmt "%Y-%m-%d"
set format x "%Y-%m"
set xdata time
set xrange ["{{.XStart}}" : "{{.XEnd}}"]
set boxwidth 150000 absolute  # a bit over a day

set ylabel "Fraction of triples changed (%)"
set yrange [-{{.YDeleted}} : {{.YAdded}}]
set ytics 10

set terminal png
set output '{{.GraphFile}}'

plot \
"{{.DataFile}}" using 1:(100.0*$3/$2) \
title "added triples" with boxes fs solid 0.7 lc rgb "#11AA00", \
"{{.DataFile}}" using 1:(-100.0*$4/$2) \
title "deleted triples" with boxes fs solid 0.7 lc rgb "#AA1100"
`))

// ChartParams parameterizes the gnuplot script.
type ChartParams struct {
	Series    Series
	DataFile  string
	GraphFile string
}

type chartValues struct {
	XStart, XEnd        string
	YDeleted, YAdded    int
	DataFile, GraphFile string
}

// WriteChartScript writes a gnuplot script plotting added and deleted
// fractions. The y range is the observed maxima in percent with a 20% margin.
func WriteChartScript(w io.Writer, p ChartParams) error {
	start, err := time.Parse(time.DateOnly, p.Series.Start)
	if err != nil {
		return fmt.Errorf("series start %q: %w", p.Series.Start, err)
	}
	end, err := time.Parse(time.DateOnly, p.Series.End)
	if err != nil {
		return fmt.Errorf("series end %q: %w", p.Series.End, err)
	}

	return chartTemplate.Execute(w, chartValues{
		XStart:    start.Add(-chartMargin).Format(time.DateOnly),
		XEnd:      end.Add(chartMargin).Format(time.DateOnly),
		YDeleted:  int(p.Series.MaxDeletedFraction * 120),
		YAdded:    int(p.Series.MaxAddedFraction * 120),
		DataFile:  p.DataFile,
		GraphFile: p.GraphFile,
	})
}

// RenderChart runs gnuplot on the script.
func RenderChart(ctx context.Context, scriptPath string) error {
	cmd := exec.CommandContext(ctx, "gnuplot", scriptPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("gnuplot %s: %w: %s", scriptPath, err, strings.TrimSpace(string(output)))
	}
	return nil
}
