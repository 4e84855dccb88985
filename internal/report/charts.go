package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/equalisation/internal/edge"
)

// AssetsHost serves the echarts JavaScript for rendered pages.
const AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// ChipSummary is one bar group of the chip summary chart.
type ChipSummary struct {
	Label         string
	Unequalised   int
	TailThreshold int
	Position      float64
	Sigma         float64
}

// SummaryBars charts the unequalised pixel count and tail threshold of
// every chip.
func SummaryBars(title string, chips []ChipSummary) *charts.Bar {
	labels := make([]string, len(chips))
	unequalised := make([]opts.BarData, len(chips))
	tails := make([]opts.BarData, len(chips))
	for i, c := range chips {
		labels[i] = c.Label
		unequalised[i] = opts.BarData{Value: c.Unequalised}
		tails[i] = opts.BarData{Value: c.TailThreshold}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
	)
	bar.SetXAxis(labels).
		AddSeries("unequalised pixels", unequalised).
		AddSeries("tail threshold", tails,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// ChipHeatmap charts one value per chip site on a rows×columns grid. NaN
// values, such as absent chips, are left blank.
func ChipHeatmap(title string, rows, columns int, values []float64) (*charts.HeatMap, error) {
	if len(values) != rows*columns {
		return nil, fmt.Errorf("%d values for a %dx%d grid", len(values), rows, columns)
	}
	data := make([]opts.HeatMapData, 0, len(values))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		data = append(data, opts.HeatMapData{Value: [3]interface{}{i % columns, i / columns, v}})
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}
	return heatmap(title, axisLabels("col", columns), axisLabels("row", rows), data, lo, hi), nil
}

// EdgeHeatmap charts a height×width edge block, sampling every stride-th
// pixel in each direction. Sentinel edges are left blank.
func EdgeHeatmap(title string, height, width int, values []int16, stride int) (*charts.HeatMap, error) {
	if len(values) != height*width {
		return nil, fmt.Errorf("%d edges for a %dx%d block", len(values), height, width)
	}
	if stride < 1 {
		stride = 1
	}
	cols, rows := (width+stride-1)/stride, (height+stride-1)/stride
	data := make([]opts.HeatMapData, 0, cols*rows)
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < height; y += stride {
		for x := 0; x < width; x += stride {
			v := values[y*width+x]
			if !edge.IsValid(v) {
				continue
			}
			f := float64(v)
			lo, hi = math.Min(lo, f), math.Max(hi, f)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{x / stride, y / stride, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}
	xs := make([]int, cols)
	for i := range xs {
		xs[i] = i * stride
	}
	ys := make([]int, rows)
	for i := range ys {
		ys[i] = i * stride
	}
	return heatmap(title, xs, ys, data, lo, hi), nil
}

func heatmap(title string, xs, ys interface{}, data []opts.HeatMapData, lo, hi float64) *charts.HeatMap {
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "640px", Height: "560px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.AddSeries(title, data)
	return hm
}

func axisLabels(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i)
	}
	return out
}

// RenderPage writes the charts as one HTML page.
func RenderPage(w io.Writer, title string, items ...components.Charter) error {
	page := components.NewPage()
	page.PageTitle = title
	page.SetAssetsHost(AssetsHost)
	page.AddCharts(items...)
	return page.Render(w)
}
