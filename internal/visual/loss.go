// Package visual renders training loss curves as HTML charts and, when a
// headless browser is available, as PNG screenshots.
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	rtypes "reitloop/internal/types"
)

var ErrEmptyCurve = errors.New("training run has no loss curve")

type ImageResult struct {
	Bytes       []byte `json:"-"`
	Base64      string `json:"base64"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
}

func (r *ImageResult) DataURI() string {
	if r == nil {
		return ""
	}
	if r.Base64 == "" && len(r.Bytes) > 0 {
		r.Base64 = base64.StdEncoding.EncodeToString(r.Bytes)
	}
	if r.Base64 == "" {
		return ""
	}
	return "data:image/png;base64," + r.Base64
}

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorLoss          = "#3b82f6"
	colorBest          = "#34d399"

	chartWidthPx  = 1200
	chartHeightPx = 520
)

// LossChartHTML renders the run's loss curve with its best-so-far envelope
// and a marker on the best epoch.
func LossChartHTML(run rtypes.TrainingRun) ([]byte, error) {
	if len(run.LossCurve) == 0 {
		return nil, ErrEmptyCurve
	}
	xAxis := epochAxis(len(run.LossCurve))

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", run.ModelType, runLabel(run)),
			Subtitle:      Describe(run),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "epoch",
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "loss",
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	lossOpts := []charts.SeriesOpts{
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorLoss, Width: 2}),
	}
	if run.BestEpoch > 0 && run.BestEpoch <= len(run.LossCurve) {
		lossOpts = append(lossOpts,
			charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
				Name:  "best epoch",
				XAxis: strconv.Itoa(run.BestEpoch),
			}),
		)
	}
	line.AddSeries("loss", toLineData(run.LossCurve), lossOpts...)
	line.AddSeries("best so far", toLineData(bestSoFar(run.LossCurve)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorBest, Width: 1, Type: "dotted"}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LossChartPNG 通过无头浏览器将损失曲线渲染为 PNG。
func LossChartPNG(ctx context.Context, run rtypes.TrainingRun) (ImageResult, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return ImageResult{}, err
	}
	html, err := LossChartHTML(run)
	if err != nil {
		return ImageResult{}, err
	}
	png, err := renderHTMLToPNG(ctx, html, chartWidthPx, chartHeightPx)
	if err != nil {
		return ImageResult{}, err
	}
	return ImageResult{
		Bytes:       png,
		Base64:      base64.StdEncoding.EncodeToString(png),
		Filename:    fmt.Sprintf("%s_%s_loss.png", run.ModelType, runLabel(run)),
		Description: Describe(run),
	}, nil
}

// Describe 返回图表标题下方的一行摘要。
func Describe(run rtypes.TrainingRun) string {
	s := fmt.Sprintf("%s | %s | epochs %d/%d | best %d", run.Mode, run.Status, run.EpochsRun, run.Epochs, run.BestEpoch)
	if run.EarlyStopped {
		s += " | early stopped"
	}
	if len(run.LossCurve) > 0 {
		s += fmt.Sprintf(" | final loss %.6f", run.FinalLoss)
	}
	return s
}

func runLabel(run rtypes.TrainingRun) string {
	if run.ModelVersion != "" {
		return run.ModelVersion
	}
	if len(run.ID) > 8 {
		return run.ID[:8]
	}
	return run.ID
}

func epochAxis(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i + 1)
	}
	return out
}

func bestSoFar(curve []float64) []float64 {
	out := make([]float64, len(curve))
	best := math.Inf(1)
	for i, v := range curve {
		if v < best {
			best = v
		}
		out[i] = best
	}
	return out
}

func toLineData(series []float64) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, val := range series {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(val, 6)}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 每个进程只检测一次本地 Chrome 是否可用。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		parent, cancel := chromedp.NewContext(ctx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(800 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
