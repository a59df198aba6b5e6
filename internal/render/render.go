// Package render writes chart and dashboard HTML artifacts.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
)

// Renderer turns visualization specs into stored chart artifacts.
type Renderer interface {
	// Render writes one chart for table and returns its storage path.
	Render(ctx context.Context, spec model.VisualizationSpec, table *model.Table) (string, error)
	// BuildDashboard writes one page referencing every chart, in order.
	BuildDashboard(ctx context.Context, title string, charts []model.ChartArtifact) (string, error)
}

// EChartsRenderer renders interactive ECharts HTML files under OutputDir,
// grouped into one folder per day.
type EChartsRenderer struct {
	OutputDir string
	now       func() time.Time
}

// NewECharts creates an EChartsRenderer writing under dir.
func NewECharts(dir string) *EChartsRenderer {
	return &EChartsRenderer{OutputDir: dir, now: time.Now}
}

type chartWriter interface {
	Render(w io.Writer) error
}

// Render implements Renderer. Fields must name columns of table; callers
// validate the mapping before rendering.
func (r *EChartsRenderer) Render(ctx context.Context, spec model.VisualizationSpec, table *model.Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "render: chart")
	}
	xi, yi := table.ColumnIndex(spec.XField), table.ColumnIndex(spec.YField)
	if xi < 0 || yi < 0 {
		return "", eris.Errorf("render: fields %q/%q not in result columns", spec.XField, spec.YField)
	}

	labels := make([]string, 0, table.Len())
	values := make([]float64, 0, table.Len())
	for i, row := range table.Rows {
		y, err := toFloat(row[yi])
		if err != nil {
			return "", eris.Wrapf(err, "render: column %s row %d", spec.YField, i)
		}
		labels = append(labels, label(row[xi]))
		values = append(values, y)
	}

	chart := buildChart(spec, labels, values)

	path, err := r.write(Slugify(spec.Title)+"_"+string(spec.ChartKind), func(_ string, w io.Writer) error {
		return chart.Render(w)
	})
	if err != nil {
		return "", err
	}

	zap.L().Debug("render: chart written",
		zap.String("path", path),
		zap.String("kind", string(spec.ChartKind)),
		zap.Int("points", len(values)),
	)
	return path, nil
}

func buildChart(spec model.VisualizationSpec, labels []string, values []float64) chartWriter {
	title := charts.WithTitleOpts(opts.Title{Title: spec.Title})
	tooltip := charts.WithTooltipOpts(opts.Tooltip{Show: true})
	xName := charts.WithXAxisOpts(opts.XAxis{Name: spec.XField})
	yName := charts.WithYAxisOpts(opts.YAxis{Name: spec.YField})

	switch spec.ChartKind {
	case model.ChartBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(title, tooltip, xName, yName)
		data := make([]opts.BarData, len(values))
		for i, v := range values {
			data[i] = opts.BarData{Value: v}
		}
		bar.SetXAxis(labels).AddSeries(spec.YField, data)
		return bar

	case model.ChartLine, model.ChartArea:
		line := charts.NewLine()
		line.SetGlobalOptions(title, tooltip, xName, yName)
		data := make([]opts.LineData, len(values))
		for i, v := range values {
			data[i] = opts.LineData{Value: v}
		}
		var seriesOpts []charts.SeriesOpts
		if spec.ChartKind == model.ChartArea {
			seriesOpts = append(seriesOpts, charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: 0.2}))
		}
		line.SetXAxis(labels).AddSeries(spec.YField, data, seriesOpts...)
		return line

	case model.ChartPie:
		pie := charts.NewPie()
		pie.SetGlobalOptions(title, tooltip)
		data := make([]opts.PieData, len(values))
		for i, v := range values {
			data[i] = opts.PieData{Name: labels[i], Value: v}
		}
		pie.AddSeries(spec.YField, data)
		return pie

	default:
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(title, tooltip, xName, yName)
		data := make([]opts.ScatterData, len(values))
		for i, v := range values {
			data[i] = opts.ScatterData{Value: v}
		}
		scatter.SetXAxis(labels).AddSeries(spec.YField, data)
		return scatter
	}
}

// create opens a new file named <stem>_<HH-MM-SS>.html in today's folder.
// Concurrent renders with the same stem in the same second get a numeric
// suffix instead of overwriting each other.
func (r *EChartsRenderer) create(stem string) (string, *os.File, error) {
	now := r.now()
	dir := filepath.Join(r.OutputDir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, eris.Wrapf(err, "render: create dir %s", dir)
	}

	base := stem + "_" + now.Format("15-04-05")
	for n := 1; ; n++ {
		name := base + ".html"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.html", base, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, eris.Wrapf(err, "render: create %s", path)
		}
	}
}

// write creates a new file for stem and fills it with fn, which receives the
// file's folder. A file whose write or close fails is removed.
func (r *EChartsRenderer) write(stem string, fn func(dir string, w io.Writer) error) (string, error) {
	path, f, err := r.create(stem)
	if err != nil {
		return "", err
	}
	if err := fn(filepath.Dir(path), f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "render: write %s", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "render: close %s", path)
	}
	return path, nil
}

func label(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, eris.Errorf("value %q is not numeric", x)
		}
		return f, nil
	default:
		return 0, eris.Errorf("value of type %T is not numeric", v)
	}
}
