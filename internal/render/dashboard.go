package render

import (
	"context"
	"html/template"
	"io"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/model"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; background: #f7f7f7; margin: 0; }
h1 { text-align: center; }
.grid { display: grid; grid-template-columns: repeat(2, 1fr); gap: 20px; padding: 20px; }
.card { background: #fff; border: 1px solid #ccc; border-radius: 10px; padding: 10px; }
.card h2 { font-size: 14px; margin: 0 0 8px; }
iframe { width: 100%; height: 450px; border: 0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="grid">
{{- range .Panels}}
<div class="card">
<h2><a href="{{.Src}}" target="_blank">{{.Title}}</a></h2>
{{- if .Question}}<p>{{.Question}}</p>{{end}}
<iframe src="{{.Src}}"></iframe>
</div>
{{- end}}
</div>
</body>
</html>
`))

type panel struct {
	Title    string
	Question string
	Src      string
}

// BuildDashboard implements Renderer. Chart paths are linked relative to the
// dashboard file so the output folder can be moved as a unit.
func (r *EChartsRenderer) BuildDashboard(ctx context.Context, title string, charts []model.ChartArtifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "render: dashboard")
	}
	if len(charts) == 0 {
		return "", eris.New("render: dashboard needs at least one chart")
	}

	path, err := r.write(Slugify(title)+"_dashboard", func(dir string, w io.Writer) error {
		panels := make([]panel, 0, len(charts))
		for _, c := range charts {
			src, err := filepath.Rel(dir, c.StoragePath)
			if err != nil {
				src = c.StoragePath
			}
			panels = append(panels, panel{
				Title:    c.Spec.Title,
				Question: c.Question,
				Src:      filepath.ToSlash(src),
			})
		}
		return dashboardTmpl.Execute(w, struct {
			Title  string
			Panels []panel
		}{title, panels})
	})
	if err != nil {
		return "", err
	}

	zap.L().Info("render: dashboard written", zap.String("path", path), zap.Int("charts", len(charts)))
	return path, nil
}
