package report

import (
	"html/template"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Swanling Attack Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #999; padding: 4px 10px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
caption { font-weight: bold; text-align: left; padding: 6px 0; }
tr.aggregated { font-weight: bold; background: #f0f0f0; }
</style>
</head>
<body>
<h1>Swanling Attack Report</h1>
<p>Generated {{.Generated}}</p>

<table>
<caption>Per request metrics</caption>
<tr><th>Name</th><th>Avg (ms)</th><th>Min</th><th>Max</th><th>Median</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td><td>{{printf "%.2f" .Raw.Avg}}</td><td>{{.Raw.Min}}</td><td>{{.Raw.Max}}</td><td>{{.Raw.Median}}</td></tr>
{{end}}<tr class="aggregated"><td>{{.Aggregated.Name}}</td><td>{{printf "%.2f" .Aggregated.Raw.Avg}}</td><td>{{.Aggregated.Raw.Min}}</td><td>{{.Aggregated.Raw.Max}}</td><td>{{.Aggregated.Raw.Median}}</td></tr>
</table>

{{if .HasAdjusted}}
<table>
<caption>Adjusted for Coordinated Omission</caption>
<tr><th>Name</th><th>Avg (ms)</th><th>Std Dev</th><th>Max</th><th>Median</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td><td>{{printf "%.2f" .Adjusted.Avg}}</td><td>{{printf "%.2f" .StdDev}}</td><td>{{.Adjusted.Max}}</td><td>{{.Adjusted.Median}}</td></tr>
{{end}}<tr class="aggregated"><td>{{.Aggregated.Name}}</td><td>{{printf "%.2f" .Aggregated.Adjusted.Avg}}</td><td>{{printf "%.2f" .Aggregated.StdDev}}</td><td>{{.Aggregated.Adjusted.Max}}</td><td>{{.Aggregated.Adjusted.Median}}</td></tr>
</table>
{{end}}

<table>
<caption>Slowest page load within specified percentile</caption>
<tr><th>Name</th><th>50%</th><th>75%</th><th>98%</th><th>99%</th><th>99.9%</th><th>99.99%</th></tr>
{{range .Rows}}<tr><td>{{.Name}}</td>{{range .Raw.Percentiles}}<td>{{.}}</td>{{end}}</tr>
{{end}}<tr class="aggregated"><td>{{.Aggregated.Name}}</td>{{range .Aggregated.Raw.Percentiles}}<td>{{.}}</td>{{end}}</tr>
</table>
</body>
</html>
`))

type htmlData struct {
	*metrics.Snapshot
	Generated string
}

// WriteHTML renders the snapshot as a standalone HTML report at path.
func WriteHTML(path string, snap *metrics.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report-file %q", path)
	}
	defer f.Close()

	data := htmlData{Snapshot: snap, Generated: time.Now().Format(time.RFC1123)}
	if err := htmlTmpl.Execute(f, data); err != nil {
		return errors.Wrap(err, "failed to render HTML report")
	}
	return nil
}
