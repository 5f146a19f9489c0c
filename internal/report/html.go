package report

import (
	"fmt"
	"html/template"
	"io"
)

// htmlTemplate is BuildPulse's default, minimal HTML report: a read-side
// summary table. A richer interactive report (drill-down into individual
// findings, similarity groups, artifact previews) is out of scope for
// this package; this is the runnable stand-in the CLI ships so
// -o/--output always produces something.
var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>buildpulse report</title></head>
<body>
<h1>buildpulse summary</h1>
<table border="1" cellpadding="4">
<tr><th>entity</th><th>count</th></tr>
<tr><td>jobs</td><td>{{.Jobs}}</td></tr>
<tr><td>builds</td><td>{{.Builds}}</td></tr>
<tr><td>runs</td><td>{{.Runs}}</td></tr>
<tr><td>artifacts</td><td>{{.Artifacts}}</td></tr>
<tr><td>findings</td><td>{{.Findings}}</td></tr>
<tr><td>similarity groups</td><td>{{.SimilarityGroups}}</td></tr>
</table>
</body>
</html>
`))

// WriteHTML renders c as the default HTML report to w.
func WriteHTML(w io.Writer, c Counts) error {
	if err := htmlTemplate.Execute(w, c); err != nil {
		return fmt.Errorf("report: rendering html: %w", err)
	}
	return nil
}
