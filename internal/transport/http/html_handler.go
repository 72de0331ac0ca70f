package http

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"emicli/pkg/contracts"
)

// ServeDashboard serves the dashboard page from webDir. When no frontend
// bundle is installed it falls back to the built-in status page, so a bare
// binary still answers on /.
func ServeDashboard(webDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexPath := filepath.Join(webDir, "index.html")

		if _, err := os.Stat(indexPath); os.IsNotExist(err) {
			ServeStatusPage()(w, r)
			return
		}

		serveHTML(w, r, indexPath)
	}
}

const statusPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>EMI Market Data Toolkit</title>
  <style>
    body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 3rem auto; }
    dl { background: #f0f6f8; padding: 1rem; border-radius: 6px; }
    dt { font-weight: bold; }
  </style>
</head>
<body>
  <h1>EMI Market Data Toolkit</h1>
  <dl>
    <dt>Version</dt><dd>%s</dd>
    <dt>Time</dt><dd>%s</dd>
  </dl>
  <h2>Endpoints</h2>
  <ul>
    <li><a href="/api/series">Series Summaries</a></li>
    <li><a href="/api/aggregates">Aggregates</a></li>
    <li><a href="/api/diagnostics">Run Diagnostics</a></li>
    <li><a href="/api/exports">Generated Reports</a></li>
    <li><a href="/api/health">Health Check</a></li>
    <li><a href="/api/version">Version Info</a></li>
    <li><a href="/metrics">Prometheus Metrics</a></li>
    <li><a href="/ws">WebSocket Endpoint</a></li>
  </ul>
</body>
</html>
`

// ServeStatusPage serves a minimal built-in page linking the API surface.
func ServeStatusPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, statusPage,
			contracts.Version, time.Now().Format("2006-01-02 15:04:05"))
	}
}

func serveHTML(w http.ResponseWriter, r *http.Request, filePath string) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	tmpl, err := template.ParseFiles(filePath)
	if err != nil {
		http.Error(w, "Error loading page", http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, nil); err != nil {
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
	}
}
