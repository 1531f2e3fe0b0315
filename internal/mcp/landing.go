package mcp

import (
	"fmt"
	"html"
	"net/http"
)

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docsearch</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding-top: 4rem; }
  .card { max-width: 600px; width: 90%%; background: #1e293b; border-radius: 12px; padding: 2rem; }
  h1 { font-size: 1.5rem; margin: 0 0 0.5rem; }
  .subtitle { color: #94a3b8; }
  a { color: #38bdf8; text-decoration: none; }
  pre { background: #0f172a; border: 1px solid #334155; border-radius: 8px; padding: 1rem; overflow-x: auto; }
  code { font-family: "SF Mono", Menlo, monospace; }
  .endpoint { font-family: "SF Mono", monospace; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>docsearch <small>%s</small></h1>
  <p class="subtitle">Semantic search over uploaded documents via the Model Context Protocol.</p>
  <p>Tools: search_documents, list_documents, get_document, process_document, delete_document, model_info</p>
  <pre><code>{"mcpServers": {"docsearch": {"type": "http", "url": "http://%s/mcp"}}}</code></pre>
  <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
  <p><a href="/health" class="endpoint">/health</a> Health check</p>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, landingHTML, html.EscapeString(version), html.EscapeString(r.Host))
	}
}
