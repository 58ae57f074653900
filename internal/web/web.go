// Package web serves the embedded browser front end: a single page that
// creates a session, shows the join link, polls readiness, and renders the
// common tracks. Heavy UI concerns (QR rendering, offline caching) stay out
// of the server.
package web

import (
	_ "embed"
	"net/http"
)

//go:embed index.html
var indexHTML []byte

// Index serves the landing page at the site root, which is also the
// redirect target after each party's OAuth callback.
type Index struct{}

// Routes implements [server.Handler]; {$} pins the pattern to exactly "/".
func (Index) Routes() []string {
	return []string{"GET /{$}"}
}

func (Index) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}
