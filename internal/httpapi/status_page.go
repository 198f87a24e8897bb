package httpapi

import (
	_ "embed"
	"net/http"
)

//go:embed status.html
var statusHTML string

// StatusPageHandler serves the embedded status page.
func StatusPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(statusHTML))
	}
}
