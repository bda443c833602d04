// Package ui embeds the single-page preview served at "/".
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html
var assets embed.FS

// Handler serves the preview page. Anything other than "/" and the page
// itself is a 404 so API typos are not masked.
func Handler() (http.Handler, error) {
	page, err := fs.ReadFile(assets, "index.html")
	if err != nil {
		return nil, err
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(page)
	}), nil
}
