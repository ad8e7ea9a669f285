// Package embedded bundles the dashboard's static assets into the binary, so
// deployment is a single self-contained executable plus a config file.
package embedded

import (
	"embed"
	"io/fs"
)

//go:embed static
var files embed.FS

// Dashboard returns the embedded static directory rooted at its contents
// (index.html, style.css, dashboard.js), ready to hand to http.FileServer.
func Dashboard() (fs.FS, error) {
	return fs.Sub(files, "static")
}
