package panel

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web/*
var content embed.FS

// Assets returns the embedded display page files rooted at web/.
// Panics if the embedded assets are missing (build error).
func Assets() fs.FS {
	webFS, err := fs.Sub(content, "web")
	if err != nil {
		panic(fmt.Sprintf("panel: failed to load embedded web assets: %v", err))
	}
	return webFS
}

// Handler returns an http.Handler that serves the display page.
//
// When dir names an existing directory, files are served from disk so the
// page can be edited without a rebuild. Otherwise the embedded copy is used.
//
// Paths without a file extension that do not exist fall back to
// index.html, so /panel/control and /panel/ both load the page. Missing
// assets with an extension answer 404.
func Handler(dir string) http.Handler {
	var root fs.FS
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			root = os.DirFS(dir)
		}
	}
	if root == nil {
		root = Assets()
	}

	fileServer := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The page is small and changes with the binary; never cache it.
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		upath := path.Clean("/" + r.URL.Path)
		if upath == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		name := strings.TrimPrefix(upath, "/")
		if _, err := fs.Stat(root, name); err != nil {
			if path.Ext(name) != "" {
				http.NotFound(w, r)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/"
			fileServer.ServeHTTP(w, r2)
			return
		}

		fileServer.ServeHTTP(w, r)
	})
}
