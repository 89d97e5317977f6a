package main

import (
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/littlegabriel/gabriel/middleware/gatekeeper"
)

const shellIndex = "index.html"

// MountPages serves the web app under root behind gate. Register it after the
// API groups so their routes match first. Returns false when root is empty.
func MountPages(r router.Router[*fiber.App], root string, gate router.MiddlewareFunc) bool {
	if strings.TrimSpace(root) == "" {
		return false
	}

	pages := r.Group("")
	pages.Use(gate)

	shell := pageShell(os.DirFS(root))
	pages.Get("/", shell).SetName("pages.index")
	pages.Get("/*", shell).SetName("pages.shell")
	return true
}

// pageShell serves a file from the web root, any unknown page path gets the
// index so client side routing can take over
func pageShell(root fs.FS) router.HandlerFunc {
	return func(ctx router.Context) error {
		if gatekeeper.Excluded(ctx.Path(), []string{"/api"}) {
			return ctx.Status(http.StatusNotFound).SendString("Not Found")
		}

		name := strings.TrimPrefix(path.Clean("/"+ctx.Path()), "/")
		if name == "" {
			name = shellIndex
		}

		content, err := fs.ReadFile(root, name)
		if err != nil {
			name = shellIndex
			if content, err = fs.ReadFile(root, name); err != nil {
				return ctx.Status(http.StatusNotFound).SendString("Not Found")
			}
		}

		if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
			ctx.SetHeader("Content-Type", ct)
		}
		return ctx.Send(content)
	}
}
