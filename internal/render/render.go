// Package render holds the HTML pages served by the platform. The pages are templ components; run
// `go tool templ generate` after editing a .templ file.
package render

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/rs/zerolog/log"
)

// Render renders the page into memory. Nothing is returned unless it succeeds entirely.
func Render(ctx context.Context, page templ.Component) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return buf.Bytes(), nil
}

// HTML writes the page with the given status, or a bare 500 if it fails to render.
func HTML(w http.ResponseWriter, r *http.Request, code int, page templ.Component) {
	b, err := Render(r.Context(), page)
	if err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	w.Write(b)
}
