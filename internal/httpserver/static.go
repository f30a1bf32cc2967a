package httpserver

import (
	"net/http"
	"os"
)

// StaticDocumentHandler serves exactly one document. The relay's entire UI is
// a single HTML page; everything else on the mux 404s.
//
// The file is re-read per request (it is small and this keeps dev iteration
// simple); a missing or unreadable file is reported as a 500 rather than
// failing startup, so the signaling surface stays available regardless.
func StaticDocumentHandler(path string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := os.ReadFile(path)
		if err != nil {
			http.Error(w, "document unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
}
