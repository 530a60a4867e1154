package server

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/benedict2310/sitedrop/internal/ogimage"
	"github.com/benedict2310/sitedrop/internal/site"
)

type hostPageData struct {
	Name       string
	Subdomain  string
	SocketPath string
	CardPath   string
}

// The surface iframe is sandboxed without allow-same-origin, so site code
// cannot reach the host page. Navigation requests come back through
// postMessage and are relayed to the viewer socket.
var hostPageTemplate = template.Must(template.New("host").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}}</title>
<meta property="og:title" content="{{.Name}}">
<meta property="og:image" content="{{.CardPath}}">
<meta name="twitter:card" content="summary_large_image">
<style>
html, body { margin: 0; height: 100%; }
#surface { border: 0; width: 100%; height: 100%; display: block; }
#error { font: 14px/1.4 system-ui, sans-serif; padding: 1rem; color: #a00; }
</style>
</head>
<body>
<div id="error" hidden></div>
<iframe id="surface" title="{{.Name}}" sandbox="allow-scripts allow-forms allow-popups"></iframe>
<script>
(function () {
  var surface = document.getElementById("surface");
  var errorBox = document.getElementById("error");
  var scheme = location.protocol === "https:" ? "wss://" : "ws://";
  var socket = new WebSocket(scheme + location.host + {{.SocketPath}});
  socket.onmessage = function (event) {
    var msg;
    try { msg = JSON.parse(event.data); } catch (e) { return; }
    if (msg.type === "RENDER") {
      errorBox.hidden = true;
      surface.srcdoc = msg.html;
    } else if (msg.type === "ERROR") {
      errorBox.textContent = msg.error;
      errorBox.hidden = false;
    }
  };
  socket.onclose = function () {
    errorBox.textContent = "Connection to the site closed. Reload to continue.";
    errorBox.hidden = false;
  };
  window.addEventListener("message", function (event) {
    if (event.source !== surface.contentWindow) return;
    var data = event.data;
    if (!data || data.type !== "NAVIGATE" || typeof data.path !== "string") return;
    if (socket.readyState === WebSocket.OPEN) {
      socket.send(JSON.stringify({ type: "NAVIGATE", path: data.path }));
    }
  });
})();
</script>
</body>
</html>
`))

var notFoundPage = []byte(`<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Site not found</title></head>
<body><h1>Site not found</h1><p>No site is published at this address.</p></body></html>
`)

// handlePublicSite returns the public record and counts the visit.
func (s *Server) handlePublicSite(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	view, err := s.sites.Resolve(r.Context(), r.PathValue("subdomain"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.siteVisits.Inc()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view.Materialize())
}

// handleHostPage serves the shell around a site. The visit is counted when
// the viewer socket loads the site, not here.
func (s *Server) handleHostPage(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	subdomain := r.PathValue("subdomain")
	view, err := s.sites.Lookup(r.Context(), subdomain)
	if err != nil {
		if errors.Is(err, site.ErrNotFound) || errors.Is(err, site.ErrInvalidSubdomain) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write(notFoundPage)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	data := hostPageData{
		Name:       view.Deployment.Name,
		Subdomain:  view.Deployment.Subdomain,
		SocketPath: siteURL(view.Deployment.Subdomain) + "/ws",
		CardPath:   siteURL(view.Deployment.Subdomain) + "/card.png",
	}
	if err := hostPageTemplate.Execute(w, data); err != nil {
		s.logger.ErrorContext(r.Context(), "render host page failed", "error", err, "subdomain", subdomain)
	}
}

// handleCard serves the social preview image. Fetching it is not a visit.
func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	view, err := s.sites.Lookup(r.Context(), r.PathValue("subdomain"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	card := ogimage.CardForView(view)
	etag := ogimage.ETag(card)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	img, err := ogimage.Generate(card)
	if err != nil {
		s.writeInternalAPIError(w, r, "generate preview card failed", err, "subdomain", view.Deployment.Subdomain)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	contentType, content, ok := s.blobs.Get(r.PathValue("handle"))
	if !ok {
		writeAPIError(w, http.StatusNotFound, "not found", nil)
		return
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
	// Sandboxed surfaces have an opaque origin.
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
