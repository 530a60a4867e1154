package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benedict2310/sitedrop/internal/blob"
	"github.com/benedict2310/sitedrop/pkg/renderer"
	"github.com/spf13/cobra"
)

var signalNotifyContext = signal.NotifyContext

const previewRenderPath = "/_render"

// The preview host mirrors the server's viewer page, with plain HTTP in
// place of the websocket.
var previewHostTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}} (preview)</title>
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
  function show(path) {
    fetch({{.RenderPath}} + "?path=" + encodeURIComponent(path)).then(function (resp) {
      return resp.json();
    }).then(function (msg) {
      if (msg.error) {
        errorBox.textContent = msg.error;
        errorBox.hidden = false;
        return;
      }
      errorBox.hidden = true;
      surface.srcdoc = msg.html;
      history.replaceState(null, "", "#" + msg.path);
    });
  }
  window.addEventListener("message", function (event) {
    if (event.source !== surface.contentWindow) return;
    var data = event.data;
    if (!data || data.type !== "NAVIGATE" || typeof data.path !== "string") return;
    show(data.path);
  });
  show(location.hash.slice(1) || "index.html");
})();
</script>
</body>
</html>
`))

type previewDocument struct {
	Path     string `json:"path"`
	HTML     string `json:"html,omitempty"`
	NotFound bool   `json:"notFound,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Preview a local site with in-site navigation, re-reading files on every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalNotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serveDirectory(ctx, args[0], port, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on (use 0 for random available port)")

	return cmd
}

func serveDirectory(ctx context.Context, dir string, port int, out io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat serve directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("serve path is not a directory: %s", dir)
	}
	site, _, err := loadLocalView(dir)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler:           loggingMiddleware(previewHandler(dir, site.Manifest.Name), out),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(out, "Previewing %s at http://%s\n", dir, listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}

func previewHandler(dir, name string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_ = previewHostTemplate.Execute(w, map[string]string{
			"Name":       name,
			"RenderPath": previewRenderPath,
		})
	})
	mux.HandleFunc("GET "+previewRenderPath, func(w http.ResponseWriter, r *http.Request) {
		doc, etag, status := renderPreview(dir, r.URL.Query().Get("path"))
		w.Header().Set("Cache-Control", "no-cache")
		if etag != "" {
			w.Header().Set("ETag", etag)
			if status == http.StatusOK && r.Header.Get("If-None-Match") == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(doc)
	})
	return mux
}

// renderPreview re-reads dir on every call. The etag is empty when nothing
// was rendered.
func renderPreview(dir, path string) (previewDocument, string, int) {
	_, view, err := loadLocalView(dir)
	if err != nil {
		return previewDocument{Path: path, Error: err.Error()}, "", http.StatusUnprocessableEntity
	}
	doc, err := renderer.Render(view, path, blob.DataURLArena{})
	if err != nil {
		return previewDocument{Path: path, Error: err.Error()}, "", http.StatusInternalServerError
	}
	out := previewDocument{Path: doc.Path, HTML: doc.HTML, NotFound: doc.NotFound}
	if doc.NotFound {
		return out, doc.ETag(), http.StatusNotFound
	}
	return out, doc.ETag(), http.StatusOK
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler, out io.Writer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, req)
		fmt.Fprintf(out, "%s %s %d\n", req.Method, req.URL.Path, recorder.status)
	})
}
