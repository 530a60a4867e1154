package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benedict2310/sitedrop/internal/site"
	"github.com/benedict2310/sitedrop/internal/viewer"
	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/renderer"
)

const (
	messageRender = "RENDER"
	messageError  = "ERROR"

	maxViewerMessageBytes = 8 << 10
	viewerWriteTimeout    = 10 * time.Second
)

// viewerMessage is sent from the server to the host page.
type viewerMessage struct {
	Type     string `json:"type"`
	Path     string `json:"path,omitempty"`
	HTML     string `json:"html,omitempty"`
	NotFound bool   `json:"notFound,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleViewerSocket(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	subdomain := r.PathValue("subdomain")
	if _, err := s.sites.Lookup(r.Context(), subdomain); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "subdomain", subdomain, "error", err)
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(s.viewersCtx, func() { _ = conn.Close() })
	defer stop()
	conn.SetReadLimit(maxViewerMessageBytes)

	s.metrics.viewerSessions.Inc()
	defer s.metrics.viewerSessions.Dec()

	blobs := s.blobs
	session := viewer.NewSession(func() viewer.Arena { return blobs.NewArena() })
	defer session.Close()

	ctx := r.Context()
	doc, err := session.Load(ctx, func(ctx context.Context) (model.View, error) {
		return s.sites.Resolve(ctx, subdomain)
	})
	if err != nil {
		s.logger.Warn("viewer load failed", "subdomain", subdomain, "error", err)
		_ = writeViewerMessage(conn, viewerMessage{Type: messageError, Error: viewerErrorText(err)})
		return
	}
	s.metrics.siteVisits.Inc()
	if err := writeViewerMessage(conn, renderMessage(doc)); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("viewer socket closed", "subdomain", subdomain, "error", err)
			}
			return
		}
		msg, err := renderer.ParseMessage(data)
		if err != nil {
			if err := writeViewerMessage(conn, viewerMessage{Type: messageError, Error: "unsupported message"}); err != nil {
				return
			}
			continue
		}
		doc, err := session.Navigate(msg.Path)
		if err != nil {
			s.logger.Warn("viewer render failed", "subdomain", subdomain, "path", msg.Path, "error", err)
			if err := writeViewerMessage(conn, viewerMessage{Type: messageError, Error: viewerErrorText(err)}); err != nil {
				return
			}
			continue
		}
		if err := writeViewerMessage(conn, renderMessage(doc)); err != nil {
			return
		}
	}
}

func renderMessage(doc renderer.Document) viewerMessage {
	return viewerMessage{Type: messageRender, Path: doc.Path, HTML: doc.HTML, NotFound: doc.NotFound}
}

func writeViewerMessage(conn *websocket.Conn, msg viewerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func viewerErrorText(err error) string {
	switch {
	case errors.Is(err, site.ErrNotFound):
		return "site not found"
	case errors.Is(err, viewer.ErrClosed), errors.Is(err, viewer.ErrSuperseded):
		return "viewer session ended"
	default:
		return "site could not be rendered"
	}
}
