package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/filter"
	"github.com/academiafc/clubsync/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer for the rest of the API; the
	// feed carries no credentials beyond the already-verified token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait      = 10 * time.Second
	feedBufferSize = 32
)

// feedMessage is one frame on the live feed.
type feedMessage struct {
	Type         string               `json:"type"` // "snapshot" or "notification"
	Collection   string               `json:"collection,omitempty"`
	Items        []document.Document  `json:"items,omitempty"`
	Notification *notify.Notification `json:"notification,omitempty"`
	DismissAfter int64                `json:"dismissAfterMs,omitempty"`
}

// feed streams live collection snapshots and notifications over a
// websocket. Anonymous clients may follow public collections only; a valid
// admin token unlocks every collection plus the notification channel.
//
//	GET /api/ws?collections=news,students&token=...
func (s *Server) feed(c *gin.Context) {
	admin := false
	if token := c.Query("token"); token != "" {
		if user, err := s.tokens.Verify(token); err == nil && user.Admin {
			admin = true
		}
	}

	var collections []string
	for _, name := range strings.Split(c.DefaultQuery("collections", ""), ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := adminCollections[name]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown collection: " + name})
			return
		}
		if !admin {
			if _, ok := publicCollections[name]; !ok {
				c.JSON(http.StatusForbidden, gin.H{"error": "collection requires admin access: " + name})
				return
			}
		}
		collections = append(collections, name)
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	send := make(chan feedMessage, feedBufferSize)
	enqueue := func(msg feedMessage) {
		select {
		case send <- msg:
		default:
			s.logger.Debug("feed backlog full, dropping frame", zap.String("type", msg.Type))
		}
	}

	var cleanup []func()
	for _, collection := range collections {
		name := collection
		unsubscribe, err := s.manager.Subscribe(c.Request.Context(), name, func(docs []document.Document) {
			if !admin {
				docs = filter.Public(docs, 0)
			}
			enqueue(feedMessage{Type: "snapshot", Collection: name, Items: docs})
		})
		if err != nil {
			s.logger.Warn("feed subscription failed", zap.String("collection", name), zap.Error(err))
			continue
		}
		cleanup = append(cleanup, unsubscribe)
	}
	if admin {
		cleanup = append(cleanup, s.notifier.Subscribe(func(note notify.Notification) {
			n := note
			enqueue(feedMessage{
				Type:         "notification",
				Notification: &n,
				DismissAfter: notify.DefaultDismissAfter.Milliseconds(),
			})
		}))
	}

	done := make(chan struct{})

	// Reader: the client sends nothing meaningful; we read only to learn
	// about disconnects.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer: single goroutine owns all writes to the connection.
	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.teardownFeed(conn, cleanup)
				return
			}
		case <-done:
			s.teardownFeed(conn, cleanup)
			return
		}
	}
}

func (s *Server) teardownFeed(conn *websocket.Conn, cleanup []func()) {
	for _, fn := range cleanup {
		fn()
	}
	conn.Close()
}
