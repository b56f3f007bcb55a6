package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/revcam/revcam/internal/app"
	"github.com/revcam/revcam/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// MediaFactory builds a media session from the current configuration record.
// It is invoked once per viewer connection, after any dispatcher write has
// completed, so the snapshot it reads is the freshest persisted record.
type MediaFactory func() (core.MediaSession, error)

// Controller accepts viewer websocket connections and hands each one to a
// signaling session.
type Controller struct {
	Role     Role
	Registry *app.Registry
	NewMedia MediaFactory
}

func NewController(role Role, reg *app.Registry, factory MediaFactory) *Controller {
	return &Controller{Role: role, Registry: reg, NewMedia: factory}
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs one viewer session until the
// transport closes.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	media, err := ctl.NewMedia()
	if err != nil {
		// Fatal for this viewer only: no media capability, no session.
		log.Error().Err(err).Str("module", "signal").Msg("media session unavailable")
		conn.Close()
		return
	}

	sess := NewSession(ctl.Role, media, conn, ctl.Registry)
	log.Info().Str("module", "signal").Str("sid", sess.ID()).Msg("viewer connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)

	if err := sess.Start(ctx); err != nil {
		cancel()
		return
	}
	go ctl.readPump(ctx, cancel, sess, conn)
}
