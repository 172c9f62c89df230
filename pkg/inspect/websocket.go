package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one websocket connection. Writes happen only on its write loop.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	remote string

	// ctx is cancelled by close; it bounds loop calls made for the client.
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("inspect: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, s.config.SendBuffer),
		done:   make(chan struct{}),
		remote: r.RemoteAddr,
		ctx:    ctx,
		cancel: cancel,
	}

	// The snapshot is queued on the loop before the client can see changes,
	// so no change is lost or reordered ahead of it.
	registered := false
	err = s.loop.Await(r.Context(), func() {
		data, err := json.Marshal(Message{Type: "snapshot", Cells: s.views()})
		if err != nil {
			return
		}
		c.send <- data
		registered = s.addClient(c)
	})
	if err != nil || !registered {
		// A func still queued after an early return finds the client closed.
		c.close()
		s.removeClient(c)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "inspector closing"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.logger.Info("inspect: client connected", "remote", c.remote)
	go s.readLoop(c)
	s.writeLoop(c)
}

// writeLoop sends queued messages and pings until the client is closed.
func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		s.logger.Info("inspect: client disconnected", "remote", c.remote)
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop applies "set" messages and notices when the peer goes away.
func (s *Server) readLoop(c *client) {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("inspect: read error", "remote", c.remote, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "set" {
			s.reply(c, Message{Type: "error", Error: "expected a set message"})
			continue
		}

		var setErr error
		if err := s.loop.Await(c.ctx, func() { setErr = s.cat.Set(msg.Name, msg.Value) }); err != nil {
			return
		}
		if setErr != nil {
			s.reply(c, Message{Type: "error", Name: msg.Name, Error: setErr.Error()})
		}
	}
}

func (s *Server) reply(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		c.close()
	}
}
