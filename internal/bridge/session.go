package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/hatcp/internal/observability"
)

// session serves one connection. Replies are written in input order.
type session struct {
	id      string
	conn    net.Conn
	server  *Server
	logger  *slog.Logger
	lines   lineBuffer
	started time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newSession(s *Server, conn net.Conn) *session {
	id := uuid.New().String()
	remote := conn.RemoteAddr().String()
	ctx, cancel := context.WithCancel(observability.WithSession(s.ctx, id, remote))
	return &session{
		id:      id,
		conn:    conn,
		server:  s,
		logger:  s.logger.With("session_id", id, "remote_addr", remote),
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *session) run() {
	c.server.metrics.SessionStarted()
	c.logger.Info("client connected")
	reason := "closed"
	defer func() {
		c.close()
		c.server.metrics.SessionEnded(time.Since(c.started).Seconds())
		c.logger.Info("client disconnected", "reason", reason)
	}()

	if err := c.write(c.server.greeting); err != nil {
		reason = "write failed"
		return
	}

	buf := make([]byte, readSize)
	for {
		if timeout := c.server.config.IdleTimeout; timeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.lines.Write(buf[:n])
			if !c.drainLines() {
				reason = "write failed"
				return
			}
			if c.lines.Len() > c.server.config.MaxLineBytes {
				c.logger.Warn("line too long, closing session", "buffered", c.lines.Len())
				c.server.metrics.RecordError("bridge", "line_too_long")
				reason = "line too long"
				return
			}
		}
		if err != nil {
			reason = readErrorReason(err)
			if reason == "read failed" {
				c.logger.Debug("read failed", "error", err)
			}
			return
		}
	}
}

// drainLines dispatches every complete buffered line. It reports false when
// a reply could not be written.
func (c *session) drainLines() bool {
	for {
		raw, ok := c.lines.Next()
		if !ok {
			return true
		}
		line := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
		if line == "" {
			continue
		}
		reply := c.server.config.Handler.Handle(c.ctx, line)
		if err := c.write(reply + prompt); err != nil {
			c.logger.Debug("write failed", "error", err)
			return false
		}
	}
}

func (c *session) write(text string) error {
	_, err := io.WriteString(c.conn, text)
	return err
}

func (c *session) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func readErrorReason(err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "idle timeout"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	default:
		return "read failed"
	}
}
