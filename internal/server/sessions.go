package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	sessiondomain "github.com/smallbiznis/gavel/internal/session/domain"
	"github.com/smallbiznis/gavel/internal/transport/stream"
	"go.uber.org/zap"
)

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

// StreamLogin logs the user in with the stream as its connection handle.
// Notifications arrive as "message" events until the client goes away or
// the session is logged out or disconnected.
func (s *Server) StreamLogin(c *gin.Context) {
	identity := strings.TrimSpace(c.Param("identity"))
	if identity == "" {
		AbortWithError(c, sessiondomain.ErrInvalidIdentity)
		return
	}
	if s.streams == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	ctx := c.Request.Context()
	conn := s.streams.Open(identity)
	session, err := s.registry.Login(ctx, identity, conn)
	if err != nil {
		s.streams.Forget(conn)
		AbortWithError(c, err)
		return
	}
	defer func() {
		s.registry.Release(context.WithoutCancel(ctx), identity, conn)
		s.streams.Forget(conn)
	}()

	flusher, ok := beginEventStream(c)
	if !ok {
		return
	}
	if err := writeJSONEvent(c.Writer, "session", session); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			drainMessages(c, conn)
			_ = writeEvent(c.Writer, "closed", identity)
			flusher.Flush()
			return
		case text := <-conn.Messages():
			if err := writeEvent(c.Writer, "message", text); err != nil {
				s.log.Debug("stream write failed", zap.String("user", identity), zap.Error(err))
				return
			}
			flusher.Flush()
			if len(conn.Messages()) == 0 {
				s.redeliver(ctx, identity, conn)
			}
		case <-heartbeat.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				return
			}
			flusher.Flush()
			s.redeliver(ctx, identity, conn)
		}
	}
}

// redeliver pulls messages that an interrupted flush left queued once the
// outbox has room again.
func (s *Server) redeliver(ctx context.Context, identity string, conn *stream.Conn) {
	if _, err := s.registry.Redeliver(ctx, identity, conn); err != nil {
		s.log.Debug("pending notifications still queued", zap.String("user", identity), zap.Error(err))
	}
}

func drainMessages(c *gin.Context, conn *stream.Conn) {
	for {
		select {
		case text := <-conn.Messages():
			if err := writeEvent(c.Writer, "message", text); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) Logout(c *gin.Context) {
	identity := c.Param("identity")
	if err := s.registry.Logout(c.Request.Context(), identity); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Disconnect(c *gin.Context) {
	identity := c.Param("identity")
	if err := s.registry.Disconnect(c.Request.Context(), identity); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) PostMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.registry.PostMessage(c.Request.Context(), c.Param("identity"), req.Message)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if outcome == sessiondomain.OutcomeQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": gin.H{"outcome": outcome}})
}

func (s *Server) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.registry.SendMessage(c.Request.Context(), c.Param("identity"), req.Message)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"outcome": outcome}})
}

func (s *Server) ListUsers(c *gin.Context) {
	resp := gin.H{"data": s.registry.Users()}
	if s.queue != nil {
		resp["notifications"] = s.queue.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetUser(c *gin.Context) {
	session, ok := s.registry.Get(c.Param("identity"))
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": session})
}
