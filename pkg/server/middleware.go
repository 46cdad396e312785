package server

import (
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
)

// accessLog puts a request-scoped logger into the request context and
// logs the request once it is handled.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)

		l := s.logger.WithField("request_id", reqID)
		ctx := logger.CtxWithLogger(c.Request.Context(), l)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		l = l.
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			WithField("status", status).
			WithField("latency_ms", time.Since(start).Milliseconds()).
			WithField("ip", c.ClientIP())
		if len(c.Errors) > 0 {
			l = l.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			l.Errorf("request")
		case status >= 400:
			l.Warnf("request")
		default:
			l.Debugf("request")
		}
	}
}
