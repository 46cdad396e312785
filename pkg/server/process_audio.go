package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/voiceenhance/pkg/denoise"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
)

const (
	// a close frame payload is limited to 125 bytes, two of them are the code
	maxCloseReasonLength = 123
)

func (s *Server) handleProcessAudio(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := s.newSession()
	if err != nil {
		logger.Errorf(ctx, "unable to initialize a session: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	defer session.Close()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied with an HTTP error
		logger.Debugf(ctx, "unable to upgrade the connection: %v", err)
		return
	}
	s.registerConn(conn)
	defer func() {
		s.unregisterConn(conn)
		conn.Close()
	}()
	if s.config.Server.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.Server.MaxMessageSize)
	}

	s.totalSessions.Add(1)
	s.activeSessions.Add(1)
	defer s.activeSessions.Add(-1)

	ctx = logger.CtxWithLogger(ctx, logger.FromCtx(ctx).WithField("session_id", session.ID()))
	logger.Debugf(ctx, "session started, remote: %s", conn.RemoteAddr())
	err = s.serveSession(ctx, conn, session)
	logger.Debugf(ctx, "session ended after %d chunks: %v", session.Processed(), err)
}

// serveSession runs the read-process-reply loop until the peer goes away
// or a chunk is rejected.
func (s *Server) serveSession(
	ctx context.Context,
	conn *websocket.Conn,
	session *voicefilter.Session,
) error {
	for {
		msgType, reader, err := conn.NextReader()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				logger.Debugf(ctx, "the peer closed the connection: %v", err)
				return nil
			case websocket.IsUnexpectedCloseError(err):
				logger.Errorf(ctx, "the connection was closed unexpectedly: %v", err)
			default:
				logger.Debugf(ctx, "unable to read the next message: %v", err)
			}
			return err
		}

		if msgType != websocket.BinaryMessage {
			logger.Warnf(ctx, "received a non-binary message of type %d", msgType)
			_ = writeClose(conn, websocket.CloseUnsupportedData, "unsupported data")
			return fmt.Errorf("unsupported message type %d", msgType)
		}

		readCounter := datacounter.NewReaderCounter(reader)
		input, err := io.ReadAll(readCounter)
		s.bytesReceived.Add(readCounter.Count())
		if err != nil {
			// on exceeding the read limit the close frame is sent by the connection itself
			logger.Errorf(ctx, "unable to read the message: %v", err)
			return err
		}

		output := make([]byte, len(input))
		ratio, err := session.SuppressNoise(ctx, input, output)
		if err != nil {
			code := closeCode(err)
			if code == websocket.CloseInternalServerErr {
				logger.Errorf(ctx, "unable to process chunk #%d: %v", session.Processed(), err)
			} else {
				logger.Warnf(ctx, "rejected chunk #%d: %v", session.Processed(), err)
			}
			_ = writeClose(conn, code, err.Error())
			return err
		}
		logger.Tracef(ctx, "chunk #%d: %d bytes, energy ratio %f", session.Processed(), len(input), ratio)

		s.processedChunks.Add(1)
		if err := s.writeChunk(conn, output); err != nil {
			logger.Debugf(ctx, "unable to send the enhanced chunk: %v", err)
			return err
		}
	}
}

func (s *Server) writeChunk(conn *websocket.Conn, payload []byte) error {
	writer, err := conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return fmt.Errorf("unable to start a message: %w", err)
	}
	writeCounter := datacounter.NewWriterCounter(writer)
	_, err = writeCounter.Write(payload)
	s.bytesSent.Add(writeCounter.Count())
	if err != nil {
		writer.Close()
		return fmt.Errorf("unable to write the message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("unable to flush the message: %w", err)
	}
	return nil
}

func closeCode(err error) int {
	var (
		malformed  voicefilter.ErrMalformedChunk
		mismatch   denoise.ErrChunkLengthMismatch
		terminated voicefilter.ErrSessionTerminated
	)
	switch {
	case errors.As(err, &malformed):
		return websocket.CloseInvalidFramePayloadData
	case errors.As(err, &mismatch):
		return websocket.ClosePolicyViolation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return websocket.CloseGoingAway
	case errors.As(err, &terminated):
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseInternalServerErr
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	if len(reason) > maxCloseReasonLength {
		reason = reason[:maxCloseReasonLength]
	}
	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeWriteTimeout),
	)
}
