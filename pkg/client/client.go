// Package client is a websocket client of the voice enhancement service.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gorilla/websocket"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
)

const (
	closeTimeout = time.Second
)

// Client sends chunks over a single connection, that is a single
// enhancement session on the server side.
type Client struct {
	locker sync.Mutex
	conn   *websocket.Conn
}

// Dial connects to a URL like "ws://host:8000/process_audio".
func Dial(ctx context.Context, url string) (_ret *Client, _err error) {
	logger.Debugf(ctx, "Dial(%s)", url)
	defer func() { logger.Debugf(ctx, "/Dial(%s): %v", url, _err) }()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("unable to connect to '%s' (HTTP status %d): %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("unable to connect to '%s': %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Enhance sends one chunk and waits for its enhanced version.
//
// If the server closed the connection, the returned error wraps
// the *websocket.CloseError with the reason.
func (c *Client) Enhance(ctx context.Context, samples []float32) ([]float32, error) {
	payload, err := audio.SamplesToFloat32LE(nil, samples)
	if err != nil {
		return nil, err
	}
	response, err := c.EnhanceRaw(ctx, payload)
	if err != nil {
		return nil, err
	}
	return audio.Float32LEToSamples(response)
}

// EnhanceRaw is Enhance for an already encoded (float32 little-endian)
// payload; the payload is sent as is.
func (c *Client) EnhanceRaw(ctx context.Context, payload []byte) (_ret []byte, _err error) {
	logger.Tracef(ctx, "EnhanceRaw, len:%d", len(payload))
	defer func() { logger.Tracef(ctx, "/EnhanceRaw, len:%d: %v", len(payload), _err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.locker.Lock()
	defer c.locker.Unlock()

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("unable to set the write deadline: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("unable to set the read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return nil, fmt.Errorf("unable to send the chunk: %w", err)
	}
	msgType, response, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("unable to receive the enhanced chunk: %w (%w)", ctxErr, err)
		}
		return nil, fmt.Errorf("unable to receive the enhanced chunk: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type %d", msgType)
	}
	return response, nil
}

// SendText sends a text message; the service does not accept them,
// so this exists to exercise the rejection path.
func (c *Client) SendText(ctx context.Context, text string) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// ReadClose waits for the server to close the connection and returns
// the close frame it sent.
func (c *Client) ReadClose(ctx context.Context) (*websocket.CloseError, error) {
	c.locker.Lock()
	defer c.locker.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if closeErr, ok := err.(*websocket.CloseError); ok {
			return closeErr, nil
		}
		return nil, err
	}
}

func (c *Client) Close() error {
	c.locker.Lock()
	defer c.locker.Unlock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout),
	)
	return c.conn.Close()
}
